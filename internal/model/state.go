package model

import "time"

// EventState is the single live show state shared by the director console,
// the stage display and every guest control page. There is exactly one per
// running event.
type EventState struct {
	Phase              Phase               `json:"phase"`
	CurrentMaleGuestID int                 `json:"currentMaleGuestId"`
	CurrentRoundNumber int                 `json:"currentRoundNumber"`
	Lights             map[int]LightStatus `json:"lights"`
	HeartChoices       map[int]int         `json:"heartChoices"` // male guest id -> chosen female guest id (0 = none)

	// Fullscreen overlay pointers. At most one of the intro/VCR/slide
	// overlays may be active at a time; UpdateState enforces that.
	IntroFemaleGuestID int    `json:"introFemaleGuestId"` // 0 = no intro overlay
	VCRPlaying         bool   `json:"vcrPlaying"`
	VCRType            string `json:"vcrType"`        // "entrance" or "hometown"
	CurrentSlideID     string `json:"currentSlideId"` // "" = no slide overlay

	// Stage pointers without overlay semantics
	ProfileFemaleGuestID int `json:"profileFemaleGuestId"`
	ProfileTagIndex      int `json:"profileTagIndex"`

	Message     string    `json:"message"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// DefaultEventState returns the state a fresh event starts from
func DefaultEventState() EventState {
	return EventState{
		Phase:              PhaseWaiting,
		CurrentMaleGuestID: 1,
		CurrentRoundNumber: 1,
		Lights:             DefaultLights(),
		HeartChoices:       make(map[int]int),
		VCRType:            VCRTypeEntrance,
	}
}

// VCR slots: every male guest brings two tapes
const (
	VCRTypeEntrance = "entrance"
	VCRTypeHometown = "hometown"
)

// StatePatch is a partial update to EventState. Nil fields are left
// untouched. It is the wire shape of the updateState action.
type StatePatch struct {
	Phase              *Phase  `json:"phase,omitempty"`
	CurrentMaleGuestID *int    `json:"currentMaleGuestId,omitempty"`
	CurrentRoundNumber *int    `json:"currentRoundNumber,omitempty"`
	IntroFemaleGuestID *int    `json:"introFemaleGuestId,omitempty"`
	VCRPlaying         *bool   `json:"vcrPlaying,omitempty"`
	VCRType            *string `json:"vcrType,omitempty"`
	CurrentSlideID     *string `json:"currentSlideId,omitempty"`

	ProfileFemaleGuestID *int `json:"profileFemaleGuestId,omitempty"`
	ProfileTagIndex      *int `json:"profileTagIndex,omitempty"`

	Message *string `json:"message,omitempty"`
}

// Clone returns a deep copy of the state, safe to hand to subscribers
func (s EventState) Clone() EventState {
	out := s
	out.Lights = make(map[int]LightStatus, len(s.Lights))
	for id, st := range s.Lights {
		out.Lights[id] = st
	}
	out.HeartChoices = make(map[int]int, len(s.HeartChoices))
	for id, choice := range s.HeartChoices {
		out.HeartChoices[id] = choice
	}
	return out
}
