package model

// LightStatus is the tri-state podium light for a female guest
type LightStatus string

const (
	LightOn    LightStatus = "on"
	LightOff   LightStatus = "off"
	LightBurst LightStatus = "burst"
)

// Guest slot counts are fixed by the stage layout
const (
	FemaleGuestCount = 12
	MaleGuestCount   = 6
)

// Valid reports whether s is a known light status
func (s LightStatus) Valid() bool {
	switch s {
	case LightOn, LightOff, LightBurst:
		return true
	}
	return false
}

// Terminal reports whether s ends a guest's participation for the round.
// A terminal light only leaves that state through a full reset.
func (s LightStatus) Terminal() bool {
	return s == LightOff || s == LightBurst
}

// CanTransitionLight reports whether a light may move from cur to next.
// Terminal states are sticky for the round; same-state writes are allowed
// but are a no-op for callers.
func CanTransitionLight(cur, next LightStatus) bool {
	if !next.Valid() {
		return false
	}
	if cur == next {
		return false
	}
	return !cur.Terminal()
}

// DefaultLights returns all twelve lights set to on
func DefaultLights() map[int]LightStatus {
	lights := make(map[int]LightStatus, FemaleGuestCount)
	for id := 1; id <= FemaleGuestCount; id++ {
		lights[id] = LightOn
	}
	return lights
}
