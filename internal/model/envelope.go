package model

// Envelope is the single durable snapshot document. It is written whole on
// every save and is the payload pushed to streaming clients. SavedVersion
// is strictly increasing across saves from any process and is the only
// signal clients use to detect staleness.
type Envelope struct {
	State        EventState    `json:"state"`
	FemaleGuests []FemaleGuest `json:"femaleGuests"`
	MaleGuests   []MaleGuest   `json:"maleGuests"`
	Slides       []SlideSlot   `json:"slides"`
	SavedVersion int64         `json:"savedVersion"`
}

// DefaultEnvelope is the state of a brand-new event before anything has
// been saved.
func DefaultEnvelope() Envelope {
	return Envelope{
		State:        DefaultEventState(),
		FemaleGuests: EmptyFemaleRoster(),
		MaleGuests:   EmptyMaleRoster(),
		Slides:       DefaultSlides(),
	}
}

// Clone returns a deep copy safe to hand across goroutine boundaries
func (e Envelope) Clone() Envelope {
	out := e
	out.State = e.State.Clone()
	out.FemaleGuests = make([]FemaleGuest, len(e.FemaleGuests))
	copy(out.FemaleGuests, e.FemaleGuests)
	for i, g := range e.FemaleGuests {
		if g.Photos != nil {
			out.FemaleGuests[i].Photos = append([]string(nil), g.Photos...)
		}
		if g.Tags != nil {
			out.FemaleGuests[i].Tags = append([]string(nil), g.Tags...)
		}
	}
	out.MaleGuests = make([]MaleGuest, len(e.MaleGuests))
	copy(out.MaleGuests, e.MaleGuests)
	out.Slides = make([]SlideSlot, len(e.Slides))
	copy(out.Slides, e.Slides)
	return out
}
