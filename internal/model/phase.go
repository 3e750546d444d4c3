package model

// Phase is a named stage in the show's fixed running order
type Phase string

const (
	PhaseWaiting         Phase = "waiting"
	PhaseIntro           Phase = "intro"
	PhaseFirstImpression Phase = "firstImpression"
	PhaseSecondLook      Phase = "secondLook"
	PhaseFinalChoice     Phase = "finalChoice"
	PhaseReveal          Phase = "reveal"
	PhaseEnded           Phase = "ended"
)

// phaseOrder is the canonical running order used for next/previous navigation
var phaseOrder = []Phase{
	PhaseWaiting,
	PhaseIntro,
	PhaseFirstImpression,
	PhaseSecondLook,
	PhaseFinalChoice,
	PhaseReveal,
	PhaseEnded,
}

// PhaseOrder returns a copy of the running order
func PhaseOrder() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	return p.index() >= 0
}

func (p Phase) index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Next returns the phase after p. The last phase has no successor and
// returns itself.
func (p Phase) Next() Phase {
	i := p.index()
	if i < 0 || i == len(phaseOrder)-1 {
		return p
	}
	return phaseOrder[i+1]
}

// Prev returns the phase before p. The first phase has no predecessor and
// returns itself.
func (p Phase) Prev() Phase {
	i := p.index()
	if i <= 0 {
		return p
	}
	return phaseOrder[i-1]
}
