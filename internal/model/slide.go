package model

// SlideSlot is a named presentation slot. It holds at most one content
// source: an uploaded image or a page index into the external deck, never
// both. Preset slots always exist and cannot be deleted; custom slots are
// created and removed freely.
type SlideSlot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Preset   bool   `json:"preset"`
	ImageURL string `json:"imageUrl,omitempty"`
	DeckPage int    `json:"deckPage,omitempty"` // 1-based, 0 = unset
}

// Preset slide ids, fixed by the show rundown
const (
	SlideOpening = "opening"
	SlideRules   = "rules"
	SlideBreak   = "break"
	SlideEnding  = "ending"
)

// DefaultSlides returns the preset slots with no content attached
func DefaultSlides() []SlideSlot {
	return []SlideSlot{
		{ID: SlideOpening, Name: "Opening", Preset: true},
		{ID: SlideRules, Name: "Rules", Preset: true},
		{ID: SlideBreak, Name: "Break", Preset: true},
		{ID: SlideEnding, Name: "Ending", Preset: true},
	}
}

// SetImage attaches an uploaded image and clears any deck pointer
func (s *SlideSlot) SetImage(url string) {
	s.ImageURL = url
	s.DeckPage = 0
}

// SetDeckPage points the slot at a deck page and clears any image
func (s *SlideSlot) SetDeckPage(page int) {
	s.DeckPage = page
	s.ImageURL = ""
}

// Clear detaches both content sources
func (s *SlideSlot) Clear() {
	s.ImageURL = ""
	s.DeckPage = 0
}
