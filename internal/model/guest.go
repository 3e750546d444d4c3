package model

// FemaleGuest is one of the twelve podium guests. A slot with no name is an
// empty placeholder; rosters are always replaced wholesale.
type FemaleGuest struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Age      int      `json:"age,omitempty"`
	Bio      string   `json:"bio,omitempty"`
	PhotoURL string   `json:"photoUrl,omitempty"`
	Photos   []string `json:"photos,omitempty"`
	VideoURL string   `json:"videoUrl,omitempty"`
	Tags     []string `json:"tags,omitempty"` // up to three short tags
}

// MaleGuest is one of the six contestants
type MaleGuest struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Age              int    `json:"age,omitempty"`
	Bio              string `json:"bio,omitempty"`
	PhotoURL         string `json:"photoUrl,omitempty"`
	EntranceVideoURL string `json:"entranceVideoUrl,omitempty"`
	HometownVideoURL string `json:"hometownVideoUrl,omitempty"`
}

// Empty reports whether the slot is a placeholder
func (g FemaleGuest) Empty() bool { return g.Name == "" }

// Empty reports whether the slot is a placeholder
func (g MaleGuest) Empty() bool { return g.Name == "" }

// EmptyFemaleRoster returns twelve placeholder slots
func EmptyFemaleRoster() []FemaleGuest {
	guests := make([]FemaleGuest, FemaleGuestCount)
	for i := range guests {
		guests[i].ID = i + 1
	}
	return guests
}

// EmptyMaleRoster returns six placeholder slots
func EmptyMaleRoster() []MaleGuest {
	guests := make([]MaleGuest, MaleGuestCount)
	for i := range guests {
		guests[i].ID = i + 1
	}
	return guests
}

// FemaleRosterHasContent reports whether any slot is filled in
func FemaleRosterHasContent(guests []FemaleGuest) bool {
	for _, g := range guests {
		if !g.Empty() {
			return true
		}
	}
	return false
}

// MaleRosterHasContent reports whether any slot is filled in
func MaleRosterHasContent(guests []MaleGuest) bool {
	for _, g := range guests {
		if !g.Empty() {
			return true
		}
	}
	return false
}
