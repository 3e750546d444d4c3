package model

import "time"

// Registration genders, matching the two rosters
const (
	GenderFemale = "female"
	GenderMale   = "male"
)

// RegistrationEntry is one sign-up form submission. Entries live outside
// the show snapshot; they only exist to be reviewed and imported into a
// roster.
type RegistrationEntry struct {
	ID       string `json:"id" bson:"id"`
	Gender   string `json:"gender" bson:"gender"`
	Name     string `json:"name" bson:"name"`
	Age      int    `json:"age,omitempty" bson:"age,omitempty"`
	Phone    string `json:"phone,omitempty" bson:"phone,omitempty"`
	Bio      string `json:"bio,omitempty" bson:"bio,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty" bson:"photoUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty" bson:"videoUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
