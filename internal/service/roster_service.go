package service

import (
	"context"
	"fmt"

	"heartstage/internal/model"
	"heartstage/internal/repository"
	"heartstage/internal/show"
)

// RosterService seeds the show rosters from registration entries. It only
// ever goes through the engine's roster mutations, so the empty-overwrite
// guard and hydration gate still apply.
type RosterService struct {
	registrations repository.RegistrationRepo
	engine        *show.Engine
}

// NewRosterService creates a new roster service
func NewRosterService(registrations repository.RegistrationRepo, engine *show.Engine) *RosterService {
	return &RosterService{
		registrations: registrations,
		engine:        engine,
	}
}

// Import replaces the roster for the given gender with the current
// registration entries, in submission order. Returns the pending save.
func (s *RosterService) Import(ctx context.Context, gender string) (*show.SaveTask, error) {
	entries, err := s.registrations.ListEntries(ctx, gender)
	if err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}

	switch gender {
	case model.GenderFemale:
		guests := make([]model.FemaleGuest, 0, len(entries))
		for _, entry := range entries {
			guests = append(guests, model.FemaleGuest{
				Name:     entry.Name,
				Age:      entry.Age,
				Bio:      entry.Bio,
				PhotoURL: entry.PhotoURL,
				VideoURL: entry.VideoURL,
			})
		}
		return s.engine.SetFemaleGuests(guests)
	case model.GenderMale:
		guests := make([]model.MaleGuest, 0, len(entries))
		for _, entry := range entries {
			guests = append(guests, model.MaleGuest{
				Name:             entry.Name,
				Age:              entry.Age,
				Bio:              entry.Bio,
				PhotoURL:         entry.PhotoURL,
				EntranceVideoURL: entry.VideoURL,
			})
		}
		return s.engine.SetMaleGuests(guests)
	default:
		return nil, fmt.Errorf("unknown gender %q", gender)
	}
}
