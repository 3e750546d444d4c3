package store

import (
	"context"
	"errors"

	"heartstage/internal/model"
)

// ErrNotFound means no snapshot has ever been saved. It is a valid state
// for a brand-new event, not a failure.
var ErrNotFound = errors.New("no snapshot found")

// SnapshotStore persists the whole show snapshot as one versioned blob.
// Save is atomic from the reader's point of view: LoadLatest never observes
// a half-written envelope. When retried writes leave multiple candidates
// behind, LoadLatest picks the most recently produced one using the store's
// own ordering, not anything the client supplied.
type SnapshotStore interface {
	Save(ctx context.Context, env model.Envelope) error
	LoadLatest(ctx context.Context) (model.Envelope, error)
}
