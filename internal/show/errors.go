package show

import "errors"

var (
	// ErrNotHydrated rejects writes issued before the durable snapshot has
	// been loaded into this process. Accepting them would let an empty
	// fresh instance overwrite real data.
	ErrNotHydrated = errors.New("write blocked: show state not hydrated yet")

	// ErrEmptyRoster refuses a wholesale roster replace that would wipe
	// existing guests with an all-blank list.
	ErrEmptyRoster = errors.New("refusing to overwrite roster with an empty one")

	ErrSlideNotFound = errors.New("slide not found")
	ErrPresetSlide   = errors.New("preset slides cannot be deleted")
	ErrClosed        = errors.New("show engine is closed")
)

// Blocked reports whether err is a guard-rail refusal rather than a real
// failure. The web layer maps these to their own status codes so a caller
// can tell "refused for safety" from "something broke".
func Blocked(err error) bool {
	return errors.Is(err, ErrNotHydrated) || errors.Is(err, ErrEmptyRoster)
}
