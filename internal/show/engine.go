package show

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	eventbus "github.com/jilio/ebu"

	"heartstage/internal/cache"
	"heartstage/internal/model"
	"heartstage/internal/store"
)

// Changed is published on the fan-out bus after every applied mutation.
// The snapshot is a deep copy stamped with the version the pending durable
// save will carry.
type Changed struct {
	Snapshot model.Envelope
}

type hydration int

const (
	hydrationNone hydration = iota
	hydrationRunning
	hydrationDone
	hydrationFailed
)

// Engine owns the in-memory mirror of the show state for this process and
// is the only way to mutate it. Every mutation applies to the mirror,
// notifies local subscribers synchronously, and enqueues a durable save;
// saves run one at a time in mutation order.
//
// Subscriber callbacks run on the mutating goroutine and must not call
// back into the engine.
type Engine struct {
	// HydrateAttempts and HydrateBackoff tune the cold-start load retry.
	// Override before the first Hydrate call.
	HydrateAttempts int
	HydrateBackoff  time.Duration

	// PollInterval is the default cross-process poll cadence for streams.
	// Like the hydrate tuning, set it before the engine starts serving.
	PollInterval time.Duration

	snapshots store.SnapshotStore
	bus       *eventbus.EventBus

	mu       sync.Mutex
	cur      model.Envelope
	hydrated hydration
	inflight chan struct{} // closed when the running hydration attempt ends
	closed   bool
	versions cache.VersionCache // optional
	eventID  string

	// Subscriptions are keyed by id so removing one can never touch
	// another, however the bus compares handler functions.
	subs      map[int]func(model.Envelope)
	nextSubID int

	// Pending saves, drained in order by the saver goroutine. A slice
	// rather than a bounded channel: enqueueing under the mutex must never
	// block, or a stalled store would freeze reads too.
	pending  []*saveTask
	saveWake *sync.Cond
	done     chan struct{}
}

// NewEngine creates an engine over the given snapshot store. The engine is
// not hydrated yet; call Hydrate before accepting writes.
func NewEngine(snapshots store.SnapshotStore) *Engine {
	e := &Engine{
		HydrateAttempts: 5,
		HydrateBackoff:  100 * time.Millisecond,
		PollInterval:    3 * time.Second,
		snapshots:       snapshots,
		eventID:         "main",
		bus:             eventbus.New(),
		cur:             model.DefaultEnvelope(),
		subs:            make(map[int]func(model.Envelope)),
		done:            make(chan struct{}),
	}
	e.saveWake = sync.NewCond(&e.mu)
	e.bus.SetPanicHandler(func(event any, handlerType reflect.Type, panicValue any) {
		log.Printf("show: bus handler %v panicked: %v", handlerType, panicValue)
	})
	if err := eventbus.Subscribe(e.bus, eventbus.Handler[Changed](e.dispatch)); err != nil {
		panic(err) // static handler type, cannot fail
	}
	go e.saver()
	return e
}

// SetVersionCache attaches the Redis version cache consulted by stream
// pollers and updated after every durable save. Safe to call while the
// engine is already serving.
func (e *Engine) SetVersionCache(versions cache.VersionCache, eventID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.versions = versions
	if eventID != "" {
		e.eventID = eventID
	}
}

// versionCache returns the attached cache and event id for readers on
// other goroutines.
func (e *Engine) versionCache() (cache.VersionCache, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versions, e.eventID
}

// Close stops the save queue after draining pending tasks
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.saveWake.Signal()
	e.mu.Unlock()
	<-e.done
}

// Hydrated reports whether writes are currently accepted
func (e *Engine) Hydrated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hydrated == hydrationDone
}

// Snapshot returns a deep copy of the current mirror
func (e *Engine) Snapshot() model.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur.Clone()
}

// Hydrate loads the durable snapshot into the mirror, once per process.
// Concurrent callers wait on the same in-flight attempt. A confirmed-empty
// store is success: the defaults stand. On failure the attempt slot is
// released so a later call can retry.
func (e *Engine) Hydrate(ctx context.Context) error {
	e.mu.Lock()
	switch e.hydrated {
	case hydrationDone:
		e.mu.Unlock()
		return nil
	case hydrationRunning:
		wait := e.inflight
		e.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		if e.Hydrated() {
			return nil
		}
		return ErrNotHydrated
	default:
		e.hydrated = hydrationRunning
		e.inflight = make(chan struct{})
	}
	wait := e.inflight
	e.mu.Unlock()

	env, err := e.loadWithRetry(ctx)

	e.mu.Lock()
	if err != nil {
		e.hydrated = hydrationFailed
	} else {
		if env != nil {
			e.cur = *env
		}
		e.hydrated = hydrationDone
	}
	close(wait)
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("hydration failed: %w", err)
	}
	return nil
}

// loadWithRetry reads the durable snapshot with bounded exponential
// backoff. A nil envelope with nil error means the store is confirmed
// empty.
func (e *Engine) loadWithRetry(ctx context.Context) (*model.Envelope, error) {
	backoff := e.HydrateBackoff
	var lastErr error
	for attempt := 0; attempt < e.HydrateAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		env, err := e.snapshots.LoadLatest(ctx)
		if err == nil {
			return &env, nil
		}
		if err == store.ErrNotFound {
			return nil, nil
		}
		lastErr = err
		log.Printf("show: hydration attempt %d failed: %v", attempt+1, err)
	}
	return nil, lastErr
}

// mutate runs apply under the write lock. When apply reports a change the
// mirror is stamped, subscribers are notified synchronously, and a durable
// save is enqueued in mutation order. A nil task with nil error is a
// silent no-op.
func (e *Engine) mutate(apply func(env *model.Envelope) bool) (*SaveTask, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if e.hydrated != hydrationDone {
		state := e.hydrated
		if state == hydrationNone || state == hydrationFailed {
			// Kick a background (re)try so the next write can succeed
			go func() {
				if err := e.Hydrate(context.Background()); err != nil {
					log.Printf("show: background hydration: %v", err)
				}
			}()
		}
		return nil, ErrNotHydrated
	}

	if !apply(&e.cur) {
		return nil, nil
	}

	e.cur.State.LastUpdated = time.Now()
	e.cur.SavedVersion = e.mintVersionLocked()
	snapshot := e.cur.Clone()

	// Local subscribers learn about the change before the durable write
	// even starts; they never wait on the store round-trip.
	eventbus.Publish(e.bus, Changed{Snapshot: snapshot})

	task := &saveTask{snapshot: snapshot, done: make(chan struct{})}
	e.pending = append(e.pending, task)
	e.saveWake.Signal()
	return &SaveTask{t: task}, nil
}

// mintVersionLocked produces the next save version: wall-clock millis,
// always strictly above the previous one.
func (e *Engine) mintVersionLocked() int64 {
	v := time.Now().UnixMilli()
	if v <= e.cur.SavedVersion {
		v = e.cur.SavedVersion + 1
	}
	return v
}

func (e *Engine) saver() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.pending) == 0 && !e.closed {
			e.saveWake.Wait()
		}
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := e.snapshots.Save(ctx, task.snapshot)
		if err == nil {
			if versions, eventID := e.versionCache(); versions != nil {
				if verr := versions.SetVersion(ctx, eventID, task.snapshot.SavedVersion); verr != nil {
					log.Printf("show: version cache update failed: %v", verr)
				}
			}
		}
		cancel()
		if err != nil {
			log.Printf("show: save of version %d failed: %v", task.snapshot.SavedVersion, err)
		}
		task.err = err
		close(task.done)
	}
}

// Subscribe registers fn on the local fan-out. It is invoked immediately
// with the current snapshot, then once per mutation in mutation order. The
// returned function removes exactly this subscription and no other, even
// when many clients subscribed the same function.
func (e *Engine) Subscribe(fn func(model.Envelope)) (func(), error) {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	// Deliver the initial snapshot before releasing the lock so no
	// mutation can slip in between and arrive out of order.
	notify(fn, e.cur.Clone())
	e.mu.Unlock()

	unsubscribe := func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
	return unsubscribe, nil
}

// dispatch is the engine's only bus handler. It runs under the write lock
// (mutations publish while holding it), which also guards the registry.
func (e *Engine) dispatch(ev Changed) {
	for _, fn := range e.subs {
		notify(fn, ev.Snapshot)
	}
}

// notify shields the fan-out from a panicking subscriber
func notify(fn func(model.Envelope), snapshot model.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("show: subscriber panicked: %v", r)
		}
	}()
	fn(snapshot)
}

// SaveTask is the handle for one pending durable save. The caller decides
// whether to await it; the write itself proceeds either way.
type SaveTask struct {
	t *saveTask
}

type saveTask struct {
	snapshot model.Envelope
	done     chan struct{}
	err      error
}

// Version is the save version minted for this task
func (t *SaveTask) Version() int64 {
	return t.t.snapshot.SavedVersion
}

// Wait blocks until the durable write finishes and returns its error
func (t *SaveTask) Wait(ctx context.Context) error {
	select {
	case <-t.t.done:
		return t.t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Mutations ---

// SetLight changes one podium light. A transition out of a terminal state
// is a silent no-op: double taps from a flaky console are expected and not
// an error.
func (e *Engine) SetLight(guestID int, status model.LightStatus) (*SaveTask, error) {
	if guestID < 1 || guestID > model.FemaleGuestCount {
		return nil, fmt.Errorf("invalid guest id %d", guestID)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid light status %q", status)
	}
	return e.mutate(func(env *model.Envelope) bool {
		if !model.CanTransitionLight(env.State.Lights[guestID], status) {
			return false
		}
		env.State.Lights[guestID] = status
		return true
	})
}

// ResetLights forces every light back to on. Operator override: it is the
// only way out of a terminal light state.
func (e *Engine) ResetLights() (*SaveTask, error) {
	return e.mutate(func(env *model.Envelope) bool {
		env.State.Lights = model.DefaultLights()
		return true
	})
}

// UpdateState merges the patch into the live state. Activating any one of
// the intro/VCR/slide overlays clears the other two in the same atomic
// update; no subscriber can ever observe two overlays active. If a single
// patch activates several overlays the last-processed one wins (intro,
// then VCR, then slide).
func (e *Engine) UpdateState(patch model.StatePatch) (*SaveTask, error) {
	if patch.Phase != nil && !patch.Phase.Valid() {
		return nil, fmt.Errorf("invalid phase %q", *patch.Phase)
	}
	if patch.VCRType != nil && *patch.VCRType != model.VCRTypeEntrance && *patch.VCRType != model.VCRTypeHometown {
		return nil, fmt.Errorf("invalid vcr type %q", *patch.VCRType)
	}
	return e.mutate(func(env *model.Envelope) bool {
		s := &env.State
		if patch.Phase != nil {
			s.Phase = *patch.Phase
		}
		if patch.CurrentMaleGuestID != nil {
			s.CurrentMaleGuestID = *patch.CurrentMaleGuestID
		}
		if patch.CurrentRoundNumber != nil {
			s.CurrentRoundNumber = *patch.CurrentRoundNumber
		}
		if patch.ProfileFemaleGuestID != nil {
			s.ProfileFemaleGuestID = *patch.ProfileFemaleGuestID
		}
		if patch.ProfileTagIndex != nil {
			s.ProfileTagIndex = *patch.ProfileTagIndex
		}
		if patch.Message != nil {
			s.Message = *patch.Message
		}
		if patch.VCRType != nil {
			s.VCRType = *patch.VCRType
		}

		if patch.IntroFemaleGuestID != nil {
			s.IntroFemaleGuestID = *patch.IntroFemaleGuestID
			if s.IntroFemaleGuestID != 0 {
				s.VCRPlaying = false
				s.CurrentSlideID = ""
			}
		}
		if patch.VCRPlaying != nil {
			s.VCRPlaying = *patch.VCRPlaying
			if s.VCRPlaying {
				s.IntroFemaleGuestID = 0
				s.CurrentSlideID = ""
			}
		}
		if patch.CurrentSlideID != nil {
			s.CurrentSlideID = *patch.CurrentSlideID
			if s.CurrentSlideID != "" {
				s.IntroFemaleGuestID = 0
				s.VCRPlaying = false
			}
		}
		return true
	})
}

// SetHeartChoice records (or clears, with femaleGuestID 0) a male guest's
// secret pick.
func (e *Engine) SetHeartChoice(maleGuestID, femaleGuestID int) (*SaveTask, error) {
	if maleGuestID < 1 || maleGuestID > model.MaleGuestCount {
		return nil, fmt.Errorf("invalid guest id %d", maleGuestID)
	}
	if femaleGuestID < 0 || femaleGuestID > model.FemaleGuestCount {
		return nil, fmt.Errorf("invalid guest id %d", femaleGuestID)
	}
	return e.mutate(func(env *model.Envelope) bool {
		if femaleGuestID == 0 {
			delete(env.State.HeartChoices, maleGuestID)
		} else {
			env.State.HeartChoices[maleGuestID] = femaleGuestID
		}
		return true
	})
}

// NextPhase advances the show one step in the running order
func (e *Engine) NextPhase() (*SaveTask, error) {
	return e.mutate(func(env *model.Envelope) bool {
		next := env.State.Phase.Next()
		if next == env.State.Phase {
			return false
		}
		env.State.Phase = next
		return true
	})
}

// PrevPhase steps the show back one step in the running order
func (e *Engine) PrevPhase() (*SaveTask, error) {
	return e.mutate(func(env *model.Envelope) bool {
		prev := env.State.Phase.Prev()
		if prev == env.State.Phase {
			return false
		}
		env.State.Phase = prev
		return true
	})
}

// SetFemaleGuests replaces the whole female roster. An all-blank incoming
// list is refused while real guests are on the board; that is almost
// always a stray blank form submit.
func (e *Engine) SetFemaleGuests(guests []model.FemaleGuest) (*SaveTask, error) {
	normalized := model.EmptyFemaleRoster()
	for i := 0; i < len(guests) && i < model.FemaleGuestCount; i++ {
		normalized[i] = guests[i]
		normalized[i].ID = i + 1
		if len(normalized[i].Tags) > 3 {
			normalized[i].Tags = normalized[i].Tags[:3]
		}
	}
	return e.mutate2(func(env *model.Envelope) (bool, error) {
		if !model.FemaleRosterHasContent(normalized) && model.FemaleRosterHasContent(env.FemaleGuests) {
			return false, ErrEmptyRoster
		}
		env.FemaleGuests = normalized
		return true, nil
	})
}

// SetMaleGuests replaces the whole male roster, with the same guard as
// SetFemaleGuests.
func (e *Engine) SetMaleGuests(guests []model.MaleGuest) (*SaveTask, error) {
	normalized := model.EmptyMaleRoster()
	for i := 0; i < len(guests) && i < model.MaleGuestCount; i++ {
		normalized[i] = guests[i]
		normalized[i].ID = i + 1
	}
	return e.mutate2(func(env *model.Envelope) (bool, error) {
		if !model.MaleRosterHasContent(normalized) && model.MaleRosterHasContent(env.MaleGuests) {
			return false, ErrEmptyRoster
		}
		env.MaleGuests = normalized
		return true, nil
	})
}

// CreateSlide adds a custom slide slot and returns its id
func (e *Engine) CreateSlide(name string) (string, *SaveTask, error) {
	if name == "" {
		return "", nil, fmt.Errorf("slide name is required")
	}
	id := uuid.New().String()
	task, err := e.mutate(func(env *model.Envelope) bool {
		env.Slides = append(env.Slides, model.SlideSlot{ID: id, Name: name})
		return true
	})
	if err != nil {
		return "", nil, err
	}
	return id, task, nil
}

// SetSlideImage attaches an uploaded image to a slot, clearing any deck
// pointer it held.
func (e *Engine) SetSlideImage(id, url string) (*SaveTask, error) {
	return e.mutateSlide(id, func(slide *model.SlideSlot) {
		slide.SetImage(url)
	})
}

// SetSlideDeckPage points a slot at a deck page, clearing any image
func (e *Engine) SetSlideDeckPage(id string, page int) (*SaveTask, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid deck page %d", page)
	}
	return e.mutateSlide(id, func(slide *model.SlideSlot) {
		slide.SetDeckPage(page)
	})
}

// ClearSlide detaches both content sources from a slot
func (e *Engine) ClearSlide(id string) (*SaveTask, error) {
	return e.mutateSlide(id, func(slide *model.SlideSlot) {
		slide.Clear()
	})
}

func (e *Engine) mutateSlide(id string, apply func(*model.SlideSlot)) (*SaveTask, error) {
	return e.mutate2(func(env *model.Envelope) (bool, error) {
		for i := range env.Slides {
			if env.Slides[i].ID == id {
				apply(&env.Slides[i])
				return true, nil
			}
		}
		return false, ErrSlideNotFound
	})
}

// DeleteSlide removes a custom slide slot. If it was on screen the slide
// overlay is cleared in the same update.
func (e *Engine) DeleteSlide(id string) (*SaveTask, error) {
	return e.mutate2(func(env *model.Envelope) (bool, error) {
		for i := range env.Slides {
			if env.Slides[i].ID != id {
				continue
			}
			if env.Slides[i].Preset {
				return false, ErrPresetSlide
			}
			env.Slides = append(env.Slides[:i], env.Slides[i+1:]...)
			if env.State.CurrentSlideID == id {
				env.State.CurrentSlideID = ""
			}
			return true, nil
		}
		return false, ErrSlideNotFound
	})
}

// ResetEvent restores the live state to defaults. Rosters and slides are
// untouched.
func (e *Engine) ResetEvent() (*SaveTask, error) {
	return e.mutate(func(env *model.Envelope) bool {
		env.State = model.DefaultEventState()
		return true
	})
}

// mutate2 is mutate for appliers that can refuse with an error
func (e *Engine) mutate2(apply func(env *model.Envelope) (bool, error)) (*SaveTask, error) {
	var applyErr error
	task, err := e.mutate(func(env *model.Envelope) bool {
		changed, aerr := apply(env)
		applyErr = aerr
		return changed
	})
	if err != nil {
		return nil, err
	}
	if applyErr != nil {
		return nil, applyErr
	}
	return task, nil
}
