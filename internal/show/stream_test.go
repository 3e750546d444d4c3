package show

import (
	"context"
	"sync"
	"testing"
	"time"

	"heartstage/internal/model"
	"heartstage/internal/store"
)

// collect drains a stream into a version list until the channel closes
func collect(stream *Stream) (*sync.Mutex, *[]model.Envelope) {
	var mu sync.Mutex
	var got []model.Envelope
	go func() {
		for env := range stream.C {
			mu.Lock()
			got = append(got, env)
			mu.Unlock()
		}
	}()
	return &mu, &got
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStreamVersionsStrictlyIncreasing(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := e.OpenStream(ctx, time.Hour) // poll path effectively off
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	mu, got := collect(stream)

	var last *SaveTask
	for i := 1; i <= 8; i++ {
		task, err := e.UpdateState(model.StatePatch{CurrentRoundNumber: intPtr(i)})
		if err != nil {
			t.Fatalf("UpdateState: %v", err)
		}
		last = task
	}
	waitSaved(t, last)

	final := last.Version()
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		n := len(*got)
		return n > 0 && (*got)[n-1].SavedVersion == final
	})

	mu.Lock()
	defer mu.Unlock()
	versions := *got
	for i := 1; i < len(versions); i++ {
		if versions[i].SavedVersion <= versions[i-1].SavedVersion {
			t.Fatalf("client saw a regression or duplicate at %d: %d then %d",
				i, versions[i-1].SavedVersion, versions[i].SavedVersion)
		}
	}
}

func TestStreamDeliversInitialSnapshot(t *testing.T) {
	s := store.NewMemoryStore()

	// Another instance already saved a snapshot; a fresh engine's stream
	// must serve the durable state, not its own empty mirror.
	seed := model.DefaultEnvelope()
	seed.State.Message = "from instance A"
	seed.SavedVersion = 77
	if err := s.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	e := NewEngine(s)
	defer e.Close()
	// Deliberately not hydrated: streams are read-only and must not wait

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := e.OpenStream(ctx, time.Hour)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	select {
	case env := <-stream.C:
		if env.SavedVersion != 77 || env.State.Message != "from instance A" {
			t.Errorf("initial snapshot = v%d %q", env.SavedVersion, env.State.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestStreamSeesOtherProcessViaPolling(t *testing.T) {
	shared := store.NewMemoryStore()

	engineA := NewEngine(shared)
	engineA.HydrateBackoff = time.Millisecond
	defer engineA.Close()
	engineB := NewEngine(shared)
	engineB.HydrateBackoff = time.Millisecond
	defer engineB.Close()

	for _, e := range []*Engine{engineA, engineB} {
		if err := e.Hydrate(context.Background()); err != nil {
			t.Fatalf("Hydrate: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := engineB.OpenStream(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	mu, got := collect(stream)
	before := stream.LastVersion()

	// Process A finalizes a light; B's client must see it within a poll
	task, err := engineA.SetLight(3, model.LightBurst)
	if err != nil {
		t.Fatalf("SetLight on A: %v", err)
	}
	waitSaved(t, task)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, env := range *got {
			if env.State.Lights[3] == model.LightBurst && env.SavedVersion > before {
				return true
			}
		}
		return false
	})
}

func TestStreamTeardownStopsBothPaths(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := e.OpenStream(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	cancel()

	// The channel closes once both the subscription and the poller are
	// torn down.
	waitFor(t, 2*time.Second, func() bool {
		select {
		case _, ok := <-stream.C:
			return !ok
		default:
			return false
		}
	})

	// Local mutations no longer reach the dead stream
	task, err := e.UpdateState(model.StatePatch{Message: strPtr("after close")})
	if err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	waitSaved(t, task)
	if stream.LastVersion() >= task.Version() {
		t.Error("closed stream still tracked new versions")
	}
}

func TestStreamCoalescesForSlowConsumers(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := e.OpenStream(ctx, time.Hour)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	// Nobody reads while a burst of mutations lands
	var last *SaveTask
	for i := 1; i <= 50; i++ {
		task, err := e.UpdateState(model.StatePatch{CurrentRoundNumber: intPtr(i)})
		if err != nil {
			t.Fatalf("UpdateState: %v", err)
		}
		last = task
	}
	waitSaved(t, last)

	// The newest snapshot must still be waiting, whatever was dropped
	var newest model.Envelope
	for env := range stream.C {
		newest = env
		if env.SavedVersion >= last.Version() {
			break
		}
	}
	if newest.SavedVersion != last.Version() {
		t.Errorf("newest delivered = %d, want %d", newest.SavedVersion, last.Version())
	}
	if newest.State.CurrentRoundNumber != 50 {
		t.Errorf("round = %d, want 50", newest.State.CurrentRoundNumber)
	}
}

func TestStreamCloseLeavesOtherStreamsAttached(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Polling effectively off: only the local push path can deliver
	streamA, err := e.OpenStream(ctx, time.Hour)
	if err != nil {
		t.Fatalf("OpenStream A: %v", err)
	}
	defer streamA.Close()
	streamB, err := e.OpenStream(ctx, time.Hour)
	if err != nil {
		t.Fatalf("OpenStream B: %v", err)
	}

	mu, got := collect(streamA)

	// A later-opened client disconnecting must not detach earlier ones
	streamB.Close()

	task, err := e.UpdateState(model.StatePatch{Message: strPtr("still here")})
	if err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	waitSaved(t, task)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, env := range *got {
			if env.SavedVersion == task.Version() {
				return true
			}
		}
		return false
	})
}

type fakeVersions struct {
	mu sync.Mutex
	v  int64
}

func (f *fakeVersions) SetVersion(ctx context.Context, eventID string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if version > f.v {
		f.v = version
	}
	return nil
}

func (f *fakeVersions) GetVersion(ctx context.Context, eventID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v, nil
}

func TestStreamPollProbesVersionCacheFirst(t *testing.T) {
	e, s := newTestEngine(t)

	task, err := e.UpdateState(model.StatePatch{Message: strPtr("opening")})
	if err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	waitSaved(t, task)

	// Attached while the engine is already serving
	fv := &fakeVersions{}
	e.SetVersionCache(fv, "main")
	fv.SetVersion(context.Background(), "main", task.Version())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := e.OpenStream(ctx, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	waitFor(t, 2*time.Second, func() bool {
		return stream.LastVersion() == task.Version()
	})
	// drain the initial snapshot so later deliveries are observable
	<-stream.C

	// Cache says nothing newer exists: polls must skip the full blob read
	time.Sleep(30 * time.Millisecond)
	before := s.LoadCount()
	time.Sleep(50 * time.Millisecond)
	if grew := s.LoadCount() - before; grew > 0 {
		t.Errorf("poller did %d full reads despite a current cached version", grew)
	}

	// Another instance saves: the probe passes and the read happens
	next := model.DefaultEnvelope()
	next.State.Message = "from instance A"
	next.SavedVersion = task.Version() + 100
	if err := s.Save(context.Background(), next); err != nil {
		t.Fatalf("Save: %v", err)
	}
	fv.SetVersion(context.Background(), "main", next.SavedVersion)

	select {
	case env := <-stream.C:
		if env.SavedVersion != next.SavedVersion {
			t.Errorf("delivered version %d, want %d", env.SavedVersion, next.SavedVersion)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("newer durable version behind the cache probe never delivered")
	}
}
