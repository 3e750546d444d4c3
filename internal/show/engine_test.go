package show

import (
	"context"
	"sync"
	"testing"
	"time"

	"heartstage/internal/model"
	"heartstage/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	e := NewEngine(s)
	e.HydrateBackoff = time.Millisecond
	t.Cleanup(e.Close)
	if err := e.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	return e, s
}

func waitSaved(t *testing.T, task *SaveTask) {
	t.Helper()
	if task == nil {
		t.Fatal("expected a save task")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestHydrationBlocksPrematureWrites(t *testing.T) {
	s := store.NewMemoryStore()
	s.Latency = 100 * time.Millisecond
	e := NewEngine(s)
	e.HydrateBackoff = time.Millisecond
	defer e.Close()

	done := make(chan error, 1)
	go func() { done <- e.Hydrate(context.Background()) }()

	// Issued while hydration is in flight: must be rejected, not queued
	time.Sleep(10 * time.Millisecond)
	if _, err := e.SetLight(1, model.LightOff); err != ErrNotHydrated {
		t.Fatalf("write during hydration = %v, want ErrNotHydrated", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	// Accepted immediately after hydration resolves
	task, err := e.SetLight(1, model.LightOff)
	if err != nil {
		t.Fatalf("write after hydration: %v", err)
	}
	waitSaved(t, task)
}

func TestHydrationFailureReleasesRetrySlot(t *testing.T) {
	s := store.NewMemoryStore()
	e := NewEngine(s)
	e.HydrateAttempts = 2
	e.HydrateBackoff = time.Millisecond
	defer e.Close()

	s.FailLoads = 2
	if err := e.Hydrate(context.Background()); err == nil {
		t.Fatal("expected hydration to fail")
	}
	if e.Hydrated() {
		t.Fatal("engine should not be hydrated after a failed attempt")
	}

	// The failed slot must be released: a fresh attempt succeeds
	if err := e.Hydrate(context.Background()); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if !e.Hydrated() {
		t.Fatal("engine should be hydrated after retry")
	}
}

func TestHydrationLoadsExistingSnapshot(t *testing.T) {
	s := store.NewMemoryStore()
	seed := model.DefaultEnvelope()
	seed.FemaleGuests[0].Name = "An Qi"
	seed.State.Lights[7] = model.LightOff
	seed.SavedVersion = 99
	if err := s.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	e := NewEngine(s)
	defer e.Close()
	if err := e.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	snap := e.Snapshot()
	if snap.FemaleGuests[0].Name != "An Qi" {
		t.Errorf("roster not hydrated: %+v", snap.FemaleGuests[0])
	}
	if snap.State.Lights[7] != model.LightOff {
		t.Errorf("lights not hydrated: %v", snap.State.Lights[7])
	}
	if snap.SavedVersion != 99 {
		t.Errorf("SavedVersion = %d, want 99", snap.SavedVersion)
	}
}

func TestTerminalLightInvariant(t *testing.T) {
	for _, terminal := range []model.LightStatus{model.LightOff, model.LightBurst} {
		t.Run(string(terminal), func(t *testing.T) {
			e, _ := newTestEngine(t)

			task, err := e.SetLight(3, terminal)
			if err != nil {
				t.Fatalf("SetLight: %v", err)
			}
			waitSaved(t, task)
			before := e.Snapshot()

			// Any further transition is a silent no-op until reset
			for _, next := range []model.LightStatus{model.LightOn, model.LightOff, model.LightBurst} {
				task, err := e.SetLight(3, next)
				if err != nil {
					t.Fatalf("SetLight(%q): %v", next, err)
				}
				if task != nil {
					t.Fatalf("SetLight(%q) after %q produced a save", next, terminal)
				}
			}

			after := e.Snapshot()
			if after.State.Lights[3] != terminal {
				t.Errorf("light changed from %q to %q", terminal, after.State.Lights[3])
			}
			if after.SavedVersion != before.SavedVersion {
				t.Errorf("no-op minted a version: %d -> %d", before.SavedVersion, after.SavedVersion)
			}

			// Explicit reset is the only way back
			task, err = e.ResetLights()
			if err != nil {
				t.Fatalf("ResetLights: %v", err)
			}
			waitSaved(t, task)
			if got := e.Snapshot().State.Lights[3]; got != model.LightOn {
				t.Errorf("light after reset = %q, want on", got)
			}
		})
	}
}

func TestSetLightValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.SetLight(0, model.LightOff); err == nil {
		t.Error("guest id 0 should be rejected")
	}
	if _, err := e.SetLight(13, model.LightOff); err == nil {
		t.Error("guest id 13 should be rejected")
	}
	if _, err := e.SetLight(1, model.LightStatus("sparkle")); err == nil {
		t.Error("unknown status should be rejected")
	}
}

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestOverlayMutualExclusion(t *testing.T) {
	activations := []struct {
		name  string
		patch model.StatePatch
	}{
		{"intro", model.StatePatch{IntroFemaleGuestID: intPtr(5)}},
		{"vcr", model.StatePatch{VCRPlaying: boolPtr(true)}},
		{"slide", model.StatePatch{CurrentSlideID: strPtr(model.SlideOpening)}},
	}

	// Every pairwise combination: activate one, then another, and check
	// only the second survives.
	for _, first := range activations {
		for _, second := range activations {
			if first.name == second.name {
				continue
			}
			t.Run(first.name+"_then_"+second.name, func(t *testing.T) {
				e, _ := newTestEngine(t)
				if _, err := e.UpdateState(first.patch); err != nil {
					t.Fatalf("first update: %v", err)
				}
				if _, err := e.UpdateState(second.patch); err != nil {
					t.Fatalf("second update: %v", err)
				}

				s := e.Snapshot().State
				active := 0
				if s.IntroFemaleGuestID != 0 {
					active++
					if second.name != "intro" {
						t.Error("intro overlay still active")
					}
				}
				if s.VCRPlaying {
					active++
					if second.name != "vcr" {
						t.Error("vcr overlay still active")
					}
				}
				if s.CurrentSlideID != "" {
					active++
					if second.name != "slide" {
						t.Error("slide overlay still active")
					}
				}
				if active != 1 {
					t.Errorf("%d overlays active, want 1: %+v", active, s)
				}
			})
		}
	}
}

func TestOverlayClearedAtomically(t *testing.T) {
	// A subscriber must never observe two overlays active, even
	// transiently within one update.
	e, _ := newTestEngine(t)

	var mu sync.Mutex
	var violations int
	unsubscribe, err := e.Subscribe(func(env model.Envelope) {
		active := 0
		if env.State.IntroFemaleGuestID != 0 {
			active++
		}
		if env.State.VCRPlaying {
			active++
		}
		if env.State.CurrentSlideID != "" {
			active++
		}
		if active > 1 {
			mu.Lock()
			violations++
			mu.Unlock()
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	patches := []model.StatePatch{
		{IntroFemaleGuestID: intPtr(2)},
		{VCRPlaying: boolPtr(true)},
		{CurrentSlideID: strPtr(model.SlideRules)},
		{IntroFemaleGuestID: intPtr(9)},
		{VCRPlaying: boolPtr(true)},
	}
	for _, patch := range patches {
		if _, err := e.UpdateState(patch); err != nil {
			t.Fatalf("UpdateState: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if violations != 0 {
		t.Errorf("%d snapshots had multiple overlays active", violations)
	}
}

func TestEmptyRosterOverwriteGuard(t *testing.T) {
	e, _ := newTestEngine(t)

	task, err := e.SetFemaleGuests([]model.FemaleGuest{{Name: "Yang Lu"}})
	if err != nil {
		t.Fatalf("seed roster: %v", err)
	}
	waitSaved(t, task)

	// All-blank replace is refused and leaves the roster alone
	if _, err := e.SetFemaleGuests(nil); err != ErrEmptyRoster {
		t.Fatalf("empty replace = %v, want ErrEmptyRoster", err)
	}
	if _, err := e.SetFemaleGuests(make([]model.FemaleGuest, 12)); err != ErrEmptyRoster {
		t.Fatalf("all-blank replace = %v, want ErrEmptyRoster", err)
	}
	if got := e.Snapshot().FemaleGuests[0].Name; got != "Yang Lu" {
		t.Errorf("roster changed after refused replace: %q", got)
	}

	// One real entry is enough to go through
	task, err = e.SetFemaleGuests([]model.FemaleGuest{{}, {Name: "Chen Xi"}})
	if err != nil {
		t.Fatalf("replace with content: %v", err)
	}
	waitSaved(t, task)
	if got := e.Snapshot().FemaleGuests[1].Name; got != "Chen Xi" {
		t.Errorf("roster not replaced: %q", got)
	}

	// Clearing an already-empty roster is allowed
	e2, _ := newTestEngine(t)
	if _, err := e2.SetMaleGuests(nil); err != nil {
		t.Errorf("clearing an empty roster should succeed, got %v", err)
	}
}

func TestRosterNormalization(t *testing.T) {
	e, _ := newTestEngine(t)

	guests := make([]model.FemaleGuest, 15)
	guests[0] = model.FemaleGuest{Name: "Wen", Tags: []string{"a", "b", "c", "d"}}
	task, err := e.SetFemaleGuests(guests)
	if err != nil {
		t.Fatalf("SetFemaleGuests: %v", err)
	}
	waitSaved(t, task)

	snap := e.Snapshot()
	if len(snap.FemaleGuests) != model.FemaleGuestCount {
		t.Fatalf("roster has %d slots, want %d", len(snap.FemaleGuests), model.FemaleGuestCount)
	}
	if len(snap.FemaleGuests[0].Tags) != 3 {
		t.Errorf("tags not clamped: %v", snap.FemaleGuests[0].Tags)
	}
	for i, g := range snap.FemaleGuests {
		if g.ID != i+1 {
			t.Errorf("slot %d has id %d", i, g.ID)
		}
	}
}

func TestSubscriberVersionsMonotonic(t *testing.T) {
	e, _ := newTestEngine(t)

	var mu sync.Mutex
	var versions []int64
	unsubscribe, err := e.Subscribe(func(env model.Envelope) {
		mu.Lock()
		versions = append(versions, env.SavedVersion)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	var last *SaveTask
	for i := 1; i <= 10; i++ {
		patch := model.StatePatch{CurrentRoundNumber: intPtr(i)}
		task, err := e.UpdateState(patch)
		if err != nil {
			t.Fatalf("UpdateState: %v", err)
		}
		last = task
	}
	waitSaved(t, last)

	mu.Lock()
	defer mu.Unlock()
	if len(versions) != 11 { // initial snapshot + 10 mutations
		t.Fatalf("got %d notifications, want 11", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("versions not strictly increasing: %v", versions)
		}
	}
}

func TestSaveOrderMatchesMutationOrder(t *testing.T) {
	e, s := newTestEngine(t)

	var last *SaveTask
	for i := 1; i <= 5; i++ {
		task, err := e.UpdateState(model.StatePatch{CurrentRoundNumber: intPtr(i)})
		if err != nil {
			t.Fatalf("UpdateState: %v", err)
		}
		last = task
	}
	waitSaved(t, last)

	saved := s.Versions()
	if len(saved) != 5 {
		t.Fatalf("got %d saves, want 5", len(saved))
	}
	for i := 1; i < len(saved); i++ {
		if saved[i] <= saved[i-1] {
			t.Fatalf("durable writes out of order: %v", saved)
		}
	}
}

func TestSaveFailureSurfacedToCaller(t *testing.T) {
	e, s := newTestEngine(t)
	s.FailSaves = 1

	task, err := e.UpdateState(model.StatePatch{Message: strPtr("welcome")})
	if err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.Wait(ctx); err == nil {
		t.Fatal("expected the save error to reach the caller")
	}

	// The queue is not corrupted: the next save goes through
	task, err = e.UpdateState(model.StatePatch{Message: strPtr("again")})
	if err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	waitSaved(t, task)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Subscribe(func(env model.Envelope) {
		panic("bad listener")
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var mu sync.Mutex
	received := 0
	if _, err := e.Subscribe(func(env model.Envelope) {
		mu.Lock()
		received++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	task, err := e.SetLight(4, model.LightBurst)
	if err != nil {
		t.Fatalf("SetLight: %v", err)
	}
	waitSaved(t, task)

	mu.Lock()
	defer mu.Unlock()
	if received != 2 { // initial snapshot + one mutation
		t.Errorf("healthy subscriber got %d notifications, want 2", received)
	}
	if got := e.Snapshot().State.Lights[4]; got != model.LightBurst {
		t.Errorf("mutation lost to a panicking subscriber: %v", got)
	}
}

func TestHeartChoices(t *testing.T) {
	e, _ := newTestEngine(t)

	task, err := e.SetHeartChoice(2, 11)
	if err != nil {
		t.Fatalf("SetHeartChoice: %v", err)
	}
	waitSaved(t, task)
	if got := e.Snapshot().State.HeartChoices[2]; got != 11 {
		t.Errorf("heart choice = %d, want 11", got)
	}

	task, err = e.SetHeartChoice(2, 0)
	if err != nil {
		t.Fatalf("clear heart choice: %v", err)
	}
	waitSaved(t, task)
	if _, ok := e.Snapshot().State.HeartChoices[2]; ok {
		t.Error("heart choice not cleared")
	}

	if _, err := e.SetHeartChoice(7, 1); err == nil {
		t.Error("male guest id 7 should be rejected")
	}
	if _, err := e.SetHeartChoice(1, 13); err == nil {
		t.Error("female guest id 13 should be rejected")
	}
}

func TestSlideLifecycle(t *testing.T) {
	e, _ := newTestEngine(t)

	id, task, err := e.CreateSlide("Sponsor break")
	if err != nil {
		t.Fatalf("CreateSlide: %v", err)
	}
	waitSaved(t, task)

	if task, err = e.SetSlideImage(id, "/files/sponsor.png"); err != nil {
		t.Fatalf("SetSlideImage: %v", err)
	}
	waitSaved(t, task)
	if task, err = e.SetSlideDeckPage(id, 6); err != nil {
		t.Fatalf("SetSlideDeckPage: %v", err)
	}
	waitSaved(t, task)

	var found *model.SlideSlot
	snap := e.Snapshot()
	for i := range snap.Slides {
		if snap.Slides[i].ID == id {
			found = &snap.Slides[i]
			break
		}
	}
	if found == nil {
		t.Fatal("created slide missing from snapshot")
	}
	if found.ImageURL != "" || found.DeckPage != 6 {
		t.Errorf("deck page should have cleared the image: %+v", found)
	}

	// Showing the slide, then deleting it, clears the overlay too
	if _, err := e.UpdateState(model.StatePatch{CurrentSlideID: &id}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if task, err = e.DeleteSlide(id); err != nil {
		t.Fatalf("DeleteSlide: %v", err)
	}
	waitSaved(t, task)
	if got := e.Snapshot().State.CurrentSlideID; got != "" {
		t.Errorf("slide overlay still points at deleted slide %q", got)
	}

	if _, err := e.DeleteSlide(model.SlideOpening); err != ErrPresetSlide {
		t.Errorf("deleting a preset = %v, want ErrPresetSlide", err)
	}
	if _, err := e.DeleteSlide("nope"); err != ErrSlideNotFound {
		t.Errorf("deleting unknown slide = %v, want ErrSlideNotFound", err)
	}
}

func TestResetEventKeepsRosters(t *testing.T) {
	e, _ := newTestEngine(t)

	task, err := e.SetFemaleGuests([]model.FemaleGuest{{Name: "Jia"}})
	if err != nil {
		t.Fatalf("seed roster: %v", err)
	}
	waitSaved(t, task)
	if task, err = e.SetLight(1, model.LightOff); err != nil {
		t.Fatalf("SetLight: %v", err)
	}
	waitSaved(t, task)

	task, err = e.ResetEvent()
	if err != nil {
		t.Fatalf("ResetEvent: %v", err)
	}
	waitSaved(t, task)

	snap := e.Snapshot()
	if snap.State.Phase != model.PhaseWaiting {
		t.Errorf("phase = %q, want waiting", snap.State.Phase)
	}
	if snap.State.Lights[1] != model.LightOn {
		t.Errorf("lights not reset: %v", snap.State.Lights[1])
	}
	if snap.FemaleGuests[0].Name != "Jia" {
		t.Error("reset wiped the roster")
	}
}

func TestPhaseNavigation(t *testing.T) {
	e, _ := newTestEngine(t)

	task, err := e.NextPhase()
	if err != nil {
		t.Fatalf("NextPhase: %v", err)
	}
	waitSaved(t, task)
	if got := e.Snapshot().State.Phase; got != model.PhaseIntro {
		t.Errorf("phase = %q, want intro", got)
	}

	task, err = e.PrevPhase()
	if err != nil {
		t.Fatalf("PrevPhase: %v", err)
	}
	waitSaved(t, task)
	if got := e.Snapshot().State.Phase; got != model.PhaseWaiting {
		t.Errorf("phase = %q, want waiting", got)
	}

	// At the start, stepping back is a no-op
	task, err = e.PrevPhase()
	if err != nil {
		t.Fatalf("PrevPhase at start: %v", err)
	}
	if task != nil {
		t.Error("PrevPhase at the first phase should be a no-op")
	}
}

func TestUnsubscribeRemovesOnlyItsSubscriber(t *testing.T) {
	e, _ := newTestEngine(t)

	var mu sync.Mutex
	countA, countB := 0, 0

	// Both subscriptions wrap functions of the same shape; teardown must
	// be keyed by subscription, not by how the functions compare.
	unsubA, err := e.Subscribe(func(model.Envelope) {
		mu.Lock()
		countA++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe A: %v", err)
	}
	unsubB, err := e.Subscribe(func(model.Envelope) {
		mu.Lock()
		countB++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe B: %v", err)
	}

	// The later subscriber leaves first
	unsubB()

	task, err := e.SetLight(2, model.LightOff)
	if err != nil {
		t.Fatalf("SetLight: %v", err)
	}
	waitSaved(t, task)

	mu.Lock()
	if countA != 2 { // initial snapshot + one mutation
		t.Errorf("live subscriber got %d notifications, want 2 (mutation missed)", countA)
	}
	if countB != 1 { // initial snapshot only
		t.Errorf("unsubscribed subscriber got %d notifications, want 1 (still subscribed)", countB)
	}
	mu.Unlock()

	// And A's own teardown still works afterwards
	unsubA()
	task, err = e.SetLight(3, model.LightOff)
	if err != nil {
		t.Fatalf("SetLight: %v", err)
	}
	waitSaved(t, task)

	mu.Lock()
	defer mu.Unlock()
	if countA != 2 {
		t.Errorf("subscriber A notified after unsubscribe: %d", countA)
	}
}

func TestSlowStoreDoesNotBlockMutations(t *testing.T) {
	e, s := newTestEngine(t)
	s.Latency = 5 * time.Millisecond

	// Far more writes than the store can absorb in the meantime: enqueueing
	// must stay instant and reads must stay responsive while the backlog
	// drains.
	start := time.Now()
	var last *SaveTask
	for i := 1; i <= 300; i++ {
		task, err := e.UpdateState(model.StatePatch{CurrentRoundNumber: intPtr(i)})
		if err != nil {
			t.Fatalf("UpdateState #%d: %v", i, err)
		}
		last = task
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("mutations stalled behind the save backlog for %v", elapsed)
	}

	if got := e.Snapshot().State.CurrentRoundNumber; got != 300 {
		t.Errorf("round = %d, want 300", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := last.Wait(ctx); err != nil {
		t.Fatalf("final save: %v", err)
	}
}
