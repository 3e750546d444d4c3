package show

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"heartstage/internal/model"
	"heartstage/internal/store"
)

// Stream is one client's view of the show state. Two delivery paths feed
// it for the life of the connection:
//
//  1. local push: a fan-out subscription relays every mutation made by
//     this process immediately;
//  2. cross-process poll: the durable store is re-read on an interval to
//     catch saves made by other instances.
//
// Both paths share one last-sent version counter, so the client never
// sees a version twice and never sees versions go backwards. Closing the
// stream tears down the subscription and the poll timer together.
type Stream struct {
	// C delivers snapshots in strictly increasing version order. It is
	// closed when the stream ends.
	C <-chan model.Envelope

	engine *Engine
	cancel context.CancelFunc

	mu       sync.Mutex
	out      chan model.Envelope
	lastSent int64
	closed   bool
}

// OpenStream starts a stream session. The first snapshot sent is the
// freshest durable one — the mirror alone is not trusted because this
// process may have just cold-started behind another instance. The stream
// ends when ctx is canceled or Close is called.
func (e *Engine) OpenStream(ctx context.Context, pollInterval time.Duration) (*Stream, error) {
	if pollInterval <= 0 {
		e.mu.Lock()
		pollInterval = e.PollInterval
		e.mu.Unlock()
	}
	ctx, cancel := context.WithCancel(ctx)

	out := make(chan model.Envelope, 16)
	st := &Stream{
		C:        out,
		engine:   e,
		cancel:   cancel,
		out:      out,
		lastSent: -1,
	}

	// Initial snapshot: newest of the durable store and the local mirror.
	// A pending local save can put the mirror ahead of the store; a cold
	// start puts the store ahead of the mirror.
	initial := e.Snapshot()
	loadCtx, loadCancel := context.WithTimeout(ctx, 10*time.Second)
	if durable, err := e.snapshots.LoadLatest(loadCtx); err == nil {
		if durable.SavedVersion > initial.SavedVersion {
			initial = durable
		}
	} else if !errors.Is(err, store.ErrNotFound) && ctx.Err() == nil {
		log.Printf("show: stream initial load: %v", err)
	}
	loadCancel()
	st.deliver(initial)

	unsubscribe, err := e.Subscribe(st.deliver)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer st.closeOut()
		defer ticker.Stop()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.poll(ctx)
			}
		}
	}()

	return st, nil
}

// Close ends the stream and releases both delivery paths
func (st *Stream) Close() {
	st.cancel()
}

// LastVersion is the newest version handed to the client so far
func (st *Stream) LastVersion() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastSent
}

// deliver forwards env unless it is stale or a duplicate. A slow consumer
// only costs intermediate snapshots: when the buffer is full the oldest
// pending one is dropped, never the newest.
func (st *Stream) deliver(env model.Envelope) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed || env.SavedVersion <= st.lastSent {
		return
	}
	st.lastSent = env.SavedVersion
	for {
		select {
		case st.out <- env:
			return
		default:
			select {
			case <-st.out:
			default:
			}
		}
	}
}

// poll checks for saves made by other processes. The version cache is
// probed first when available; a full blob read only happens when the
// cached version says there is something new (or the cache is unusable).
func (st *Stream) poll(ctx context.Context) {
	e := st.engine

	if versions, eventID := e.versionCache(); versions != nil {
		cached, err := versions.GetVersion(ctx, eventID)
		if err == nil && cached != 0 && cached <= st.LastVersion() {
			return
		}
		if err != nil && ctx.Err() == nil {
			log.Printf("show: version cache probe: %v", err)
		}
	}

	env, err := e.snapshots.LoadLatest(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("show: stream poll: %v", err)
		}
		return
	}
	st.deliver(env)
}

func (st *Stream) closeOut() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.closed {
		st.closed = true
		close(st.out)
	}
}
