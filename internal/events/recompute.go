package events

import (
	"context"
	"sync"
)

// RecomputeFunc processes one snapshot for a key.
type RecomputeFunc[T any] func(ctx context.Context, key string, snapshot T)

// Recomputer runs at most one computation per key at a time. Snapshots
// submitted while a computation for the key is running replace each other
// in a single pending slot, so only the newest one is processed next.
type Recomputer[T any] struct {
	fn RecomputeFunc[T]

	mu      sync.Mutex
	pending map[string]T
	running map[string]bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecomputer creates a Recomputer calling fn.
func NewRecomputer[T any](fn RecomputeFunc[T]) *Recomputer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recomputer[T]{
		fn:      fn,
		pending: make(map[string]T),
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit schedules snapshot for key. It never blocks.
func (r *Recomputer[T]) Submit(key string, snapshot T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.running[key] {
		r.pending[key] = snapshot
		return
	}

	r.running[key] = true
	r.wg.Add(1)
	go r.loop(key, snapshot)
}

func (r *Recomputer[T]) loop(key string, snapshot T) {
	defer r.wg.Done()

	for {
		r.fn(r.ctx, key, snapshot)

		r.mu.Lock()
		next, ok := r.pending[key]
		if !ok || r.closed {
			delete(r.pending, key)
			delete(r.running, key)
			r.mu.Unlock()
			return
		}
		delete(r.pending, key)
		r.mu.Unlock()

		snapshot = next
	}
}

// Close drops pending snapshots, cancels running computations and waits
// for them to return.
func (r *Recomputer[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.pending = make(map[string]T)
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
