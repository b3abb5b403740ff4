// Package accountsync makes sure every signed-in session registers its user
// with the backend exactly once.
package accountsync

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// State is the lifecycle of one session's sync attempt.
type State int32

const (
	StateNotStarted State = iota
	StateInFlight
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "not_started"
	}
}

// Done reports whether the attempt has finished.
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed
}

// Latch guards a single sync attempt. Begin is the only transition out of
// NotStarted, so at most one caller ever performs the attempt.
type Latch struct {
	state atomic.Int32
	done  chan struct{}

	mu     sync.Mutex
	result Result
}

func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Begin claims the attempt. It returns false if another caller already has.
func (l *Latch) Begin() bool {
	return l.state.CompareAndSwap(int32(StateNotStarted), int32(StateInFlight))
}

// Finish records the outcome of a claimed attempt. Calls on a latch that is
// not in flight are ignored.
func (l *Latch) Finish(result Result) {
	next := StateFailed
	if result.Synced {
		next = StateSucceeded
	}
	l.mu.Lock()
	if !l.state.CompareAndSwap(int32(StateInFlight), int32(next)) {
		l.mu.Unlock()
		return
	}
	l.result = result
	l.mu.Unlock()
	close(l.done)
}

func (l *Latch) State() State {
	return State(l.state.Load())
}

// Result returns the recorded outcome; it is zero until Finish is called.
func (l *Latch) Result() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// Done is closed once the attempt finishes.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Registry holds one latch per session. Entries expire so that sessions
// which are long gone do not pin memory.
type Registry struct {
	mu      sync.Mutex
	latches *expirable.LRU[string, *Latch]
}

func NewRegistry(size int, ttl time.Duration) *Registry {
	if size <= 0 {
		size = 10000
	}
	return &Registry{latches: expirable.NewLRU[string, *Latch](size, nil, ttl)}
}

// Latch returns the latch for key, creating it on first use.
func (r *Registry) Latch(key string) *Latch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if latch, ok := r.latches.Get(key); ok {
		return latch
	}
	latch := NewLatch()
	r.latches.Add(key, latch)
	return latch
}

// Peek returns the latch for key without creating one.
func (r *Registry) Peek(key string) (*Latch, bool) {
	return r.latches.Peek(key)
}
