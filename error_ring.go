package magma

import (
	"sync"
	"time"
)

// Failure records one failed run.
type Failure struct {
	At    time.Time
	Stage string
	Err   error
}

// failureRing is a thread-safe ring buffer of recent run failures.
type failureRing struct {
	mu       sync.RWMutex
	failures []Failure
	size     int
	head     int
	count    int
}

// newFailureRing creates a ring with the given capacity.
// If size is 0, the ring is disabled.
func newFailureRing(size int) *failureRing {
	if size <= 0 {
		return nil
	}
	return &failureRing{
		failures: make([]Failure, size),
		size:     size,
	}
}

// push records a failure, evicting the oldest once full.
func (r *failureRing) push(f Failure) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures[r.head] = f
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// clear forgets every recorded failure.
func (r *failureRing) clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.failures {
		r.failures[i] = Failure{}
	}
	r.head = 0
	r.count = 0
}

// all returns the recorded failures, oldest first.
func (r *failureRing) all() []Failure {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	result := make([]Failure, r.count)
	start := (r.head - r.count + r.size) % r.size
	for i := 0; i < r.count; i++ {
		result[i] = r.failures[(start+i)%r.size]
	}
	return result
}
