package ipc

import (
	"context"
	"sync/atomic"
	"time"
)

// spinBackoff is the pause between failed lock attempts. Held sections in
// this server are all short (a handful of field updates or one log write),
// so a short fixed backoff beats the complexity of exponential backoff or a
// real futex wait queue for negligible contention cost.
const spinBackoff = 50 * time.Microsecond

// Mutex is a cross-process binary mutex over one uint32 word living inside
// a Region. Any process holding the Region's mapping can Lock/Unlock the
// same logical mutex; this is the Go substitute for a named POSIX
// semaphore used as a binary lock (spec's `queue_mutex`, `stats`, `log`).
type Mutex struct {
	word *uint32
}

// NewMutex wraps a word inside the region. Callers pass &region.L.statsLock
// etc.
func NewMutex(word *uint32) *Mutex { return &Mutex{word: word} }

// Lock blocks until the mutex is acquired.
func (m *Mutex) Lock() {
	for !atomic.CompareAndSwapUint32(m.word, 0, 1) {
		time.Sleep(spinBackoff)
	}
}

// Unlock releases the mutex. Unlocking an unlocked Mutex is a caller bug,
// matching the semantics of a binary semaphore used as a lock.
func (m *Mutex) Unlock() {
	atomic.StoreUint32(m.word, 0)
}

// CountingSem is a cross-process counting semaphore over one int32 word,
// the Go substitute for the spec's named `empty`/`full` semaphores.
type CountingSem struct {
	word *int32
}

// NewCountingSem wraps a word inside the region, already initialized to its
// starting count by the creator (CreateRegion sets empty=max, full=0).
func NewCountingSem(word *int32) *CountingSem { return &CountingSem{word: word} }

// TryWait attempts a non-blocking acquire, returning false if no permit is
// currently available. Used by the admission-control path, which must
// reject (503) rather than block when the telemetry ring is full.
func (s *CountingSem) TryWait() bool {
	for {
		cur := atomic.LoadInt32(s.word)
		if cur <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(s.word, cur, cur-1) {
			return true
		}
	}
}

// Wait blocks until a permit is available or ctx is done.
func (s *CountingSem) Wait(ctx context.Context) error {
	for {
		if s.TryWait() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(spinBackoff):
		}
	}
}

// Post releases one permit.
func (s *CountingSem) Post() {
	atomic.AddInt32(s.word, 1)
}
