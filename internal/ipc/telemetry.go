package ipc

import "sync/atomic"

// Telemetry is the bounded-connection-queue structure retained per spec
// §4.4 as an out-of-band admission-control / rate-visibility sink, even
// though the kernel — not this ring — actually fans out accepted
// connections across threads and workers. It never holds a file
// descriptor: "enqueue" means "admit one more in-flight connection",
// "dequeue" means "release" once that connection finishes.
//
// Invariant: 0 <= depth <= max (spec.md §3).
type Telemetry struct {
	region *Region
}

// NewTelemetry wraps a Region's telemetry fields.
func NewTelemetry(r *Region) *Telemetry { return &Telemetry{region: r} }

// TryAdmit attempts to admit one connection, following the classical
// producer/consumer discipline (acquire `empty`, lock `queueMutex`, update
// counters, unlock, post `full`) but non-blocking: a full ring means
// reject, not wait, per spec §4.4 ("MUST NOT silently drop ... responds
// 503").
func (t *Telemetry) TryAdmit() bool {
	if !t.region.EmptySem().TryWait() {
		atomic.AddUint64(&t.region.L.queueRejected, 1)
		return false
	}
	m := t.region.QueueMutex()
	m.Lock()
	t.region.L.queueDepth++
	if t.region.L.queueDepth > t.region.L.queuePeak {
		t.region.L.queuePeak = t.region.L.queueDepth
	}
	t.region.L.queueTotal++
	m.Unlock()
	t.region.FullSem().Post()
	return true
}

// Release returns the admission slot occupied by a finished connection.
func (t *Telemetry) Release() {
	m := t.region.QueueMutex()
	m.Lock()
	released := false
	if t.region.L.queueDepth > 0 {
		t.region.L.queueDepth--
		released = true
	}
	m.Unlock()
	if !released {
		// Nothing was admitted: posting `empty` here would hand out a slot
		// beyond max.
		return
	}
	t.region.FullSem().TryWait()
	t.region.EmptySem().Post()
}

// Snapshot is a point-in-time, lock-consistent view of the telemetry ring.
type Snapshot struct {
	Depth    int32
	Peak     int32
	Max      int32
	Admitted uint64
	Rejected uint64
}

// Snapshot takes the queue mutex once and returns a value copy.
func (t *Telemetry) Snapshot() Snapshot {
	m := t.region.QueueMutex()
	m.Lock()
	defer m.Unlock()
	return Snapshot{
		Depth:    t.region.L.queueDepth,
		Peak:     t.region.L.queuePeak,
		Max:      t.region.L.queueMax,
		Admitted: t.region.L.queueTotal,
		Rejected: t.region.L.queueRejected,
	}
}
