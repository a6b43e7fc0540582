// Package stats implements the statistics engine (spec.md §4.7): atomic,
// lock-consistent updates of the shared counters and derived metrics.
package stats

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/originserver/concurrenthttp/internal/ipc"
)

// Engine is the statistics engine: every operation runs under the shared
// `stats` mutex, as if it were a single critical section (spec.md §4.7).
type Engine struct {
	region *ipc.Region
	start  time.Time
}

// New builds a statistics engine over a region's shared fields. start_time
// is recorded once, at master startup, and shared by every worker that
// attaches to the same region afterward.
func New(region *ipc.Region, start time.Time) *Engine {
	return &Engine{region: region, start: start}
}

// View is a point-in-time, internally consistent copy of the shared
// counters plus their derived metrics.
type View struct {
	TotalRequests       uint64
	BytesTransferred    uint64
	Status200           uint32
	Status201           uint32
	Status206           uint32
	Status403           uint32
	Status404           uint32
	Status500           uint32
	Status503           uint32
	ActiveConnections   int32
	Uptime              time.Duration
	TotalResponseTimeMs uint64
	AvgResponseTimeMs   float64
}

// Update records one completed request: increments total_requests, the
// status-code bucket, and bytes_transferred.
func (e *Engine) Update(status int, bytes uint64) {
	m := e.region.StatsMutex()
	m.Lock()
	defer m.Unlock()

	l := e.region.L
	l.TotalRequests++
	l.BytesTransferred += bytes
	switch status {
	case 200:
		l.Status200++
	case 201:
		l.Status201++
	case 206:
		l.Status206++
	case 403:
		l.Status403++
	case 404:
		l.Status404++
	case 500:
		l.Status500++
	case 503:
		l.Status503++
	}
}

// IncActive increments active_connections on accept.
func (e *Engine) IncActive() {
	m := e.region.StatsMutex()
	m.Lock()
	e.region.L.ActiveConnections++
	m.Unlock()
}

// DecActive decrements active_connections on close, saturating at zero so
// a stray extra decrement (e.g. an early-return error path that forgot to
// increment) can never make the counter negative.
func (e *Engine) DecActive() {
	m := e.region.StatsMutex()
	m.Lock()
	if e.region.L.ActiveConnections > 0 {
		e.region.L.ActiveConnections--
	}
	m.Unlock()
}

// RecordLatency adds the elapsed time since start to total_response_time_ms.
func (e *Engine) RecordLatency(start time.Time) {
	elapsed := uint64(time.Since(start).Milliseconds())
	m := e.region.StatsMutex()
	m.Lock()
	e.region.L.TotalResponseTimeMs += elapsed
	m.Unlock()
}

// Snapshot takes the mutex once and returns a consistent value copy with
// derived metrics computed under the same critical section.
func (e *Engine) Snapshot() View {
	m := e.region.StatsMutex()
	m.Lock()
	defer m.Unlock()

	l := e.region.L
	total := l.TotalRequests
	avg := float64(0)
	if total > 0 {
		avg = float64(l.TotalResponseTimeMs) / float64(total)
	}
	return View{
		TotalRequests:       total,
		BytesTransferred:    l.BytesTransferred,
		Status200:           l.Status200,
		Status201:           l.Status201,
		Status206:           l.Status206,
		Status403:           l.Status403,
		Status404:           l.Status404,
		Status500:           l.Status500,
		Status503:           l.Status503,
		ActiveConnections:   l.ActiveConnections,
		Uptime:              time.Since(e.start),
		TotalResponseTimeMs: l.TotalResponseTimeMs,
		AvgResponseTimeMs:   avg,
	}
}

// Display emits the periodic statistics snapshot as a structured log event.
// The source's stats_display prints to stdout; a production deployment
// wants it on the same diagnostic sink as everything else, so this routes
// through the caller's zerolog.Logger instead.
func (e *Engine) Display(log zerolog.Logger) {
	v := e.Snapshot()
	log.Info().
		Dur("uptime", v.Uptime).
		Uint64("total_requests", v.TotalRequests).
		Uint64("bytes_transferred", v.BytesTransferred).
		Int32("active_connections", v.ActiveConnections).
		Float64("avg_response_time_ms", v.AvgResponseTimeMs).
		Uint32("status_200", v.Status200).
		Uint32("status_201", v.Status201).
		Uint32("status_206", v.Status206).
		Uint32("status_403", v.Status403).
		Uint32("status_404", v.Status404).
		Uint32("status_500", v.Status500).
		Uint32("status_503", v.Status503).
		Msg("stats snapshot")
}
