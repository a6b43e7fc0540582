package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/originserver/concurrenthttp/internal/ipc"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	region, err := ipc.CreateRegion(8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = region.Close() })
	return New(region, time.Now())
}

func TestUpdateAggregatesByStatus(t *testing.T) {
	e := newEngine(t)
	e.Update(200, 100)
	e.Update(200, 50)
	e.Update(404, 0)
	e.Update(503, 0)

	v := e.Snapshot()
	assert.EqualValues(t, 4, v.TotalRequests)
	assert.EqualValues(t, 150, v.BytesTransferred)
	assert.EqualValues(t, 2, v.Status200)
	assert.EqualValues(t, 1, v.Status404)
	assert.EqualValues(t, 1, v.Status503)
	assert.Equal(t, v.TotalRequests, uint64(v.Status200)+uint64(v.Status404)+uint64(v.Status503))
}

func TestActiveConnectionsNeverNegative(t *testing.T) {
	e := newEngine(t)
	e.DecActive() // decrement with nothing active must saturate at zero
	v := e.Snapshot()
	assert.EqualValues(t, 0, v.ActiveConnections)

	e.IncActive()
	e.IncActive()
	e.DecActive()
	v = e.Snapshot()
	assert.EqualValues(t, 1, v.ActiveConnections)
}

func TestAvgResponseTimeDerivedCorrectly(t *testing.T) {
	e := newEngine(t)
	v := e.Snapshot()
	assert.Zero(t, v.AvgResponseTimeMs, "no requests yet")

	start := time.Now().Add(-10 * time.Millisecond)
	e.RecordLatency(start)
	e.Update(200, 1)
	v = e.Snapshot()
	assert.Greater(t, v.AvgResponseTimeMs, float64(0))
}

func TestConcurrentUpdatesStayConsistent(t *testing.T) {
	e := newEngine(t)
	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			e.IncActive()
			e.Update(200, 1)
			e.DecActive()
		}()
	}
	wg.Wait()

	v := e.Snapshot()
	assert.EqualValues(t, n, v.TotalRequests)
	assert.EqualValues(t, n, v.Status200)
	assert.EqualValues(t, 0, v.ActiveConnections)
}
