package ipc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegion(t *testing.T, maxQueue int) *Region {
	t.Helper()
	r, err := CreateRegion(maxQueue)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestMutexExcludesConcurrentAccess(t *testing.T) {
	r := newTestRegion(t, 4)
	mu := r.StatsMutex()

	var counter int
	var wg sync.WaitGroup
	const goroutines = 50
	const perGoroutine = 200
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				mu.Lock()
				counter++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, goroutines*perGoroutine, counter)
}

func TestTelemetryAdmissionRespectsMax(t *testing.T) {
	r := newTestRegion(t, 2)
	tel := NewTelemetry(r)

	assert.True(t, tel.TryAdmit())
	assert.True(t, tel.TryAdmit())
	assert.False(t, tel.TryAdmit(), "third admit should be rejected once at max")

	snap := tel.Snapshot()
	assert.EqualValues(t, 2, snap.Depth)
	assert.EqualValues(t, 2, snap.Peak)
	assert.EqualValues(t, 2, snap.Admitted)
	assert.EqualValues(t, 1, snap.Rejected)

	tel.Release()
	assert.True(t, tel.TryAdmit(), "release should free a slot")
}

func TestTelemetryNeverNegativeDepth(t *testing.T) {
	r := newTestRegion(t, 5)
	tel := NewTelemetry(r)
	tel.Release() // release with nothing admitted must not underflow
	snap := tel.Snapshot()
	assert.GreaterOrEqual(t, snap.Depth, int32(0))
}

func TestCountingSemTryWaitNonBlocking(t *testing.T) {
	r := newTestRegion(t, 1)
	sem := r.EmptySem()
	assert.True(t, sem.TryWait())
	assert.False(t, sem.TryWait())
	sem.Post()
	assert.True(t, sem.TryWait())
}
