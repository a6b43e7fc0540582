package threadpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllWorkersRunAndJoinOnShutdown(t *testing.T) {
	var running int32
	var started int32

	p := New(5, func(done <-chan struct{}) {
		atomic.AddInt32(&started, 1)
		atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		<-done
	})

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&started) < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.EqualValues(t, 5, atomic.LoadInt32(&running))

	p.Shutdown()
	assert.EqualValues(t, 0, atomic.LoadInt32(&running))
}
