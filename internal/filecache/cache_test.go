package filecache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAfterPutRoundTrips(t *testing.T) {
	c := New(1024, 10)
	c.Put("/a", []byte("hello"))
	v, ok := c.Get("/a")
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
}

func TestPutRefusesOversizedEntry(t *testing.T) {
	c := New(1024, 10)
	big := make([]byte, MaxEntrySize+1)
	c.Put("/big", big)
	_, ok := c.Get("/big")
	assert.False(t, ok)
	assert.Zero(t, c.CurrentSize())
}

func TestPutIsIdempotentInSize(t *testing.T) {
	c := New(1024, 10)
	c.Put("/a", []byte("0123456789"))
	assert.EqualValues(t, 10, c.CurrentSize())
	c.Put("/a", []byte("0123456789"))
	assert.EqualValues(t, 10, c.CurrentSize(), "replacing the same key must not double-count size")
	assert.Equal(t, 1, c.Len())
}

func TestEvictionPicksLeastRecentlyUsed(t *testing.T) {
	c := New(30, 10)
	c.Put("/a", make([]byte, 10))
	c.Put("/b", make([]byte, 10))
	c.Put("/c", make([]byte, 10))

	// touch /a so it is no longer the least-recently-used entry
	c.Get("/a")

	// inserting /d requires evicting one entry to stay within the 30-byte budget
	c.Put("/d", make([]byte, 10))

	_, aOK := c.Get("/a")
	_, bOK := c.Get("/b")
	assert.True(t, aOK, "/a was just touched, should survive eviction")
	assert.False(t, bOK, "/b is the least-recently-used entry and should be evicted")
	assert.LessOrEqual(t, c.CurrentSize(), int64(30))
}

func TestCurrentSizeExactAtQuiescence(t *testing.T) {
	c := New(1<<20, 100)
	var want int64
	for i := 0; i < 50; i++ {
		data := make([]byte, 1000+i)
		c.Put(fmt.Sprintf("/f%d", i), data)
		want += int64(len(data))
	}
	assert.Equal(t, want, c.CurrentSize())
	assert.LessOrEqual(t, c.CurrentSize(), int64(1<<20))
}
