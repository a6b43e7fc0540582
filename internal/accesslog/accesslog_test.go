package accesslog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/originserver/concurrenthttp/internal/ipc"
)

var lineRe = regexp.MustCompile(`^\S+ - - \[[^\]]+\] "\S+ \S+ HTTP/1\.1" \d{3} \d+$`)

func TestLogProducesOneWellFormedLinePerCall(t *testing.T) {
	region, err := ipc.CreateRegion(4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = region.Close() })

	path := filepath.Join(t.TempDir(), "access.log")
	sink, err := Open(path, region)
	require.NoError(t, err)
	defer sink.Close()

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_ = sink.Log("127.0.0.1", "GET", fmt.Sprintf("/f%d", i), 200, uint64(i))
		}(i)
	}
	wg.Wait()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		line := scanner.Text()
		assert.Regexp(t, lineRe, line, "line must be a single well-formed Combined Log Format record")
		count++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, n, count, "exactly one line per completed request, none interleaved or dropped")
}
