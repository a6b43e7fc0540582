package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, warnings, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, 10, cfg.ThreadsPerWorker)
	assert.Equal(t, "/var/www/html", cfg.DocumentRoot)
	assert.Equal(t, 100, cfg.MaxQueueSize)
	assert.Equal(t, "access.log", cfg.LogFile)
	assert.Equal(t, int64(10*1024*1024), cfg.CacheSizeBytes)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestParseOverrides(t *testing.T) {
	src := `
# comment line
PORT=9090
NUM_WORKERS=8
THREADS_PER_WORKER=20
DOCUMENT_ROOT=/srv/www
MAX_QUEUE_SIZE=256
LOG_FILE=/var/log/chttp.log
CACHE_SIZE_MB=64
TIMEOUT_SECONDS=5
ADMIN_ADDR=127.0.0.1:9999
VHOST_site1=/srv/site1
VHOST_site2=/srv/site2
UNKNOWN_KEY=ignored
`
	cfg, warnings, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 8, cfg.NumWorkers)
	assert.Equal(t, 20, cfg.ThreadsPerWorker)
	assert.Equal(t, "/srv/www", cfg.DocumentRoot)
	assert.Equal(t, 256, cfg.MaxQueueSize)
	assert.Equal(t, "/var/log/chttp.log", cfg.LogFile)
	assert.Equal(t, int64(64*1024*1024), cfg.CacheSizeBytes)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "127.0.0.1:9999", cfg.AdminAddr)
	assert.Equal(t, map[string]string{"site1": "/srv/site1", "site2": "/srv/site2"}, cfg.VirtualHosts)
}

func TestParseClampsInvalidCounts(t *testing.T) {
	src := "NUM_WORKERS=0\nTHREADS_PER_WORKER=-3\nMAX_QUEUE_SIZE=-1\nCACHE_SIZE_MB=-5\n"
	cfg, warnings, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.NumWorkers)
	assert.Equal(t, 1, cfg.ThreadsPerWorker)
	assert.Equal(t, 1, cfg.MaxQueueSize)
	assert.Equal(t, int64(0), cfg.CacheSizeBytes)
	assert.Len(t, warnings, 4)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, warnings, err := Load("/nonexistent/server.conf")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 8080, cfg.Port)
}
