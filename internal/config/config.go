// Package config loads the flat KEY=VALUE server.conf dialect into an
// immutable Config value.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the immutable, validated configuration for one server instance.
// Invariant: NumWorkers >= 1, ThreadsPerWorker >= 1, MaxQueueSize >= 1,
// CacheSizeBytes >= 0.
type Config struct {
	Port             int
	NumWorkers       int
	ThreadsPerWorker int
	DocumentRoot     string
	MaxQueueSize     int
	LogFile          string
	CacheSizeBytes   int64
	Timeout          time.Duration
	AdminAddr        string
	VirtualHosts     map[string]string // Host header value -> document root
}

// Warning is something Load clamped or ignored; callers log these through
// whatever diagnostic sink they have (zerolog in cmd/server), config itself
// stays dependency-free.
type Warning struct {
	Key     string
	Message string
}

func defaults() Config {
	return Config{
		Port:             8080,
		NumWorkers:       4,
		ThreadsPerWorker: 10,
		DocumentRoot:     "/var/www/html",
		MaxQueueSize:     100,
		LogFile:          "access.log",
		CacheSizeBytes:   10 * 1024 * 1024,
		Timeout:          30 * time.Second,
		VirtualHosts:     map[string]string{},
	}
}

// Load parses a server.conf file at path. A missing file is not an error —
// it yields the documented defaults, matching the source's behavior of
// running with built-in defaults when no config is present.
func Load(path string) (Config, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults(), nil, nil
		}
		return Config{}, nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the KEY=VALUE dialect from r and applies it over defaults.
func Parse(r io.Reader) (Config, []Warning, error) {
	cfg := defaults()
	var warnings []Warning

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "PORT":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Port = n
			}
		case "NUM_WORKERS":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.NumWorkers = n
			}
		case "THREADS_PER_WORKER":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.ThreadsPerWorker = n
			}
		case "DOCUMENT_ROOT":
			cfg.DocumentRoot = value
		case "MAX_QUEUE_SIZE":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.MaxQueueSize = n
			}
		case "LOG_FILE":
			cfg.LogFile = value
		case "CACHE_SIZE_MB":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				cfg.CacheSizeBytes = n * 1024 * 1024
			}
		case "TIMEOUT_SECONDS":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Timeout = time.Duration(n) * time.Second
			}
		case "ADMIN_ADDR":
			cfg.AdminAddr = value
		default:
			if alias, ok := strings.CutPrefix(key, "VHOST_"); ok {
				cfg.VirtualHosts[alias] = value
			}
			// unknown keys are ignored per spec
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, warnings, fmt.Errorf("config: scan: %w", err)
	}

	if cfg.NumWorkers < 1 {
		warnings = append(warnings, Warning{"NUM_WORKERS", "clamped to 1"})
		cfg.NumWorkers = 1
	}
	if cfg.ThreadsPerWorker < 1 {
		warnings = append(warnings, Warning{"THREADS_PER_WORKER", "clamped to 1"})
		cfg.ThreadsPerWorker = 1
	}
	if cfg.MaxQueueSize < 1 {
		warnings = append(warnings, Warning{"MAX_QUEUE_SIZE", "clamped to 1"})
		cfg.MaxQueueSize = 1
	}
	if cfg.CacheSizeBytes < 0 {
		warnings = append(warnings, Warning{"CACHE_SIZE_MB", "clamped to 0"})
		cfg.CacheSizeBytes = 0
	}

	return cfg, warnings, nil
}
