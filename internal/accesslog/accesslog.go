// Package accesslog implements the logger sink (spec.md §4.8): Apache
// Combined Log Format, one line per completed request, serialized by the
// cross-process `log` lock so concurrent writers from any worker never
// interleave a line.
package accesslog

import (
	"fmt"
	"os"
	"time"

	"github.com/originserver/concurrenthttp/internal/ipc"
)

// Sink appends access-log lines under a cross-process mutex.
type Sink struct {
	file *os.File
	lock *ipc.Mutex
}

// Open opens path in append mode. Each process (master, each worker) calls
// Open independently against the same path; the shared `log` mutex — not
// O_APPEND's own atomicity — is what the spec names as the source of
// "concurrent calls produce non-interleaved records" (spec.md §4.8).
func Open(path string, region *ipc.Region) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("accesslog: open %s: %w", path, err)
	}
	return &Sink{file: f, lock: region.LogMutex()}, nil
}

// Close closes the underlying file handle.
func (s *Sink) Close() error {
	return s.file.Close()
}

// Log appends one Apache Combined Log Format line:
//
//	<ip> - - [<dd/Mon/yyyy:HH:MM:SS ±zzzz>] "<method> <path> HTTP/1.1" <status> <bytes>
func (s *Sink) Log(clientIP, method, path string, status int, bytes uint64) error {
	line := fmt.Sprintf("%s - - [%s] \"%s %s HTTP/1.1\" %d %d\n",
		clientIP,
		time.Now().Format("02/Jan/2006:15:04:05 -0700"),
		method, path, status, bytes,
	)

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("accesslog: write: %w", err)
	}
	return s.file.Sync()
}
