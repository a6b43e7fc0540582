// Package master implements the master/supervisor process (spec.md §4.1):
// bind the listening socket, create the shared region, fork N worker
// processes, and supervise them until a shutdown signal arrives.
package master

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/originserver/concurrenthttp/internal/admin"
	"github.com/originserver/concurrenthttp/internal/config"
	"github.com/originserver/concurrenthttp/internal/ipc"
	"github.com/originserver/concurrenthttp/internal/stats"
)

// RoleEnv is the environment variable cmd/server checks to decide whether a
// process should run as master or re-exec itself as a worker (spec.md §4.2:
// "each worker is a distinct OS process").
const RoleEnv = "CONCURRENTHTTP_ROLE"

// RoleWorker is the value RoleEnv carries in a forked worker process.
const RoleWorker = "worker"

// listenerFD and regionFD are the well-known ExtraFiles slots (relative to
// fd 3, the first slot after stdin/stdout/stderr) every forked worker
// inherits them at.
const (
	listenerFD = 3
	regionFD   = 4
)

const statsInterval = 30 * time.Second

// Master owns the listening socket, the shared region, and the worker
// process pool.
type Master struct {
	cfg    config.Config
	log    zerolog.Logger
	ln     *net.TCPListener
	region *ipc.Region
	stats  *stats.Engine
	admin  *admin.Server

	mu          sync.Mutex
	workers     []*workerProc
	stoppingAll atomic.Bool
	wg          sync.WaitGroup
}

type workerProc struct {
	cmd      *exec.Cmd
	restarts int
}

// New binds the listening socket and creates the shared region, but starts
// no workers yet.
func New(cfg config.Config, log zerolog.Logger) (*Master, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("master: listen: %w", err)
	}

	region, err := ipc.CreateRegion(cfg.MaxQueueSize)
	if err != nil {
		ln.Close()
		return nil, err
	}
	region.L.StartTimeUnixNano = time.Now().UnixNano()

	m := &Master{
		cfg:    cfg,
		log:    log,
		ln:     ln,
		region: region,
		stats:  stats.New(region, time.Now()),
	}

	if cfg.AdminAddr != "" {
		m.admin = admin.New(cfg.AdminAddr, log, region, m.workerSnapshot)
	}
	return m, nil
}

// workerSnapshot reports each live worker's PID and restart count, for the
// admin plane's /debug/workers endpoint.
func (m *Master) workerSnapshot() []admin.WorkerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]admin.WorkerInfo, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, admin.WorkerInfo{PID: w.cmd.Process.Pid, Restarts: w.restarts})
	}
	return out
}

// listenerFile exposes the raw *os.File backing the listening socket, which
// exec.Cmd.ExtraFiles needs; *net.TCPListener itself cannot be passed as an
// ExtraFile.
func (m *Master) listenerFile() (*os.File, error) {
	return m.ln.File()
}

// Run forks NumWorkers workers, starts the optional admin surface, emits
// periodic stats snapshots, and blocks until SIGINT/SIGTERM, then shuts
// everything down in order.
func (m *Master) Run(ctx context.Context) error {
	m.log.Info().
		Int("port", m.cfg.Port).
		Int("num_workers", m.cfg.NumWorkers).
		Int("threads_per_worker", m.cfg.ThreadsPerWorker).
		Str("document_root", m.cfg.DocumentRoot).
		Msg("concurrenthttp master starting")

	// SIGPIPE delivered to a process writing to a closed socket would
	// otherwise terminate it by default; Go's runtime already installs its
	// own no-op disposition for SIGPIPE on fd-backed writes, so there is
	// nothing further to wire here beyond noting the equivalence (see
	// SPEC_FULL.md §9).

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lnFile, err := m.listenerFile()
	if err != nil {
		return fmt.Errorf("master: listener file: %w", err)
	}
	defer lnFile.Close()

	for i := 0; i < m.cfg.NumWorkers; i++ {
		if err := m.spawnWorker(lnFile, 0); err != nil {
			return fmt.Errorf("master: spawn worker %d: %w", i, err)
		}
	}

	if m.admin != nil {
		go func() {
			if err := m.admin.Run(sigCtx); err != nil {
				m.log.Warn().Err(err).Msg("admin surface stopped")
			}
		}()
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCtx.Done():
			m.log.Info().Msg("shutdown signal received")
			return m.shutdown()
		case <-ticker.C:
			m.stats.Display(m.log)
		}
	}
}

// spawnWorker re-execs this same binary with RoleEnv=worker and the
// listener + region fds inherited via ExtraFiles, then hands the child off
// to superviseWorker. restarts is always 0: there is no respawn path
// (spec.md §7), but admin.WorkerInfo still reports it per worker in case a
// future revision reintroduces bounded restarts.
func (m *Master) spawnWorker(lnFile *os.File, restarts int) error {
	regionFile := os.NewFile(uintptr(m.region.Fd()), "region")

	exePath, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(exePath)
	cmd.Env = append(os.Environ(), RoleEnv+"="+RoleWorker)
	cmd.ExtraFiles = []*os.File{lnFile, regionFile}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	wp := &workerProc{cmd: cmd, restarts: restarts}
	m.mu.Lock()
	m.workers = append(m.workers, wp)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.superviseWorker(wp)
	return nil
}

// superviseWorker is the only goroutine that ever calls wp.cmd.Wait,
// avoiding a double-reap race with an external waiter during shutdown. It
// waits for the worker to exit and removes it from the live set. There is
// no automatic respawn: spec.md §4.1/§7 calls this out as an explicit
// design limitation carried from the original source — the master keeps
// serving with whatever workers remain.
func (m *Master) superviseWorker(wp *workerProc) {
	defer m.wg.Done()
	err := wp.cmd.Wait()

	m.mu.Lock()
	for i, w := range m.workers {
		if w == wp {
			m.workers = append(m.workers[:i], m.workers[i+1:]...)
			break
		}
	}
	remaining := len(m.workers)
	m.mu.Unlock()

	if m.isShuttingDown() {
		return
	}
	m.log.Warn().Err(err).Int("pid", wp.cmd.Process.Pid).Int("workers_remaining", remaining).
		Msg("worker exited, continuing with remaining workers")
}

func (m *Master) isShuttingDown() bool {
	return m.stoppingAll.Load()
}

// shutdown closes the master's own handle on the listening socket (each
// worker keeps its inherited copy open until it exits), signals every worker
// to terminate, waits for
// superviseWorker goroutines to reap them, and tears down the shared
// region.
func (m *Master) shutdown() error {
	m.stoppingAll.Store(true)

	_ = m.ln.Close()

	m.mu.Lock()
	workers := append([]*workerProc(nil), m.workers...)
	m.mu.Unlock()

	for _, w := range workers {
		_ = w.cmd.Process.Signal(syscall.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		for _, w := range workers {
			_ = w.cmd.Process.Kill()
		}
		<-done
	}

	return m.region.Close()
}
