// Package worker implements the worker process (spec.md §4.2): attach to
// shared state, build a per-worker cache and log sink, run a thread pool of
// accept-loop goroutines, and idle until told to shut down.
package worker

import (
	"errors"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/semaphore"

	"github.com/originserver/concurrenthttp/internal/accesslog"
	"github.com/originserver/concurrenthttp/internal/config"
	"github.com/originserver/concurrenthttp/internal/filecache"
	"github.com/originserver/concurrenthttp/internal/ipc"
	"github.com/originserver/concurrenthttp/internal/pipeline"
	"github.com/originserver/concurrenthttp/internal/stats"
	"github.com/originserver/concurrenthttp/internal/threadpool"
)

// readConcurrency bounds simultaneous cache-miss disk reads within one
// worker; it is not part of the spec's cross-process fabric, just a local
// resource guard (see SPEC_FULL.md §5).
const readConcurrency = 64

// Worker is one attached worker process.
type Worker struct {
	cfg       config.Config
	log       zerolog.Logger
	listener  *net.TCPListener
	region    *ipc.Region
	telemetry *ipc.Telemetry
	cache     *filecache.Cache
	accessLog *accesslog.Sink
	statsEng  *stats.Engine
	server    *fasthttp.Server
	pool      *threadpool.Pool
	shutdown  atomic.Bool
}

// New attaches to the shared region inherited over regionFd and wraps the
// inherited listening socket, but does not start serving yet.
func New(cfg config.Config, log zerolog.Logger, listenerFile *os.File, regionFd int) (*Worker, error) {
	ln, err := net.FileListener(listenerFile)
	if err != nil {
		return nil, err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, errors.New("worker: inherited listener is not TCP")
	}

	region, err := ipc.AttachRegion(regionFd)
	if err != nil {
		return nil, err
	}

	startTime := time.Unix(0, region.L.StartTimeUnixNano)
	w := &Worker{
		cfg:       cfg,
		log:       log,
		listener:  tcpLn,
		region:    region,
		telemetry: ipc.NewTelemetry(region),
		cache:     filecache.New(cfg.CacheSizeBytes, filecache.DefaultMaxEntries),
		statsEng:  stats.New(region, startTime),
	}

	accessLog, err := accesslog.Open(cfg.LogFile, region)
	if err != nil {
		region.Close()
		return nil, err
	}
	w.accessLog = accessLog

	deps := &pipeline.Deps{
		Config:      cfg,
		Cache:       w.cache,
		Stats:       w.statsEng,
		AccessLog:   w.accessLog,
		ReadLimiter: semaphore.NewWeighted(readConcurrency),
	}
	w.server = &fasthttp.Server{
		Handler:            pipeline.NewHandler(deps),
		Name:               "ConcurrentHTTP/1.0",
		ReadBufferSize:     4096,
		ReadTimeout:        5 * time.Second,
		MaxRequestBodySize: 64 * 1024,
		DisableKeepalive:   true,
	}
	return w, nil
}

// Run spawns the thread pool and blocks until every accept-loop goroutine
// returns, which happens once Shutdown closes the listener.
func (w *Worker) Run() {
	w.pool = threadpool.New(w.cfg.ThreadsPerWorker, w.acceptLoop)
	w.pool.Wait()
}

// acceptLoop is one thread-pool worker's body: loop on the shared listening
// socket (kernel fan-out distributes connections across every thread of
// every worker process) and hand each connection to fasthttp for parsing
// and response writing.
func (w *Worker) acceptLoop(done <-chan struct{}) {
	for {
		conn, err := w.listener.Accept()
		if err != nil {
			if w.shutdown.Load() {
				return
			}
			select {
			case <-done:
				return
			default:
			}
			w.log.Debug().Err(err).Msg("accept failed")
			continue
		}

		if !w.telemetry.TryAdmit() {
			w.rejectOverloaded(conn)
			continue
		}
		w.statsEng.IncActive()
		if err := w.server.ServeConn(conn); err != nil {
			w.log.Debug().Err(err).Msg("serve connection")
		}
		w.statsEng.DecActive()
		w.telemetry.Release()
	}
}

// rejectOverloaded answers an admission-rejected connection directly,
// without running it through the HTTP pipeline at all (spec.md §4.4: "MUST
// NOT silently drop ... responds 503 and closes"), then records it through
// the same stats/access-log sinks as every other completed connection
// (spec.md §4.5 step 11, §8: one access-log line per completed request,
// unconditional stats recording — a 503 rejection still writes bytes to the
// wire and is a completed request in that sense).
func (w *Worker) rejectOverloaded(conn net.Conn) {
	const body = "<html><body><h1>503 Service Unavailable</h1></body></html>"
	resp := "HTTP/1.1 503 Service Unavailable\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n" + body
	n, _ := conn.Write([]byte(resp))
	conn.Close()

	clientIP := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}
	w.statsEng.Update(503, uint64(n))
	if err := w.accessLog.Log(clientIP, "", "", 503, uint64(n)); err != nil {
		w.log.Debug().Err(err).Msg("access log write failed")
	}
}

// Shutdown stops accepting new connections, joins the thread pool, and
// releases this worker's resources.
func (w *Worker) Shutdown() {
	w.shutdown.Store(true)
	_ = w.listener.Close()
	if w.pool != nil {
		w.pool.Shutdown()
	}
	w.cache.Purge()
	_ = w.accessLog.Close()
	_ = w.region.Close()
}
