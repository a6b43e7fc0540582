// Package pipeline implements the per-connection HTTP request pipeline
// (spec.md §4.5): parsing (via fasthttp), virtual-host resolution, path
// safety, routing, static file service with LRU caching and Range support,
// the /stats dashboard, and statistics/log recording.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/semaphore"

	"github.com/originserver/concurrenthttp/internal/accesslog"
	"github.com/originserver/concurrenthttp/internal/config"
	"github.com/originserver/concurrenthttp/internal/filecache"
	"github.com/originserver/concurrenthttp/internal/stats"
)

const serverName = "ConcurrentHTTP/1.0"

// maxRequestBody is the POST/PUT body cap from spec.md §4.5 step 9.
const maxRequestBody = 64 * 1024

// Deps bundles everything the pipeline needs to serve one connection's
// request. A single Deps is shared read-only by every goroutine in a
// worker's thread pool.
type Deps struct {
	Config      config.Config
	Cache       *filecache.Cache
	Stats       *stats.Engine
	AccessLog   *accesslog.Sink
	ReadLimiter *semaphore.Weighted // bounds concurrent cache-miss disk reads
}

// NewHandler builds the fasthttp.RequestHandler for one worker.
func NewHandler(deps *Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		status := serve(ctx, deps)
		deps.Stats.Update(status, uint64(len(ctx.Response.Body())))
		deps.Stats.RecordLatency(start)
		_ = deps.AccessLog.Log(
			ctx.RemoteIP().String(),
			string(ctx.Method()),
			string(ctx.Request.URI().PathOriginal()),
			status,
			uint64(len(ctx.Response.Body())),
		)
	}
}

func serve(ctx *fasthttp.RequestCtx, deps *Deps) int {
	setCommonHeaders(ctx)

	method := string(ctx.Method())
	rawPath := string(ctx.Request.URI().PathOriginal())
	if method == "" || rawPath == "" {
		// fasthttp itself rejects a genuinely malformed request line before
		// the handler ever runs; this only guards whatever slips through
		// (e.g. a URI that parses to an empty path) as belt-and-suspenders.
		return writeError(ctx, 500, "Internal Server Error")
	}

	if isUnsafePath(rawPath) {
		return writeError(ctx, 403, "Forbidden")
	}

	if string(ctx.Path()) == "/stats" {
		return serveStats(ctx, deps)
	}

	switch method {
	case fasthttp.MethodPost, fasthttp.MethodPut:
		return serveEcho(ctx, method)
	}

	root := resolveRoot(string(ctx.Request.Header.Peek("Host")), deps.Config.VirtualHosts, deps.Config.DocumentRoot)
	return serveFile(ctx, deps, root, rawPath)
}

// setCommonHeaders stamps headers shared by every response, including a
// request correlation ID: the client's own X-Request-ID is echoed back if
// present, otherwise a fresh one is minted. The ID is only sent in the
// response; it is not written to the access log.
func setCommonHeaders(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Server", serverName)
	ctx.Response.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	ctx.SetConnectionClose()

	reqID := string(ctx.Request.Header.Peek("X-Request-ID"))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	ctx.Response.Header.Set("X-Request-ID", reqID)
}

func writeError(ctx *fasthttp.RequestCtx, status int, body string) int {
	ctx.SetStatusCode(status)
	ctx.SetContentType("text/html")
	text := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", status, body)
	ctx.SetBodyString(text)
	ctx.Response.Header.SetContentLength(len(text))
	return status
}

func serveEcho(ctx *fasthttp.RequestCtx, method string) int {
	body := ctx.PostBody()
	if len(body) > maxRequestBody {
		body = body[:maxRequestBody]
	}
	ctx.SetStatusCode(fasthttp.StatusCreated)
	ctx.SetContentType("text/html")
	text := fmt.Sprintf(
		"<html><body><h1>201 Created</h1><p>method=%s path=%s body_len=%d</p></body></html>",
		method, ctx.Path(), len(body),
	)
	ctx.SetBodyString(text)
	ctx.Response.Header.SetContentLength(len(text))
	return fasthttp.StatusCreated
}

func serveFile(ctx *fasthttp.RequestCtx, deps *Deps, root, rawPath string) int {
	cleanRel := filepath.Clean("/" + rawPath)
	fullPath := filepath.Join(root, cleanRel)

	info, err := os.Stat(fullPath)
	if err == nil && info.IsDir() {
		indexPath := filepath.Join(fullPath, "index.html")
		idxInfo, idxErr := os.Stat(indexPath)
		if idxErr != nil || idxInfo.IsDir() {
			// Directory present but no index.html: 403, not 404
			// (spec.md §4.5 tie-break policy).
			return writeError(ctx, 403, "Forbidden")
		}
		fullPath = indexPath
		info = idxInfo
		err = nil
	}
	if err != nil {
		return writeError(ctx, 404, "Not Found")
	}

	data, hit := deps.Cache.Get(fullPath)
	if !hit {
		data, err = readFile(ctx, deps, fullPath, info.Size())
		if err != nil {
			return writeError(ctx, 500, "Internal Server Error")
		}
		if int64(len(data)) <= filecache.MaxEntrySize {
			deps.Cache.Put(fullPath, data)
		}
	}

	contentType := mimeFor(fullPath)
	isHead := ctx.IsHead()

	if rangeHeader := string(ctx.Request.Header.Peek("Range")); rangeHeader != "" {
		if br, ok := parseRange(rangeHeader, int64(len(data))); ok {
			ctx.SetStatusCode(fasthttp.StatusPartialContent)
			ctx.SetContentType(contentType)
			ctx.Response.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, len(data)))
			if !isHead {
				ctx.SetBody(data[br.start : br.end+1])
			}
			ctx.Response.Header.SetContentLength(int(br.end - br.start + 1))
			return fasthttp.StatusPartialContent
		}
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(contentType)
	if !isHead {
		ctx.SetBody(data)
	}
	ctx.Response.Header.SetContentLength(len(data))
	return fasthttp.StatusOK
}

// readFile reads a file from disk, bounding concurrent disk reads with
// deps.ReadLimiter so a burst of simultaneous cache misses cannot exhaust
// file descriptors within one worker.
func readFile(ctx *fasthttp.RequestCtx, deps *Deps, path string, size int64) ([]byte, error) {
	if deps.ReadLimiter != nil {
		if err := deps.ReadLimiter.Acquire(context.Background(), 1); err != nil {
			return nil, err
		}
		defer deps.ReadLimiter.Release(1)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
