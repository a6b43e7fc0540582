package pipeline

import (
	"fmt"

	"github.com/valyala/fasthttp"
)

// serveStats renders the /stats dashboard (spec.md §4.5 step 6, §6). The
// literal HTML template is a trivial, out-of-scope collaborator per
// spec.md §1 — this renders only the data the spec requires it to expose.
func serveStats(ctx *fasthttp.RequestCtx, deps *Deps) int {
	v := deps.Stats.Snapshot()
	mib := float64(v.BytesTransferred) / (1024 * 1024)

	body := fmt.Sprintf(`<html>
<head><meta http-equiv='refresh' content='2'><title>Server Statistics</title></head>
<body>
<h1>Server Statistics</h1>
<ul>
<li>Uptime: %s</li>
<li>Active connections: %d</li>
<li>Mean response time: %.2f ms</li>
<li>Total requests: %d</li>
<li>Total bytes transferred: %.2f MiB</li>
<li>200: %d</li>
<li>201: %d</li>
<li>206: %d</li>
<li>403: %d</li>
<li>404: %d</li>
<li>500: %d</li>
<li>503: %d</li>
</ul>
</body>
</html>`,
		v.Uptime.Round(1e6), v.ActiveConnections, v.AvgResponseTimeMs, v.TotalRequests, mib,
		v.Status200, v.Status201, v.Status206, v.Status403, v.Status404, v.Status500, v.Status503,
	)

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.Response.Header.SetContentType("text/html; charset=utf-8")
	ctx.SetBodyString(body)
	ctx.Response.Header.SetContentLength(len(body))
	return fasthttp.StatusOK
}
