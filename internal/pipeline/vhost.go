package pipeline

import "strings"

// resolveRoot implements virtual host resolution (spec.md §4.5 step 4): if
// the Host header matches a configured alias, serve from that alias's
// document root; otherwise fall back to the default.
//
// The source hard-codes ./www/site1 and ./www/site2; spec.md §9 flags this
// as something a faithful reimplementation should make config-driven, which
// is exactly what config.VirtualHosts (VHOST_<alias>=<root> keys) does.
func resolveRoot(host string, vhosts map[string]string, defaultRoot string) string {
	if host == "" || len(vhosts) == 0 {
		return defaultRoot
	}
	// Host headers may carry a port (example.com:8080); match the bare name.
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if root, ok := vhosts[host]; ok {
		return root
	}
	return defaultRoot
}
