package pipeline

import "strings"

// isUnsafePath implements the traversal check from spec.md §4.5 step 5:
// reject any path containing a ".." segment, or one starting with "//",
// regardless of whether path.Clean would resolve it back inside the
// document root. Multiple ".." segments are rejected unconditionally
// (spec.md §4.5 edge-case policy) — this function never attempts to
// compute the resulting absolute path, it only scans the raw, pre-clean
// text the client sent.
func isUnsafePath(raw string) bool {
	if strings.HasPrefix(raw, "//") {
		return true
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
