package pipeline

import (
	"strconv"
	"strings"
)

// byteRange is an inclusive [start, end] range within a file of a known
// size, already clamped per spec.md §4.5's Range policy.
type byteRange struct {
	start, end int64
}

// parseRange parses a "bytes=START-END" header value (spec.md §4.5 step 7).
// END is optional; if absent, or literally 0, it means "to end of file",
// clamped to size-1. An END greater than or equal to size is likewise
// clamped to size-1. parseRange returns ok=false for anything it cannot
// confidently parse, in which case the caller falls back to a full 200
// response.
func parseRange(header string, size int64) (byteRange, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, false
	}
	spec := strings.TrimPrefix(header, prefix)
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return byteRange{}, false
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return byteRange{}, false
	}

	var end int64
	if endStr == "" {
		end = size - 1
	} else {
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || e < 0 {
			return byteRange{}, false
		}
		if e == 0 || e >= size {
			end = size - 1
		} else {
			end = e
		}
	}
	if end < start {
		return byteRange{}, false
	}
	return byteRange{start: start, end: end}, true
}
