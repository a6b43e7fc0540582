package pipeline

import "strings"

// mimeTable is the fixed extension -> Content-Type table from spec.md §4.5.
var mimeTable = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".mp4":  "video/mp4",
}

const defaultMime = "application/octet-stream"

// mimeFor returns the Content-Type for a file name based on its extension,
// defaulting to application/octet-stream for anything not in the table.
func mimeFor(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return defaultMime
	}
	ext := strings.ToLower(name[idx:])
	if ct, ok := mimeTable[ext]; ok {
		return ct
	}
	return defaultMime
}
