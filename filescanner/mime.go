package filescanner

import (
	"path/filepath"
	"strings"
)

// extensionTypes maps lowercase file extensions to their conventional
// MIME types. Used when a caller declares no type at all; content
// detection still overrides whatever the extension suggests.
var extensionTypes = map[string]string{
	".txt":  "text/plain",
	".log":  "text/plain",
	".text": "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".html": "text/html",
	".htm":  "text/html",
	".js":   "application/javascript",
	".md":   "text/markdown",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
}

// GuessType guesses a MIME type for a filename, consulting content when
// the extension is unknown. Returns application/octet-stream when nothing
// matches.
func GuessType(filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mime, ok := extensionTypes[ext]; ok {
		return mime
	}
	if len(data) > 0 {
		if detected, confident := DetectType(data); confident {
			return detected
		}
	}
	return "application/octet-stream"
}

// textualTypes are non-"text/" types whose payload is still text and
// should go through the pattern battery.
var textualTypes = map[string]bool{
	"application/json":        true,
	"application/xml":         true,
	"application/javascript":  true,
	"application/x-httpd-php": true,
	"application/xhtml+xml":   true,
	"application/x-sh":        true,
	"application/yaml":        true,
	"image/svg+xml":           true,
}

// IsTextualType reports whether content of the given MIME type should be
// treated as text for pattern scanning.
func IsTextualType(mime string) bool {
	mime = BaseType(mime)
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	if strings.HasSuffix(mime, "+json") || strings.HasSuffix(mime, "+xml") {
		return true
	}
	return textualTypes[mime]
}

// executableTypes are MIME types produced by the magic table that denote
// native or bytecode executables.
var executableTypes = map[string]bool{
	"application/x-msdownload":  true,
	"application/x-elf":         true,
	"application/x-mach-binary": true,
	"application/java-vm":       true,
	"application/wasm":          true,
}

// IsExecutableType reports whether the MIME type denotes executable code.
func IsExecutableType(mime string) bool {
	return executableTypes[BaseType(mime)]
}

// MatchesAccepted reports whether mime satisfies an accept list.
// Entries may be exact ("application/pdf"), wildcard subtypes
// ("image/*"), or the universal "*/*". An empty list accepts everything.
func MatchesAccepted(mime string, accepted []string) bool {
	if len(accepted) == 0 {
		return true
	}
	mime = BaseType(mime)
	for _, entry := range accepted {
		entry = BaseType(entry)
		if entry == "*/*" || entry == mime {
			return true
		}
		if prefix, ok := strings.CutSuffix(entry, "/*"); ok {
			if strings.HasPrefix(mime, prefix+"/") {
				return true
			}
		}
	}
	return false
}
