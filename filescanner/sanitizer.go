package filescanner

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// timeNow is the package clock. The sanitizer's generated-name fallback
// reads it so tests can pin time.
var timeNow = time.Now

// DefaultMaxNameLength is the longest accepted filename in bytes.
const DefaultMaxNameLength = 255

// DefaultAllowedExtensions are the extensions worth preserving when
// sanitization strips a name down far enough to lose its suffix.
var DefaultAllowedExtensions = []string{
	".txt", ".log", ".json", ".xml", ".yaml", ".yml", ".csv", ".md",
	".pdf", ".png", ".jpg", ".jpeg", ".gif", ".webp",
	".zip", ".gz", ".html", ".htm",
}

// dangerousDoubleExtensions is the explicit table of masked-executable
// suffixes. Matching is case-insensitive against the end of the name.
var dangerousDoubleExtensions = []string{
	".php.jpg", ".php.jpeg", ".php.png", ".php.gif", ".php.txt", ".php.pdf",
	".phtml.jpg", ".phtml.png",
	".exe.txt", ".exe.log", ".exe.pdf", ".exe.jpg", ".exe.png", ".exe.doc", ".exe.zip",
	".scr.txt", ".scr.pdf", ".scr.jpg",
	".bat.txt", ".bat.pdf", ".cmd.txt",
	".js.jpg", ".js.png", ".js.pdf",
	".jsp.jpg", ".jsp.png", ".asp.jpg", ".aspx.jpg", ".aspx.png",
	".sh.txt", ".sh.log", ".ps1.txt",
	".vbs.txt", ".vbs.doc",
	".jar.png", ".jar.jpg", ".msi.pdf", ".dll.txt",
}

// encodedTraversal matches percent-encoded dots and separators, plus
// mixed encodings of a parent-directory reference.
var encodedTraversal = regexp.MustCompile(`(?i)%2e%2e|%2e\.|\.%2e|%2f|%5c`)

// dotRun matches two or more consecutive dots.
var dotRun = regexp.MustCompile(`\.{2,}`)

// extShape is the only extension form the sanitizer will preserve or
// reappend.
var extShape = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

// Sanitizer normalizes and validates untrusted filenames. It is pure:
// no I/O, and identical input always yields identical output under a
// fixed clock.
type Sanitizer struct {
	allowedExts map[string]struct{}
	maxLength   int
}

// SanitizerOption adjusts a Sanitizer at construction.
type SanitizerOption func(*Sanitizer)

// WithAllowedExtensions replaces the extension allow-list. Entries are
// normalized to lowercase with a leading dot.
func WithAllowedExtensions(exts ...string) SanitizerOption {
	return func(s *Sanitizer) {
		s.allowedExts = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.allowedExts[ext] = struct{}{}
		}
	}
}

// WithMaxNameLength overrides the maximum accepted filename length.
func WithMaxNameLength(n int) SanitizerOption {
	return func(s *Sanitizer) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// NewSanitizer builds a Sanitizer with the default allow-list and
// length limit.
func NewSanitizer(opts ...SanitizerOption) *Sanitizer {
	s := &Sanitizer{maxLength: DefaultMaxNameLength}
	WithAllowedExtensions(DefaultAllowedExtensions...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks a raw filename against the rejection rules and
// returns a *ValidationError listing every violated rule, or nil when
// the name is acceptable as-is. It never modifies the name.
func (s *Sanitizer) Validate(name string) error {
	var verr *ValidationError
	if name == "" {
		verr = verr.Add("filename is empty")
	}
	if len(name) > s.maxLength {
		verr = verr.Add(fmt.Sprintf("filename exceeds %d characters", s.maxLength))
	}
	var hasNUL, hasControl bool
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case c == 0x00:
			hasNUL = true
		case c < 0x20 || c == 0x7F:
			hasControl = true
		}
	}
	if hasNUL {
		verr = verr.Add("filename contains a NUL byte")
	}
	if hasControl {
		verr = verr.Add("filename contains control characters")
	}
	if strings.ContainsAny(name, `/\`) {
		verr = verr.Add("filename contains path separators")
	}
	if strings.Contains(name, "..") {
		verr = verr.Add("filename contains a parent-directory reference")
	}
	if encodedTraversal.MatchString(name) {
		verr = verr.Add("filename contains percent-encoded path characters")
	}
	return verr.OrNil()
}

// Sanitize rewrites a raw filename into a storage-safe one and reports
// each transformation it applied. Sanitize is idempotent: feeding its
// own output back in returns the same string with no warnings.
func (s *Sanitizer) Sanitize(name string) (string, []string) {
	var warnings []string

	origExt, origExtOK := normalizedExt(name)

	var b strings.Builder
	b.Grow(len(name))
	replaced := 0
	for _, r := range name {
		if allowedNameRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
		replaced++
	}
	if replaced > 0 {
		warnings = append(warnings, fmt.Sprintf("replaced %d disallowed character(s)", replaced))
	}
	out := b.String()

	if strings.Contains(out, "..") {
		out = dotRun.ReplaceAllString(out, ".")
		warnings = append(warnings, "collapsed consecutive dots")
	}

	if trimmed := strings.Trim(out, ". "); trimmed != out {
		out = trimmed
		warnings = append(warnings, "trimmed leading or trailing dots and spaces")
	}

	if out == "" {
		out = fmt.Sprintf("file_%d", timeNow().Unix())
		warnings = append(warnings, "name empty after sanitization, substituted a generated name")
	}

	if origExtOK && s.extensionAllowed(origExt) {
		if _, ok := normalizedExt(out); !ok {
			out += origExt
			warnings = append(warnings, fmt.Sprintf("reappended extension %q", origExt))
		}
	}

	if len(out) > s.maxLength {
		out = truncateName(out, s.maxLength)
		warnings = append(warnings, fmt.Sprintf("truncated to %d characters", s.maxLength))
	}

	return out, warnings
}

// DangerousDoubleExtension reports whether the name ends in one of the
// masked-executable suffixes, returning the matched table entry.
func (s *Sanitizer) DangerousDoubleExtension(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, ext := range dangerousDoubleExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext, true
		}
	}
	return "", false
}

func (s *Sanitizer) extensionAllowed(ext string) bool {
	_, ok := s.allowedExts[ext]
	return ok
}

// allowedNameRune reports whether r may appear in a sanitized name.
func allowedNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-' || r == ' ':
		return true
	}
	return false
}

// normalizedExt extracts the lowercase extension of name when it has
// the preservable shape, and reports whether one was found.
func normalizedExt(name string) (string, bool) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return "", false
	}
	ext := strings.ToLower(name[idx:])
	if !extShape.MatchString(ext) {
		return "", false
	}
	return ext, true
}

// truncateName shortens name to at most max bytes, keeping a trailing
// extension intact when one exists. The cut edge is re-trimmed so the
// result stays in sanitized form.
func truncateName(name string, max int) string {
	ext, ok := normalizedExt(name)
	if !ok || len(ext) >= max {
		return strings.TrimRight(name[:max], ". ")
	}
	stem := name[:len(name)-len(ext)]
	keep := max - len(ext)
	if keep > len(stem) {
		keep = len(stem)
	}
	stem = strings.TrimRight(stem[:keep], ". ")
	return stem + ext
}

var defaultSanitizer = NewSanitizer()

// SanitizeFilename sanitizes name with the default Sanitizer.
func SanitizeFilename(name string) (string, []string) {
	return defaultSanitizer.Sanitize(name)
}

// ValidateFilename validates name with the default Sanitizer.
func ValidateFilename(name string) error {
	return defaultSanitizer.Validate(name)
}
