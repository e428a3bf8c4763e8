package filewarden

import (
	"errors"
	"fmt"
)

// Common filesystem errors
var (
	ErrNotExist     = errors.New("file does not exist")
	ErrExist        = errors.New("file already exists")
	ErrPermission   = errors.New("permission denied")
	ErrNotDir       = errors.New("not a directory")
	ErrIsDir        = errors.New("is a directory")
	ErrInvalidName  = errors.New("invalid name")
	ErrNotSupported = errors.New("operation not supported")
	ErrNotAllowed   = errors.New("operation not allowed")
	ErrNoSpace      = errors.New("no space left on device")
)

// Quarantine and record errors
var (
	// ErrTraversal marks a composed path that escaped its base directory.
	// It is always fatal and never auto-corrected.
	ErrTraversal = errors.New("path escapes base directory")

	// ErrRecordNotFound is returned by repositories for unknown file ids.
	ErrRecordNotFound = errors.New("file record not found")

	// ErrNotQuarantined is returned when releasing a file that is not in
	// the quarantined state.
	ErrNotQuarantined = errors.New("file is not quarantined")

	// ErrStillMalicious is returned when a non-forced release finds the
	// quarantined content still classifies as malicious.
	ErrStillMalicious = errors.New("file still classifies as malicious")
)

// PathError records an error and the operation and file path that caused it
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// TraversalError records a composed path that resolved outside its base
// directory. Callers must treat it as fatal: the path is adversarial and
// there is no safe correction.
type TraversalError struct {
	Path string
	Base string
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("path traversal: %q escapes %q", e.Path, e.Base)
}

// Unwrap makes errors.Is(err, ErrTraversal) work.
func (e *TraversalError) Unwrap() error {
	return ErrTraversal
}

// QuarantineError records a failed quarantine transition. Step names the
// transition step that failed so operational alerting can distinguish
// filesystem inconsistencies from record update failures.
type QuarantineError struct {
	Op     string // "isolate" or "release"
	FileID string
	Step   string
	Err    error
}

func (e *QuarantineError) Error() string {
	return fmt.Sprintf("%s %s: step %s: %v", e.Op, e.FileID, e.Step, e.Err)
}

// Unwrap returns the underlying error
func (e *QuarantineError) Unwrap() error {
	return e.Err
}

// IsNotExist reports whether an error indicates that a file or directory
// does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsExist reports whether an error indicates that a file or directory
// already exists
func IsExist(err error) bool {
	return errors.Is(err, ErrExist)
}

// IsTraversal reports whether an error indicates a path traversal attempt
func IsTraversal(err error) bool {
	return errors.Is(err, ErrTraversal)
}
