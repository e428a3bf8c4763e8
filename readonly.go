package filewarden

import (
	"context"
	"errors"
	"io"
)

// ErrReadOnly is returned when a write operation is attempted on a read-only filesystem.
var ErrReadOnly = errors.New("filesystem is read-only")

// ReadOnlyFileSystem wraps a FileSystem to prevent write operations. The
// quarantine audit view hands one of these to review tooling: reviewers
// can read isolated payloads and their metadata but cannot alter them.
// Deletion can be selectively allowed for the retention sweep.
//
// Example:
//
//	audit := filewarden.NewReadOnlyFileSystem(quarantineFS)
//	reader, _ := audit.Read(ctx, "2026-08-29/abc_shell.php.jpg")
//	err := audit.Write(ctx, "x", reader) // wraps ErrReadOnly
type ReadOnlyFileSystem struct {
	fs          FileSystem
	allowDelete bool
}

// ReadOnlyOption configures a ReadOnlyFileSystem.
type ReadOnlyOption func(*ReadOnlyFileSystem)

// WithAllowDelete permits file deletion in read-only mode. The retention
// sweep uses this; everything else should leave it off.
func WithAllowDelete(allow bool) ReadOnlyOption {
	return func(r *ReadOnlyFileSystem) {
		r.allowDelete = allow
	}
}

// NewReadOnlyFileSystem creates a read-only wrapper around a FileSystem.
func NewReadOnlyFileSystem(fs FileSystem, opts ...ReadOnlyOption) *ReadOnlyFileSystem {
	r := &ReadOnlyFileSystem{fs: fs}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Unwrap returns the underlying FileSystem.
func (r *ReadOnlyFileSystem) Unwrap() FileSystem {
	return r.fs
}

// IsReadOnly returns true, indicating this is a read-only filesystem.
func (r *ReadOnlyFileSystem) IsReadOnly() bool {
	return true
}

// Read delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.fs.Read(ctx, path)
}

// ReadAll delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) ReadAll(ctx context.Context, path string) ([]byte, error) {
	return r.fs.ReadAll(ctx, path)
}

// FileExists delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) FileExists(ctx context.Context, path string) (bool, error) {
	return r.fs.FileExists(ctx, path)
}

// DirExists delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) DirExists(ctx context.Context, path string) (bool, error) {
	return r.fs.DirExists(ctx, path)
}

// Stat delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return r.fs.Stat(ctx, path)
}

// ListContents delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	return r.fs.ListContents(ctx, path, recursive)
}

// Write returns ErrReadOnly.
func (r *ReadOnlyFileSystem) Write(ctx context.Context, path string, content io.Reader, opts ...Option) error {
	return &PathError{Op: "write", Path: path, Err: ErrReadOnly}
}

// Delete returns ErrReadOnly unless deletion was allowed.
func (r *ReadOnlyFileSystem) Delete(ctx context.Context, path string) error {
	if !r.allowDelete {
		return &PathError{Op: "delete", Path: path, Err: ErrReadOnly}
	}
	return r.fs.Delete(ctx, path)
}

// CreateDir returns ErrReadOnly.
func (r *ReadOnlyFileSystem) CreateDir(ctx context.Context, path string) error {
	return &PathError{Op: "createdir", Path: path, Err: ErrReadOnly}
}

// DeleteDir returns ErrReadOnly.
func (r *ReadOnlyFileSystem) DeleteDir(ctx context.Context, path string) error {
	return &PathError{Op: "deletedir", Path: path, Err: ErrReadOnly}
}

// Checksum delegates to the underlying filesystem if supported.
func (r *ReadOnlyFileSystem) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	if cs, ok := r.fs.(CanChecksum); ok {
		return cs.Checksum(ctx, path, algorithm)
	}
	return "", &PathError{Op: "checksum", Path: path, Err: ErrNotSupported}
}

// Checksums delegates to the underlying filesystem if supported.
func (r *ReadOnlyFileSystem) Checksums(ctx context.Context, path string, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	if cs, ok := r.fs.(CanChecksum); ok {
		return cs.Checksums(ctx, path, algorithms)
	}
	return nil, &PathError{Op: "checksums", Path: path, Err: ErrNotSupported}
}

// Watch delegates to the underlying filesystem if supported.
func (r *ReadOnlyFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if watcher, ok := r.fs.(CanWatch); ok {
		return watcher.Watch(ctx, pattern)
	}
	return CancelledChangeToken{}, nil
}

var (
	_ FileSystem  = (*ReadOnlyFileSystem)(nil)
	_ CanChecksum = (*ReadOnlyFileSystem)(nil)
	_ CanWatch    = (*ReadOnlyFileSystem)(nil)
)

// IsReadOnlyError checks if an error is due to read-only restrictions.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
