package filewarden

import (
	"context"
	"io"
	"path"
	"strings"
)

// ScopedFS confines all operations to one subtree of an underlying
// filesystem. The quarantine vault and the public files tree are separate
// ScopedFS values over the same backend, so a component holding the
// public scope cannot write into quarantine even by accident: cross-tree
// writes are prevented at the type level, not by call-site discipline.
type ScopedFS struct {
	fs     FileSystem
	prefix string
}

// NewScopedFS wraps fs so every path is interpreted relative to subtree.
func NewScopedFS(fs FileSystem, subtree string) *ScopedFS {
	return &ScopedFS{
		fs:     fs,
		prefix: strings.Trim(path.Clean(subtree), "/"),
	}
}

// Unwrap returns the underlying FileSystem.
func (s *ScopedFS) Unwrap() FileSystem {
	return s.fs
}

// Subtree returns the confining prefix.
func (s *ScopedFS) Subtree() string {
	return s.prefix
}

// resolve prefixes p with the subtree, rejecting any path that would
// lexically escape it.
func (s *ScopedFS) resolve(op, p string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(p, `\`, "/"))
	if clean == "/.." || strings.HasPrefix(clean, "/../") {
		return "", &PathError{Op: op, Path: p, Err: ErrNotAllowed}
	}
	full := path.Join(s.prefix, strings.TrimPrefix(clean, "/"))
	if full != s.prefix && !strings.HasPrefix(full, s.prefix+"/") {
		return "", &PathError{Op: op, Path: p, Err: ErrNotAllowed}
	}
	return full, nil
}

// strip converts an underlying path back into subtree-relative form for
// listings.
func (s *ScopedFS) strip(p string) string {
	return strings.TrimPrefix(strings.TrimPrefix(p, s.prefix), "/")
}

func (s *ScopedFS) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	full, err := s.resolve("read", p)
	if err != nil {
		return nil, err
	}
	return s.fs.Read(ctx, full)
}

func (s *ScopedFS) ReadAll(ctx context.Context, p string) ([]byte, error) {
	full, err := s.resolve("read", p)
	if err != nil {
		return nil, err
	}
	return s.fs.ReadAll(ctx, full)
}

func (s *ScopedFS) FileExists(ctx context.Context, p string) (bool, error) {
	full, err := s.resolve("fileexists", p)
	if err != nil {
		return false, err
	}
	return s.fs.FileExists(ctx, full)
}

func (s *ScopedFS) DirExists(ctx context.Context, p string) (bool, error) {
	full, err := s.resolve("direxists", p)
	if err != nil {
		return false, err
	}
	return s.fs.DirExists(ctx, full)
}

func (s *ScopedFS) Stat(ctx context.Context, p string) (*FileInfo, error) {
	full, err := s.resolve("stat", p)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(ctx, full)
	if err != nil {
		return nil, err
	}
	scoped := *info
	scoped.Path = s.strip(info.Path)
	return &scoped, nil
}

func (s *ScopedFS) ListContents(ctx context.Context, p string, recursive bool) ([]FileInfo, error) {
	full, err := s.resolve("listcontents", p)
	if err != nil {
		return nil, err
	}
	files, err := s.fs.ListContents(ctx, full, recursive)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, len(files))
	for i, f := range files {
		out[i] = f
		out[i].Path = s.strip(f.Path)
	}
	return out, nil
}

func (s *ScopedFS) Write(ctx context.Context, p string, content io.Reader, opts ...Option) error {
	full, err := s.resolve("write", p)
	if err != nil {
		return err
	}
	return s.fs.Write(ctx, full, content, opts...)
}

func (s *ScopedFS) Delete(ctx context.Context, p string) error {
	full, err := s.resolve("delete", p)
	if err != nil {
		return err
	}
	return s.fs.Delete(ctx, full)
}

func (s *ScopedFS) CreateDir(ctx context.Context, p string) error {
	full, err := s.resolve("createdir", p)
	if err != nil {
		return err
	}
	return s.fs.CreateDir(ctx, full)
}

func (s *ScopedFS) DeleteDir(ctx context.Context, p string) error {
	full, err := s.resolve("deletedir", p)
	if err != nil {
		return err
	}
	return s.fs.DeleteDir(ctx, full)
}

// Copy delegates to the backend's native copy when available. Both ends
// stay inside the subtree.
func (s *ScopedFS) Copy(ctx context.Context, src, dst string) error {
	fullSrc, err := s.resolve("copy", src)
	if err != nil {
		return err
	}
	fullDst, err := s.resolve("copy", dst)
	if err != nil {
		return err
	}
	if copier, ok := s.fs.(CanCopy); ok {
		return copier.Copy(ctx, fullSrc, fullDst)
	}
	return &PathError{Op: "copy", Path: src, Err: ErrNotSupported}
}

// Move delegates to the backend's native move when available.
func (s *ScopedFS) Move(ctx context.Context, src, dst string) error {
	fullSrc, err := s.resolve("move", src)
	if err != nil {
		return err
	}
	fullDst, err := s.resolve("move", dst)
	if err != nil {
		return err
	}
	if mover, ok := s.fs.(CanMove); ok {
		return mover.Move(ctx, fullSrc, fullDst)
	}
	return &PathError{Op: "move", Path: src, Err: ErrNotSupported}
}

// Checksum delegates to the backend when it supports native checksums.
func (s *ScopedFS) Checksum(ctx context.Context, p string, algorithm ChecksumAlgorithm) (string, error) {
	full, err := s.resolve("checksum", p)
	if err != nil {
		return "", err
	}
	if cs, ok := s.fs.(CanChecksum); ok {
		return cs.Checksum(ctx, full, algorithm)
	}
	return "", &PathError{Op: "checksum", Path: p, Err: ErrNotSupported}
}

// Checksums delegates to the backend when it supports native checksums.
func (s *ScopedFS) Checksums(ctx context.Context, p string, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	full, err := s.resolve("checksums", p)
	if err != nil {
		return nil, err
	}
	if cs, ok := s.fs.(CanChecksum); ok {
		return cs.Checksums(ctx, full, algorithms)
	}
	return nil, &PathError{Op: "checksums", Path: p, Err: ErrNotSupported}
}

// Watch confines the watch pattern to the subtree.
func (s *ScopedFS) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if watcher, ok := s.fs.(CanWatch); ok {
		return watcher.Watch(ctx, path.Join(s.prefix, pattern))
	}
	return CancelledChangeToken{}, nil
}

var (
	_ FileSystem  = (*ScopedFS)(nil)
	_ CanCopy     = (*ScopedFS)(nil)
	_ CanMove     = (*ScopedFS)(nil)
	_ CanChecksum = (*ScopedFS)(nil)
	_ CanWatch    = (*ScopedFS)(nil)
)
