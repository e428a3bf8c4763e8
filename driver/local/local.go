// Package local implements the on-disk storage backend. Paths are
// confined to the configured root; directories are created 0700 and
// restricted files 0600, so quarantine copies are never group or world
// readable. Restricted writes are fsynced before they count as stored.
package local

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobeaver/filewarden"
)

// Adapter provides a local filesystem implementation of
// filewarden.FileSystem.
type Adapter struct {
	root string
}

// New creates a new local filesystem adapter rooted at root. The root
// directory is created if missing, owner-only.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0700); err != nil {
		return nil, err
	}
	return &Adapter{root: absRoot}, nil
}

// Root returns the absolute on-disk root.
func (a *Adapter) Root() string {
	return a.root
}

// resolve joins path under the root and rejects anything that escapes it.
func (a *Adapter) resolve(op, path string) (string, error) {
	fullPath := filepath.Join(a.root, filepath.Clean(filepath.FromSlash(path)))
	if !isPathUnderRoot(a.root, fullPath) {
		return "", &filewarden.PathError{Op: op, Path: path, Err: filewarden.ErrNotAllowed}
	}
	return fullPath, nil
}

// Write implements filewarden.FileWriter. Without the overwrite option
// an existing file fails with ErrExist. Restricted files are written
// 0600 and fsynced so a quarantine copy survives a crash immediately
// after the call returns.
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...filewarden.Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := a.resolve("write", path)
	if err != nil {
		return err
	}

	opts := processOptions(options...)

	if !opts.Overwrite {
		if _, err := os.Lstat(fullPath); err == nil {
			return &filewarden.PathError{Op: "write", Path: path, Err: filewarden.ErrExist}
		}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
		return &filewarden.PathError{Op: "write", Path: path, Err: err}
	}

	mode := os.FileMode(0644)
	if opts.Restricted {
		mode = 0600
	}
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return &filewarden.PathError{Op: "write", Path: path, Err: err}
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(fullPath)
		return &filewarden.PathError{Op: "write", Path: path, Err: err}
	}

	if opts.Restricted {
		// An existing file keeps its old mode through OpenFile.
		if err := f.Chmod(0600); err != nil {
			f.Close()
			return &filewarden.PathError{Op: "write", Path: path, Err: err}
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return &filewarden.PathError{Op: "write", Path: path, Err: err}
		}
	}

	if err := f.Close(); err != nil {
		return &filewarden.PathError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Read implements filewarden.FileReader.
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.resolve("read", path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &filewarden.PathError{Op: "read", Path: path, Err: filewarden.ErrNotExist}
		}
		return nil, &filewarden.PathError{Op: "read", Path: path, Err: err}
	}
	return f, nil
}

// ReadAll implements filewarden.FileReader.
func (a *Adapter) ReadAll(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete implements filewarden.FileWriter.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := a.resolve("delete", path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return &filewarden.PathError{Op: "delete", Path: path, Err: filewarden.ErrNotExist}
		}
		return &filewarden.PathError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// FileExists implements filewarden.FileReader.
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fullPath, err := a.resolve("fileexists", path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &filewarden.PathError{Op: "fileexists", Path: path, Err: err}
	}
	return !info.IsDir(), nil
}

// DirExists implements filewarden.FileReader.
func (a *Adapter) DirExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fullPath, err := a.resolve("direxists", path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &filewarden.PathError{Op: "direxists", Path: path, Err: err}
	}
	return info.IsDir(), nil
}

// Stat implements filewarden.FileReader.
func (a *Adapter) Stat(ctx context.Context, path string) (*filewarden.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.resolve("stat", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &filewarden.PathError{Op: "stat", Path: path, Err: filewarden.ErrNotExist}
		}
		return nil, &filewarden.PathError{Op: "stat", Path: path, Err: err}
	}

	contentType := ""
	if !info.IsDir() {
		contentType = getContentType(fullPath)
	}
	return &filewarden.FileInfo{
		Name:        filepath.Base(path),
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		IsDir:       info.IsDir(),
		ContentType: contentType,
	}, nil
}

// ListContents implements filewarden.FileReader.
func (a *Adapter) ListContents(ctx context.Context, path string, recursive bool) ([]filewarden.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.resolve("listcontents", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &filewarden.PathError{Op: "listcontents", Path: path, Err: filewarden.ErrNotExist}
		}
		return nil, &filewarden.PathError{Op: "listcontents", Path: path, Err: err}
	}
	if !info.IsDir() {
		return nil, &filewarden.PathError{Op: "listcontents", Path: path, Err: filewarden.ErrNotDir}
	}

	var files []filewarden.FileInfo
	if recursive {
		err = filepath.Walk(fullPath, func(walkPath string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if walkPath == fullPath {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			relPath, err := filepath.Rel(a.root, walkPath)
			if err != nil {
				return err
			}

			contentType := ""
			if !info.IsDir() {
				contentType = getContentType(walkPath)
			}
			files = append(files, filewarden.FileInfo{
				Name:        info.Name(),
				Path:        filepath.ToSlash(relPath),
				Size:        info.Size(),
				ModTime:     info.ModTime(),
				IsDir:       info.IsDir(),
				ContentType: contentType,
			})
			return nil
		})
		if err != nil {
			return nil, &filewarden.PathError{Op: "listcontents", Path: path, Err: err}
		}
		return files, nil
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, &filewarden.PathError{Op: "listcontents", Path: path, Err: err}
	}

	files = make([]filewarden.FileInfo, 0, len(entries))
	for _, entry := range entries {
		entryPath := filepath.ToSlash(filepath.Join(path, entry.Name()))
		info, err := entry.Info()
		if err != nil {
			continue
		}

		contentType := ""
		if !info.IsDir() {
			contentType = getContentType(filepath.Join(fullPath, entry.Name()))
		}
		files = append(files, filewarden.FileInfo{
			Name:        entry.Name(),
			Path:        entryPath,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			IsDir:       info.IsDir(),
			ContentType: contentType,
		})
	}
	return files, nil
}

// CreateDir implements filewarden.FileWriter. Directories are owner-only.
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := a.resolve("createdir", path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fullPath, 0700); err != nil {
		return &filewarden.PathError{Op: "createdir", Path: path, Err: err}
	}
	return nil
}

// DeleteDir implements filewarden.FileWriter.
func (a *Adapter) DeleteDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := a.resolve("deletedir", path)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &filewarden.PathError{Op: "deletedir", Path: path, Err: filewarden.ErrNotExist}
		}
		return &filewarden.PathError{Op: "deletedir", Path: path, Err: err}
	}
	if !info.IsDir() {
		return &filewarden.PathError{Op: "deletedir", Path: path, Err: filewarden.ErrNotDir}
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return &filewarden.PathError{Op: "deletedir", Path: path, Err: err}
	}
	return nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements filewarden.CanCopy for native file copying. The copy
// keeps the source's mode, so a restricted file stays restricted.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath, err := a.resolve("copy", src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolve("copy", dst)
	if err != nil {
		return err
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &filewarden.PathError{Op: "copy", Path: src, Err: filewarden.ErrNotExist}
		}
		return &filewarden.PathError{Op: "copy", Path: src, Err: err}
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return &filewarden.PathError{Op: "copy", Path: src, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0700); err != nil {
		return &filewarden.PathError{Op: "copy", Path: dst, Err: err}
	}

	dstFile, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return &filewarden.PathError{Op: "copy", Path: dst, Err: err}
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return &filewarden.PathError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}

// Move implements filewarden.CanMove. Rename is atomic within one
// filesystem; cross-device moves fall back to copy and delete.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath, err := a.resolve("move", src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolve("move", dst)
	if err != nil {
		return err
	}

	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return &filewarden.PathError{Op: "move", Path: src, Err: filewarden.ErrNotExist}
		}
		return &filewarden.PathError{Op: "move", Path: src, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0700); err != nil {
		return &filewarden.PathError{Op: "move", Path: dst, Err: err}
	}

	if err := os.Rename(srcPath, dstPath); err != nil {
		if err := a.Copy(ctx, src, dst); err != nil {
			return err
		}
		if err := os.Remove(srcPath); err != nil {
			return &filewarden.PathError{Op: "move", Path: src, Err: err}
		}
	}
	return nil
}

// Checksum implements filewarden.CanChecksum, streaming the file through
// the hash without loading it.
func (a *Adapter) Checksum(ctx context.Context, path string, algorithm filewarden.ChecksumAlgorithm) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath, err := a.resolve("checksum", path)
	if err != nil {
		return "", err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &filewarden.PathError{Op: "checksum", Path: path, Err: filewarden.ErrNotExist}
		}
		return "", &filewarden.PathError{Op: "checksum", Path: path, Err: err}
	}
	defer file.Close()

	checksum, err := filewarden.CalculateChecksum(file, algorithm)
	if err != nil {
		return "", &filewarden.PathError{Op: "checksum", Path: path, Err: err}
	}
	return checksum, nil
}

// Checksums implements filewarden.CanChecksum for multi-hash calculation
// in a single pass over the file.
func (a *Adapter) Checksums(ctx context.Context, path string, algorithms []filewarden.ChecksumAlgorithm) (map[filewarden.ChecksumAlgorithm]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.resolve("checksums", path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &filewarden.PathError{Op: "checksums", Path: path, Err: filewarden.ErrNotExist}
		}
		return nil, &filewarden.PathError{Op: "checksums", Path: path, Err: err}
	}
	defer file.Close()

	checksums, err := filewarden.CalculateChecksums(file, algorithms)
	if err != nil {
		return nil, &filewarden.PathError{Op: "checksums", Path: path, Err: err}
	}
	return checksums, nil
}

// isPathUnderRoot checks if a path is under a given root directory.
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// getContentType tries to determine the content type of a file.
func getContentType(path string) string {
	ext := filepath.Ext(path)
	if ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return http.DetectContentType(buffer[:n])
}

// processOptions processes the provided options.
func processOptions(options ...filewarden.Option) *filewarden.Options {
	opts := &filewarden.Options{}
	for _, option := range options {
		option(opts)
	}
	return opts
}
