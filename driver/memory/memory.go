// Package memory implements an in-memory storage backend, used by tests
// and as a staging area for content that must never touch disk
// unscanned.
package memory

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/gobeaver/filewarden"
)

// memoryFile represents a file stored in memory.
type memoryFile struct {
	content     []byte
	contentType string
	metadata    map[string]string
	modTime     time.Time
	restricted  bool
}

// memoryDir represents a directory in memory.
type memoryDir struct {
	modTime time.Time
}

// watchEntry represents a single watch subscription.
type watchEntry struct {
	pattern glob.Glob
	token   *filewarden.CallbackChangeToken
}

// Adapter provides an in-memory implementation of filewarden.FileSystem.
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]*memoryDir
	maxSize int64 // maximum total storage size (0 = unlimited)
	size    int64 // current total size

	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter.
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory filesystem adapter.
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	a := &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    make(map[string]*memoryDir),
		maxSize: maxSize,
	}
	a.dirs[""] = &memoryDir{modTime: time.Now()}
	a.dirs["/"] = &memoryDir{modTime: time.Now()}
	return a
}

// Write implements filewarden.FileWriter.
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...filewarden.Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path = normalizePath(path)
	if !isValidPath(path) {
		return &filewarden.PathError{Op: "write", Path: path, Err: filewarden.ErrNotAllowed}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return &filewarden.PathError{Op: "write", Path: path, Err: err}
	}

	opts := processOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	var reclaimed int64
	if existing, exists := a.files[path]; exists {
		if !opts.Overwrite {
			return &filewarden.PathError{Op: "write", Path: path, Err: filewarden.ErrExist}
		}
		reclaimed = int64(len(existing.content))
	}

	newSize := a.size - reclaimed + int64(len(data))
	if a.maxSize > 0 && newSize > a.maxSize {
		return &filewarden.PathError{Op: "write", Path: path, Err: filewarden.ErrNoSpace}
	}

	a.ensureParentDirs(path)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = detectContentType(path, data)
	}

	a.files[path] = &memoryFile{
		content:     data,
		contentType: contentType,
		metadata:    opts.Metadata,
		modTime:     time.Now(),
		restricted:  opts.Restricted,
	}
	a.size = newSize

	go a.notifyWatchers(path)
	return nil
}

// Read implements filewarden.FileReader.
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[path]
	if !exists {
		return nil, &filewarden.PathError{Op: "read", Path: path, Err: filewarden.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(file.content)), nil
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

	path = normalizePath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	file, exists := a.files[path]
	if !exists {
		return &filewarden.PathError{Op: "delete", Path: path, Err: filewarden.ErrNotExist}
	}

	a.size -= int64(len(file.content))
	delete(a.files, path)

	go a.notifyWatchers(path)
	return nil
}

// FileExists implements filewarden.FileReader.
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()
	_, exists := a.files[path]
	return exists, nil
}

// DirExists implements filewarden.FileReader.
func (a *Adapter) DirExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()
	_, exists := a.dirs[path]
	return exists, nil
}

// Stat implements filewarden.FileReader.
func (a *Adapter) Stat(ctx context.Context, path string) (*filewarden.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if file, exists := a.files[path]; exists {
		return &filewarden.FileInfo{
			Name:        filepath.Base(path),
			Path:        path,
			Size:        int64(len(file.content)),
			ModTime:     file.modTime,
			IsDir:       false,
			ContentType: file.contentType,
			Metadata:    file.metadata,
		}, nil
	}
	if dir, exists := a.dirs[path]; exists {
		return &filewarden.FileInfo{
			Name:    filepath.Base(path),
			Path:    path,
			ModTime: dir.modTime,
			IsDir:   true,
		}, nil
	}
	return nil, &filewarden.PathError{Op: "stat", Path: path, Err: filewarden.ErrNotExist}
}

// ListContents implements filewarden.FileReader.
func (a *Adapter) ListContents(ctx context.Context, path string, recursive bool) ([]filewarden.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, exists := a.dirs[path]; !exists {
		if _, isFile := a.files[path]; isFile {
			return nil, &filewarden.PathError{Op: "listcontents", Path: path, Err: filewarden.ErrNotDir}
		}
		return nil, &filewarden.PathError{Op: "listcontents", Path: path, Err: filewarden.ErrNotExist}
	}

	var files []filewarden.FileInfo
	isRoot := path == "" || path == "/"
	prefixWithSlash := path + "/"

	if recursive {
		for filePath, file := range a.files {
			if isRoot || strings.HasPrefix(filePath, prefixWithSlash) {
				files = append(files, filewarden.FileInfo{
					Name:        filepath.Base(filePath),
					Path:        filePath,
					Size:        int64(len(file.content)),
					ModTime:     file.modTime,
					IsDir:       false,
					ContentType: file.contentType,
					Metadata:    file.metadata,
				})
			}
		}
		for dirPath, dir := range a.dirs {
			if dirPath == path || dirPath == "" || dirPath == "/" {
				continue
			}
			if isRoot || strings.HasPrefix(dirPath, prefixWithSlash) {
				files = append(files, filewarden.FileInfo{
					Name:    filepath.Base(dirPath),
					Path:    dirPath,
					ModTime: dir.modTime,
					IsDir:   true,
				})
			}
		}
	} else {
		seen := make(map[string]bool)
		for filePath, file := range a.files {
			childName, direct, ok := immediateChild(filePath, path, isRoot)
			if !ok || seen[childName] || !direct {
				continue
			}
			seen[childName] = true
			files = append(files, filewarden.FileInfo{
				Name:        childName,
				Path:        filepath.ToSlash(filepath.Join(path, childName)),
				Size:        int64(len(file.content)),
				ModTime:     file.modTime,
				IsDir:       false,
				ContentType: file.contentType,
				Metadata:    file.metadata,
			})
		}
		for dirPath, dir := range a.dirs {
			if dirPath == path || dirPath == "" || dirPath == "/" {
				continue
			}
			childName, direct, ok := immediateChild(dirPath, path, isRoot)
			if !ok || seen[childName] || !direct {
				continue
			}
			seen[childName] = true
			files = append(files, filewarden.FileInfo{
				Name:    childName,
				Path:    filepath.ToSlash(filepath.Join(path, childName)),
				ModTime: dir.modTime,
				IsDir:   true,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// immediateChild reports whether candidate sits under parent, and if so
// its first path element and whether it is a direct child.
func immediateChild(candidate, parent string, isRoot bool) (name string, direct, ok bool) {
	rel := candidate
	if !isRoot {
		if !strings.HasPrefix(candidate, parent+"/") {
			return "", false, false
		}
		rel = strings.TrimPrefix(candidate, parent+"/")
	}
	if rel == "" {
		return "", false, false
	}
	parts := strings.SplitN(rel, "/", 2)
	return parts[0], len(parts) == 1, true
}

// CreateDir implements filewarden.FileWriter.
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path = normalizePath(path)
	if !isValidPath(path) {
		return &filewarden.PathError{Op: "createdir", Path: path, Err: filewarden.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.files[path]; exists {
		return &filewarden.PathError{Op: "createdir", Path: path, Err: filewarden.ErrExist}
	}

	a.ensureParentDirs(path)
	a.dirs[path] = &memoryDir{modTime: time.Now()}
	return nil
}

// DeleteDir implements filewarden.FileWriter.
func (a *Adapter) DeleteDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path = normalizePath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.dirs[path]; !exists {
		if _, isFile := a.files[path]; isFile {
			return &filewarden.PathError{Op: "deletedir", Path: path, Err: filewarden.ErrNotDir}
		}
		return &filewarden.PathError{Op: "deletedir", Path: path, Err: filewarden.ErrNotExist}
	}

	prefixWithSlash := path
	if !strings.HasSuffix(path, "/") {
		prefixWithSlash = path + "/"
	}

	var deletedPaths []string
	for filePath, file := range a.files {
		if strings.HasPrefix(filePath, prefixWithSlash) {
			a.size -= int64(len(file.content))
			deletedPaths = append(deletedPaths, filePath)
			delete(a.files, filePath)
		}
	}
	for dirPath := range a.dirs {
		if strings.HasPrefix(dirPath, prefixWithSlash) || dirPath == path {
			delete(a.dirs, dirPath)
		}
	}

	if len(deletedPaths) > 0 {
		go func() {
			for _, p := range deletedPaths {
				a.notifyWatchers(p)
			}
		}()
	}
	return nil
}

// Clear removes all files and directories. Useful for testing cleanup.
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.dirs = make(map[string]*memoryDir)
	a.size = 0
	a.dirs[""] = &memoryDir{modTime: time.Now()}
	a.dirs["/"] = &memoryDir{modTime: time.Now()}
}

// Size returns the current total size of all stored files.
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored.
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// Restricted reports whether the file at path was written with the
// restricted option. Test hook for quarantine permission checks.
func (a *Adapter) Restricted(path string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f, ok := a.files[normalizePath(path)]
	return ok && f.restricted
}

// ensureParentDirs creates all parent directories for a given path.
// Must be called with lock held.
func (a *Adapter) ensureParentDirs(path string) {
	dir := filepath.Dir(path)
	for dir != "" && dir != "." && dir != "/" {
		if _, exists := a.dirs[dir]; !exists {
			a.dirs[dir] = &memoryDir{modTime: time.Now()}
		}
		dir = filepath.Dir(dir)
	}
}

// normalizePath normalizes a file path.
func normalizePath(path string) string {
	path = strings.TrimPrefix(path, "/")
	if path == "" || path == "." {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// isValidPath checks if a path is valid (no directory traversal).
func isValidPath(path string) bool {
	return !strings.Contains(path, "..")
}

// detectContentType determines the content type of a file.
func detectContentType(path string, data []byte) string {
	ext := filepath.Ext(path)
	if ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "application/octet-stream"
}

// processOptions processes the provided options.
func processOptions(options ...filewarden.Option) *filewarden.Options {
	opts := &filewarden.Options{}
	for _, option := range options {
		option(opts)
	}
	return opts
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements filewarden.CanCopy. The copy keeps the source's
// restricted flag.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src = normalizePath(src)
	dst = normalizePath(dst)
	if !isValidPath(src) || !isValidPath(dst) {
		return &filewarden.PathError{Op: "copy", Path: src, Err: filewarden.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	srcFile, exists := a.files[src]
	if !exists {
		return &filewarden.PathError{Op: "copy", Path: src, Err: filewarden.ErrNotExist}
	}
	if a.maxSize > 0 && a.size+int64(len(srcFile.content)) > a.maxSize {
		return &filewarden.PathError{Op: "copy", Path: dst, Err: filewarden.ErrNoSpace}
	}

	a.ensureParentDirs(dst)

	content := make([]byte, len(srcFile.content))
	copy(content, srcFile.content)
	metadata := make(map[string]string, len(srcFile.metadata))
	for k, v := range srcFile.metadata {
		metadata[k] = v
	}

	a.files[dst] = &memoryFile{
		content:     content,
		contentType: srcFile.contentType,
		metadata:    metadata,
		modTime:     time.Now(),
		restricted:  srcFile.restricted,
	}
	a.size += int64(len(content))

	go a.notifyWatchers(dst)
	return nil
}

// Move implements filewarden.CanMove.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src = normalizePath(src)
	dst = normalizePath(dst)
	if !isValidPath(src) || !isValidPath(dst) {
		return &filewarden.PathError{Op: "move", Path: src, Err: filewarden.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	srcFile, exists := a.files[src]
	if !exists {
		return &filewarden.PathError{Op: "move", Path: src, Err: filewarden.ErrNotExist}
	}

	a.ensureParentDirs(dst)
	a.files[dst] = srcFile
	srcFile.modTime = time.Now()
	delete(a.files, src)

	go func() {
		a.notifyWatchers(src)
		a.notifyWatchers(dst)
	}()
	return nil
}

// Checksum implements filewarden.CanChecksum.
func (a *Adapter) Checksum(ctx context.Context, path string, algorithm filewarden.ChecksumAlgorithm) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[path]
	if !exists {
		return "", &filewarden.PathError{Op: "checksum", Path: path, Err: filewarden.ErrNotExist}
	}

	checksum, err := filewarden.CalculateChecksum(bytes.NewReader(file.content), algorithm)
	if err != nil {
		return "", &filewarden.PathError{Op: "checksum", Path: path, Err: err}
	}
	return checksum, nil
}

// Checksums implements filewarden.CanChecksum for multi-hash calculation.
func (a *Adapter) Checksums(ctx context.Context, path string, algorithms []filewarden.ChecksumAlgorithm) (map[filewarden.ChecksumAlgorithm]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[path]
	if !exists {
		return nil, &filewarden.PathError{Op: "checksums", Path: path, Err: filewarden.ErrNotExist}
	}

	checksums, err := filewarden.CalculateChecksums(bytes.NewReader(file.content), algorithms)
	if err != nil {
		return nil, &filewarden.PathError{Op: "checksums", Path: path, Err: err}
	}
	return checksums, nil
}

// ============================================================================
// Watcher Implementation
// ============================================================================

// Watch implements filewarden.CanWatch for in-memory change detection.
// Supports glob patterns like "quarantine/**", "*.json", "files/*".
func (a *Adapter) Watch(ctx context.Context, filter string) (filewarden.ChangeToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pattern, err := glob.Compile(filter, '/')
	if err != nil {
		return nil, &filewarden.PathError{Op: "watch", Path: filter, Err: err}
	}

	token := filewarden.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{pattern: pattern, token: token})
	a.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		a.removeWatch(token)
	}()

	return token, nil
}

// notifyWatchers signals all watchers whose pattern matches the path.
func (a *Adapter) notifyWatchers(path string) {
	a.watchMu.RLock()
	defer a.watchMu.RUnlock()

	for _, entry := range a.watches {
		if entry.pattern.Match(path) {
			entry.token.SignalChange()
		}
	}
}

// removeWatch removes a watch entry by token.
func (a *Adapter) removeWatch(token *filewarden.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
}

// Ensure Adapter implements interfaces
var (
	_ filewarden.FileSystem  = (*Adapter)(nil)
	_ filewarden.FileReader  = (*Adapter)(nil)
	_ filewarden.FileWriter  = (*Adapter)(nil)
	_ filewarden.CanCopy     = (*Adapter)(nil)
	_ filewarden.CanMove     = (*Adapter)(nil)
	_ filewarden.CanChecksum = (*Adapter)(nil)
	_ filewarden.CanWatch    = (*Adapter)(nil)
)
