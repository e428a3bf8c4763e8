package filewarden

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// testFS is a minimal in-memory FileSystem for package tests, with
// per-operation failure injection. Paths are slash form, no leading
// slash.
type testFS struct {
	mu         sync.Mutex
	files      map[string][]byte
	restricted map[string]bool
	mtimes     map[string]time.Time
	failures   map[string]error // "op path" -> error
}

func newTestFS() *testFS {
	return &testFS{
		files:      make(map[string][]byte),
		restricted: make(map[string]bool),
		mtimes:     make(map[string]time.Time),
		failures:   make(map[string]error),
	}
}

func (f *testFS) seed(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = append([]byte(nil), data...)
	f.mtimes[p] = time.Now()
}

func (f *testFS) failOn(op, p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+" "+p] = err
}

func (f *testFS) setModTime(p string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mtimes[p] = t
}

func (f *testFS) content(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	return data, ok
}

func (f *testFS) isRestricted(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restricted[p]
}

func (f *testFS) injected(op, p string) error {
	if err, ok := f.failures[op+" "+p]; ok {
		return err
	}
	return nil
}

func (f *testFS) Write(ctx context.Context, p string, content io.Reader, options ...Option) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("write", p); err != nil {
		return err
	}

	opts := &Options{}
	for _, o := range options {
		o(opts)
	}
	if _, exists := f.files[p]; exists && !opts.Overwrite {
		return &PathError{Op: "write", Path: p, Err: ErrExist}
	}
	f.files[p] = data
	f.restricted[p] = opts.Restricted
	f.mtimes[p] = time.Now()
	return nil
}

func (f *testFS) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	data, err := f.ReadAll(ctx, p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *testFS) ReadAll(ctx context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("read", p); err != nil {
		return nil, err
	}
	data, ok := f.files[p]
	if !ok {
		return nil, &PathError{Op: "read", Path: p, Err: ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (f *testFS) Delete(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("delete", p); err != nil {
		return err
	}
	if _, ok := f.files[p]; !ok {
		return &PathError{Op: "delete", Path: p, Err: ErrNotExist}
	}
	delete(f.files, p)
	delete(f.restricted, p)
	delete(f.mtimes, p)
	return nil
}

func (f *testFS) FileExists(ctx context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("fileexists", p); err != nil {
		return false, err
	}
	_, ok := f.files[p]
	return ok, nil
}

func (f *testFS) DirExists(ctx context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := p + "/"
	for fp := range f.files {
		if strings.HasPrefix(fp, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (f *testFS) Stat(ctx context.Context, p string) (*FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	if !ok {
		return nil, &PathError{Op: "stat", Path: p, Err: ErrNotExist}
	}
	return &FileInfo{
		Name:    path.Base(p),
		Path:    p,
		Size:    int64(len(data)),
		ModTime: f.mtimes[p],
	}, nil
}

func (f *testFS) ListContents(ctx context.Context, p string, recursive bool) ([]FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := p + "/"
	var out []FileInfo
	for fp, data := range f.files {
		if !strings.HasPrefix(fp, prefix) {
			continue
		}
		out = append(out, FileInfo{
			Name:    path.Base(fp),
			Path:    fp,
			Size:    int64(len(data)),
			ModTime: f.mtimes[fp],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *testFS) CreateDir(ctx context.Context, p string) error {
	return f.injectedLocked("createdir", p)
}

func (f *testFS) DeleteDir(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := p + "/"
	for fp := range f.files {
		if strings.HasPrefix(fp, prefix) {
			delete(f.files, fp)
			delete(f.restricted, fp)
			delete(f.mtimes, fp)
		}
	}
	return nil
}

func (f *testFS) injectedLocked(op, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected(op, p)
}

func (f *testFS) Move(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("move", src); err != nil {
		return err
	}
	data, ok := f.files[src]
	if !ok {
		return &PathError{Op: "move", Path: src, Err: ErrNotExist}
	}
	f.files[dst] = data
	f.restricted[dst] = f.restricted[src]
	f.mtimes[dst] = time.Now()
	delete(f.files, src)
	delete(f.restricted, src)
	delete(f.mtimes, src)
	return nil
}

var (
	_ FileSystem = (*testFS)(nil)
	_ CanMove    = (*testFS)(nil)
)

// testRepo is a minimal in-memory Repository with update failure
// injection.
type testRepo struct {
	mu         sync.Mutex
	records    map[string]*StoredFileRecord
	failUpdate error
	failCreate error
	failFind   error
}

// errTestInjected marks failures injected by the fakes.
var errTestInjected = errors.New("injected failure")

func newTestRepo() *testRepo {
	return &testRepo{records: make(map[string]*StoredFileRecord)}
}

func (r *testRepo) put(rec *StoredFileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec.Clone()
}

func (r *testRepo) get(id string) *StoredFileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		return rec.Clone()
	}
	return nil
}

func (r *testRepo) GetFile(ctx context.Context, id string) (*StoredFileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (r *testRepo) CreateFile(ctx context.Context, rec *StoredFileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

func (r *testRepo) UpdateFile(ctx context.Context, rec *StoredFileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return r.failUpdate
	}
	if _, ok := r.records[rec.ID]; !ok {
		return ErrRecordNotFound
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

func (r *testRepo) FindByMetadata(ctx context.Context, field, value string) ([]*StoredFileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFind != nil {
		return nil, r.failFind
	}
	var out []*StoredFileRecord
	for _, rec := range r.records {
		if rec.Metadata[field] == value {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Repository = (*testRepo)(nil)

// newTestLocator builds a locator with no on-disk root, suitable for the
// in-memory fakes.
func newTestLocator(t *testing.T) *StorageLocator {
	t.Helper()
	loc, err := NewStorageLocator("")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

// newTestService wires a Service over the test fakes with scanning left
// to each test's config.
func newTestService(cfg *Config, fs *testFS, repo *testRepo) *Service {
	if cfg == nil {
		cfg = &Config{
			Driver:             "memory",
			FilesDir:           "files",
			QuarantineDir:      "quarantine",
			MaxFileSize:        10 << 20,
			MaxScanBytes:       1 << 20,
			ScanOnIngest:       true,
			AutoQuarantine:     true,
			ScanConcurrency:    4,
			ScanTimeoutSeconds: 5,
			CacheSize:          64,
			CacheTTLSeconds:    60,
			RetentionDays:      30,
		}
	}
	svc, err := New(cfg, fs, repo)
	if err != nil {
		panic(err)
	}
	return svc
}
