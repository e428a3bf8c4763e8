package filewarden

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Location is the path triplet for one stored file. All paths are
// relative to the storage root, in slash form, ready for FileSystem calls.
type Location struct {
	Dir      string
	Filename string
	FullPath string
}

// StorageLocator derives collision-resistant, traversal-safe storage
// paths. Layout: <files>/<UTC-date>/<truncated-sha256(userID)>/<stem>_
// <random-id><ext>. The per-user hash prevents enumerable user
// directories while the daily partition keeps retention jobs cheap.
//
// Every composed path is asserted to stay a strict descendant of its
// subtree, lexically always and canonically (symlinks resolved) when the
// locator knows its on-disk root. An escape is a *TraversalError, never a
// silent correction.
type StorageLocator struct {
	root          string // absolute on-disk root, empty for virtual backends
	filesDir      string
	quarantineDir string
	now           func() time.Time
	newID         func() string
}

// LocatorOption adjusts a StorageLocator at construction.
type LocatorOption func(*StorageLocator)

// WithSubtrees overrides the files and quarantine subtree names.
func WithSubtrees(files, quarantine string) LocatorOption {
	return func(l *StorageLocator) {
		if files != "" {
			l.filesDir = files
		}
		if quarantine != "" {
			l.quarantineDir = quarantine
		}
	}
}

// WithLocatorClock substitutes the clock used for date partitioning.
func WithLocatorClock(now func() time.Time) LocatorOption {
	return func(l *StorageLocator) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLocatorIDSource substitutes the random id generator.
func WithLocatorIDSource(newID func() string) LocatorOption {
	return func(l *StorageLocator) {
		if newID != nil {
			l.newID = newID
		}
	}
}

// NewStorageLocator builds a locator. root is the on-disk storage root
// for canonical containment checks; pass an empty root for backends with
// no on-disk tree (the lexical checks still apply).
func NewStorageLocator(root string, opts ...LocatorOption) (*StorageLocator, error) {
	l := &StorageLocator{
		filesDir:      "files",
		quarantineDir: "quarantine",
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve storage root: %w", err)
		}
		l.root = abs
	}
	return l, nil
}

// QuarantineTree returns the quarantine subtree name.
func (l *StorageLocator) QuarantineTree() string {
	return l.quarantineDir
}

// FilesTree returns the public files subtree name.
func (l *StorageLocator) FilesTree() string {
	return l.filesDir
}

// Locate derives the storage location for a new upload. sanitizedName
// must already be sanitizer output; Locate re-checks it anyway because a
// traversal attempt reaching this layer is a security event, not a
// normalization problem.
func (l *StorageLocator) Locate(sanitizedName, userID string) (*Location, error) {
	if sanitizedName == "" {
		return nil, fmt.Errorf("%w: empty filename", ErrInvalidName)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidName)
	}
	if err := l.checkName(sanitizedName); err != nil {
		return nil, err
	}

	ext := path.Ext(sanitizedName)
	stem := strings.TrimSuffix(sanitizedName, ext)
	filename := fmt.Sprintf("%s_%s%s", stem, l.newID(), ext)

	dir := path.Join(l.filesDir, l.datePart(), userHash(userID))
	return l.compose(l.filesDir, dir, filename)
}

// QuarantineLocate derives the quarantine placement for a file being
// isolated, keyed by file id so concurrent isolations of different files
// never collide.
func (l *StorageLocator) QuarantineLocate(fileID, sanitizedName string) (*Location, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: empty file id", ErrInvalidName)
	}
	if err := l.checkName(fileID); err != nil {
		return nil, err
	}
	if sanitizedName != "" {
		if err := l.checkName(sanitizedName); err != nil {
			return nil, err
		}
	}

	filename := fileID
	if sanitizedName != "" {
		filename = fileID + "_" + sanitizedName
	}
	dir := path.Join(l.quarantineDir, l.datePart())
	return l.compose(l.quarantineDir, dir, filename)
}

// EnsureDir creates a location's directory if absent. Creation is
// idempotent; drivers apply restrictive permissions.
func (l *StorageLocator) EnsureDir(ctx context.Context, fs FileWriter, loc *Location) error {
	return fs.CreateDir(ctx, loc.Dir)
}

// compose joins and verifies a location under its subtree.
func (l *StorageLocator) compose(tree, dir, filename string) (*Location, error) {
	full := path.Join(dir, filename)
	if err := l.assertContained(tree, full); err != nil {
		return nil, err
	}
	return &Location{Dir: dir, Filename: filename, FullPath: full}, nil
}

// checkName rejects path separators and traversal sequences, including
// percent-encoded forms, in a single path component.
func (l *StorageLocator) checkName(name string) error {
	lower := strings.ToLower(name)
	if strings.ContainsAny(name, `/\`) ||
		strings.Contains(name, "..") ||
		strings.Contains(lower, "%2f") ||
		strings.Contains(lower, "%5c") ||
		strings.Contains(lower, "%2e%2e") {
		traversalAttempts.Inc()
		return &TraversalError{Path: name, Base: l.filesDir}
	}
	return nil
}

// assertContained verifies that full stays a strict descendant of tree,
// first lexically, then canonically against the on-disk root when one is
// configured.
func (l *StorageLocator) assertContained(tree, full string) error {
	clean := path.Clean(full)
	if path.IsAbs(clean) || !strings.HasPrefix(clean, tree+"/") {
		traversalAttempts.Inc()
		return &TraversalError{Path: full, Base: tree}
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			traversalAttempts.Inc()
			return &TraversalError{Path: full, Base: tree}
		}
	}

	if l.root == "" {
		return nil
	}

	composed := filepath.Join(l.root, filepath.FromSlash(clean))
	resolvedBase, err := canonicalize(l.root)
	if err != nil {
		return fmt.Errorf("canonicalize base: %w", err)
	}
	resolved, err := canonicalize(composed)
	if err != nil {
		return fmt.Errorf("canonicalize path: %w", err)
	}
	rel, err := filepath.Rel(resolvedBase, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		traversalAttempts.Inc()
		return &TraversalError{Path: full, Base: l.root}
	}
	return nil
}

// canonicalize resolves a path to absolute form with symlinks evaluated.
// For paths that do not exist yet, the deepest existing ancestor is
// resolved and the remainder reattached, so a symlinked parent cannot
// smuggle the path outside the base.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	existing := abs
	var tail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		resolved = existing
	}
	return filepath.Join(append([]string{resolved}, tail...)...), nil
}

// userHash truncates sha256(userID) to 8 bytes of hex. Long enough to
// avoid accidental collisions across users, short enough to keep paths
// readable, and not reversible to the user id.
func userHash(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:8])
}

func (l *StorageLocator) datePart() string {
	return l.now().UTC().Format("2006-01-02")
}
