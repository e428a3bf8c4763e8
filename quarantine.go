package filewarden

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/gobeaver/filewarden/filescanner"
)

// QuarantineManager performs the isolate and release transitions between
// the two stable file states, active and quarantined. There is no
// externally observable intermediate state: each transition is an ordered
// step list with a compensating action per step, so a failure (or
// cancellation) at any point either rolls forward to the new state or
// rolls back to the old one, never leaving zero readable copies.
//
// Isolate: copy to quarantine, verify the copy by read-back checksum,
// rename the original to a .unavailable sibling, verify the rename, then
// update the record last. Release re-classifies the quarantined bytes
// first; a still-malicious file only releases under the force flag, and
// forced releases retain the quarantine copy for audit.
//
// Transitions on the same file id are serialized by a per-id mutex;
// cross-file operations need no locking.
type QuarantineManager struct {
	fs         FileSystem
	vault      FileSystem // quarantine-tree access, possibly encrypted
	repo       Repository
	classifier *filescanner.Classifier
	locator    *StorageLocator
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// sealedSuffix marks the original path of an isolated file. The sibling
// keeps the original location reserved while making the content
// unreachable under its normal name.
const sealedSuffix = ".unavailable"

// QuarantineOption adjusts a QuarantineManager at construction.
type QuarantineOption func(*QuarantineManager)

// WithQuarantineVault substitutes the filesystem used for quarantine-tree
// reads and writes, typically an *EncryptedFS over the same backend.
func WithQuarantineVault(vault FileSystem) QuarantineOption {
	return func(m *QuarantineManager) {
		if vault != nil {
			m.vault = vault
		}
	}
}

// WithQuarantineLogger substitutes the logger.
func WithQuarantineLogger(logger *slog.Logger) QuarantineOption {
	return func(m *QuarantineManager) {
		if logger != nil {
			m.logger = logger.With(slog.String("component", "quarantine"))
		}
	}
}

// WithQuarantineClock substitutes the clock, for tests.
func WithQuarantineClock(now func() time.Time) QuarantineOption {
	return func(m *QuarantineManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewQuarantineManager builds a manager over the given collaborators.
// A nil classifier falls back to the package default.
func NewQuarantineManager(fs FileSystem, repo Repository, classifier *filescanner.Classifier, locator *StorageLocator, opts ...QuarantineOption) *QuarantineManager {
	if classifier == nil {
		classifier = filescanner.NewClassifier()
	}
	m := &QuarantineManager{
		fs:         fs,
		vault:      fs,
		repo:       repo,
		classifier: classifier,
		locator:    locator,
		logger:     slog.Default().With(slog.String("component", "quarantine")),
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockFor returns the mutex serializing transitions for one file id.
// Entries are never removed; the map grows with the set of files ever
// quarantined by this instance, which is bounded and small.
func (m *QuarantineManager) lockFor(fileID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[fileID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[fileID] = l
	}
	return l
}

// transitionStep is one named step of a quarantine transition with its
// compensating action. Compensations of completed steps run in reverse
// order when a later step fails.
type transitionStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context)
}

// runSteps executes steps in order. On failure it compensates completed
// steps in reverse and returns a *QuarantineError naming the failed step.
func (m *QuarantineManager) runSteps(ctx context.Context, op, fileID string, steps []transitionStep) error {
	for i, step := range steps {
		if err := ctx.Err(); err == nil {
			err = step.run(ctx)
			if err == nil {
				continue
			}
			m.compensate(ctx, steps[:i])
			quarantineTransitions.WithLabelValues(op, "failure").Inc()
			m.logger.Error("quarantine transition failed",
				slog.String("op", op),
				slog.String("file_id", fileID),
				slog.String("step", step.name),
				slog.String("error", err.Error()))
			return &QuarantineError{Op: op, FileID: fileID, Step: step.name, Err: err}
		} else {
			m.compensate(ctx, steps[:i])
			quarantineTransitions.WithLabelValues(op, "cancelled").Inc()
			return &QuarantineError{Op: op, FileID: fileID, Step: step.name, Err: err}
		}
	}
	return nil
}

// compensate runs rollbacks with a fresh context: the transition context
// may already be cancelled, and rollback must still be attempted.
func (m *QuarantineManager) compensate(_ context.Context, completed []transitionStep) {
	ctx := context.Background()
	for i := len(completed) - 1; i >= 0; i-- {
		if completed[i].compensate != nil {
			completed[i].compensate(ctx)
		}
	}
}

// Isolate transitions a stored file from active to quarantined. Calling
// it on an already-quarantined file is an idempotent success: the second
// of two concurrent isolations observes the state and returns nil.
func (m *QuarantineManager) Isolate(ctx context.Context, fileID string) error {
	lock := m.lockFor(fileID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.repo.GetFile(ctx, fileID)
	if err != nil {
		return &QuarantineError{Op: "isolate", FileID: fileID, Step: "load", Err: err}
	}
	if rec.Quarantined() {
		quarantineTransitions.WithLabelValues("isolate", "noop").Inc()
		return nil
	}

	originalPath := rec.Path
	sealedPath := originalPath + sealedSuffix
	qloc, err := m.locator.QuarantineLocate(rec.ID, path.Base(originalPath))
	if err != nil {
		return &QuarantineError{Op: "isolate", FileID: fileID, Step: "locate", Err: err}
	}

	var data []byte
	steps := []transitionStep{
		{
			name: "copy",
			run: func(ctx context.Context) error {
				data, err = m.fs.ReadAll(ctx, originalPath)
				if err != nil {
					return err
				}
				if err := m.vault.CreateDir(ctx, qloc.Dir); err != nil {
					return err
				}
				return m.vault.Write(ctx, qloc.FullPath, bytes.NewReader(data), WithRestricted(true))
			},
			compensate: func(ctx context.Context) {
				_ = m.vault.Delete(ctx, qloc.FullPath)
			},
		},
		{
			// Read-back verification. Reading through the vault compares
			// plaintext with plaintext even when the vault encrypts.
			name: "verify-copy",
			run: func(ctx context.Context) error {
				copied, err := m.vault.ReadAll(ctx, qloc.FullPath)
				if err != nil {
					return err
				}
				if len(copied) != len(data) {
					return fmt.Errorf("quarantine copy is %d bytes, want %d", len(copied), len(data))
				}
				want, _ := ChecksumBytes(data, ChecksumSHA256)
				got, _ := ChecksumBytes(copied, ChecksumSHA256)
				if got != want {
					return fmt.Errorf("quarantine copy checksum mismatch")
				}
				return nil
			},
		},
		{
			name: "seal-original",
			run: func(ctx context.Context) error {
				return m.move(ctx, originalPath, sealedPath)
			},
			compensate: func(ctx context.Context) {
				_ = m.move(ctx, sealedPath, originalPath)
			},
		},
		{
			name: "verify-seal",
			run: func(ctx context.Context) error {
				stillThere, err := m.fs.FileExists(ctx, originalPath)
				if err != nil {
					return err
				}
				sealed, err := m.fs.FileExists(ctx, sealedPath)
				if err != nil {
					return err
				}
				if stillThere || !sealed {
					return fmt.Errorf("seal rename not observed")
				}
				return nil
			},
		},
		{
			// Record update is last so a crash before this point leaves
			// the record consistent with an intact original.
			name: "update-record",
			run: func(ctx context.Context) error {
				rec.Path = qloc.FullPath
				rec.SetMeta(MetaQuarantined, "true")
				rec.SetMeta(MetaQuarantinePath, qloc.FullPath)
				rec.SetMeta(MetaOriginalPath, originalPath)
				rec.SetMeta(MetaQuarantinedAt, m.now().UTC().Format(time.RFC3339))
				return m.repo.UpdateFile(ctx, rec)
			},
		},
	}

	if err := m.runSteps(ctx, "isolate", fileID, steps); err != nil {
		return err
	}

	quarantineTransitions.WithLabelValues("isolate", "success").Inc()
	quarantinedFiles.Inc()
	m.logger.Warn("file quarantined",
		slog.String("file_id", fileID),
		slog.String("from", originalPath),
		slog.String("to", qloc.FullPath),
		slog.Bool("security_event", true))
	return nil
}

// Release transitions a quarantined file back to active. The quarantined
// bytes are re-classified with the current rule set first; a verdict that
// is still malicious fails the release unless force is set. Forced
// releases keep the quarantine copy for audit and mark the record
// accordingly.
func (m *QuarantineManager) Release(ctx context.Context, fileID string, force bool) error {
	lock := m.lockFor(fileID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.repo.GetFile(ctx, fileID)
	if err != nil {
		return &QuarantineError{Op: "release", FileID: fileID, Step: "load", Err: err}
	}
	if !rec.Quarantined() {
		return &QuarantineError{Op: "release", FileID: fileID, Step: "load", Err: ErrNotQuarantined}
	}

	qpath := rec.QuarantinePath()
	originalPath := rec.OriginalPath()
	if qpath == "" || originalPath == "" {
		return &QuarantineError{Op: "release", FileID: fileID, Step: "load",
			Err: fmt.Errorf("record missing quarantine metadata")}
	}
	sealedPath := originalPath + sealedSuffix

	data, err := m.vault.ReadAll(ctx, qpath)
	if err != nil {
		return &QuarantineError{Op: "release", FileID: fileID, Step: "read", Err: err}
	}

	verdict := m.classifier.Classify(data, path.Base(originalPath), rec.ContentType)
	if verdict.Malicious && !force {
		quarantineTransitions.WithLabelValues("release", "refused").Inc()
		m.logger.Warn("release refused, content still malicious",
			slog.String("file_id", fileID),
			slog.String("risk", verdict.Risk.String()),
			slog.Bool("security_event", true))
		return &QuarantineError{Op: "release", FileID: fileID, Step: "verdict", Err: ErrStillMalicious}
	}

	steps := []transitionStep{
		{
			name: "restore",
			run: func(ctx context.Context) error {
				return m.fs.Write(ctx, originalPath, bytes.NewReader(data), WithOverwrite(true))
			},
			compensate: func(ctx context.Context) {
				_ = m.fs.Delete(ctx, originalPath)
			},
		},
		{
			name: "unseal",
			run: func(ctx context.Context) error {
				exists, err := m.fs.FileExists(ctx, sealedPath)
				if err != nil {
					return err
				}
				if !exists {
					return nil
				}
				return m.fs.Delete(ctx, sealedPath)
			},
			compensate: func(ctx context.Context) {
				_ = m.fs.Write(ctx, sealedPath, bytes.NewReader(data))
			},
		},
		{
			name: "update-record",
			run: func(ctx context.Context) error {
				rec.Path = originalPath
				rec.SetMeta(MetaQuarantined, "false")
				rec.SetMeta(MetaPrevQuarantined, "true")
				rec.SetMeta(MetaReleasedAt, m.now().UTC().Format(time.RFC3339))
				rec.SetMeta(MetaReleaseForced, fmt.Sprintf("%t", force))
				if !force {
					delete(rec.Metadata, MetaQuarantinePath)
				}
				rec.SetScanResult(verdict, m.now())
				return m.repo.UpdateFile(ctx, rec)
			},
		},
	}

	if err := m.runSteps(ctx, "release", fileID, steps); err != nil {
		return err
	}

	// Purge is best effort: the record already reflects the release, and
	// a leftover copy is only wasted space the sweep will reclaim.
	if !force {
		if err := m.vault.Delete(ctx, qpath); err != nil && !IsNotExist(err) {
			m.logger.Warn("quarantine copy purge failed",
				slog.String("file_id", fileID),
				slog.String("path", qpath),
				slog.String("error", err.Error()))
		}
	}

	quarantineTransitions.WithLabelValues("release", "success").Inc()
	quarantinedFiles.Dec()
	m.logger.Info("file released from quarantine",
		slog.String("file_id", fileID),
		slog.String("path", originalPath),
		slog.Bool("forced", force))
	return nil
}

// move renames through the backend's native Move when offered (atomic on
// local disks), falling back to copy and delete.
func (m *QuarantineManager) move(ctx context.Context, src, dst string) error {
	if mover, ok := m.fs.(CanMove); ok {
		return mover.Move(ctx, src, dst)
	}
	data, err := m.fs.ReadAll(ctx, src)
	if err != nil {
		return err
	}
	if err := m.fs.Write(ctx, dst, bytes.NewReader(data), WithOverwrite(true)); err != nil {
		return err
	}
	return m.fs.Delete(ctx, src)
}
