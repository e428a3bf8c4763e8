package filewarden

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IntegrityMonitor watches the quarantine tree and re-verifies the
// checksums of all quarantined files whenever something under the tree
// changes. Backends that implement CanWatch drive verification through
// change tokens; others fall back to a fixed interval.
//
// A mismatch between a quarantine copy and its record's stored checksum
// means the copy was altered after isolation. The monitor reports it as
// a security event and counts it; it never repairs or deletes, that is
// an operator decision.
type IntegrityMonitor struct {
	fs       FileSystem
	vault    FileSystem
	repo     Repository
	locator  *StorageLocator
	logger   *slog.Logger
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// MonitorOption adjusts an IntegrityMonitor at construction.
type MonitorOption func(*IntegrityMonitor)

// WithMonitorInterval sets the fallback polling interval used when the
// backend cannot watch. Default one minute.
func WithMonitorInterval(d time.Duration) MonitorOption {
	return func(m *IntegrityMonitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMonitorLogger substitutes the logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *IntegrityMonitor) {
		if logger != nil {
			m.logger = logger.With(slog.String("component", "integrity"))
		}
	}
}

// NewIntegrityMonitor builds a monitor over the quarantine tree. The
// vault filesystem is used to read copies back (decrypting if the vault
// encrypts); fs provides the watch capability.
func NewIntegrityMonitor(fs, vault FileSystem, repo Repository, locator *StorageLocator, opts ...MonitorOption) *IntegrityMonitor {
	m := &IntegrityMonitor{
		fs:       fs,
		vault:    vault,
		repo:     repo,
		locator:  locator,
		logger:   slog.Default().With(slog.String("component", "integrity")),
		interval: time.Minute,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins monitoring in a background goroutine and returns
// immediately. Stop it with Stop; Start may be called once.
func (m *IntegrityMonitor) Start(ctx context.Context) {
	watcher, ok := m.fs.(CanWatch)
	go func() {
		defer close(m.done)
		if ok {
			m.watchLoop(ctx, watcher)
		} else {
			m.pollLoop(ctx)
		}
	}()
}

// Stop ends monitoring and waits for the background goroutine to exit.
func (m *IntegrityMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *IntegrityMonitor) watchLoop(ctx context.Context, watcher CanWatch) {
	pattern := m.locator.QuarantineTree() + "/**"
	stop := OnChange(func() (ChangeToken, error) {
		return watcher.Watch(ctx, pattern)
	}, func() {
		m.VerifyAll(ctx)
	})
	defer stop()

	select {
	case <-ctx.Done():
	case <-m.stop:
	}
}

func (m *IntegrityMonitor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.VerifyAll(ctx)
		}
	}
}

// VerifyAll re-checks every quarantined record's copy against the
// checksum captured at ingest and returns the number of tampered copies
// found. A missing copy counts as tampered: the bytes evidence is gone.
func (m *IntegrityMonitor) VerifyAll(ctx context.Context) int {
	records, err := m.repo.FindByMetadata(ctx, MetaQuarantined, "true")
	if err != nil {
		m.logger.Error("integrity listing failed", slog.String("error", err.Error()))
		return 0
	}

	tampered := 0
	for _, rec := range records {
		qpath := rec.QuarantinePath()
		if qpath == "" || rec.Checksum == "" {
			continue
		}
		data, err := m.vault.ReadAll(ctx, qpath)
		if err != nil {
			m.reportTamper(rec, "quarantine copy unreadable", err)
			tampered++
			continue
		}
		sum, _ := ChecksumBytes(data, ChecksumSHA256)
		if sum != rec.Checksum {
			m.reportTamper(rec, "quarantine copy checksum mismatch", nil)
			tampered++
		}
	}
	return tampered
}

func (m *IntegrityMonitor) reportTamper(rec *StoredFileRecord, reason string, err error) {
	tamperTotal.Inc()
	attrs := []any{
		slog.String("file_id", rec.ID),
		slog.String("path", rec.QuarantinePath()),
		slog.String("reason", reason),
		slog.Bool("security_event", true),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	m.logger.Error("quarantine tamper detected", attrs...)
}
