package filewarden

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/beaver-kit/config"

	"github.com/gobeaver/filewarden/filescanner"
)

// Global instance
var (
	defaultService *Service
	defaultOnce    sync.Once
	defaultErr     error
)

// Service is the facade tying the pipeline together: validation at the
// boundary, classification with a verdict cache, collision-free path
// derivation, quarantine transitions, and session-wide batch scans.
// All state lives in the collaborators; Service itself is safe for
// concurrent use.
type Service struct {
	cfg        *Config
	fs         FileSystem
	vault      FileSystem
	repo       Repository
	sanitizer  *filescanner.Sanitizer
	inspector  *filescanner.Inspector
	classifier *filescanner.Classifier
	locator    *StorageLocator
	quarantine *QuarantineManager
	cache      *VerdictCache
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceOption adjusts a Service at construction.
type ServiceOption func(*Service)

// WithLogger substitutes the logger used by the service and its
// quarantine manager.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock substitutes the clock, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInspector substitutes the content inspector.
func WithInspector(in *filescanner.Inspector) ServiceOption {
	return func(s *Service) {
		if in != nil {
			s.inspector = in
		}
	}
}

// WithClassifier substitutes the threat classifier.
func WithClassifier(c *filescanner.Classifier) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithLocator substitutes the storage locator.
func WithLocator(l *StorageLocator) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.locator = l
		}
	}
}

// New builds a Service over an existing filesystem and repository. The
// scanning pipeline is assembled from cfg; pass options to swap parts
// out.
func New(cfg *Config, fs FileSystem, repo Repository, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if fs == nil {
		return nil, errors.New("filesystem is required")
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}

	var extraRules []filescanner.SignatureRule
	if cfg.RulePackPath != "" {
		rules, err := filescanner.LoadRulesFile(cfg.RulePackPath)
		if err != nil {
			return nil, fmt.Errorf("loading rule pack: %w", err)
		}
		extraRules = rules
	}

	var sanOpts []filescanner.SanitizerOption
	if cfg.AllowedExts != "" {
		sanOpts = append(sanOpts, filescanner.WithAllowedExtensions(splitList(cfg.AllowedExts)...))
	}
	sanitizer := filescanner.NewSanitizer(sanOpts...)

	inspOpts := []filescanner.InspectorOption{
		filescanner.WithSanitizer(sanitizer),
		filescanner.WithMaxFileSize(cfg.MaxFileSize),
		filescanner.WithMaxScanBytes(cfg.MaxScanBytes),
	}
	if cfg.AcceptedMime != "" {
		inspOpts = append(inspOpts, filescanner.WithAcceptedTypes(splitList(cfg.AcceptedMime)...))
	}
	if len(extraRules) > 0 {
		inspOpts = append(inspOpts, filescanner.WithExtraRules(extraRules...))
	}

	classOpts := []filescanner.ClassifierOption{
		filescanner.WithClassifierScanBytes(cfg.MaxScanBytes),
	}
	if len(extraRules) > 0 {
		classOpts = append(classOpts, filescanner.WithClassifierRules(extraRules...))
	}

	locator, err := NewStorageLocator(locatorRoot(cfg),
		WithSubtrees(cfg.FilesDir, cfg.QuarantineDir))
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		fs:         fs,
		vault:      fs,
		repo:       repo,
		sanitizer:  sanitizer,
		inspector:  filescanner.NewInspector(inspOpts...),
		classifier: filescanner.NewClassifier(classOpts...),
		locator:    locator,
		cache:      NewVerdictCache(cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second),
		logger:     slog.Default().With(slog.String("component", "filewarden")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.EncryptQuarantine {
		key, err := decodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		vault, err := NewEncryptedFS(fs, key)
		if err != nil {
			return nil, fmt.Errorf("creating quarantine vault: %w", err)
		}
		s.vault = vault
	}

	s.quarantine = NewQuarantineManager(s.fs, s.repo, s.classifier, s.locator,
		WithQuarantineVault(s.vault),
		WithQuarantineLogger(s.logger),
		WithQuarantineClock(s.now))
	return s, nil
}

// NewFromConfig creates the backend through the driver registry and
// builds a Service over it.
func NewFromConfig(cfg *Config, repo Repository, opts ...ServiceOption) (*Service, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	fs, err := CreateDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	return New(cfg, fs, repo, opts...)
}

// validateConfig checks configuration validity.
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Driver == "" {
		return errors.New("driver is required")
	}
	switch cfg.Driver {
	case "local":
		if cfg.BasePath == "" {
			return errors.New("base path is required for local driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
	if cfg.EncryptQuarantine && cfg.EncryptionKey == "" {
		return errors.New("encryption key is required when quarantine encryption is enabled")
	}
	return nil
}

// locatorRoot returns the on-disk root for canonical containment checks,
// or empty for backends with no on-disk tree.
func locatorRoot(cfg *Config) string {
	if cfg.Driver == "local" {
		return cfg.BasePath
	}
	return ""
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (got %d bytes)", len(key))
	}
	return key, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Builder provides a way to create Service instances with a custom
// environment prefix.
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix.
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// New creates a Service using config loaded under the builder's prefix.
func (b *Builder) New(repo Repository, opts ...ServiceOption) (*Service, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, repo, opts...)
}

// Init initializes the global service instance.
func Init(repo Repository, configs ...*Config) error {
	defaultOnce.Do(func() {
		var cfg *Config
		if len(configs) > 0 {
			cfg = configs[0]
		} else {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}
		defaultService, defaultErr = NewFromConfig(cfg, repo)
	})
	return defaultErr
}

// Default returns the global instance. Init must have been called.
func Default() (*Service, error) {
	if defaultService == nil {
		return nil, errors.New("filewarden: not initialized, call Init first")
	}
	return defaultService, nil
}

// Reset clears the global instance (for testing).
func Reset() {
	defaultService = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config { return s.cfg }

// FS returns the underlying filesystem.
func (s *Service) FS() FileSystem { return s.fs }

// Locator returns the storage locator.
func (s *Service) Locator() *StorageLocator { return s.locator }

// Quarantine returns the quarantine manager.
func (s *Service) Quarantine() *QuarantineManager { return s.quarantine }

// Monitor builds an integrity monitor over the quarantine tree. The
// caller owns its lifecycle.
func (s *Service) Monitor(opts ...MonitorOption) *IntegrityMonitor {
	opts = append([]MonitorOption{WithMonitorLogger(s.logger)}, opts...)
	return NewIntegrityMonitor(s.fs, s.vault, s.repo, s.locator, opts...)
}

// Validate runs the full acceptance pipeline over an upload candidate
// without storing anything: filename checks, content inspection, and the
// severity mapping. The verdict carries every rejection reason, not just
// the first.
func (s *Service) Validate(candidate *UploadCandidate) *filescanner.Verdict {
	verdict := s.inspector.Validate(candidate.Bytes, candidate.Filename, candidate.DeclaredType)
	for _, f := range verdict.Findings {
		findingsTotal.WithLabelValues(f.Severity.String()).Inc()
	}
	return verdict
}

// Classify produces a binary malicious-or-not verdict over raw content.
// Verdicts are cached by content hash, so re-scanning identical bytes
// (retried uploads, duplicate files in a session) is free.
func (s *Service) Classify(data []byte, filename, mimeType string) *filescanner.ThreatVerdict {
	return s.classify(data, filename, mimeType)
}

func (s *Service) classify(data []byte, filename, mimeType string) *filescanner.ThreatVerdict {
	key := s.cache.Key(data)
	if verdict, ok := s.cache.Get(key); ok {
		return verdict
	}

	started := time.Now()
	verdict := s.classifier.Classify(data, filename, mimeType)
	scanDuration.Observe(time.Since(started).Seconds())
	scansTotal.WithLabelValues(verdict.Risk.String()).Inc()

	s.cache.Add(key, verdict)
	return verdict
}

// Locate derives the storage location for a sanitized filename without
// writing anything.
func (s *Service) Locate(sanitizedName, userID string) (*Location, error) {
	return s.locator.Locate(sanitizedName, userID)
}

// Ingest is the full acceptance path for one upload: validate, derive a
// collision-free location, write the bytes, checksum them, and persist
// the record. With scanning enabled the stored content is classified and,
// when the verdict is malicious and auto-quarantine is on, isolated
// before Ingest returns.
//
// A rejected candidate returns the verdict and a *ValidationError; the
// verdict is also returned alongside success so callers can surface
// warnings on accepted files.
func (s *Service) Ingest(ctx context.Context, candidate *UploadCandidate) (*StoredFileRecord, *filescanner.Verdict, error) {
	verdict := s.Validate(candidate)
	if !verdict.Valid {
		s.logger.Warn("upload rejected",
			slog.String("filename", candidate.Filename),
			slog.Int("reasons", len(verdict.Errors)))
		return nil, verdict, verdict.Err()
	}

	loc, err := s.locator.Locate(verdict.SanitizedName, candidate.OwnerID)
	if err != nil {
		return nil, verdict, err
	}
	if err := s.fs.CreateDir(ctx, loc.Dir); err != nil {
		return nil, verdict, err
	}

	contentType := verdict.DetectedType
	if contentType == "" {
		contentType = verdict.DeclaredType
	}
	writeOpts := []Option{WithOverwrite(false)}
	if contentType != "" {
		writeOpts = append(writeOpts, WithContentType(contentType))
	}
	if err := s.fs.Write(ctx, loc.FullPath, bytes.NewReader(candidate.Bytes), writeOpts...); err != nil {
		return nil, verdict, fmt.Errorf("storing %s: %w", loc.FullPath, err)
	}

	sums, err := ChecksumsBytes(candidate.Bytes, []ChecksumAlgorithm{ChecksumSHA256, ChecksumXXHash})
	if err != nil {
		return nil, verdict, err
	}

	rec := &StoredFileRecord{
		ID:          newRecordID(),
		Path:        loc.FullPath,
		Checksum:    sums[ChecksumSHA256],
		Fingerprint: sums[ChecksumXXHash],
		Size:        int64(len(candidate.Bytes)),
		ContentType: contentType,
		Metadata:    map[string]string{MetaOriginalFilename: candidate.Filename},
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if candidate.OwnerID != "" {
		rec.SetMeta(MetaOwnerID, candidate.OwnerID)
	}
	if candidate.SessionID != "" {
		rec.SetMeta(MetaSessionID, candidate.SessionID)
	}
	if err := s.repo.CreateFile(ctx, rec); err != nil {
		// Best effort: the write is already durable, but without a record
		// it is unreachable and only wastes space.
		_ = s.fs.Delete(ctx, loc.FullPath)
		return nil, verdict, fmt.Errorf("persisting record: %w", err)
	}

	if s.cfg.ScanOnIngest {
		threat := s.classify(candidate.Bytes, verdict.SanitizedName, contentType)
		rec.SetScanResult(threat, s.now())
		if err := s.repo.UpdateFile(ctx, rec); err != nil {
			// The verdict exists but did not persist; report it with the
			// record so the caller can decide, and surface the failure.
			return rec, verdict, fmt.Errorf("persisting verdict: %w", err)
		}
		if threat.Malicious && s.cfg.AutoQuarantine {
			if err := s.quarantine.Isolate(ctx, rec.ID); err != nil {
				return rec, verdict, err
			}
			rec, err = s.repo.GetFile(ctx, rec.ID)
			if err != nil {
				return nil, verdict, err
			}
		}
	}

	s.logger.Info("file ingested",
		slog.String("file_id", rec.ID),
		slog.String("path", rec.Path),
		slog.Int64("size", rec.Size),
		slog.Bool("quarantined", rec.Quarantined()))
	return rec, verdict, nil
}

// GetFile returns the stored record for a file id.
func (s *Service) GetFile(ctx context.Context, fileID string) (*StoredFileRecord, error) {
	return s.repo.GetFile(ctx, fileID)
}

// Isolate moves a stored file into quarantine. See
// QuarantineManager.Isolate.
func (s *Service) Isolate(ctx context.Context, fileID string) error {
	return s.quarantine.Isolate(ctx, fileID)
}

// Release moves a quarantined file back to active storage after a fresh
// classification pass. See QuarantineManager.Release.
func (s *Service) Release(ctx context.Context, fileID string, force bool) error {
	return s.quarantine.Release(ctx, fileID, force)
}

func (s *Service) scanConcurrency() int {
	if s.cfg.ScanConcurrency > 0 {
		return s.cfg.ScanConcurrency
	}
	return 4
}
