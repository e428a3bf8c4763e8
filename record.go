package filewarden

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gobeaver/filewarden/filescanner"
)

// newRecordID generates a record identifier. Record ids appear in
// quarantine filenames, so they must stay path-safe.
func newRecordID() string {
	return uuid.NewString()
}

// Metadata keys used on StoredFileRecord. The repository treats metadata
// as opaque strings; these constants are the only place key names live.
const (
	MetaQuarantined      = "quarantined"
	MetaQuarantinePath   = "quarantine_path"
	MetaQuarantinedAt    = "quarantined_at"
	MetaOriginalPath     = "original_path"
	MetaReleasedAt       = "released_at"
	MetaReleaseForced    = "release_forced"
	MetaPrevQuarantined  = "previously_quarantined"
	MetaSessionID        = "session_id"
	MetaOwnerID          = "owner_id"
	MetaOriginalFilename = "original_filename"
	MetaSecurityScan     = "security_scan"
)

// UploadCandidate is the transient input of one upload attempt. It is
// owned by the caller and never persisted as-is.
type UploadCandidate struct {
	Bytes        []byte
	Filename     string
	DeclaredType string
	OwnerID      string
	SessionID    string
}

// StoredFileRecord is the persisted entity for one accepted upload.
// Invariant: Quarantined() is true iff Path points at the quarantine
// subtree and a file exists at QuarantinePath().
type StoredFileRecord struct {
	ID          string
	Path        string
	Checksum    string // sha256, hex
	Fingerprint string // xxhash64, hex
	Size        int64
	ContentType string
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy. Repositories hand out clones so callers can
// mutate records without racing the store.
func (r *StoredFileRecord) Clone() *StoredFileRecord {
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (r *StoredFileRecord) meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// SetMeta sets one metadata entry, allocating the map on first use.
func (r *StoredFileRecord) SetMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// Quarantined reports whether the record is in the quarantined state.
func (r *StoredFileRecord) Quarantined() bool {
	return r.meta(MetaQuarantined) == "true"
}

// QuarantinePath returns the quarantine copy location, empty when not
// quarantined.
func (r *StoredFileRecord) QuarantinePath() string {
	return r.meta(MetaQuarantinePath)
}

// OriginalPath returns the pre-isolate storage path kept for release.
func (r *StoredFileRecord) OriginalPath() string {
	return r.meta(MetaOriginalPath)
}

// PreviouslyQuarantined reports whether the file was ever released from
// quarantine.
func (r *StoredFileRecord) PreviouslyQuarantined() bool {
	return r.meta(MetaPrevQuarantined) == "true"
}

// ReleaseForced reports whether the last release used the force flag.
func (r *StoredFileRecord) ReleaseForced() bool {
	return r.meta(MetaReleaseForced) == "true"
}

// SessionID returns the upload session this file belongs to.
func (r *StoredFileRecord) SessionID() string {
	return r.meta(MetaSessionID)
}

// OwnerID returns the uploading user.
func (r *StoredFileRecord) OwnerID() string {
	return r.meta(MetaOwnerID)
}

// ScanResult is a ThreatVerdict with the time it was produced, persisted
// on the record as JSON under MetaSecurityScan.
type ScanResult struct {
	Verdict   filescanner.ThreatVerdict `json:"verdict"`
	ScannedAt time.Time                 `json:"scannedAt"`
}

// SetScanResult persists a classification verdict on the record.
func (r *StoredFileRecord) SetScanResult(verdict *filescanner.ThreatVerdict, at time.Time) {
	raw, err := json.Marshal(ScanResult{Verdict: *verdict, ScannedAt: at})
	if err != nil {
		return
	}
	r.SetMeta(MetaSecurityScan, string(raw))
}

// ScanResult returns the persisted verdict, or nil when the file has not
// been scanned (or the stored value is unreadable, which counts as
// unscanned).
func (r *StoredFileRecord) ScanResult() *ScanResult {
	raw := r.meta(MetaSecurityScan)
	if raw == "" {
		return nil
	}
	var sr ScanResult
	if err := json.Unmarshal([]byte(raw), &sr); err != nil {
		return nil
	}
	return &sr
}

// Repository is the outbound persistence boundary: an opaque by-id store
// with a query-by-metadata capability. The core never performs SQL or ORM
// work itself. Implementations live under repo/.
type Repository interface {
	// GetFile returns the record with the given id, or ErrRecordNotFound.
	GetFile(ctx context.Context, id string) (*StoredFileRecord, error)

	// CreateFile persists a new record.
	CreateFile(ctx context.Context, rec *StoredFileRecord) error

	// UpdateFile replaces the stored record with the given one.
	UpdateFile(ctx context.Context, rec *StoredFileRecord) error

	// FindByMetadata returns all records whose metadata field equals value.
	FindByMetadata(ctx context.Context, field, value string) ([]*StoredFileRecord, error)
}
