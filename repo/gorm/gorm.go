// Package gorm implements the file record repository on a relational
// database through GORM. Record metadata is stored as a JSON column so
// the quarantine flags and session tags are queryable without schema
// changes.
package gorm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gobeaver/filewarden"
)

// fileModel is the database shape of a stored file record.
type fileModel struct {
	ID          string         `gorm:"primaryKey;size:64"`
	Path        string         `gorm:"size:1024;not null;index"`
	Checksum    string         `gorm:"size:64;index"`
	Fingerprint string         `gorm:"size:16"`
	Size        int64          `gorm:"not null"`
	ContentType string         `gorm:"size:255"`
	Metadata    datatypes.JSON `gorm:"type:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (fileModel) TableName() string {
	return "stored_files"
}

// Repository is a filewarden.Repository backed by a *gorm.DB.
type Repository struct {
	db *gorm.DB
}

// New creates a repository over an existing database handle and
// migrates the schema.
func New(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&fileModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate stored_files: %w", err)
	}
	return &Repository{db: db}, nil
}

// Open opens (or creates) a SQLite database at dbPath and builds a
// repository over it.
func Open(dbPath string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db)
}

// GetFile implements filewarden.Repository.
func (r *Repository) GetFile(ctx context.Context, id string) (*filewarden.StoredFileRecord, error) {
	var m fileModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, filewarden.ErrRecordNotFound
		}
		return nil, err
	}
	return toRecord(&m)
}

// CreateFile implements filewarden.Repository.
func (r *Repository) CreateFile(ctx context.Context, rec *filewarden.StoredFileRecord) error {
	m, err := toModel(rec)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// UpdateFile implements filewarden.Repository.
func (r *Repository) UpdateFile(ctx context.Context, rec *filewarden.StoredFileRecord) error {
	m, err := toModel(rec)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&fileModel{}).Where("id = ?", m.ID).
		Select("*").Omit("created_at").Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return filewarden.ErrRecordNotFound
	}
	return nil
}

// FindByMetadata implements filewarden.Repository. The lookup runs as a
// JSON path query inside the database, so session-wide scans do not pull
// the whole table.
func (r *Repository) FindByMetadata(ctx context.Context, field, value string) ([]*filewarden.StoredFileRecord, error) {
	var models []fileModel
	err := r.db.WithContext(ctx).
		Where(datatypes.JSONQuery("metadata").Equals(value, field)).
		Order("created_at, id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]*filewarden.StoredFileRecord, 0, len(models))
	for i := range models {
		rec, err := toRecord(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func toModel(rec *filewarden.StoredFileRecord) (*fileModel, error) {
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return &fileModel{
		ID:          rec.ID,
		Path:        rec.Path,
		Checksum:    rec.Checksum,
		Fingerprint: rec.Fingerprint,
		Size:        rec.Size,
		ContentType: rec.ContentType,
		Metadata:    datatypes.JSON(raw),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func toRecord(m *fileModel) (*filewarden.StoredFileRecord, error) {
	meta := map[string]string{}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", m.ID, err)
		}
	}
	return &filewarden.StoredFileRecord{
		ID:          m.ID,
		Path:        m.Path,
		Checksum:    m.Checksum,
		Fingerprint: m.Fingerprint,
		Size:        m.Size,
		ContentType: m.ContentType,
		Metadata:    meta,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

var _ filewarden.Repository = (*Repository)(nil)
