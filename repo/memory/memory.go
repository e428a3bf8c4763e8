// Package memory implements the file record repository as an in-memory
// map, for tests and single-process deployments that do not need a
// database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gobeaver/filewarden"
)

// Repository is an in-memory filewarden.Repository. Records are cloned
// on every boundary crossing so callers never share mutable state with
// the store.
type Repository struct {
	mu      sync.RWMutex
	records map[string]*filewarden.StoredFileRecord
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		records: make(map[string]*filewarden.StoredFileRecord),
	}
}

// GetFile implements filewarden.Repository.
func (r *Repository) GetFile(ctx context.Context, id string) (*filewarden.StoredFileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, filewarden.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// CreateFile implements filewarden.Repository.
func (r *Repository) CreateFile(ctx context.Context, rec *filewarden.StoredFileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; exists {
		return filewarden.ErrExist
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

// UpdateFile implements filewarden.Repository.
func (r *Repository) UpdateFile(ctx context.Context, rec *filewarden.StoredFileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; !exists {
		return filewarden.ErrRecordNotFound
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

// FindByMetadata implements filewarden.Repository.
func (r *Repository) FindByMetadata(ctx context.Context, field, value string) ([]*filewarden.StoredFileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*filewarden.StoredFileRecord
	for _, rec := range r.records {
		if rec.Metadata[field] == value {
			out = append(out, rec.Clone())
		}
	}
	// Map iteration is random; stable order keeps batch results
	// reproducible.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Len returns the number of stored records.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

var _ filewarden.Repository = (*Repository)(nil)
