package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gobeaver/filewarden"
)

func testRecord(id, sessionID string) *filewarden.StoredFileRecord {
	rec := &filewarden.StoredFileRecord{
		ID:          id,
		Path:        "files/2026-03-14/" + id + ".txt",
		Checksum:    "abc",
		Fingerprint: "def",
		Size:        42,
		ContentType: "text/plain",
		CreatedAt:   time.Now(),
	}
	if sessionID != "" {
		rec.SetMeta(filewarden.MetaSessionID, sessionID)
	}
	return rec
}

func TestCreateGet(t *testing.T) {
	ctx := context.Background()
	repo := New()

	rec := testRecord("file-1", "s1")
	if err := repo.CreateFile(ctx, rec); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	got, err := repo.GetFile(ctx, "file-1")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if got.Path != rec.Path || got.SessionID() != "s1" {
		t.Errorf("GetFile() = %+v", got)
	}

	if err := repo.CreateFile(ctx, testRecord("file-1", "")); !errors.Is(err, filewarden.ErrExist) {
		t.Errorf("duplicate create: expected ErrExist, got %v", err)
	}
	if repo.Len() != 1 {
		t.Errorf("Len() = %d, want 1", repo.Len())
	}
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	repo := New()

	if _, err := repo.GetFile(ctx, "ghost"); !errors.Is(err, filewarden.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := New()

	if err := repo.CreateFile(ctx, testRecord("file-1", "s1")); err != nil {
		t.Fatal(err)
	}

	rec, _ := repo.GetFile(ctx, "file-1")
	rec.SetMeta(filewarden.MetaQuarantined, "true")
	if err := repo.UpdateFile(ctx, rec); err != nil {
		t.Fatalf("UpdateFile() error = %v", err)
	}

	got, _ := repo.GetFile(ctx, "file-1")
	if !got.Quarantined() {
		t.Error("update did not persist")
	}

	if err := repo.UpdateFile(ctx, testRecord("ghost", "")); !errors.Is(err, filewarden.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	ctx := context.Background()
	repo := New()

	rec := testRecord("file-1", "s1")
	if err := repo.CreateFile(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's record after create must not affect the store.
	rec.SetMeta(filewarden.MetaQuarantined, "true")

	got, _ := repo.GetFile(ctx, "file-1")
	if got.Quarantined() {
		t.Error("store shares memory with the caller's record")
	}

	// Mutating a returned record must not affect the store either.
	got.SetMeta(filewarden.MetaQuarantined, "true")
	again, _ := repo.GetFile(ctx, "file-1")
	if again.Quarantined() {
		t.Error("store shares memory with returned records")
	}
}

func TestFindByMetadata(t *testing.T) {
	ctx := context.Background()
	repo := New()

	for _, rec := range []*filewarden.StoredFileRecord{
		testRecord("file-1", "s1"),
		testRecord("file-2", "s1"),
		testRecord("file-3", "s2"),
	} {
		if err := repo.CreateFile(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := repo.FindByMetadata(ctx, filewarden.MetaSessionID, "s1")
	if err != nil {
		t.Fatalf("FindByMetadata() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	records, err = repo.FindByMetadata(ctx, filewarden.MetaSessionID, "missing")
	if err != nil {
		t.Fatalf("FindByMetadata() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestFindByMetadataStableOrder(t *testing.T) {
	ctx := context.Background()
	repo := New()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"file-c", "file-a", "file-b"} {
		rec := testRecord(id, "s1")
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.CreateFile(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	for run := 0; run < 5; run++ {
		records, err := repo.FindByMetadata(ctx, filewarden.MetaSessionID, "s1")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"file-c", "file-a", "file-b"} // creation order
		for i, rec := range records {
			if rec.ID != want[i] {
				t.Fatalf("run %d: order = %v at %d, want %v", run, rec.ID, i, want[i])
			}
		}
	}
}
