package filewarden

import (
	"context"
	"testing"
	"time"
)

func seedQuarantinedRecord(t *testing.T, fs *testFS, repo *testRepo, id string, content []byte) *StoredFileRecord {
	t.Helper()

	qpath := "quarantine/2026-03-14/" + id + "_sample.bin"
	fs.seed(qpath, content)

	sum, err := ChecksumBytes(content, ChecksumSHA256)
	if err != nil {
		t.Fatal(err)
	}

	rec := &StoredFileRecord{ID: id, Path: qpath, Checksum: sum}
	rec.SetMeta(MetaQuarantined, "true")
	rec.SetMeta(MetaQuarantinePath, qpath)
	repo.put(rec)
	return rec
}

func TestVerifyAllCleanVault(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()
	repo := newTestRepo()
	seedQuarantinedRecord(t, fs, repo, "file-1", []byte("sealed one"))
	seedQuarantinedRecord(t, fs, repo, "file-2", []byte("sealed two"))

	monitor := NewIntegrityMonitor(fs, fs, repo, newTestLocator(t))
	if got := monitor.VerifyAll(ctx); got != 0 {
		t.Errorf("VerifyAll() = %d, want 0 on an untouched vault", got)
	}
}

func TestVerifyAllDetectsAlteredCopy(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()
	repo := newTestRepo()
	rec := seedQuarantinedRecord(t, fs, repo, "file-1", []byte("sealed"))
	seedQuarantinedRecord(t, fs, repo, "file-2", []byte("untouched"))

	fs.seed(rec.QuarantinePath(), []byte("altered on disk"))

	monitor := NewIntegrityMonitor(fs, fs, repo, newTestLocator(t))
	if got := monitor.VerifyAll(ctx); got != 1 {
		t.Errorf("VerifyAll() = %d, want 1", got)
	}
}

func TestVerifyAllDetectsMissingCopy(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()
	repo := newTestRepo()
	rec := seedQuarantinedRecord(t, fs, repo, "file-1", []byte("sealed"))

	if err := fs.Delete(ctx, rec.QuarantinePath()); err != nil {
		t.Fatal(err)
	}

	monitor := NewIntegrityMonitor(fs, fs, repo, newTestLocator(t))
	if got := monitor.VerifyAll(ctx); got != 1 {
		t.Errorf("VerifyAll() = %d, want 1 for a missing copy", got)
	}
}

func TestVerifyAllIgnoresReleasedRecords(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()
	repo := newTestRepo()

	// Released record: previously quarantined, copy gone, no longer
	// claimed. Must not count as tampering.
	rec := &StoredFileRecord{ID: "file-1", Path: "files/2026-03-14/clean.txt", Checksum: "abc"}
	rec.SetMeta(MetaPrevQuarantined, "true")
	repo.put(rec)

	monitor := NewIntegrityMonitor(fs, fs, repo, newTestLocator(t))
	if got := monitor.VerifyAll(ctx); got != 0 {
		t.Errorf("VerifyAll() = %d, want 0", got)
	}
}

func TestMonitorStartStop(t *testing.T) {
	fs := newTestFS()
	repo := newTestRepo()

	monitor := NewIntegrityMonitor(fs, fs, repo, newTestLocator(t),
		WithMonitorInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	monitor.Stop()

	// Stop is idempotent.
	monitor.Stop()
}
