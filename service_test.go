package filewarden

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gobeaver/filewarden/filescanner"
)

func TestIngestCleanFile(t *testing.T) {
	fs := newTestFS()
	repo := newTestRepo()
	svc := newTestService(nil, fs, repo)

	content := []byte("2026-08-12 14:02:11 ERROR out of memory in worker 3\n")
	rec, verdict, err := svc.Ingest(context.Background(), &UploadCandidate{
		Bytes:        content,
		Filename:     "crash.log",
		DeclaredType: "text/plain",
		OwnerID:      "user-1",
		SessionID:    "sess-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("verdict invalid: %v", verdict.Errors)
	}

	if !strings.HasPrefix(rec.Path, "files/") {
		t.Errorf("Path = %q, want files/ prefix", rec.Path)
	}
	stored, ok := fs.content(rec.Path)
	if !ok {
		t.Fatalf("no content at %q", rec.Path)
	}
	if string(stored) != string(content) {
		t.Error("stored bytes differ from candidate bytes")
	}

	sum, _ := ChecksumBytes(content, ChecksumSHA256)
	if rec.Checksum != sum {
		t.Errorf("Checksum = %s, want %s", rec.Checksum, sum)
	}
	if rec.Fingerprint == "" {
		t.Error("Fingerprint is empty")
	}
	if rec.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", rec.Size, len(content))
	}
	if rec.SessionID() != "sess-1" {
		t.Errorf("SessionID = %q", rec.SessionID())
	}
	if rec.Quarantined() {
		t.Error("clean file was quarantined")
	}
	if rec.ScanResult() == nil {
		t.Error("scan-on-ingest did not persist a verdict")
	}
}

func TestIngestRejectsMaskedWebshell(t *testing.T) {
	svc := newTestService(nil, newTestFS(), newTestRepo())

	rec, verdict, err := svc.Ingest(context.Background(), &UploadCandidate{
		Bytes:        []byte(`<?php eval(base64_decode($_POST['x'])); ?>`),
		Filename:     "shell.php.jpg",
		DeclaredType: "image/jpeg",
		OwnerID:      "user-1",
	})
	if err == nil {
		t.Fatal("Ingest() accepted a masked webshell")
	}
	if rec != nil {
		t.Error("a record was created for a rejected upload")
	}
	if verdict.Valid {
		t.Error("verdict is valid")
	}

	var verr *filescanner.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *filescanner.ValidationError", err)
	}
	// Every reason is reported, not just the first.
	if len(verdict.Errors) < 2 {
		t.Errorf("verdict carries %d errors, want the full list: %v", len(verdict.Errors), verdict.Errors)
	}
}

func TestIngestAutoQuarantine(t *testing.T) {
	fs := newTestFS()
	repo := newTestRepo()
	svc := newTestService(nil, fs, repo)

	// Valid name and extension, hostile content: validation passes on a
	// .txt, the classifier catches the payload after storage.
	rec, verdict, err := svc.Ingest(context.Background(), &UploadCandidate{
		Bytes:        []byte(webshell),
		Filename:     "notes.txt",
		DeclaredType: "text/plain",
		OwnerID:      "user-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("verdict invalid: %v", verdict.Errors)
	}
	if !rec.Quarantined() {
		t.Fatal("malicious upload was not auto-quarantined")
	}
	if _, ok := fs.content(rec.QuarantinePath()); !ok {
		t.Error("quarantine copy missing")
	}
	if _, ok := fs.content(rec.OriginalPath()); ok {
		t.Error("original path still readable")
	}
}

func TestIngestEmbeddedExecutable(t *testing.T) {
	fs := newTestFS()
	repo := newTestRepo()
	svc := newTestService(nil, fs, repo)

	// MZ header buried past the first sector of an otherwise plain file.
	content := append(make([]byte, 2048), []byte("MZ\x90\x00\x03")...)
	copy(content, []byte(strings.Repeat("log line\n", 200)))

	rec, _, err := svc.Ingest(context.Background(), &UploadCandidate{
		Bytes:        content,
		Filename:     "archive.log",
		DeclaredType: "text/plain",
		OwnerID:      "user-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	sr := repo.get(rec.ID).ScanResult()
	if sr == nil {
		t.Fatal("no scan result persisted")
	}
	if !sr.Verdict.Malicious {
		t.Fatal("embedded executable not classified malicious")
	}
	if sr.Verdict.Risk < filescanner.RiskHigh {
		t.Errorf("Risk = %s, want at least high", sr.Verdict.Risk)
	}
}

func TestIngestOversize(t *testing.T) {
	cfg := &Config{
		Driver:       "memory",
		MaxFileSize:  16,
		MaxScanBytes: 1 << 20,
		CacheSize:    8,
	}
	svc := newTestService(cfg, newTestFS(), newTestRepo())

	_, verdict, err := svc.Ingest(context.Background(), &UploadCandidate{
		Bytes:        []byte("this content is longer than sixteen bytes"),
		Filename:     "big.txt",
		DeclaredType: "text/plain",
		OwnerID:      "user-1",
	})
	if err == nil {
		t.Fatal("Ingest() accepted oversize content")
	}
	if verdict.Valid {
		t.Error("oversize verdict is valid")
	}
}

func TestIngestRecordFailureCleansUp(t *testing.T) {
	fs := newTestFS()
	repo := newTestRepo()
	repo.failCreate = errors.New("db down")
	svc := newTestService(nil, fs, repo)

	_, _, err := svc.Ingest(context.Background(), &UploadCandidate{
		Bytes:        []byte("content"),
		Filename:     "a.txt",
		DeclaredType: "text/plain",
		OwnerID:      "user-1",
	})
	if err == nil {
		t.Fatal("Ingest() succeeded despite record failure")
	}

	// The orphaned write was removed.
	listed, _ := fs.ListContents(context.Background(), "files", true)
	if len(listed) != 0 {
		t.Errorf("files tree holds %d orphans after failed ingest", len(listed))
	}
}

func TestClassifyUsesCache(t *testing.T) {
	svc := newTestService(nil, newTestFS(), newTestRepo())

	data := []byte("some content to classify")
	first := svc.Classify(data, "a.txt", "text/plain")
	second := svc.Classify(data, "a.txt", "text/plain")

	if first != second {
		t.Error("identical content did not hit the verdict cache")
	}
	if svc.cache.Len() != 1 {
		t.Errorf("cache holds %d entries, want 1", svc.cache.Len())
	}
}

func TestValidateReportsAllReasons(t *testing.T) {
	svc := newTestService(nil, newTestFS(), newTestRepo())

	verdict := svc.Validate(&UploadCandidate{
		Bytes:        []byte(`<script>alert(1)</script>`),
		Filename:     "../escape.exe",
		DeclaredType: "text/plain",
	})
	if verdict.Valid {
		t.Fatal("hostile candidate validated")
	}
	if len(verdict.Errors) < 2 {
		t.Errorf("Errors = %v, want both the name and the content reasons", verdict.Errors)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := &Config{Driver: "memory"}
	if _, err := New(nil, newTestFS(), newTestRepo()); err == nil {
		t.Error("New accepted nil config")
	}
	if _, err := New(cfg, nil, newTestRepo()); err == nil {
		t.Error("New accepted nil filesystem")
	}
	if _, err := New(cfg, newTestFS(), nil); err == nil {
		t.Error("New accepted nil repository")
	}
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"local with base path", &Config{Driver: "local", BasePath: "/tmp/x"}, false},
		{"local without base path", &Config{Driver: "local"}, true},
		{"memory", &Config{Driver: "memory"}, false},
		{"missing driver", &Config{}, true},
		{"unknown driver", &Config{Driver: "tape"}, true},
		{"encryption without key", &Config{Driver: "memory", EncryptQuarantine: true}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateConfig(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
