package filewarden

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCalculateChecksum(t *testing.T) {
	testCases := []struct {
		name      string
		algorithm ChecksumAlgorithm
		input     string
		want      string
	}{
		{
			name:      "sha256 empty",
			algorithm: ChecksumSHA256,
			input:     "",
			want:      "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:      "sha256 hello",
			algorithm: ChecksumSHA256,
			input:     "hello",
			want:      "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
		{
			name:      "crc32 hello",
			algorithm: ChecksumCRC32,
			input:     "hello",
			want:      "3610a686",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateChecksum(strings.NewReader(tc.input), tc.algorithm)
			if err != nil {
				t.Fatalf("CalculateChecksum() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("CalculateChecksum() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCalculateChecksumUnsupported(t *testing.T) {
	_, err := CalculateChecksum(strings.NewReader("x"), ChecksumAlgorithm("md5"))
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestCalculateChecksumsSinglePass(t *testing.T) {
	algos := []ChecksumAlgorithm{ChecksumSHA256, ChecksumXXHash, ChecksumCRC32}

	sums, err := CalculateChecksums(strings.NewReader("hello"), algos)
	if err != nil {
		t.Fatalf("CalculateChecksums() error = %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("got %d sums, want 3", len(sums))
	}

	for _, algo := range algos {
		single, err := ChecksumBytes([]byte("hello"), algo)
		if err != nil {
			t.Fatalf("ChecksumBytes(%s) error = %v", algo, err)
		}
		if sums[algo] != single {
			t.Errorf("%s: multi-pass %s != single-pass %s", algo, sums[algo], single)
		}
	}
}

func TestCalculateChecksumsNoAlgorithms(t *testing.T) {
	if _, err := CalculateChecksums(strings.NewReader("x"), nil); err == nil {
		t.Error("expected error for empty algorithm list")
	}
}

func TestFileChecksumStreamingFallback(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()
	fs.seed("data/report.txt", []byte("hello"))

	// testFS has no native checksum support, so this exercises the
	// streaming path.
	got, err := FileChecksum(ctx, fs, "data/report.txt", ChecksumSHA256)
	if err != nil {
		t.Fatalf("FileChecksum() error = %v", err)
	}
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("FileChecksum() = %s, want %s", got, want)
	}
}

func TestVerifyChecksum(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()
	fs.seed("data/report.txt", []byte("hello"))

	ok, err := VerifyChecksum(ctx, fs, "data/report.txt",
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", ChecksumSHA256)
	if err != nil {
		t.Fatalf("VerifyChecksum() error = %v", err)
	}
	if !ok {
		t.Error("expected checksum to verify")
	}

	ok, err = VerifyChecksum(ctx, fs, "data/report.txt", "deadbeef", ChecksumSHA256)
	if err != nil {
		t.Fatalf("VerifyChecksum() error = %v", err)
	}
	if ok {
		t.Error("expected mismatch for wrong checksum")
	}

	if _, err := VerifyChecksum(ctx, fs, "data/missing.txt", "deadbeef", ChecksumSHA256); err == nil {
		t.Error("expected error for missing file")
	}
}
