package filewarden

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/cespare/xxhash/v2"
)

// NewHasher creates a new hash.Hash for the given algorithm.
// Returns an error if the algorithm is not supported.
func NewHasher(algorithm ChecksumAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumSHA512:
		return sha512.New(), nil
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumXXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported checksum algorithm: %s", ErrNotSupported, algorithm)
	}
}

// CalculateChecksum reads from the reader and calculates the checksum using
// the specified algorithm. Returns the hex-encoded checksum string.
func CalculateChecksum(r io.Reader, algorithm ChecksumAlgorithm) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateChecksums reads from the reader and calculates multiple checksums
// in a single pass. Returns a map of algorithm to hex-encoded checksum.
// Ingest uses this to compute the record checksum (sha256) and fingerprint
// (xxhash) over one read of the upload bytes.
func CalculateChecksums(r io.Reader, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	if len(algorithms) == 0 {
		return nil, fmt.Errorf("no algorithms specified")
	}

	hashers := make(map[ChecksumAlgorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))

	for _, algo := range algorithms {
		h, err := NewHasher(algo)
		if err != nil {
			return nil, err
		}
		hashers[algo] = h
		writers = append(writers, h)
	}

	// One read feeds every hasher.
	multiWriter := io.MultiWriter(writers...)
	if _, err := io.Copy(multiWriter, r); err != nil {
		return nil, fmt.Errorf("failed to calculate checksums: %w", err)
	}

	results := make(map[ChecksumAlgorithm]string, len(algorithms))
	for algo, h := range hashers {
		results[algo] = hex.EncodeToString(h.Sum(nil))
	}

	return results, nil
}

// ChecksumBytes calculates the checksum of an in-memory buffer.
func ChecksumBytes(data []byte, algorithm ChecksumAlgorithm) (string, error) {
	return CalculateChecksum(bytes.NewReader(data), algorithm)
}

// ChecksumsBytes calculates multiple checksums of an in-memory buffer in a
// single pass.
func ChecksumsBytes(data []byte, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	return CalculateChecksums(bytes.NewReader(data), algorithms)
}

// FileChecksum calculates the checksum of a stored file. It uses the
// driver's native CanChecksum capability when available and falls back to
// streaming the file content otherwise.
func FileChecksum(ctx context.Context, fs FileReader, path string, algorithm ChecksumAlgorithm) (string, error) {
	if cs, ok := fs.(CanChecksum); ok {
		return cs.Checksum(ctx, path, algorithm)
	}

	rc, err := fs.Read(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	sum, err := CalculateChecksum(rc, algorithm)
	if err != nil {
		return "", &PathError{Op: "checksum", Path: path, Err: err}
	}
	return sum, nil
}

// VerifyChecksum reads a stored file and verifies its checksum matches the
// expected value. This is a convenience function for integrity verification.
func VerifyChecksum(ctx context.Context, fs FileReader, path, expected string, algorithm ChecksumAlgorithm) (bool, error) {
	actual, err := FileChecksum(ctx, fs, path, algorithm)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
