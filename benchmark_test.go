package filewarden_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/gobeaver/filewarden"
	"github.com/gobeaver/filewarden/driver/memory"
	repomem "github.com/gobeaver/filewarden/repo/memory"
)

func BenchmarkService(b *testing.B) {
	content := []byte(strings.Repeat("Hello, World! ", 100)) // ~1.4KB of content

	configs := map[string]*filewarden.Config{
		"basic": {
			Driver:          "memory",
			FilesDir:        "files",
			QuarantineDir:   "quarantine",
			MaxFileSize:     10 * 1024 * 1024,
			MaxScanBytes:    1024 * 1024,
			ScanConcurrency: 4,
			CacheSize:       1024,
			CacheTTLSeconds: 3600,
			RetentionDays:   30,
		},
		"with_scanning": {
			Driver:          "memory",
			FilesDir:        "files",
			QuarantineDir:   "quarantine",
			MaxFileSize:     10 * 1024 * 1024,
			MaxScanBytes:    1024 * 1024,
			ScanOnIngest:    true,
			AutoQuarantine:  true,
			ScanConcurrency: 4,
			CacheSize:       1024,
			CacheTTLSeconds: 3600,
			RetentionDays:   30,
		},
		"with_encrypted_vault": {
			Driver:            "memory",
			FilesDir:          "files",
			QuarantineDir:     "quarantine",
			MaxFileSize:       10 * 1024 * 1024,
			MaxScanBytes:      1024 * 1024,
			ScanOnIngest:      true,
			AutoQuarantine:    true,
			ScanConcurrency:   4,
			CacheSize:         1024,
			CacheTTLSeconds:   3600,
			EncryptQuarantine: true,
			EncryptionKey:     base64.StdEncoding.EncodeToString(make([]byte, 32)),
			RetentionDays:     30,
		},
	}

	for name, cfg := range configs {
		b.Run(name, func(b *testing.B) {
			svc, err := filewarden.New(cfg, memory.New(), repomem.New())
			if err != nil {
				b.Fatalf("Failed to create service: %v", err)
			}

			ctx := context.Background()

			b.Run("validate", func(b *testing.B) {
				candidate := &filewarden.UploadCandidate{
					Bytes:        content,
					Filename:     "report.txt",
					DeclaredType: "text/plain",
				}
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if verdict := svc.Validate(candidate); !verdict.Valid {
						b.Fatal("expected valid candidate")
					}
				}
			})

			b.Run("classify_cold", func(b *testing.B) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					// Unique content defeats the verdict cache.
					data := append([]byte(fmt.Sprintf("%d:", i)), content...)
					svc.Classify(data, "report.txt", "text/plain")
				}
			})

			b.Run("classify_cached", func(b *testing.B) {
				svc.Classify(content, "report.txt", "text/plain")
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					svc.Classify(content, "report.txt", "text/plain")
				}
			})

			b.Run("ingest", func(b *testing.B) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					_, _, err := svc.Ingest(ctx, &filewarden.UploadCandidate{
						Bytes:        content,
						Filename:     fmt.Sprintf("report-%d.txt", i),
						DeclaredType: "text/plain",
						OwnerID:      "bench-user",
					})
					if err != nil {
						b.Fatalf("Ingest failed: %v", err)
					}
				}
			})
		})
	}
}

func BenchmarkChecksums(b *testing.B) {
	data := []byte(strings.Repeat("checksum me ", 1024)) // ~12KB

	algorithms := []filewarden.ChecksumAlgorithm{
		filewarden.ChecksumSHA256,
		filewarden.ChecksumCRC32,
		filewarden.ChecksumXXHash,
	}

	for _, algo := range algorithms {
		b.Run(string(algo), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				if _, err := filewarden.ChecksumBytes(data, algo); err != nil {
					b.Fatal(err)
				}
			}
		})
	}

	b.Run("sha256_and_xxhash_single_pass", func(b *testing.B) {
		algos := []filewarden.ChecksumAlgorithm{filewarden.ChecksumSHA256, filewarden.ChecksumXXHash}
		b.SetBytes(int64(len(data)))
		for i := 0; i < b.N; i++ {
			if _, err := filewarden.ChecksumsBytes(data, algos); err != nil {
				b.Fatal(err)
			}
		}
	})
}
