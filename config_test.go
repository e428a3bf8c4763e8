package filewarden

import (
	"os"
	"testing"
)

func TestGetConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    Config
	}{
		{
			name:    "default values",
			envVars: map[string]string{},
			want: Config{
				Driver:             "local",
				BasePath:           "./storage",
				FilesDir:           "files",
				QuarantineDir:      "quarantine",
				MaxFileSize:        104857600,
				MaxScanBytes:       10485760,
				ScanOnIngest:       true,
				AutoQuarantine:     true,
				ScanConcurrency:    4,
				ScanTimeoutSeconds: 30,
				CacheSize:          1024,
				CacheTTLSeconds:    3600,
				RetentionDays:      30,
			},
		},
		{
			name: "storage configuration",
			envVars: map[string]string{
				"BEAVER_FILEWARDEN_DRIVER":         "memory",
				"BEAVER_FILEWARDEN_BASE_PATH":      "/srv/uploads",
				"BEAVER_FILEWARDEN_FILES_DIR":      "public",
				"BEAVER_FILEWARDEN_QUARANTINE_DIR": "isolated",
			},
			want: Config{
				Driver:             "memory",
				BasePath:           "/srv/uploads",
				FilesDir:           "public",
				QuarantineDir:      "isolated",
				MaxFileSize:        104857600,
				MaxScanBytes:       10485760,
				ScanOnIngest:       true,
				AutoQuarantine:     true,
				ScanConcurrency:    4,
				ScanTimeoutSeconds: 30,
				CacheSize:          1024,
				CacheTTLSeconds:    3600,
				RetentionDays:      30,
			},
		},
		{
			name: "validation limits",
			envVars: map[string]string{
				"BEAVER_FILEWARDEN_MAX_FILE_SIZE":       "5242880",
				"BEAVER_FILEWARDEN_MAX_SCAN_BYTES":      "1048576",
				"BEAVER_FILEWARDEN_ALLOWED_EXTENSIONS":  ".jpg,.png,.pdf",
				"BEAVER_FILEWARDEN_ACCEPTED_MIME_TYPES": "image/jpeg,image/png",
				"BEAVER_FILEWARDEN_RULE_PACK":           "/etc/filewarden/rules.yaml",
			},
			want: Config{
				Driver:             "local",
				BasePath:           "./storage",
				FilesDir:           "files",
				QuarantineDir:      "quarantine",
				MaxFileSize:        5242880,
				MaxScanBytes:       1048576,
				AllowedExts:        ".jpg,.png,.pdf",
				AcceptedMime:       "image/jpeg,image/png",
				RulePackPath:       "/etc/filewarden/rules.yaml",
				ScanOnIngest:       true,
				AutoQuarantine:     true,
				ScanConcurrency:    4,
				ScanTimeoutSeconds: 30,
				CacheSize:          1024,
				CacheTTLSeconds:    3600,
				RetentionDays:      30,
			},
		},
		{
			name: "scan behavior and encryption",
			envVars: map[string]string{
				"BEAVER_FILEWARDEN_SCAN_ON_INGEST":            "false",
				"BEAVER_FILEWARDEN_AUTO_QUARANTINE":           "false",
				"BEAVER_FILEWARDEN_SCAN_CONCURRENCY":          "8",
				"BEAVER_FILEWARDEN_SCAN_TIMEOUT_SECONDS":      "10",
				"BEAVER_FILEWARDEN_CACHE_SIZE":                "256",
				"BEAVER_FILEWARDEN_CACHE_TTL_SECONDS":         "600",
				"BEAVER_FILEWARDEN_ENCRYPT_QUARANTINE":        "true",
				"BEAVER_FILEWARDEN_ENCRYPTION_KEY":            "dGVzdC1rZXktdGVzdC1rZXktdGVzdC1rZXktMTI=",
				"BEAVER_FILEWARDEN_QUARANTINE_RETENTION_DAYS": "7",
			},
			want: Config{
				Driver:             "local",
				BasePath:           "./storage",
				FilesDir:           "files",
				QuarantineDir:      "quarantine",
				MaxFileSize:        104857600,
				MaxScanBytes:       10485760,
				ScanOnIngest:       false,
				AutoQuarantine:     false,
				ScanConcurrency:    8,
				ScanTimeoutSeconds: 10,
				CacheSize:          256,
				CacheTTLSeconds:    600,
				EncryptQuarantine:  true,
				EncryptionKey:      "dGVzdC1rZXktdGVzdC1rZXktdGVzdC1rZXktMTI=",
				RetentionDays:      7,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				k := k // capture for closure
				os.Setenv(k, v)
				t.Cleanup(func() { os.Unsetenv(k) })
			}

			cfg, err := GetConfig()
			if err != nil {
				t.Fatalf("GetConfig() error = %v", err)
			}

			if *cfg != tt.want {
				t.Errorf("GetConfig() = %+v, want %+v", *cfg, tt.want)
			}
		})
	}
}
