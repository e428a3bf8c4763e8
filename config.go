package filewarden

import (
	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Storage driver to use (local, memory)
	Driver string `env:"FILEWARDEN_DRIVER,default:local"`

	// Local driver configuration
	BasePath string `env:"FILEWARDEN_BASE_PATH,default:./storage"`

	// Subtree names under the storage root. Public uploads land under
	// FilesDir; quarantined copies under QuarantineDir.
	FilesDir      string `env:"FILEWARDEN_FILES_DIR,default:files"`
	QuarantineDir string `env:"FILEWARDEN_QUARANTINE_DIR,default:quarantine"`

	// Validation limits
	MaxFileSize  int64  `env:"FILEWARDEN_MAX_FILE_SIZE,default:104857600"` // 100MB
	MaxScanBytes int    `env:"FILEWARDEN_MAX_SCAN_BYTES,default:10485760"` // 10MB
	AllowedExts  string `env:"FILEWARDEN_ALLOWED_EXTENSIONS"`              // comma-separated
	AcceptedMime string `env:"FILEWARDEN_ACCEPTED_MIME_TYPES"`             // comma-separated

	// Optional YAML rule pack appended to the built-in signature battery
	RulePackPath string `env:"FILEWARDEN_RULE_PACK"`

	// Scan behavior
	ScanOnIngest       bool `env:"FILEWARDEN_SCAN_ON_INGEST,default:true"`
	AutoQuarantine     bool `env:"FILEWARDEN_AUTO_QUARANTINE,default:true"`
	ScanConcurrency    int  `env:"FILEWARDEN_SCAN_CONCURRENCY,default:4"`
	ScanTimeoutSeconds int  `env:"FILEWARDEN_SCAN_TIMEOUT_SECONDS,default:30"`

	// Verdict cache
	CacheSize       int `env:"FILEWARDEN_CACHE_SIZE,default:1024"`
	CacheTTLSeconds int `env:"FILEWARDEN_CACHE_TTL_SECONDS,default:3600"`

	// Quarantine vault encryption (base64-encoded 32-byte key)
	EncryptQuarantine bool   `env:"FILEWARDEN_ENCRYPT_QUARANTINE,default:false"`
	EncryptionKey     string `env:"FILEWARDEN_ENCRYPTION_KEY"`

	// Retention window for released quarantine copies
	RetentionDays int `env:"FILEWARDEN_QUARANTINE_RETENTION_DAYS,default:30"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
