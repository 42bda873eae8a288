package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix scopes envconfig lookups. Tags carry the full variable names so nested
// sections resolve to BOL_* directly.
const EnvPrefix = "BOL"

const (
	BlobBackendDrive = "drive"
	BlobBackendGCS   = "gcs"
)

type Config struct {
	App         AppConfig
	GCP         GCPConfig
	Mail        MailConfig
	Sheets      SheetsConfig
	Blob        BlobConfig
	SellerCloud SellerCloudConfig
	Pipeline    PipelineConfig
	Redis       RedisConfig
	Firestore   FirestoreConfig
	Worker      WorkerConfig
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"BOL_APP_ENV" default:"dev"`
	LogLevel  string `envconfig:"BOL_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"BOL_LOG_FORMAT" default:"json"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"BOL_GCP_PROJECT_ID" required:"true"`
	VertexAIRegion  string `envconfig:"BOL_VERTEX_AI_REGION" default:"us-central1"`
	VertexAIModel   string `envconfig:"BOL_VERTEX_AI_MODEL" default:"gemini-1.5-pro"`
	CredentialsFile string `envconfig:"BOL_GOOGLE_CREDENTIALS_FILE"`
}

type MailConfig struct {
	IMAPServer   string        `envconfig:"BOL_IMAP_SERVER" required:"true"`
	Address      string        `envconfig:"BOL_EMAIL_ADDRESS" required:"true"`
	Password     string        `envconfig:"BOL_EMAIL_PASSWORD" required:"true"`
	Mailbox      string        `envconfig:"BOL_IMAP_MAILBOX" default:"INBOX"`
	SubjectWord  string        `envconfig:"BOL_WORD_IN_SUBJECT" required:"true"`
	LookbackDays int           `envconfig:"BOL_MAIL_LOOKBACK_DAYS" default:"1"`
	MaxMessages  int           `envconfig:"BOL_MAIL_MAX_MESSAGES" default:"200"`
	DialTimeout  time.Duration `envconfig:"BOL_IMAP_DIAL_TIMEOUT" default:"30s"`
}

type SheetsConfig struct {
	SpreadsheetID string `envconfig:"BOL_SPREADSHEET_ID" required:"true"`
	LedgerSheet   string `envconfig:"BOL_SHEET_NAME" default:"BOL"`
}

type BlobConfig struct {
	Backend       string `envconfig:"BOL_BLOB_BACKEND" default:"drive"`
	DriveFolderID string `envconfig:"BOL_DRIVE_FOLDER_ID"`
	GCSBucket     string `envconfig:"BOL_GCS_BUCKET"`
	GCSPrefix     string `envconfig:"BOL_GCS_PREFIX" default:"bols"`
}

// ParentID is the container that page PDFs are uploaded into for the selected backend.
func (b BlobConfig) ParentID() string {
	if strings.EqualFold(b.Backend, BlobBackendGCS) {
		return b.GCSPrefix
	}
	return b.DriveFolderID
}

type SellerCloudConfig struct {
	BaseURL  string        `envconfig:"BOL_SELLERCLOUD_BASE_URL" default:"https://cvi.api.sellercloud.com"`
	Username string        `envconfig:"BOL_SELLER_EMAIL_ADDRESS" required:"true"`
	Password string        `envconfig:"BOL_SELLER_PWD" required:"true"`
	Timeout  time.Duration `envconfig:"BOL_SELLERCLOUD_TIMEOUT" default:"60s"`
}

type PipelineConfig struct {
	RasterDPI          float64       `envconfig:"BOL_RASTER_DPI" default:"150"`
	SplitConcurrency   int           `envconfig:"BOL_SPLIT_CONCURRENCY" default:"4"`
	ExtractConcurrency int           `envconfig:"BOL_EXTRACT_CONCURRENCY" default:"4"`
	ExtractTimeout     time.Duration `envconfig:"BOL_EXTRACT_TIMEOUT" default:"60s"`
	BlobTimeout        time.Duration `envconfig:"BOL_BLOB_TIMEOUT" default:"60s"`
}

type RedisConfig struct {
	URL     string        `envconfig:"BOL_REDIS_URL"`
	LockKey string        `envconfig:"BOL_RUN_LOCK_KEY" default:"bol:pipeline:lock"`
	LockTTL time.Duration `envconfig:"BOL_RUN_LOCK_TTL" default:"2h"`
}

type FirestoreConfig struct {
	// Collection is empty when the audit trail is disabled.
	Collection string `envconfig:"BOL_FIRESTORE_COLLECTION"`
}

type WorkerConfig struct {
	Interval    time.Duration `envconfig:"BOL_WORKER_INTERVAL" default:"1h"`
	MetricsPort int           `envconfig:"BOL_METRICS_PORT" default:"9090"`
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Blob.Backend) {
	case BlobBackendDrive:
		if c.Blob.DriveFolderID == "" {
			return fmt.Errorf("BOL_DRIVE_FOLDER_ID is required when BOL_BLOB_BACKEND=%s", BlobBackendDrive)
		}
	case BlobBackendGCS:
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("BOL_GCS_BUCKET is required when BOL_BLOB_BACKEND=%s", BlobBackendGCS)
		}
	default:
		return fmt.Errorf("unsupported blob backend %q", c.Blob.Backend)
	}
	if c.Pipeline.ExtractConcurrency <= 0 {
		return fmt.Errorf("BOL_EXTRACT_CONCURRENCY must be positive")
	}
	if c.Pipeline.SplitConcurrency <= 0 {
		return fmt.Errorf("BOL_SPLIT_CONCURRENCY must be positive")
	}
	if c.Pipeline.RasterDPI <= 0 {
		return fmt.Errorf("BOL_RASTER_DPI must be positive")
	}
	return nil
}
