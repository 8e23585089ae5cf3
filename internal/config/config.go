// Package config loads the link sweeper configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
)

const (
	defaultServerPort      = 8070
	defaultServerTimeout   = 30
	defaultDatabasePort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5
	defaultRedisAddress    = "localhost:6379"

	defaultRequestsPerSecond  = 5
	defaultRequestTimeoutSecs = 10
	defaultUserAgent          = "LinkSweeper/1.0 (+https://github.com/jonesrussell/north-cloud)"
	defaultBatchDocuments     = 20
	defaultBatchURLs          = 10
	defaultScanTTL            = time.Hour
	defaultMaxRedirects       = 5

	// ScheduleDisabled turns scheduled sweeps off.
	ScheduleDisabled = "disabled"
)

// Config is the root configuration for the link sweeper.
type Config struct {
	Debug    bool           `env:"APP_DEBUG" yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  logger.Config  `yaml:"logging"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `env:"SERVER_HOST"  yaml:"host"`
	Port         int           `env:"SERVER_PORT"  yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" yaml:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis settings for the transient scan state. When
// disabled, scan state is kept in process memory.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
	Enabled  bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
}

// SweeperConfig seeds the runtime settings on first start.
type SweeperConfig struct {
	// RequestsPerSecond of 0 selects the default; a negative value disables limiting.
	RequestsPerSecond       int           `env:"SWEEPER_REQUESTS_PER_SECOND" yaml:"requests_per_second"`
	RequestTimeoutSeconds   int           `env:"SWEEPER_REQUEST_TIMEOUT"     yaml:"request_timeout_seconds"`
	UserAgent               string        `env:"SWEEPER_USER_AGENT"          yaml:"user_agent"`
	ScanDocumentTypes       []string      `env:"SWEEPER_DOCUMENT_TYPES"      yaml:"scan_document_types"`
	NormalizeRemoveUTM      *bool         `env:"SWEEPER_REMOVE_UTM"          yaml:"normalize_remove_utm"`
	NormalizeIgnoreFragment *bool         `env:"SWEEPER_IGNORE_FRAGMENT"     yaml:"normalize_ignore_fragment"`
	BatchSizeDocuments      int           `env:"SWEEPER_BATCH_DOCUMENTS"     yaml:"batch_size_documents"`
	BatchSizeURLs           int           `env:"SWEEPER_BATCH_URLS"          yaml:"batch_size_urls"`
	MaxRedirects            int           `yaml:"max_redirects"`
	CheckConcurrency        int           `env:"SWEEPER_CHECK_CONCURRENCY"   yaml:"check_concurrency"`
	ScanTTL                 time.Duration `env:"SWEEPER_SCAN_TTL"            yaml:"scan_ttl"`
}

// ScheduleConfig controls unattended sweeps.
type ScheduleConfig struct {
	// Spec is hourly, twicedaily, daily, weekly, disabled or a 5-field cron expression.
	Spec           string `env:"SWEEPER_SCHEDULE"         yaml:"spec"`
	AutoApplyRules bool   `env:"SWEEPER_AUTO_APPLY_RULES" yaml:"auto_apply_rules"`
}

// Validate checks the settings required to start the service.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be positive")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Sweeper.BatchSizeDocuments <= 0 || c.Sweeper.BatchSizeURLs <= 0 {
		return errors.New("sweeper batch sizes must be positive")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis is enabled")
	}
	return nil
}

// Load reads path, applies defaults and env overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid config: %w", validateErr)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultServerTimeout * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// check batches can run close to batch_size_urls * request timeout
		cfg.Server.WriteTimeout = 4 * defaultServerTimeout * time.Second
	}

	setDatabaseDefaults(&cfg.Database)

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}

	cfg.Logging.SetDefaults()
	if cfg.Debug {
		cfg.Logging.Development = true
	}

	setSweeperDefaults(&cfg.Sweeper)

	if cfg.Schedule.Spec == "" {
		cfg.Schedule.Spec = ScheduleDisabled
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Port == 0 {
		db.Port = defaultDatabasePort
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxOpenConns == 0 {
		db.MaxOpenConns = defaultMaxOpenConns
	}
	if db.MaxIdleConns == 0 {
		db.MaxIdleConns = defaultMaxIdleConns
	}
	if db.ConnMaxLifetime == 0 {
		db.ConnMaxLifetime = defaultConnMaxLifetime * time.Minute
	}
}

func setSweeperDefaults(s *SweeperConfig) {
	if s.RequestsPerSecond == 0 {
		s.RequestsPerSecond = defaultRequestsPerSecond
	}
	if s.RequestTimeoutSeconds == 0 {
		s.RequestTimeoutSeconds = defaultRequestTimeoutSecs
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	if len(s.ScanDocumentTypes) == 0 {
		s.ScanDocumentTypes = []string{"post", "page"}
	}
	if s.NormalizeRemoveUTM == nil {
		s.NormalizeRemoveUTM = boolPtr(true)
	}
	if s.NormalizeIgnoreFragment == nil {
		s.NormalizeIgnoreFragment = boolPtr(true)
	}
	if s.BatchSizeDocuments == 0 {
		s.BatchSizeDocuments = defaultBatchDocuments
	}
	if s.BatchSizeURLs == 0 {
		s.BatchSizeURLs = defaultBatchURLs
	}
	if s.CheckConcurrency == 0 {
		s.CheckConcurrency = 1
	}
	if s.MaxRedirects == 0 {
		s.MaxRedirects = defaultMaxRedirects
	}
	if s.ScanTTL == 0 {
		s.ScanTTL = defaultScanTTL
	}
}

func boolPtr(b bool) *bool { return &b }
