package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Remote     RemoteConfig
	Sync       SyncConfig
	Scheduler  SchedulerConfig
	HotRefresh HotRefreshConfig
	Report     ReportConfig
	Telemetry  TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, mysql, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file path
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string

	// Per-client limit on POST /sync/runs
	SyncTriggerInterval time.Duration
	SyncTriggerBurst    int
}

// RemoteConfig holds the marketplace open API settings
type RemoteConfig struct {
	BaseURL         string
	AppID           string
	AppSecret       string
	TokenPath       string
	OrderListPath   string
	RequestTimeout  time.Duration // per HTTP request
	MinCallInterval time.Duration // spacing enforced by the shared limiter
	MaxAttempts     int
	RetryDelay      time.Duration
}

// SyncConfig holds sync driver thresholds
type SyncConfig struct {
	PageSize          int
	MaxPages          int           // circuit breaker
	PageThrottle      time.Duration // sleep after each persisted page
	ActiveStoreWindow time.Duration // stores with a purchase this recent are active
	Buffer            time.Duration // subtracted from the watermark anchor
	IdleLookback      time.Duration // anchor when no store is active
	ColdStartLookback time.Duration // anchor when nothing is stored
	SpecificChunkSize int
}

// SchedulerConfig holds the periodic sync scheduler configuration
type SchedulerConfig struct {
	Enabled         bool
	Interval        time.Duration
	RunOnStart      bool
	DistributedLock bool          // share the run gate through Redis
	LockTTL         time.Duration // lease length of the distributed gate
	HistorySize     int
}

// HotRefreshConfig holds the single-order fast path configuration
type HotRefreshConfig struct {
	Enabled  bool
	MaxAge   time.Duration // local rows older than this are refreshed
	GuardTTL time.Duration // suppresses repeated refreshes of one id
}

// ReportConfig holds sales rollup configuration
type ReportConfig struct {
	// MarketplaceOffsets overrides the built-in UTC offsets, in minutes
	MarketplaceOffsets map[string]int
	DefaultLimit       int
	MaxLimit           int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool    // Export metrics through the collector
	MetricsInterval   time.Duration
	LogsEnabled       bool // Bridge zap entries to the collector
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_REMOTE_APP_SECRET)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// ./config.toml and /app/config.toml.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var rawOffsets map[string]int
	if err := v.UnmarshalKey("report.marketplace_offsets", &rawOffsets); err != nil {
		return nil, fmt.Errorf("report.marketplace_offsets: %w", err)
	}
	// viper lowercases keys; marketplace ids are upper case
	offsets := make(map[string]int, len(rawOffsets))
	for id, minutes := range rawOffsets {
		offsets[strings.ToUpper(id)] = minutes
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),

			SyncTriggerInterval: v.GetDuration("http.sync_trigger_interval"),
			SyncTriggerBurst:    v.GetInt("http.sync_trigger_burst"),
		},
		Remote: RemoteConfig{
			BaseURL:         v.GetString("remote.base_url"),
			AppID:           v.GetString("remote.app_id"),
			AppSecret:       v.GetString("remote.app_secret"),
			TokenPath:       v.GetString("remote.token_path"),
			OrderListPath:   v.GetString("remote.order_list_path"),
			RequestTimeout:  v.GetDuration("remote.request_timeout"),
			MinCallInterval: v.GetDuration("remote.min_call_interval"),
			MaxAttempts:     v.GetInt("remote.max_attempts"),
			RetryDelay:      v.GetDuration("remote.retry_delay"),
		},
		Sync: SyncConfig{
			PageSize:          v.GetInt("sync.page_size"),
			MaxPages:          v.GetInt("sync.max_pages"),
			PageThrottle:      v.GetDuration("sync.page_throttle"),
			ActiveStoreWindow: v.GetDuration("sync.active_store_window"),
			Buffer:            v.GetDuration("sync.buffer"),
			IdleLookback:      v.GetDuration("sync.idle_lookback"),
			ColdStartLookback: v.GetDuration("sync.cold_start_lookback"),
			SpecificChunkSize: v.GetInt("sync.specific_chunk_size"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         v.GetBool("scheduler.enabled"),
			Interval:        v.GetDuration("scheduler.interval"),
			RunOnStart:      v.GetBool("scheduler.run_on_start"),
			DistributedLock: v.GetBool("scheduler.distributed_lock"),
			LockTTL:         v.GetDuration("scheduler.lock_ttl"),
			HistorySize:     v.GetInt("scheduler.history_size"),
		},
		HotRefresh: HotRefreshConfig{
			Enabled:  !v.IsSet("hot_refresh.enabled") || v.GetBool("hot_refresh.enabled"),
			MaxAge:   v.GetDuration("hot_refresh.max_age"),
			GuardTTL: v.GetDuration("hot_refresh.guard_ttl"),
		},
		Report: ReportConfig{
			MarketplaceOffsets: offsets,
			DefaultLimit:       v.GetInt("report.default_limit"),
			MaxLimit:           v.GetInt("report.max_limit"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ordersync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		if cfg.Database.Driver == DriverMySQL {
			cfg.Database.Port = 3306
		} else {
			cfg.Database.Port = 5432
		}
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ordersync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "ordersync.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// manual sync runs are synchronous and can take minutes
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.SyncTriggerInterval == 0 {
		cfg.HTTP.SyncTriggerInterval = 10 * time.Second
	}
	if cfg.HTTP.SyncTriggerBurst == 0 {
		cfg.HTTP.SyncTriggerBurst = 3
	}

	// Remote API defaults
	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = "https://openapi.lingxing.com"
	}
	if cfg.Remote.RequestTimeout == 0 {
		cfg.Remote.RequestTimeout = 30 * time.Second
	}
	if cfg.Remote.MinCallInterval == 0 {
		cfg.Remote.MinCallInterval = 1100 * time.Millisecond
	}
	if cfg.Remote.MaxAttempts == 0 {
		cfg.Remote.MaxAttempts = 3
	}
	if cfg.Remote.RetryDelay == 0 {
		cfg.Remote.RetryDelay = time.Second
	}

	// Sync driver defaults
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 200
	}
	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = 500
	}
	if cfg.Sync.PageThrottle == 0 {
		cfg.Sync.PageThrottle = 500 * time.Millisecond
	}
	if cfg.Sync.ActiveStoreWindow == 0 {
		cfg.Sync.ActiveStoreWindow = 72 * time.Hour
	}
	if cfg.Sync.Buffer == 0 {
		cfg.Sync.Buffer = 2 * time.Hour
	}
	if cfg.Sync.IdleLookback == 0 {
		cfg.Sync.IdleLookback = 24 * time.Hour
	}
	if cfg.Sync.ColdStartLookback == 0 {
		cfg.Sync.ColdStartLookback = 30 * 24 * time.Hour
	}
	if cfg.Sync.SpecificChunkSize == 0 {
		cfg.Sync.SpecificChunkSize = 200
	}

	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 10 * time.Minute
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = 30 * time.Minute
	}
	if cfg.Scheduler.HistorySize == 0 {
		cfg.Scheduler.HistorySize = 50
	}

	if cfg.HotRefresh.MaxAge == 0 {
		cfg.HotRefresh.MaxAge = time.Hour
	}
	if cfg.HotRefresh.GuardTTL == 0 {
		cfg.HotRefresh.GuardTTL = time.Minute
	}

	if cfg.Report.DefaultLimit == 0 {
		cfg.Report.DefaultLimit = 100
	}
	if cfg.Report.MaxLimit == 0 {
		cfg.Report.MaxLimit = 1000
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ordersync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be one of postgres, mysql, sqlite, got %q", c.Database.Driver)
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.PageSize < 1 || c.Sync.PageSize > 200 {
		return fmt.Errorf("sync.page_size must be between 1 and 200, got %d", c.Sync.PageSize)
	}
	if c.Sync.MaxPages < 1 {
		return fmt.Errorf("sync.max_pages must be positive")
	}
	if c.Sync.SpecificChunkSize < 1 || c.Sync.SpecificChunkSize > 200 {
		return fmt.Errorf("sync.specific_chunk_size must be between 1 and 200, got %d", c.Sync.SpecificChunkSize)
	}
	if c.Remote.MaxAttempts < 1 {
		return fmt.Errorf("remote.max_attempts must be positive")
	}
	if c.Scheduler.DistributedLock && !c.Redis.Enabled {
		return fmt.Errorf("scheduler.distributed_lock requires redis.enabled")
	}
	if c.Report.DefaultLimit > c.Report.MaxLimit {
		return fmt.Errorf("report.default_limit (%d) cannot exceed report.max_limit (%d)",
			c.Report.DefaultLimit, c.Report.MaxLimit)
	}
	for id, minutes := range c.Report.MarketplaceOffsets {
		if minutes < -14*60 || minutes > 14*60 {
			return fmt.Errorf("report.marketplace_offsets.%s must be within +/-14h, got %d minutes", id, minutes)
		}
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Remote.AppID == "" || c.Remote.AppSecret == "" {
			return fmt.Errorf("remote.app_id and remote.app_secret are required in production")
		}
		if c.Database.Driver != DriverSQLite && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == DriverPostgres && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// MySQLDSN returns the go-sql-driver/mysql connection string
func (d *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// MigrateURL returns the golang-migrate database URL for the configured driver
func (d *DatabaseConfig) MigrateURL() string {
	switch d.Driver {
	case DriverMySQL:
		return "mysql://" + fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.DBName)
	case DriverSQLite:
		return "sqlite3://" + d.Path
	default:
		return d.DSN()
	}
}
