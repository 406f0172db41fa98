package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed, validated configuration surface for both the
// collaboration server and the maintenance agent process.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Lock         LockConfig         `mapstructure:"lock"`
	Connection   ConnectionConfig   `mapstructure:"connection"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
	App          AppConfig          `mapstructure:"app"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	URL             string        `mapstructure:"url"`
}

// RedisConfig holds Redis connection configuration (the distributed KV).
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// LogConfig holds structured logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LockConfig holds Lock Manager configuration.
type LockConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	ReleaseTimeout time.Duration `mapstructure:"release_timeout"`
	ValuePrefix    string        `mapstructure:"value_prefix"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
	ReaperGrace    time.Duration `mapstructure:"reaper_grace"`
}

// ConnectionConfig holds Connection Manager / WebSocket hub configuration.
type ConnectionConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	SendBufferSize    int           `mapstructure:"send_buffer_size"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
}

// TelemetryConfig holds Telemetry Ingest configuration.
type TelemetryConfig struct {
	BatchMaxSamples   int           `mapstructure:"batch_max_samples"`
	RateLimitPerSec   float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	InsertTimeout     time.Duration `mapstructure:"insert_timeout"`
}

// MaintenanceConfig holds the periodic maintenance-loop configuration.
type MaintenanceConfig struct {
	TelemetryMonitorInterval   time.Duration `mapstructure:"telemetry_monitor_interval"`
	PredictiveLoopInterval     time.Duration `mapstructure:"predictive_loop_interval"`
	ScheduleOptimizerInterval  time.Duration `mapstructure:"schedule_optimizer_interval"`
	AlertDispatcherInterval    time.Duration `mapstructure:"alert_dispatcher_interval"`
	SessionSweepInterval       time.Duration `mapstructure:"session_sweep_interval"`
	AnomalyContamination       float64       `mapstructure:"anomaly_contamination"`
	AnomalyMinTrainingSamples  int           `mapstructure:"anomaly_min_training_samples"`
	AnomalyTrainingWindowDays  int           `mapstructure:"anomaly_training_window_days"`
	TicketDedupWindow          time.Duration `mapstructure:"ticket_dedup_window"`
	VibrationCritical          float64       `mapstructure:"vibration_critical"`
	TemperatureCritical        float64       `mapstructure:"temperature_critical"`
}

// AppConfig holds application-identity configuration.
type AppConfig struct {
	Name          string        `mapstructure:"name"`
	Version       string        `mapstructure:"version"`
	Environment   string        `mapstructure:"environment"`
	Debug         bool          `mapstructure:"debug"`
	Timezone      string        `mapstructure:"timezone"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// LoadConfig loads configuration from an optional YAML file, environment
// variables, and defaults, in that order of increasing precedence.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from defaults and environment
// variables only, skipping file discovery entirely.
func LoadConfigFromEnv() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "genesis")
	viper.SetDefault("database.username", "genesis")
	viper.SetDefault("database.password", "genesis")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("database.query_timeout", "30s")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.min_retry_backoff", "100ms")
	viper.SetDefault("redis.max_retry_backoff", "500ms")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// Lock Manager: TTL and reaper cadence grounded on spec.md §4.1's
	// "locks auto-expire if the holder's session drops".
	viper.SetDefault("lock.ttl", "30s")
	viper.SetDefault("lock.max_retries", 3)
	viper.SetDefault("lock.retry_interval", "100ms")
	viper.SetDefault("lock.acquire_timeout", "5s")
	viper.SetDefault("lock.release_timeout", "2s")
	viper.SetDefault("lock.value_prefix", "lock")
	viper.SetDefault("lock.reaper_interval", "30s")
	viper.SetDefault("lock.reaper_grace", "30s")

	viper.SetDefault("connection.heartbeat_interval", "15s")
	viper.SetDefault("connection.heartbeat_timeout", "45s")
	viper.SetDefault("connection.write_timeout", "10s")
	viper.SetDefault("connection.send_buffer_size", 256)
	viper.SetDefault("connection.session_ttl", "24h")

	viper.SetDefault("telemetry.batch_max_samples", 500)
	viper.SetDefault("telemetry.rate_limit_per_sec", 200.0)
	viper.SetDefault("telemetry.rate_limit_burst", 400)
	viper.SetDefault("telemetry.insert_timeout", "5s")

	viper.SetDefault("maintenance.telemetry_monitor_interval", "1m")
	viper.SetDefault("maintenance.predictive_loop_interval", "15m")
	viper.SetDefault("maintenance.schedule_optimizer_interval", "1h")
	viper.SetDefault("maintenance.alert_dispatcher_interval", "5m")
	viper.SetDefault("maintenance.session_sweep_interval", "1m")
	viper.SetDefault("maintenance.anomaly_contamination", 0.05)
	viper.SetDefault("maintenance.anomaly_min_training_samples", 100)
	viper.SetDefault("maintenance.anomaly_training_window_days", 30)
	viper.SetDefault("maintenance.ticket_dedup_window", "24h")
	viper.SetDefault("maintenance.vibration_critical", 0.8)
	viper.SetDefault("maintenance.temperature_critical", 95.0)

	viper.SetDefault("app.name", "genesis")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.timezone", "UTC")
	viper.SetDefault("app.max_workers", 10)
	viper.SetDefault("app.worker_timeout", "5m")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 8080)
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver cannot be empty")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr cannot be empty")
	}
	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}
	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be greater than 0")
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return fmt.Errorf("connection.heartbeat_interval must be greater than 0")
	}
	if c.Telemetry.BatchMaxSamples <= 0 {
		return fmt.Errorf("telemetry.batch_max_samples must be greater than 0")
	}
	if c.Maintenance.AnomalyContamination <= 0 || c.Maintenance.AnomalyContamination >= 1 {
		return fmt.Errorf("maintenance.anomaly_contamination must be in (0, 1)")
	}
	return nil
}

// GetDatabaseURL constructs the database connection URL from configuration.
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Driver,
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		sslMode,
	)
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDebug() bool {
	return c.App.Debug || c.IsDevelopment()
}
