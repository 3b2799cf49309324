package config

import (
	"errors"
	"time"
)

// Config represents the tenantd service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cluster     ClusterConfig     `mapstructure:"cluster"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Reconciler  ReconcilerConfig  `mapstructure:"reconciler"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Health      HealthConfig      `mapstructure:"health"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig represents the Redis scope cache configuration. The cache
// is optional; with Enabled false scopes are cached in memory only.
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// ClusterConfig represents the orchestration cluster connection
type ClusterConfig struct {
	InCluster      bool   `mapstructure:"in_cluster"`
	KubeconfigPath string `mapstructure:"kubeconfig_path"`
}

// SchedulerConfig represents the schedule engine configuration
type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
}

// ReconcilerConfig represents the cluster reconciliation loop
type ReconcilerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// AuthConfig represents token validation configuration. Mode "userinfo"
// validates bearer tokens against an identity provider's userinfo
// endpoint; mode "static" uses the configured token table and is meant
// for development only.
type AuthConfig struct {
	Mode         string                 `mapstructure:"mode"`
	UserinfoURL  string                 `mapstructure:"userinfo_url"`
	ClientID     string                 `mapstructure:"client_id"`
	Timeout      time.Duration          `mapstructure:"timeout"`
	StaticTokens map[string]StaticToken `mapstructure:"static_tokens"`
}

// StaticToken maps a development bearer token to a subject
type StaticToken struct {
	SubjectID string   `mapstructure:"subject_id"`
	Name      string   `mapstructure:"name"`
	Email     string   `mapstructure:"email"`
	Roles     []string `mapstructure:"roles"`
}

// RateLimiterConfig represents request rate limiting
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// CacheConfig represents cache TTLs and sizes
type CacheConfig struct {
	TenantStatusTTL time.Duration `mapstructure:"tenant_status_ttl"`
	ScopeTTL        time.Duration `mapstructure:"scope_ttl"`
	MaxSize         int           `mapstructure:"max_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig represents the health probe server
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Database == "" {
		return errors.New("database.database is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return errors.New("redis.host is required when redis is enabled")
	}
	if c.Scheduler.PollInterval <= 0 {
		return errors.New("scheduler.poll_interval must be positive")
	}
	if c.Scheduler.ActionTimeout <= 0 {
		return errors.New("scheduler.action_timeout must be positive")
	}
	if c.Reconciler.Interval <= 0 {
		return errors.New("reconciler.interval must be positive")
	}
	switch c.Auth.Mode {
	case "userinfo":
		if c.Auth.UserinfoURL == "" {
			return errors.New("auth.userinfo_url is required in userinfo mode")
		}
	case "static":
		if len(c.Auth.StaticTokens) == 0 {
			return errors.New("auth.static_tokens is required in static mode")
		}
	default:
		return errors.New("auth.mode must be one of: userinfo, static")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tenantd",
			User:            "tenantd",
			Password:        "",
			MaxConnections:  20,
			MinConnections:  5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         6379,
			DB:           0,
			PoolSize:     50,
			MinIdleConns: 5,
		},
		Cluster: ClusterConfig{
			InCluster: true,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			PollInterval:  30 * time.Second,
			ActionTimeout: 2 * time.Minute,
		},
		Reconciler: ReconcilerConfig{
			Enabled:  true,
			Interval: time.Minute,
		},
		Auth: AuthConfig{
			Mode:    "userinfo",
			Timeout: 5 * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		Cache: CacheConfig{
			TenantStatusTTL: 15 * time.Second,
			ScopeTTL:        time.Minute,
			MaxSize:         10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Port: 8081,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
