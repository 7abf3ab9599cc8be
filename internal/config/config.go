package config

import (
	"fmt"
	"strings"
	"time"

	"cyberguard-server/internal/metrics"
	"cyberguard-server/internal/scan"
	"cyberguard-server/internal/scoring"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scan     scan.Config    `mapstructure:"scan"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
}

type ServerConfig struct {
	Address    string `mapstructure:"address"`
	Mode       string `mapstructure:"mode"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

type DatabaseConfig struct {
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
	InfluxDB   InfluxDBConfig   `mapstructure:"influxdb"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type PostgreSQLConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type InfluxDBConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	MaxRetries   int    `mapstructure:"max_retries"`
}

type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type SecurityConfig struct {
	JWTSecret      string            `mapstructure:"jwt_secret"`
	RateLimit      int               `mapstructure:"rate_limit"`
	AllowedOrigins []string          `mapstructure:"allowed_origins"`
	AdminUsername  string            `mapstructure:"admin_username"`
	AdminPassword  string            `mapstructure:"admin_password"`
	SourceKeys     map[string]string `mapstructure:"source_keys"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Aggregator      metrics.Config `mapstructure:"aggregator"`
	RefreshInterval time.Duration  `mapstructure:"refresh_interval"`
	SnapshotKey     string         `mapstructure:"snapshot_key"`
	SnapshotTTL     time.Duration  `mapstructure:"snapshot_ttl"`
}

type ScoringConfig struct {
	Compliance scoring.ComplianceThresholds `mapstructure:"compliance"`
	Phishing   scoring.PhishingConfig       `mapstructure:"phishing"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/cyberguard")
	viper.AddConfigPath("$HOME/.cyberguard")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CYBERGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":5000")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.tls_enabled", false)

	// Database defaults
	viper.SetDefault("database.postgresql.host", "localhost")
	viper.SetDefault("database.postgresql.port", 5432)
	viper.SetDefault("database.postgresql.user", "cyberguard")
	viper.SetDefault("database.postgresql.password", "cyberguard")
	viper.SetDefault("database.postgresql.database", "cyberguard")
	viper.SetDefault("database.postgresql.sslmode", "disable")
	viper.SetDefault("database.postgresql.max_idle_conns", 10)
	viper.SetDefault("database.postgresql.max_open_conns", 100)
	viper.SetDefault("database.postgresql.conn_max_lifetime", 3600)

	viper.SetDefault("database.influxdb.url", "http://localhost:8086")
	viper.SetDefault("database.influxdb.token", "")
	viper.SetDefault("database.influxdb.org", "cyberguard")
	viper.SetDefault("database.influxdb.bucket", "security_metrics")

	viper.SetDefault("database.redis.address", "localhost:6379")
	viper.SetDefault("database.redis.db", 0)
	viper.SetDefault("database.redis.pool_size", 10)
	viper.SetDefault("database.redis.min_idle_conns", 5)
	viper.SetDefault("database.redis.max_retries", 3)

	// Storage defaults
	viper.SetDefault("storage.minio.endpoint", "localhost:9000")
	viper.SetDefault("storage.minio.bucket", "scan-reports")
	viper.SetDefault("storage.minio.use_ssl", false)
	viper.SetDefault("storage.minio.region", "us-east-1")

	// Security defaults
	viper.SetDefault("security.jwt_secret", "change-me-in-production-0123456789ab")
	viper.SetDefault("security.rate_limit", 100)
	viper.SetDefault("security.allowed_origins", []string{"*"})
	viper.SetDefault("security.admin_username", "admin")
	viper.SetDefault("security.admin_password", "change-me-in-production")
	viper.SetDefault("security.source_keys", map[string]string{})

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// Scan defaults
	scanDefaults := scan.DefaultConfig()
	viper.SetDefault("scan.basic_ports", scanDefaults.BasicPorts)
	viper.SetDefault("scan.comprehensive_ports", scanDefaults.ComprehensivePorts)
	viper.SetDefault("scan.history_size", scanDefaults.HistorySize)
	viper.SetDefault("scan.max_retries", scanDefaults.MaxRetries)
	viper.SetDefault("scan.tick", scanDefaults.Tick)
	viper.SetDefault("scan.probe_timeout", scanDefaults.ProbeTimeout)

	// Metrics defaults
	aggDefaults := metrics.DefaultConfig()
	viper.SetDefault("metrics.aggregator.window_size", aggDefaults.WindowSize)
	viper.SetDefault("metrics.aggregator.scan_window_size", aggDefaults.ScanWindowSize)
	viper.SetDefault("metrics.aggregator.recent_size", aggDefaults.RecentSize)
	viper.SetDefault("metrics.aggregator.critical_penalty", aggDefaults.CriticalPenalty)
	viper.SetDefault("metrics.aggregator.vuln_penalty", aggDefaults.VulnPenalty)
	viper.SetDefault("metrics.refresh_interval", 30*time.Second)
	viper.SetDefault("metrics.snapshot_key", "cyberguard:metrics:latest")
	viper.SetDefault("metrics.snapshot_ttl", time.Hour)

	// Scoring defaults
	compliance := scoring.DefaultComplianceThresholds()
	viper.SetDefault("scoring.compliance.pci_dss_max_critical", compliance.PCIDSSMaxCritical)
	viper.SetDefault("scoring.compliance.iso27001_max_severe", compliance.ISO27001MaxSevere)
	viper.SetDefault("scoring.compliance.soc2_max_risk_score", compliance.SOC2MaxRiskScore)
	viper.SetDefault("scoring.compliance.nist_max_public_exploits", compliance.NISTMaxPublicExploits)
	viper.SetDefault("scoring.phishing.spoofed_domains", scoring.DefaultPhishingConfig().SpoofedDomains)
}

// DefaultMetricsConfig is the metrics configuration used when no config
// file can be loaded.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Aggregator:      metrics.DefaultConfig(),
		RefreshInterval: 30 * time.Second,
		SnapshotKey:     "cyberguard:metrics:latest",
		SnapshotTTL:     time.Hour,
	}
}

// DefaultScoringConfig is the scoring configuration used when no config
// file can be loaded.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Compliance: scoring.DefaultComplianceThresholds(),
		Phishing:   scoring.DefaultPhishingConfig(),
	}
}

func validateConfig(config *Config) error {
	if config.Server.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	if config.Server.Mode != "debug" && config.Server.Mode != "release" && config.Server.Mode != "production" {
		return fmt.Errorf("invalid server mode: %s", config.Server.Mode)
	}

	if config.Database.PostgreSQL.Host == "" {
		return fmt.Errorf("PostgreSQL host cannot be empty")
	}

	if config.Database.PostgreSQL.Port < 1 || config.Database.PostgreSQL.Port > 65535 {
		return fmt.Errorf("invalid PostgreSQL port: %d", config.Database.PostgreSQL.Port)
	}

	if config.Database.InfluxDB.URL == "" {
		return fmt.Errorf("InfluxDB URL cannot be empty")
	}

	if config.Database.Redis.Address == "" {
		return fmt.Errorf("Redis address cannot be empty")
	}

	if config.Storage.MinIO.Endpoint == "" {
		return fmt.Errorf("MinIO endpoint cannot be empty")
	}

	if len(config.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters long")
	}

	if config.Scan.HistorySize < 1 {
		return fmt.Errorf("scan history size must be positive")
	}

	if config.Metrics.Aggregator.WindowSize < 1 {
		return fmt.Errorf("metrics window size must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	validLevel := false
	for _, level := range validLogLevels {
		if config.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
