// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSetting is returned when a check needs a setting that is not configured.
var ErrMissingSetting = errors.New("missing required setting")

// Authentication methods understood by the PI Web API client.
const (
	AuthBasic     = "basic"
	AuthAnonymous = "anonymous"
	AuthBearer    = "bearer"
)

// ManualLoggerSite is the IIS application PI Manual Logger Web is served from.
const ManualLoggerSite = "piml.web"

// Config holds all configuration for the application.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	PI       PIConfig       `yaml:"pi"`
	Polling  PollingConfig  `yaml:"polling"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Version   string `yaml:"-"`
}

// IsDevelopment returns true if the app is running in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "dev"
}

// IsProduction returns true if the app is running in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// ServerConfig holds configuration for the verification service.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustProxy      bool          `yaml:"trust_proxy"`
}

// Address returns the server address in host:port format.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PIConfig describes the PI System under test.
type PIConfig struct {
	WebAPIHost                string        `yaml:"webapi_host"`
	WebAPIPort                int           `yaml:"webapi_port"`
	WebAPIPath                string        `yaml:"webapi_path"`
	WebAPIScheme              string        `yaml:"webapi_scheme"`
	ConfigurationInstance     string        `yaml:"configuration_instance"`
	Crawler                   string        `yaml:"crawler"`
	AFServer                  string        `yaml:"af_server"`
	AFDatabase                string        `yaml:"af_database"`
	DataArchive               string        `yaml:"data_archive"`
	AnalysisService           string        `yaml:"analysis_service"`
	ManualLogger              string        `yaml:"manual_logger"`
	ManualLoggerPort          int           `yaml:"manual_logger_port"`
	TestPointName             string        `yaml:"test_point"`
	AuthMethod                string        `yaml:"auth_method"`
	User                      string        `yaml:"user"`
	Password                  string        `yaml:"password"`
	EncryptionKey             string        `yaml:"encryption_key"`
	SkipCertificateValidation bool          `yaml:"skip_certificate_validation"`
	RequestTimeout            time.Duration `yaml:"request_timeout"`
	CacheTTL                  time.Duration `yaml:"cache_ttl"`
	OIDC                      OIDCConfig    `yaml:"oidc"`
}

// OIDCConfig holds client credentials for bearer authentication.
type OIDCConfig struct {
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// BaseURL returns the PI Web API root, e.g. https://host:443/piwebapi.
func (p PIConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d/%s", p.scheme(), p.WebAPIHost, p.WebAPIPort, strings.Trim(p.WebAPIPath, "/"))
}

// ChannelURL returns the websocket root used for stream channels.
func (p PIConfig) ChannelURL() string {
	ws := "wss"
	if p.scheme() == "http" {
		ws = "ws"
	}
	return fmt.Sprintf("%s://%s:%d/%s", ws, p.WebAPIHost, p.WebAPIPort, strings.Trim(p.WebAPIPath, "/"))
}

func (p PIConfig) scheme() string {
	if strings.EqualFold(p.WebAPIScheme, "http") {
		return "http"
	}
	return "https"
}

// ManualLoggerURL returns the PI Manual Logger Web root, e.g.
// https://host:443/piml.web.
func (p PIConfig) ManualLoggerURL() string {
	return fmt.Sprintf("https://%s:%d/%s", p.ManualLogger, p.ManualLoggerPort, ManualLoggerSite)
}

// ConfigurationElement returns the name of the PI Web API configuration
// instance, defaulting to the short host name.
func (p PIConfig) ConfigurationElement() string {
	if p.ConfigurationInstance != "" {
		return p.ConfigurationInstance
	}
	return strings.Split(p.WebAPIHost, ".")[0]
}

// CrawlerHost returns the indexed search crawler machine.
func (p PIConfig) CrawlerHost() string {
	if p.Crawler != "" {
		return p.Crawler
	}
	return p.ConfigurationElement()
}

// Require returns ErrMissingSetting naming the first empty value.
func (p PIConfig) Require(names ...string) error {
	values := map[string]string{
		"PIWebAPI":          p.WebAPIHost,
		"AFServer":          p.AFServer,
		"AFDatabase":        p.AFDatabase,
		"PIDataArchive":     p.DataArchive,
		"PIAnalysisService": p.AnalysisService,
		"PIManualLogger":    p.ManualLogger,
		"PITestPoint":       p.TestPointName,
	}
	for _, name := range names {
		if strings.TrimSpace(values[name]) == "" {
			return fmt.Errorf("%w: %s", ErrMissingSetting, name)
		}
	}
	return nil
}

// PollingConfig bounds how long checks wait on asynchronous server state.
type PollingConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	Interval       time.Duration `yaml:"interval"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
	StreamInterval time.Duration `yaml:"stream_interval"`
	CheckTimeout   time.Duration `yaml:"check_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// KafkaConfig holds configuration for publishing check results.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		App: AppConfig{Env: "development", LogLevel: "info", LogFormat: "console"},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		PI: PIConfig{
			WebAPIPort:       443,
			WebAPIPath:       "piwebapi",
			ManualLoggerPort: 443,
			AuthMethod:       AuthBasic,
			TestPointName:    "OSIsoftTests.Region 0.Wind Farm 00.TUR00000.Random",
			RequestTimeout:   30 * time.Second,
			CacheTTL:         10 * time.Minute,
		},
		Polling: PollingConfig{
			Timeout:        30 * time.Second,
			Interval:       time.Second,
			StreamTimeout:  60 * time.Second,
			StreamInterval: 5 * time.Second,
			CheckTimeout:   5 * time.Minute,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "pideploy",
			DBName:          "pideploy",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{Port: 6379, PoolSize: 10},
		Kafka: KafkaConfig{Topic: "pideploy.results", BatchSize: 50, FlushInterval: 5 * time.Second},
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with any environment variables that are set.
func applyEnv(cfg *Config) error {
	var err error

	// App config
	cfg.App.Env = getEnvOrDefault("APP_ENV", cfg.App.Env)
	cfg.App.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.App.LogFormat)

	// Server config
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	if cfg.Server.Port, err = getEnvAsInt("SERVER_PORT", cfg.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	if cfg.Server.ReadTimeout, err = getEnvAsDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout); err != nil {
		return fmt.Errorf("invalid SERVER_READ_TIMEOUT: %w", err)
	}
	if cfg.Server.WriteTimeout, err = getEnvAsDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout); err != nil {
		return fmt.Errorf("invalid SERVER_WRITE_TIMEOUT: %w", err)
	}
	if cfg.Server.ShutdownTimeout, err = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.Server.TrustProxy, err = getEnvAsBool("SERVER_TRUST_PROXY", cfg.Server.TrustProxy); err != nil {
		return fmt.Errorf("invalid SERVER_TRUST_PROXY: %w", err)
	}

	// PI System config
	cfg.PI.WebAPIHost = getEnvOrDefault("PIWEBAPI", cfg.PI.WebAPIHost)
	if cfg.PI.WebAPIPort, err = getEnvAsInt("PIWEBAPI_PORT", cfg.PI.WebAPIPort); err != nil {
		return fmt.Errorf("invalid PIWEBAPI_PORT: %w", err)
	}
	cfg.PI.WebAPIPath = getEnvOrDefault("PIWEBAPI_PATH", cfg.PI.WebAPIPath)
	cfg.PI.WebAPIScheme = getEnvOrDefault("PIWEBAPI_SCHEME", cfg.PI.WebAPIScheme)
	cfg.PI.ConfigurationInstance = getEnvOrDefault("PIWEBAPI_CONFIGURATION_INSTANCE", cfg.PI.ConfigurationInstance)
	cfg.PI.Crawler = getEnvOrDefault("PIWEBAPI_CRAWLER", cfg.PI.Crawler)
	cfg.PI.AFServer = getEnvOrDefault("AF_SERVER", cfg.PI.AFServer)
	cfg.PI.AFDatabase = getEnvOrDefault("AF_DATABASE", cfg.PI.AFDatabase)
	cfg.PI.DataArchive = getEnvOrDefault("PI_DATA_ARCHIVE", cfg.PI.DataArchive)
	cfg.PI.AnalysisService = getEnvOrDefault("PI_ANALYSIS_SERVICE", cfg.PI.AnalysisService)
	cfg.PI.ManualLogger = getEnvOrDefault("PI_MANUAL_LOGGER", cfg.PI.ManualLogger)
	if cfg.PI.ManualLoggerPort, err = getEnvAsInt("PI_MANUAL_LOGGER_PORT", cfg.PI.ManualLoggerPort); err != nil {
		return fmt.Errorf("invalid PI_MANUAL_LOGGER_PORT: %w", err)
	}
	cfg.PI.TestPointName = getEnvOrDefault("PI_TEST_POINT", cfg.PI.TestPointName)
	cfg.PI.AuthMethod = strings.ToLower(getEnvOrDefault("PIWEBAPI_AUTH_METHOD", cfg.PI.AuthMethod))
	cfg.PI.User = getEnvOrDefault("PIWEBAPI_USER", cfg.PI.User)
	cfg.PI.Password = getEnvOrDefault("PIWEBAPI_PASSWORD", cfg.PI.Password)
	cfg.PI.EncryptionKey = getEnvOrDefault("PIWEBAPI_ENCRYPTION_KEY", cfg.PI.EncryptionKey)
	if cfg.PI.SkipCertificateValidation, err = getEnvAsBool("SKIP_CERTIFICATE_VALIDATION", cfg.PI.SkipCertificateValidation); err != nil {
		return fmt.Errorf("invalid SKIP_CERTIFICATE_VALIDATION: %w", err)
	}
	if cfg.PI.RequestTimeout, err = getEnvAsDuration("PIWEBAPI_REQUEST_TIMEOUT", cfg.PI.RequestTimeout); err != nil {
		return fmt.Errorf("invalid PIWEBAPI_REQUEST_TIMEOUT: %w", err)
	}
	if cfg.PI.CacheTTL, err = getEnvAsDuration("WEBID_CACHE_TTL", cfg.PI.CacheTTL); err != nil {
		return fmt.Errorf("invalid WEBID_CACHE_TTL: %w", err)
	}
	cfg.PI.OIDC.IssuerURL = getEnvOrDefault("OIDC_ISSUER_URL", cfg.PI.OIDC.IssuerURL)
	cfg.PI.OIDC.ClientID = getEnvOrDefault("OIDC_CLIENT_ID", cfg.PI.OIDC.ClientID)
	cfg.PI.OIDC.ClientSecret = getEnvOrDefault("OIDC_CLIENT_SECRET", cfg.PI.OIDC.ClientSecret)
	cfg.PI.OIDC.Scopes = getEnvAsList("OIDC_SCOPES", cfg.PI.OIDC.Scopes)

	// Polling config
	if cfg.Polling.Timeout, err = getEnvAsDuration("POLL_TIMEOUT", cfg.Polling.Timeout); err != nil {
		return fmt.Errorf("invalid POLL_TIMEOUT: %w", err)
	}
	if cfg.Polling.Interval, err = getEnvAsDuration("POLL_INTERVAL", cfg.Polling.Interval); err != nil {
		return fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	if cfg.Polling.StreamTimeout, err = getEnvAsDuration("STREAM_POLL_TIMEOUT", cfg.Polling.StreamTimeout); err != nil {
		return fmt.Errorf("invalid STREAM_POLL_TIMEOUT: %w", err)
	}
	if cfg.Polling.StreamInterval, err = getEnvAsDuration("STREAM_POLL_INTERVAL", cfg.Polling.StreamInterval); err != nil {
		return fmt.Errorf("invalid STREAM_POLL_INTERVAL: %w", err)
	}
	if cfg.Polling.CheckTimeout, err = getEnvAsDuration("CHECK_TIMEOUT", cfg.Polling.CheckTimeout); err != nil {
		return fmt.Errorf("invalid CHECK_TIMEOUT: %w", err)
	}

	// Database config
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	if cfg.Database.Port, err = getEnvAsInt("DB_PORT", cfg.Database.Port); err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnvOrDefault("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)
	if cfg.Database.MaxOpenConns, err = getEnvAsInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns); err != nil {
		return fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}
	if cfg.Database.MaxIdleConns, err = getEnvAsInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns); err != nil {
		return fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}
	if cfg.Database.ConnMaxLifetime, err = getEnvAsDuration("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime); err != nil {
		return fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	// Redis config
	cfg.Redis.Host = getEnvOrDefault("REDIS_HOST", cfg.Redis.Host)
	if cfg.Redis.Port, err = getEnvAsInt("REDIS_PORT", cfg.Redis.Port); err != nil {
		return fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getEnvAsInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.Redis.PoolSize, err = getEnvAsInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize); err != nil {
		return fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
	}

	// Kafka config
	cfg.Kafka.Brokers = getEnvAsList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = getEnvOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	if cfg.Kafka.BatchSize, err = getEnvAsInt("KAFKA_BATCH_SIZE", cfg.Kafka.BatchSize); err != nil {
		return fmt.Errorf("invalid KAFKA_BATCH_SIZE: %w", err)
	}
	if cfg.Kafka.FlushInterval, err = getEnvAsDuration("KAFKA_FLUSH_INTERVAL", cfg.Kafka.FlushInterval); err != nil {
		return fmt.Errorf("invalid KAFKA_FLUSH_INTERVAL: %w", err)
	}

	return nil
}

// resolveSecrets decrypts any enc: prefixed credentials.
func (c *Config) resolveSecrets() error {
	if !IsEncrypted(c.PI.Password) {
		return nil
	}
	plain, err := Decrypt(c.PI.Password, c.PI.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid PIWEBAPI_PASSWORD: %w", err)
	}
	c.PI.Password = plain
	return nil
}

// Validate checks settings that every run depends on.
func (c *Config) Validate() error {
	switch c.PI.AuthMethod {
	case AuthBasic, AuthAnonymous, AuthBearer:
	default:
		return fmt.Errorf("invalid PIWEBAPI_AUTH_METHOD %q: want basic, anonymous or bearer", c.PI.AuthMethod)
	}
	if c.PI.AuthMethod == AuthBearer && (c.PI.OIDC.IssuerURL == "" || c.PI.OIDC.ClientID == "") {
		return fmt.Errorf("%w: OIDC_ISSUER_URL and OIDC_CLIENT_ID are required for bearer authentication", ErrMissingSetting)
	}
	if c.PI.WebAPIPort <= 0 || c.PI.WebAPIPort > 65535 {
		return fmt.Errorf("invalid PIWEBAPI_PORT %d", c.PI.WebAPIPort)
	}
	if c.PI.ManualLogger != "" && (c.PI.ManualLoggerPort <= 0 || c.PI.ManualLoggerPort > 65535) {
		return fmt.Errorf("invalid PI_MANUAL_LOGGER_PORT %d", c.PI.ManualLoggerPort)
	}
	return nil
}

// WebAPIEnabled returns true if a PI Web API host is configured.
func (c *Config) WebAPIEnabled() bool {
	return c.PI.WebAPIHost != ""
}

// DatabaseEnabled returns true if database configuration is provided.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Host != "" && c.Database.Password != ""
}

// RedisEnabled returns true if Redis configuration is provided.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

// KafkaEnabled returns true if result publishing is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0 && c.Kafka.Topic != ""
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable as an integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(valueStr)
}

// getEnvAsBool returns the environment variable as a boolean.
func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(valueStr)
}

// getEnvAsDuration returns the environment variable as a duration.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(valueStr)
}

// getEnvAsList splits a comma separated environment variable.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
