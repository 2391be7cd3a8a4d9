package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// MinDeliveryRetention is the shortest ledger retention allowed. Quota and
// cooldown checks read the last day of rows, so anything shorter would let a
// rule fire again early.
const MinDeliveryRetention = 48 * time.Hour

type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Sources   SourcesConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
	Alerting  AlertingConfig
	Email     EmailConfig
	SMS       SMSConfig
	Cache     CacheConfig
	Retention RetentionConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	USGSEnabled       bool
	USGSURL           string
	USGSPollInterval  time.Duration
	GDACSEnabled      bool
	GDACSURL          string
	GDACSPollInterval time.Duration
	NWSEnabled        bool
	NWSURL            string
	NWSPollInterval   time.Duration
	UserAgent         string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

type AlertingConfig struct {
	Timezone       string
	AdapterTimeout time.Duration
	RulesFile      string
	WatchRules     bool
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// Enabled reports whether enough is set to talk to an SMTP server.
func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.From != ""
}

type SMSConfig struct {
	GatewayURL string
	Token      string
	From       string
}

func (s SMSConfig) Enabled() bool {
	return s.GatewayURL != ""
}

type CacheConfig struct {
	RedisAddr   string
	RedisDB     int
	SettingsTTL time.Duration
	StaleTTL    time.Duration
}

type RetentionConfig struct {
	Deliveries time.Duration
	Schedule   string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			USGSEnabled:       getEnvBool("USGS_ENABLED", true),
			USGSURL:           getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"),
			USGSPollInterval:  getEnvDuration("USGS_POLL_INTERVAL", 5*time.Minute),
			GDACSEnabled:      getEnvBool("GDACS_ENABLED", true),
			GDACSURL:          getEnv("GDACS_URL", "https://www.gdacs.org/xml/rss.xml"),
			GDACSPollInterval: getEnvDuration("GDACS_POLL_INTERVAL", 10*time.Minute),
			NWSEnabled:        getEnvBool("NWS_ENABLED", false),
			NWSURL:            getEnv("NWS_URL", "https://api.weather.gov/alerts/active?status=actual"),
			NWSPollInterval:   getEnvDuration("NWS_POLL_INTERVAL", 5*time.Minute),
			UserAgent:         getEnv("SOURCES_USER_AGENT", "go-emergency-alerts (ops@example.com)"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/emergency-alerts.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Alerting: AlertingConfig{
			Timezone:       getEnv("ALERT_TIMEZONE", "Local"),
			AdapterTimeout: getEnvDuration("ALERT_ADAPTER_TIMEOUT", 10*time.Second),
			RulesFile:      getEnv("ALERT_RULES_FILE", ""),
			WatchRules:     getEnvBool("ALERT_WATCH_RULES", true),
		},
		Email: EmailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			UseTLS:   getEnvBool("SMTP_TLS", false),
		},
		SMS: SMSConfig{
			GatewayURL: getEnv("SMS_GATEWAY_URL", ""),
			Token:      getEnv("SMS_GATEWAY_TOKEN", ""),
			From:       getEnv("SMS_FROM", ""),
		},
		Cache: CacheConfig{
			RedisAddr:   getEnv("REDIS_ADDR", ""),
			RedisDB:     getEnvInt("REDIS_DB", 0),
			SettingsTTL: getEnvDuration("SETTINGS_CACHE_TTL", 30*time.Second),
			StaleTTL:    getEnvDuration("SETTINGS_CACHE_STALE_TTL", 10*time.Minute),
		},
		Retention: RetentionConfig{
			Deliveries: getEnvDuration("DELIVERY_RETENTION", 30*24*time.Hour),
			Schedule:   getEnv("RETENTION_SCHEDULE", "@every 1h"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location resolves Alerting.Timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Alerting.Timezone == "" || c.Alerting.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Alerting.Timezone)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Sources.USGSPollInterval < time.Minute {
		return fmt.Errorf("USGS poll interval must be at least 1 minute")
	}
	if c.Sources.GDACSPollInterval < time.Minute {
		return fmt.Errorf("GDACS poll interval must be at least 1 minute")
	}
	if c.Sources.NWSPollInterval < time.Minute {
		return fmt.Errorf("NWS poll interval must be at least 1 minute")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid alert timezone %q: %w", c.Alerting.Timezone, err)
	}
	if c.Alerting.AdapterTimeout <= 0 {
		return fmt.Errorf("adapter timeout must be positive")
	}

	if c.Email.Port < 1 || c.Email.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", c.Email.Port)
	}

	if c.Cache.SettingsTTL < 0 || c.Cache.StaleTTL < 0 {
		return fmt.Errorf("cache TTLs must not be negative")
	}

	if c.Retention.Deliveries < MinDeliveryRetention {
		return fmt.Errorf("delivery retention must be at least %s", MinDeliveryRetention)
	}
	if c.Retention.Schedule == "" {
		return fmt.Errorf("retention schedule must be set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
