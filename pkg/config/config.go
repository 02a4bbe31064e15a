package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the application configuration, read from the environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Bitrix   BitrixConfig
	OpenAI   OpenAIConfig
	Media    MediaConfig
	Engine   EngineConfig
	Triggers TriggerConfig
	Auth     AuthConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	FrontendDir     string
}

// DatabaseConfig selects the flow store. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig: an empty Host disables redis and the
// in-process scheduler is used instead.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// BitrixConfig holds the inbound-webhook URL used for every REST call.
type BitrixConfig struct {
	WebhookURL       string
	BotID            string
	ApplicationToken string
	Timeout          time.Duration
}

// OpenAIConfig holds the default model for aiReply nodes; keys come from
// each node.
type OpenAIConfig struct {
	Model string
}

// MediaConfig configures presigning of s3:// media references.
type MediaConfig struct {
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	URLTTL            time.Duration
}

type EngineConfig struct {
	SyncDelayThreshold time.Duration
	NodeTimeout        time.Duration
	APITimeout         time.Duration
	PollSchedule       string
	FlowCacheTTL       time.Duration
}

// TriggerConfig maps webhook events to the flow that should run for them.
type TriggerConfig struct {
	MessageFlowID string
	RecordFlowID  string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// Enabled reports whether the management API requires a bearer token
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "5000"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
			FrontendDir:     getEnv("FRONTEND_DIR", ""),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:            getEnv("DB_HOST", getEnv("PGHOST", "localhost")),
			Port:            getEnv("DB_PORT", getEnv("PGPORT", "5432")),
			User:            getEnv("DB_USER", getEnv("PGUSER", "postgres")),
			Password:        getEnv("DB_PASSWORD", getEnv("PGPASSWORD", "postgres")),
			DBName:          getEnv("DB_NAME", getEnv("PGDATABASE", "chatflow")),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			SQLitePath:      getEnv("SQLITE_PATH", "chatflow.db"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Bitrix: BitrixConfig{
			WebhookURL:       strings.TrimRight(getEnv("BITRIX_WEBHOOK_URL", ""), "/"),
			BotID:            getEnv("BITRIX_BOT_ID", ""),
			ApplicationToken: getEnv("BITRIX_APPLICATION_TOKEN", ""),
			Timeout:          getDurationEnv("BITRIX_TIMEOUT", 10*time.Second),
		},
		OpenAI: OpenAIConfig{
			Model: getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		},
		Media: MediaConfig{
			S3Region:          getEnv("MEDIA_S3_REGION", getEnv("AWS_REGION", "us-east-1")),
			S3AccessKeyID:     getEnv("MEDIA_S3_ACCESS_KEY_ID", getEnv("AWS_ACCESS_KEY_ID", "")),
			S3SecretAccessKey: getEnv("MEDIA_S3_SECRET_ACCESS_KEY", getEnv("AWS_SECRET_ACCESS_KEY", "")),
			URLTTL:            getDurationEnv("MEDIA_URL_TTL", 24*time.Hour),
		},
		Engine: EngineConfig{
			SyncDelayThreshold: getDurationEnv("ENGINE_SYNC_DELAY_THRESHOLD", 30*time.Second),
			NodeTimeout:        getDurationEnv("ENGINE_NODE_TIMEOUT", 60*time.Second),
			APITimeout:         getDurationEnv("ENGINE_API_TIMEOUT", 30*time.Second),
			PollSchedule:       getEnv("ENGINE_POLL_SCHEDULE", "@every 1s"),
			FlowCacheTTL:       getDurationEnv("FLOW_CACHE_TTL", 10*time.Minute),
		},
		Triggers: TriggerConfig{
			MessageFlowID: getEnv("TRIGGER_MESSAGE_FLOW_ID", ""),
			RecordFlowID:  getEnv("TRIGGER_RECORD_FLOW_ID", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the driver selection and required settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	if c.Bitrix.WebhookURL != "" &&
		!strings.HasPrefix(c.Bitrix.WebhookURL, "http://") &&
		!strings.HasPrefix(c.Bitrix.WebhookURL, "https://") {
		return fmt.Errorf("BITRIX_WEBHOOK_URL must be an http(s) URL")
	}

	if c.Engine.SyncDelayThreshold < 0 {
		return fmt.Errorf("ENGINE_SYNC_DELAY_THRESHOLD must not be negative")
	}

	return nil
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetAddr returns host:port.
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
