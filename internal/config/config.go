package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"messenger-service/internal/chat"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	MinIO    MinIOConfig
	JWT      JWTConfig
	Chat     ChatConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	Driver       string // postgres, mysql, sqlite or badger
	URL          string
	BadgerPath   string
	MaxIdleConns int
	MaxOpenConns int
}

type RedisConfig struct {
	URL          string // empty disables Redis
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	AuthLimit    int64
	WSLimit      int64
}

type KafkaConfig struct {
	Brokers []string // empty disables event publishing
	Topic   string
}

type MinIOConfig struct {
	Endpoint  string // empty disables attachments
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret         string
	ExpirationTime time.Duration
}

type ChatConfig struct {
	MaxMessageSize int64
	SendBuffer     int
	LogCap         int
	PendingCap     int
	SessionPolicy  string
}

var supportedDrivers = []string{"postgres", "mysql", "sqlite", "badger"}

// LoadConfig reads .env (when present) and the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetString("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  splitList(v.GetString("ALLOWED_ORIGINS")),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("STORAGE_DRIVER")),
			URL:          v.GetString("DATABASE_URL"),
			BadgerPath:   v.GetString("BADGER_PATH"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			AuthLimit:    v.GetInt64("RATE_LIMIT_AUTH"),
			WSLimit:      v.GetInt64("RATE_LIMIT_WS"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			ExpirationTime: v.GetDuration("JWT_EXPIRATION"),
		},
		Chat: ChatConfig{
			MaxMessageSize: v.GetInt64("WS_MAX_MESSAGE_SIZE"),
			SendBuffer:     v.GetInt("WS_SEND_BUFFER"),
			LogCap:         v.GetInt("MESSAGE_LOG_CAP"),
			PendingCap:     v.GetInt("PENDING_CAP"),
			SessionPolicy:  strings.ToLower(v.GetString("SESSION_POLICY")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "5000")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("ALLOWED_ORIGINS", "*")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("STORAGE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "messenger.db")
	v.SetDefault("BADGER_PATH", "data/badger")
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_MAX_OPEN_CONNS", 50)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("RATE_LIMIT_AUTH", 50)
	v.SetDefault("RATE_LIMIT_WS", 20)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "chat-events")

	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "attachments")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("JWT_SECRET", "change_this_secret")
	v.SetDefault("JWT_EXPIRATION", 7*24*time.Hour)

	v.SetDefault("WS_MAX_MESSAGE_SIZE", chat.MaxFrameSize)
	v.SetDefault("WS_SEND_BUFFER", 1024)
	v.SetDefault("MESSAGE_LOG_CAP", 200)
	v.SetDefault("PENDING_CAP", chat.DefaultPendingCap)
	v.SetDefault("SESSION_POLICY", "replace")
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(supportedDrivers, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Database.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.JWT.ExpirationTime <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION must be positive"))
	}
	if c.Chat.LogCap <= 0 {
		errs = append(errs, errors.New("MESSAGE_LOG_CAP must be positive"))
	}
	if c.Chat.PendingCap <= 0 {
		errs = append(errs, errors.New("PENDING_CAP must be positive"))
	}
	// a reconnect sends users, the pending batch and one notification per pending message
	if c.Chat.SendBuffer < c.Chat.PendingCap+2 {
		errs = append(errs, fmt.Errorf("WS_SEND_BUFFER must be at least PENDING_CAP+2 (%d)", c.Chat.PendingCap+2))
	}
	if c.Chat.MaxMessageSize < chat.MaxFrameSize {
		errs = append(errs, fmt.Errorf("WS_MAX_MESSAGE_SIZE must be at least %d", chat.MaxFrameSize))
	}
	if c.Chat.SessionPolicy != "replace" && c.Chat.SessionPolicy != "reject" {
		errs = append(errs, fmt.Errorf("unsupported SESSION_POLICY %q", c.Chat.SessionPolicy))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
