package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	Server ServerConfig
	Engine EngineConfig
	Store  StoreConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	MinIO  MinIOConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	// RateLimit is the number of API requests allowed per client per minute.
	RateLimit int
	// JWTSecret enables bearer auth on mutating API routes when non-empty.
	JWTSecret string
}

type EngineConfig struct {
	TickInterval    time.Duration
	SessionTimeout  time.Duration
	StoreTimeout    time.Duration
	SendBuffer      int
	BroadcastScope  string
	AlertCooldown   time.Duration
	HistoryCapacity int
	WindowedAlerts  bool
}

type StoreConfig struct {
	Driver      string
	DSN         string
	SeedSession string
	Breaker     BreakerConfig
}

type BreakerConfig struct {
	Enabled      bool
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

type RedisConfig struct {
	URL          string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// Enabled reports whether a Redis URL was configured.
func (r RedisConfig) Enabled() bool { return r.URL != "" }

type KafkaConfig struct {
	Brokers         []string
	AlertTopic      string
	EngagementTopic string
	ClientID        string
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

type LogConfig struct {
	Level       string
	Development bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENGAGE_HOST", "")
	v.SetDefault("ENGAGE_PORT", "5000")
	v.SetDefault("ENGAGE_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("ENGAGE_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("ENGAGE_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("ENGAGE_ALLOWED_ORIGINS", "")
	v.SetDefault("ENGAGE_RATE_LIMIT", 120)
	v.SetDefault("ENGAGE_JWT_SECRET", "")

	v.SetDefault("ENGAGE_TICK_INTERVAL", 5*time.Second)
	v.SetDefault("ENGAGE_SESSION_TIMEOUT", 4*time.Second)
	v.SetDefault("ENGAGE_STORE_TIMEOUT", 5*time.Second)
	v.SetDefault("ENGAGE_SEND_BUFFER", 256)
	v.SetDefault("ENGAGE_BROADCAST_SCOPE", "session")
	v.SetDefault("ENGAGE_ALERT_COOLDOWN", 2*time.Minute)
	v.SetDefault("ENGAGE_HISTORY_CAPACITY", 30)
	v.SetDefault("ENGAGE_WINDOWED_ALERTS", true)

	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_SEED_SESSION", "Introduction to Programming Concepts")
	v.SetDefault("STORE_BREAKER_ENABLED", true)
	v.SetDefault("STORE_BREAKER_TIMEOUT", 30*time.Second)
	v.SetDefault("STORE_BREAKER_FAILURE_RATIO", 0.6)
	v.SetDefault("STORE_BREAKER_MIN_REQUESTS", 10)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_ALERT_TOPIC", "engagement.alerts")
	v.SetDefault("KAFKA_ENGAGEMENT_TOPIC", "engagement.updates")
	v.SetDefault("KAFKA_CLIENT_ID", "engagement-service")

	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "engagement-reports")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
}

// LoadConfig reads an optional .env file and then the environment.
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("ENGAGE_HOST"),
			Port:           v.GetString("ENGAGE_PORT"),
			ReadTimeout:    v.GetDuration("ENGAGE_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("ENGAGE_WRITE_TIMEOUT"),
			IdleTimeout:    v.GetDuration("ENGAGE_IDLE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("ENGAGE_ALLOWED_ORIGINS")),
			RateLimit:      v.GetInt("ENGAGE_RATE_LIMIT"),
			JWTSecret:      v.GetString("ENGAGE_JWT_SECRET"),
		},
		Engine: EngineConfig{
			TickInterval:    v.GetDuration("ENGAGE_TICK_INTERVAL"),
			SessionTimeout:  v.GetDuration("ENGAGE_SESSION_TIMEOUT"),
			StoreTimeout:    v.GetDuration("ENGAGE_STORE_TIMEOUT"),
			SendBuffer:      v.GetInt("ENGAGE_SEND_BUFFER"),
			BroadcastScope:  strings.ToLower(v.GetString("ENGAGE_BROADCAST_SCOPE")),
			AlertCooldown:   v.GetDuration("ENGAGE_ALERT_COOLDOWN"),
			HistoryCapacity: v.GetInt("ENGAGE_HISTORY_CAPACITY"),
			WindowedAlerts:  v.GetBool("ENGAGE_WINDOWED_ALERTS"),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(v.GetString("STORE_DRIVER")),
			DSN:         v.GetString("DATABASE_URL"),
			SeedSession: v.GetString("STORE_SEED_SESSION"),
			Breaker: BreakerConfig{
				Enabled:      v.GetBool("STORE_BREAKER_ENABLED"),
				Timeout:      v.GetDuration("STORE_BREAKER_TIMEOUT"),
				FailureRatio: v.GetFloat64("STORE_BREAKER_FAILURE_RATIO"),
				MinRequests:  v.GetUint32("STORE_BREAKER_MIN_REQUESTS"),
			},
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		Kafka: KafkaConfig{
			Brokers:         splitList(v.GetString("KAFKA_BROKERS")),
			AlertTopic:      v.GetString("KAFKA_ALERT_TOPIC"),
			EngagementTopic: v.GetString("KAFKA_ENGAGEMENT_TOPIC"),
			ClientID:        v.GetString("KAFKA_CLIENT_ID"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		Log: LogConfig{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("ENGAGE_PORT must be set"))
	}
	if c.Engine.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("ENGAGE_TICK_INTERVAL must be positive, got %s", c.Engine.TickInterval))
	}
	if c.Engine.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ENGAGE_SESSION_TIMEOUT must be positive, got %s", c.Engine.SessionTimeout))
	}
	if c.Engine.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("ENGAGE_SEND_BUFFER must be positive, got %d", c.Engine.SendBuffer))
	}
	if c.Engine.HistoryCapacity <= 0 {
		errs = append(errs, fmt.Errorf("ENGAGE_HISTORY_CAPACITY must be positive, got %d", c.Engine.HistoryCapacity))
	}
	if c.Engine.AlertCooldown < 0 {
		errs = append(errs, fmt.Errorf("ENGAGE_ALERT_COOLDOWN must not be negative, got %s", c.Engine.AlertCooldown))
	}
	switch c.Engine.BroadcastScope {
	case "session", "all":
	default:
		errs = append(errs, fmt.Errorf("ENGAGE_BROADCAST_SCOPE must be session or all, got %q", c.Engine.BroadcastScope))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverMySQL:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if c.Store.Breaker.FailureRatio <= 0 || c.Store.Breaker.FailureRatio > 1 {
		errs = append(errs, fmt.Errorf("STORE_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.Store.Breaker.FailureRatio))
	}

	if c.MinIO.Enabled() && c.MinIO.Bucket == "" {
		errs = append(errs, errors.New("MINIO_BUCKET is required when MINIO_ENDPOINT is set"))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
