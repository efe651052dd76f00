package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Store    StoreConfig
	JWT      JWTConfig
	Realtime RealtimeConfig
	EventBus EventBusConfig
	Redis    RedisConfig
	Firebase FirebaseConfig
	CORS     CORSConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Name            string
	Port            int
	Env             string
	LogLevel        string
	ShutdownTimeout time.Duration
	// InternalAPIKey guards the internal trigger endpoint; empty disables it
	InternalAPIKey string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type StoreConfig struct {
	Driver string
}

// JWTConfig holds JWT configuration. Access tokens are issued upstream with the same secret.
type JWTConfig struct {
	Secret            string
	WSTokenExpiration time.Duration
}

// RealtimeConfig holds socket and presence configuration
type RealtimeConfig struct {
	StaleAfter     time.Duration
	SweepInterval  time.Duration
	StatsInterval  time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	MaxMessageSize int64
	LockStripes    int
}

type EventBusConfig struct {
	QueueSize      int
	Workers        int
	HandlerTimeout time.Duration
}

// RedisConfig holds the deferred queue connection. An empty Addr disables it.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	DeferredMaxLen int64
	DeferredTTL    time.Duration
	// ReplayLimit caps how many deferred entries are replayed on reconnect
	ReplayLimit int64
}

// FirebaseConfig holds FCM credentials. An empty path disables push.
type FirebaseConfig struct {
	CredentialsPath string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	env := &envReader{}
	config := &Config{}

	config.App = AppConfig{
		Name:            getEnv("APP_NAME", "notifyhub"),
		Port:            env.Int("APP_PORT", 8080),
		Env:             getEnv("APP_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: env.Duration("APP_SHUTDOWN_TIMEOUT", 15*time.Second),
		InternalAPIKey:  getEnv("INTERNAL_API_KEY", ""),
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     env.Int("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "notifyhub"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(env.Int("DB_MAX_CONNS", 25)),
		MinConns: int32(env.Int("DB_MIN_CONNS", 5)),
	}

	config.Store = StoreConfig{
		Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
	}

	config.JWT = JWTConfig{
		Secret:            getEnv("JWT_SECRET_KEY", ""),
		WSTokenExpiration: env.Duration("JWT_WS_TOKEN_EXPIRATION_TIME", 5*time.Minute),
	}

	config.Realtime = RealtimeConfig{
		StaleAfter:     env.Duration("REALTIME_STALE_AFTER", 90*time.Second),
		SweepInterval:  env.Duration("REALTIME_SWEEP_INTERVAL", 30*time.Second),
		StatsInterval:  env.Duration("REALTIME_STATS_INTERVAL", time.Minute),
		PongWait:       env.Duration("REALTIME_PONG_WAIT", 60*time.Second),
		WriteWait:      env.Duration("REALTIME_WRITE_WAIT", 10*time.Second),
		SendBuffer:     env.Int("REALTIME_SEND_BUFFER", 64),
		MaxMessageSize: int64(env.Int("REALTIME_MAX_MESSAGE_SIZE", 4096)),
		LockStripes:    env.Int("REALTIME_LOCK_STRIPES", 64),
	}

	config.EventBus = EventBusConfig{
		QueueSize:      env.Int("EVENTBUS_QUEUE_SIZE", 1000),
		Workers:        env.Int("EVENTBUS_WORKERS", 2),
		HandlerTimeout: env.Duration("EVENTBUS_HANDLER_TIMEOUT", 10*time.Second),
	}

	config.Redis = RedisConfig{
		Addr:           getEnv("REDIS_ADDR", ""),
		Password:       getEnv("REDIS_PASSWORD", ""),
		DB:             env.Int("REDIS_DB", 0),
		DeferredMaxLen: int64(env.Int("REDIS_DEFERRED_MAX_LEN", 200)),
		DeferredTTL:    env.Duration("REDIS_DEFERRED_TTL", 7*24*time.Hour),
		ReplayLimit:    int64(env.Int("REDIS_REPLAY_LIMIT", 50)),
	}

	config.Firebase = FirebaseConfig{
		CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
	}

	config.CORS = CORSConfig{
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if env.err != nil {
		return nil, env.err
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %q", c.Store.Driver)
	}
	if c.JWT.WSTokenExpiration <= 0 {
		return fmt.Errorf("JWT_WS_TOKEN_EXPIRATION_TIME must be positive")
	}
	if c.Realtime.StaleAfter <= c.Realtime.PongWait {
		return fmt.Errorf("REALTIME_STALE_AFTER must exceed REALTIME_PONG_WAIT")
	}
	if c.Realtime.SweepInterval <= 0 || c.Realtime.StatsInterval <= 0 {
		return fmt.Errorf("realtime job intervals must be positive")
	}
	if c.EventBus.QueueSize <= 0 || c.EventBus.Workers <= 0 {
		return fmt.Errorf("EVENTBUS_QUEUE_SIZE and EVENTBUS_WORKERS must be positive")
	}
	// connected and unread_count are queued ahead of the replay
	if c.Redis.ReplayLimit <= 0 || c.Redis.ReplayLimit > int64(c.Realtime.SendBuffer-2) {
		return fmt.Errorf("REDIS_REPLAY_LIMIT must be between 1 and REALTIME_SEND_BUFFER-2")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// envReader parses typed variables and keeps the first failure
type envReader struct {
	err error
}

func (e *envReader) Int(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return n
}

func (e *envReader) Duration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return d
}

func (e *envReader) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
