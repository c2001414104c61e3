package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Agent       AgentConfig
	RateGate    RateGateConfig
	Spawn       SpawnConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxConn       int
	EnablePprof   bool
	EnableMetrics bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

// StorageConfig selects the persistence backend. "memory" keeps everything in-process and
// skips Postgres entirely.
type StorageConfig struct {
	Driver string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// AgentConfig drives the overdue-suggestion agent and its scheduler.
type AgentConfig struct {
	Enabled     bool
	Schedule    string
	BatchSize   int
	Concurrency int
	RunTimeout  time.Duration
	// AdminIDs may trigger and inspect runs over HTTP. Empty disables manual runs.
	AdminIDs []string
}

// RateGateConfig picks the eligibility limiter consulted once per identity per run.
type RateGateConfig struct {
	Backend   string
	Limit     int
	Window    time.Duration
	CacheSize int
	KeyPrefix string
}

// SpawnConfig controls the retry buffer for recurring spawns that failed to persist.
type SpawnConfig struct {
	BufferPath    string
	RetryInterval time.Duration
	MaxRetries    int
	BatchSize     int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "taskpilot"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:          getString("SERVER_HOST", "0.0.0.0"),
			Port:          getString("SERVER_PORT", "8080"),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:       getInt("SERVER_MAX_CONN", 0),
			EnablePprof:   getBool("SERVER_ENABLE_PPROF", false),
			EnableMetrics: getBool("SERVER_ENABLE_METRICS", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "taskpilot"),
			User:            getString("DB_USER", "taskpilot"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Driver: getString("STORAGE_DRIVER", "postgres"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "taskpilot"),
		},
		Agent: AgentConfig{
			Enabled:     getBool("AGENT_ENABLED", true),
			Schedule:    getString("AGENT_SCHEDULE", "@every 1h"),
			BatchSize:   getInt("AGENT_BATCH_SIZE", 100),
			Concurrency: getInt("AGENT_CONCURRENCY", 1),
			RunTimeout:  getDuration("AGENT_RUN_TIMEOUT", 10*time.Minute),
			AdminIDs:    getList("AGENT_ADMIN_IDS"),
		},
		RateGate: RateGateConfig{
			Backend:   getString("RATE_GATE_BACKEND", "memory"),
			Limit:     getInt("RATE_GATE_LIMIT", 1),
			Window:    getDuration("RATE_GATE_WINDOW", time.Hour),
			CacheSize: getInt("RATE_GATE_CACHE_SIZE", 10_000),
			KeyPrefix: getString("RATE_GATE_KEY_PREFIX", "taskpilot:agent:gate:"),
		},
		Spawn: SpawnConfig{
			BufferPath:    getString("SPAWN_BUFFER_PATH", "./data/spawn.db"),
			RetryInterval: getDuration("SPAWN_RETRY_INTERVAL", 30*time.Second),
			MaxRetries:    getInt("SPAWN_MAX_RETRIES", 5),
			BatchSize:     getInt("SPAWN_RETRY_BATCH", 50),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.RateGate.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("config: RATE_GATE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown RATE_GATE_BACKEND %q", c.RateGate.Backend)
	}
	if c.Agent.BatchSize <= 0 {
		return fmt.Errorf("config: AGENT_BATCH_SIZE must be positive")
	}
	if c.Agent.Concurrency < 1 {
		c.Agent.Concurrency = 1
	}
	if c.RateGate.Limit < 1 || c.RateGate.Window <= 0 {
		return fmt.Errorf("config: rate gate needs a positive limit and window")
	}
	return nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getList splits a comma separated variable, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
