package domain

import (
	"os"
	"strconv"
	"time"
)

// Config holds the complete Harrier configuration. All values are frozen
// after initialization; nothing mutates configuration at runtime.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices (sqlite/channels vs
	// postgres/NATS/redis), not feature availability.
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Classifier ClassifierConfig `json:"classifier"`
	Oracle     OracleConfig     `json:"oracle"`
	Profile    ProfileConfig    `json:"profile"`
	Validator  ValidatorConfig  `json:"validator"`
	Replay     ReplayConfig     `json:"replay"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ClassifierConfig holds classifier artifact settings.
type ClassifierConfig struct {
	// ModelPath is the path of the serialized model artifact. Loading is
	// synchronous at startup; failure is fatal.
	ModelPath string `json:"modelPath"`
}

// OracleConfig holds advisory oracle settings.
type OracleConfig struct {
	// Endpoint is the base URL of the generateContent-style API.
	Endpoint string `json:"endpoint"`

	// Model is the oracle model name interpolated into the request path.
	Model string `json:"model"`

	// APIKey authenticates the request. Never logged.
	APIKey string `json:"-"`

	// Timeout bounds each oracle call. The advisory stage never holds a
	// lock while waiting on it.
	Timeout time.Duration `json:"timeout"`
}

// ValidatorConfig holds validation orchestrator settings.
type ValidatorConfig struct {
	// MaxWorkers bounds concurrent validations in the batch path.
	MaxWorkers int `json:"maxWorkers"`

	// VelocityWindow is the look-back window for the velocity_count
	// variable exposed to supplemental screen rules.
	VelocityWindow time.Duration `json:"velocityWindow"`
}

// ReplayConfig holds stream replayer settings.
type ReplayConfig struct {
	// Enabled starts the replay loop at boot when true.
	Enabled bool `json:"enabled"`

	// Interval is the fixed tick cadence.
	Interval time.Duration `json:"interval"`

	// Limit bounds how many transactions are loaded into the replay
	// sequence at startup.
	Limit int `json:"limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Classifier: ClassifierConfig{
			ModelPath: "./model/fraud_model.json",
		},
		Oracle: OracleConfig{
			Endpoint: "https://generativelanguage.googleapis.com",
			Model:    "gemini-1.5-flash",
			Timeout:  20 * time.Second,
		},
		Profile: DefaultProfileConfig(),
		Validator: ValidatorConfig{
			MaxWorkers:     10,
			VelocityWindow: time.Hour,
		},
		Replay: ReplayConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
			Limit:    500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// FromEnv layers environment overrides onto the tier defaults. The caller
// is expected to have loaded any .env file first.
func FromEnv() *Config {
	cfg := DefaultConfig()
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = ProConfig()
	}

	if v := os.Getenv("HARRIER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("HARRIER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HARRIER_MODEL_PATH"); v != "" {
		cfg.Classifier.ModelPath = v
	}
	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("HARRIER_ORACLE_ENDPOINT"); v != "" {
		cfg.Oracle.Endpoint = v
	}
	if v := os.Getenv("HARRIER_ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("HARRIER_ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("HARRIER_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Oracle.Timeout = d
		}
	}
	if v := os.Getenv("HARRIER_REPLAY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Replay.Interval = d
		}
	}
	if v := os.Getenv("HARRIER_REPLAY_ENABLED"); v != "" {
		cfg.Replay.Enabled = v == "true"
	}

	return cfg
}
