package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the washoku server.
type Config struct {
	DatabaseURL      string
	DBMaxOpenConns   int
	DBConnectTimeout time.Duration
	ServerPort       int
	LogLevel         string
	Environment      string
	ShutdownGrace    time.Duration

	SessionSecret string
	SessionTTL    time.Duration
	SessionStore  string

	Admin AdminAccount

	SentryDSN   string
	LLMEndpoint string
	LLMAPIKey   string
	LLMModels   []string

	MapsAPIKey  string
	StaticDir   string
	CORSOrigins []string

	// TrustProxy honours X-Forwarded-For and X-Real-IP when identifying
	// clients. Enable it only behind a proxy that overwrites those headers.
	TrustProxy bool

	RateLimit RateLimit
}

// AdminAccount describes the bootstrap administrator seeded at startup.
type AdminAccount struct {
	Username string
	Email    string
	Password string
}

// Enabled reports whether a bootstrap admin has been configured.
func (a AdminAccount) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

// RateLimit configures the per-client limiter applied to credential endpoints.
type RateLimit struct {
	Burst             int
	RequestsPerSecond float64
	ClientTTL         time.Duration
}

const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"

	SessionStoreDatabase = "database"
	SessionStoreMemory   = "memory"
)

const (
	defaultDatabaseURL      = "./data/washoku.db"
	defaultDBMaxOpenConns   = 5
	defaultDBConnectTimeout = 5 * time.Second
	defaultServerPort       = 8080
	defaultLogLevel         = "info"
	defaultEnvironment      = EnvironmentDevelopment
	defaultShutdownGrace    = 10 * time.Second
	defaultSessionTTL       = 7 * 24 * time.Hour
	defaultSessionStore     = SessionStoreDatabase
	defaultStaticDir        = "./client/dist"
	defaultRateLimitBurst   = 10
	defaultRateLimitRPS     = 1.0
	defaultRateLimitTTL     = 10 * time.Minute

	developmentSessionSecret = "washoku-development-session-secret"
	minSessionSecretLength   = 16
)

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:   getEnv("DATABASE_URL", defaultDatabaseURL),
		LogLevel:      getEnv("LOG_LEVEL", defaultLogLevel),
		Environment:   strings.ToLower(getEnv("ENV", defaultEnvironment)),
		ShutdownGrace: defaultShutdownGrace,
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionStore:  strings.ToLower(getEnv("SESSION_STORE", defaultSessionStore)),
		Admin: AdminAccount{
			Username: strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
			Email:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
		SentryDSN:   os.Getenv("SENTRY_DSN"),
		LLMEndpoint: os.Getenv("LLM_ENDPOINT"),
		LLMAPIKey:   os.Getenv("LLM_API_KEY"),
		MapsAPIKey:  os.Getenv("MAPS_API_KEY"),
		StaticDir:   getEnv("STATIC_DIR", defaultStaticDir),
		CORSOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	if modelsJSON := os.Getenv("LLM_MODELS"); modelsJSON != "" {
		models, err := parseModels(modelsJSON)
		if err != nil {
			return nil, eris.Wrap(err, "parsing LLM_MODELS")
		}
		cfg.LLMModels = models
	}

	var err error
	if cfg.ServerPort, err = getInt("SERVER_PORT", defaultServerPort); err != nil {
		return nil, err
	}
	if cfg.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", defaultDBMaxOpenConns); err != nil {
		return nil, err
	}
	if cfg.DBConnectTimeout, err = getDuration("DB_CONNECT_TIMEOUT", defaultDBConnectTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", defaultSessionTTL); err != nil {
		return nil, err
	}
	if cfg.TrustProxy, err = getBool("TRUST_PROXY", false); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", defaultRateLimitBurst); err != nil {
		return nil, err
	}
	if cfg.RateLimit.RequestsPerSecond, err = getFloat("RATE_LIMIT_RPS", defaultRateLimitRPS); err != nil {
		return nil, err
	}
	if cfg.RateLimit.ClientTTL, err = getDuration("RATE_LIMIT_CLIENT_TTL", defaultRateLimitTTL); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case SessionStoreDatabase, SessionStoreMemory:
	default:
		return eris.Errorf("invalid SESSION_STORE value: %s", c.SessionStore)
	}

	if c.SessionSecret == "" {
		if c.IsProduction() {
			return eris.New("SESSION_SECRET is required in production")
		}
		c.SessionSecret = developmentSessionSecret
	}

	if len(c.SessionSecret) < minSessionSecretLength {
		return eris.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLength)
	}

	if c.SessionTTL <= 0 {
		return eris.New("SESSION_TTL must be positive")
	}

	if c.DBMaxOpenConns <= 0 {
		return eris.New("DB_MAX_OPEN_CONNS must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, strconv.Itoa(fallback))
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func parseModels(raw string) ([]string, error) {
	// Accept either a JSON array of strings or an object with a `models` field.
	var arrayInput []string
	if err := json.Unmarshal([]byte(raw), &arrayInput); err == nil {
		return arrayInput, nil
	}

	var objectInput struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal([]byte(raw), &objectInput); err != nil {
		return nil, eris.Wrap(err, "decoding JSON")
	}

	if len(objectInput.Models) == 0 {
		return nil, eris.New("models list is empty")
	}

	return objectInput.Models, nil
}
