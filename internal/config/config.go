package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// API defaults
	DefaultAPIHost    = "api.openai.com"
	DefaultModel      = "gpt-3.5-turbo"
	DefaultAPITimeout = 60 * time.Second

	// Room defaults
	DefaultTemperature  = 0.7
	DefaultHistoryCount = 3

	// Context building
	MinTemperature = 0.0
	MaxTemperature = 2.0
	// MaxContextAnswerLen caps how much of a stored answer is carried back as
	// context, enough for short-term coherence without burning tokens.
	MaxContextAnswerLen = 100
)

// KnownModels is the model list offered by the room settings surface.
var KnownModels = []string{
	"gpt-3.5-turbo",
	"gpt-4",
	"gpt-4-32k",
	"gpt-3.5-turbo-16k",
}

// Config is the read-only configuration record consumed by the session
// engine. Settings surfaces edit the environment and then ask the session to
// re-apply; the engine never reads settings implicitly.
type Config struct {
	APIKey         string
	APIHost        string
	Model          string
	TimeoutSeconds int
	Stream         bool
	SendContext    bool
	AvatarURL      string

	JWTSecret string
	DBDSN     string
	RedisAddr string
	ListenOn  string
}

// Load builds a Config from environment variables, applying defaults for
// everything but the API key.
func Load() Config {
	cfg := Config{
		APIKey:         os.Getenv("OPENAI_API_KEY"),
		APIHost:        envOr("OPENAI_API_HOST", DefaultAPIHost),
		Model:          envOr("OPENAI_MODEL", DefaultModel),
		TimeoutSeconds: int(DefaultAPITimeout / time.Second),
		Stream:         envBool("CHAT_STREAM_OUTPUT", true),
		SendContext:    envBool("CHAT_SEND_CONTEXT", true),
		AvatarURL:      os.Getenv("CHAT_USER_AVATAR_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		DBDSN:          os.Getenv("DATABASE_DSN"),
		RedisAddr:      envOr("REDIS_ADDR", "localhost:6379"),
		ListenOn:       envOr("LISTEN_ADDR", ":8080"),
	}
	if raw := os.Getenv("OPENAI_API_TIMEOUT"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			cfg.TimeoutSeconds = secs
		}
	}
	return cfg
}

// Validate rejects configurations at the edit boundary, before they reach
// the session engine.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("API key is not set")
	}
	if c.APIHost == "" || strings.Contains(c.APIHost, "://") {
		return errors.Errorf("API host must be a bare hostname, got %q", c.APIHost)
	}
	if c.TimeoutSeconds <= 0 {
		return errors.Errorf("API timeout must be positive, got %d", c.TimeoutSeconds)
	}
	if c.Model == "" {
		return errors.New("model is not set")
	}
	return nil
}

// Timeout returns the request timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ValidateRoomSettings checks the per-room generation settings the same way
// the original settings form did.
func ValidateRoomSettings(temperature float64, historyCount int) error {
	if temperature < MinTemperature || temperature > MaxTemperature {
		return errors.Errorf("temperature must be between %g and %g", MinTemperature, MaxTemperature)
	}
	if historyCount < 0 {
		return errors.New("history message count must be an integer greater than or equal to 0")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
