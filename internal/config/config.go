package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	IrisBaseURL string
	IrisWSURL   string

	BotPrefix string

	XUserID    string
	XUserEmail string
	XSessionID string

	// EgressMode picks how replies reach Iris: http, ws or auto.
	EgressMode   string
	AllowedRooms []string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	LLMTimeout    time.Duration
	LLMRetry      int

	SessionDuration   time.Duration
	ReapInterval      time.Duration
	BotFirstMoveDelay time.Duration
	BotReplyDelay     time.Duration
	FallbackMode      string

	SessionStore string
	RedisURL     string

	ArchiveBackend string
	DatabaseURL    string
	MongoURI       string
	MongoDatabase  string
	HistoryLimit   int

	BoardImage  bool
	MessagesDir string
	AdminAddr   string
}

// Load reads the environment. When CONFIG_FILE points at a YAML, JSON or .env file its
// keys act as defaults beneath real environment variables.
func Load() (*AppConfig, error) {
	file := viper.New()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file.SetConfigFile(path)
		if err := file.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	get := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(file.GetString(key))
	}

	cfg := &AppConfig{
		EgressMode:        "auto",
		GeminiModel:       "gemini-2.0-flash-exp",
		LLMRetry:          1,
		SessionDuration:   600 * time.Second,
		ReapInterval:      30 * time.Second,
		BotFirstMoveDelay: 2 * time.Second,
		BotReplyDelay:     1 * time.Second,
		FallbackMode:      "scored",
		SessionStore:      "memory",
		ArchiveBackend:    "memory",
		MongoDatabase:     "llmchess",
		HistoryLimit:      5,
		BoardImage:        true,
		AdminAddr:         ":8090",
	}

	cfg.IrisBaseURL = get("IRIS_BASE_URL")
	cfg.IrisWSURL = get("IRIS_WS_URL")
	cfg.BotPrefix = get("BOT_PREFIX")

	cfg.XUserID = get("X_USER_ID")
	cfg.XUserEmail = get("X_USER_EMAIL")
	cfg.XSessionID = get("X_SESSION_ID")

	if v := strings.ToLower(get("EGRESS_MODE")); v != "" {
		cfg.EgressMode = v
	}
	cfg.AllowedRooms = splitList(get("ALLOWED_ROOMS"))

	cfg.GeminiAPIKey = get("GEMINI_API_KEY")
	if v := get("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}
	cfg.GeminiBaseURL = get("GEMINI_BASE_URL")

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LLM_TIMEOUT", &cfg.LLMTimeout},
		{"SESSION_DURATION", &cfg.SessionDuration},
		{"REAP_INTERVAL", &cfg.ReapInterval},
		{"BOT_FIRST_MOVE_DELAY", &cfg.BotFirstMoveDelay},
		{"BOT_REPLY_DELAY", &cfg.BotReplyDelay},
	}
	for _, d := range durations {
		if v := get(d.key); v != "" {
			if *d.dst, err = ParseDuration(v); err != nil {
				return nil, fmt.Errorf("%s: %w", d.key, err)
			}
		}
	}
	if v := get("LLM_RETRY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.LLMRetry = n
		}
	}
	if v := strings.ToLower(get("FALLBACK_MODE")); v != "" {
		cfg.FallbackMode = v
	}

	if v := strings.ToLower(get("SESSION_STORE")); v != "" {
		cfg.SessionStore = v
	}
	cfg.RedisURL = get("REDIS_URL")

	if v := strings.ToLower(get("ARCHIVE_BACKEND")); v != "" {
		cfg.ArchiveBackend = v
	}
	cfg.DatabaseURL = get("DATABASE_URL")
	cfg.MongoURI = get("MONGO_URI")
	if v := get("MONGO_DATABASE"); v != "" {
		cfg.MongoDatabase = v
	}
	if v := get("HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}

	if v := get("BOARD_IMAGE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.BoardImage = b
		}
	}
	cfg.MessagesDir = get("MESSAGES_DIR")
	if v := get("ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}
	if strings.EqualFold(cfg.AdminAddr, "off") {
		cfg.AdminAddr = ""
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.IrisBaseURL == "" {
		return errors.New("IRIS_BASE_URL is required")
	}
	if c.IrisWSURL == "" {
		return errors.New("IRIS_WS_URL is required")
	}
	if c.BotPrefix == "" {
		return errors.New("BOT_PREFIX is required")
	}
	switch c.EgressMode {
	case "http", "ws", "auto":
	default:
		return fmt.Errorf("EGRESS_MODE %q: want http, ws or auto", c.EgressMode)
	}
	switch c.SessionStore {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE %q: want memory or redis", c.SessionStore)
	}
	switch c.ArchiveBackend {
	case "none", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when ARCHIVE_BACKEND=postgres")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when ARCHIVE_BACKEND=mongo")
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND %q: want none, memory, postgres or mongo", c.ArchiveBackend)
	}
	if c.SessionDuration <= 0 {
		return errors.New("SESSION_DURATION must be positive")
	}
	if c.ReapInterval <= 0 {
		return errors.New("REAP_INTERVAL must be positive")
	}
	return nil
}

// ParseDuration accepts Go duration strings ("90s", "1m30s") or plain seconds ("90").
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", raw)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
