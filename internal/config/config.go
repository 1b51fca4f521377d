// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// bot, the reminder store, the scheduler, the admin HTTP server, logging and
// observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TelegramConfig holds the bot credentials and outbound throttle.
type TelegramConfig struct {
	Token     string  // TELEGRAM_TOKEN
	SendRPS   float64 // SEND_RPS, 0 disables the throttle
	SendBurst int     // SEND_BURST
	SendTries uint    // SEND_TRIES
}

// StoreConfig controls the reminder file.
type StoreConfig struct {
	DataFile     string        // DATA_FILE
	SaveRetries  int           // STORE_SAVE_RETRIES
	RetryBackoff time.Duration // STORE_RETRY_BACKOFF
}

// SchedulerConfig tunes the firing loop.
type SchedulerConfig struct {
	MaxSleep      time.Duration // SCHEDULER_MAX_SLEEP
	LateThreshold time.Duration // SCHEDULER_LATE_THRESHOLD
}

// SessionConfig tunes the conversation wizard.
type SessionConfig struct {
	Timeout       time.Duration // SESSION_TIMEOUT
	SweepInterval time.Duration // SESSION_SWEEP_INTERVAL
}

// AssistantConfig configures the optional /ask backend.
type AssistantConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// HTTPConfig configures the admin server.
type HTTPConfig struct {
	Enabled           bool
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test
	APIBasePath       string
	AdminToken        string // ADMIN_TOKEN; empty rejects every admin call
	RateRPS           float64
	RateBurst         int
	CORS              CORSConfig
	Security          SecurityConfig
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	Telegram  TelegramConfig
	Store     StoreConfig
	Scheduler SchedulerConfig
	Session   SessionConfig
	Assistant AssistantConfig
	HTTP      HTTPConfig
	OTEL      OTELConfig

	DBPath         string // SQLite path for chats and delivery records
	HelpPath       string // optional help FAQ overriding the embedded one
	TZOffset       string // TZ_OFFSET, e.g. "+04:00"
	DefaultGroupID int64  // DEFAULT_GROUP_ID, 0 when unset
	ConfirmButton  bool   // CONFIRM_BUTTON

	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	offset int // seconds east of UTC, parsed from TZOffset
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Telegram: TelegramConfig{
			Token:     strings.TrimSpace(getenv("TELEGRAM_TOKEN", "")),
			SendRPS:   getfloat("SEND_RPS", 25),
			SendBurst: getint("SEND_BURST", 5),
			SendTries: uint(getint("SEND_TRIES", 3)),
		},
		Store: StoreConfig{
			DataFile:     getenv("DATA_FILE", "reminders.json"),
			SaveRetries:  getint("STORE_SAVE_RETRIES", 5),
			RetryBackoff: getdur("STORE_RETRY_BACKOFF", 100*time.Millisecond),
		},
		Scheduler: SchedulerConfig{
			MaxSleep:      getdur("SCHEDULER_MAX_SLEEP", time.Hour),
			LateThreshold: getdur("SCHEDULER_LATE_THRESHOLD", time.Minute),
		},
		Session: SessionConfig{
			Timeout:       getdur("SESSION_TIMEOUT", 15*time.Minute),
			SweepInterval: getdur("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		Assistant: AssistantConfig{
			Enabled: getbool("ASSISTANT_ENABLED", false),
			BaseURL: getenv("ASSISTANT_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getenv("ASSISTANT_API_KEY", ""),
			Model:   getenv("ASSISTANT_MODEL", "gpt-4o-mini"),
			Timeout: getdur("ASSISTANT_TIMEOUT", 30*time.Second),
			RPS:     getfloat("ASSISTANT_RPS", 0.2),
			Burst:   getint("ASSISTANT_BURST", 3),
		},
		HTTP: HTTPConfig{
			Enabled:           getbool("HTTP_ENABLED", true),
			Port:              getenv("PORT", "8080"),
			ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
			ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
			WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
			IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
			MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
			GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
			APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
			AdminToken:        getenv("ADMIN_TOKEN", ""),
			RateRPS:           getfloat("RATE_RPS", 5.0),
			RateBurst:         getint("RATE_BURST", 10),
			CORS: CORSConfig{
				AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
			},
			Security: SecurityConfig{
				EnableHSTS: getbool("ENABLE_HSTS", false),
				HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			},
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-reminder-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},

		DBPath:         getenv("DB_PATH", "reminderbot.db"),
		HelpPath:       getenv("HELP_PATH", ""),
		TZOffset:       strings.TrimSpace(getenv("TZ_OFFSET", "+04:00")),
		DefaultGroupID: getint64("DEFAULT_GROUP_ID", 0),
		ConfirmButton:  getbool("CONFIRM_BUTTON", true),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.HTTP.GinMode {
	case "debug", "release", "test":
	default:
		cfg.HTTP.GinMode = "release"
	}

	// --- validation ---
	if cfg.Telegram.Token == "" {
		return cfg, errors.New("TELEGRAM_TOKEN must be set")
	}
	off, err := ParseOffset(cfg.TZOffset)
	if err != nil {
		return cfg, fmt.Errorf("TZ_OFFSET: %w", err)
	}
	cfg.offset = off
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Store.DataFile) == "" {
		return cfg, errors.New("DATA_FILE must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Store.SaveRetries < 1 {
		return cfg, errors.New("STORE_SAVE_RETRIES must be >= 1")
	}
	if cfg.Store.RetryBackoff <= 0 {
		return cfg, errors.New("STORE_RETRY_BACKOFF must be > 0")
	}
	if cfg.Scheduler.MaxSleep <= 0 || cfg.Scheduler.LateThreshold <= 0 {
		return cfg, errors.New("scheduler durations must be positive")
	}
	if cfg.Session.Timeout <= 0 || cfg.Session.SweepInterval <= 0 {
		return cfg, errors.New("session durations must be positive")
	}
	if cfg.Telegram.SendRPS < 0 {
		return cfg, errors.New("SEND_RPS must be >= 0")
	}
	if cfg.Telegram.SendBurst < 1 {
		return cfg, errors.New("SEND_BURST must be >= 1")
	}
	if cfg.Telegram.SendTries < 1 {
		return cfg, errors.New("SEND_TRIES must be >= 1")
	}
	if cfg.Assistant.Enabled && strings.TrimSpace(cfg.Assistant.APIKey) == "" {
		return cfg, errors.New("ASSISTANT_API_KEY must be set when ASSISTANT_ENABLED")
	}
	if cfg.Assistant.RPS < 0 {
		return cfg, errors.New("ASSISTANT_RPS must be >= 0")
	}
	if cfg.HTTP.Enabled {
		if strings.TrimSpace(cfg.HTTP.Port) == "" {
			return cfg, errors.New("PORT must not be empty")
		}
		h := cfg.HTTP
		if h.ReadTimeout <= 0 || h.ReadHeaderTimeout <= 0 || h.WriteTimeout <= 0 || h.IdleTimeout <= 0 {
			return cfg, errors.New("timeouts must be positive durations")
		}
		if h.MaxHeaderBytes <= 0 {
			return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
		}
		if h.RateRPS < 0 {
			return cfg, errors.New("RATE_RPS must be >= 0")
		}
		if h.RateBurst < 1 {
			return cfg, errors.New("RATE_BURST must be >= 1")
		}
		if h.Security.HSTSMaxAge < 0 {
			return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
		}
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Location returns the fixed zone all reminder times are expressed in.
func (c Config) Location() *time.Location {
	return FixedZone(c.offset)
}

// FixedZone names a zone by its offset, e.g. "UTC+04:00".
func FixedZone(offset int) *time.Location {
	sign := '+'
	abs := offset
	if offset < 0 {
		sign, abs = '-', -offset
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/3600, abs%3600/60)
	return time.FixedZone(name, offset)
}

// ParseOffset parses a UTC offset ("+04:00", "-0530", "+4", "UTC+4") into
// seconds east of UTC.
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if u := strings.ToUpper(s); strings.HasPrefix(u, "UTC") || strings.HasPrefix(u, "GMT") {
		s = s[3:]
	}
	if s == "" || s == "Z" {
		return 0, nil
	}
	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign, s = -1, s[1:]
	}

	var hh, mm string
	switch {
	case strings.Contains(s, ":"):
		hh, mm, _ = strings.Cut(s, ":")
	case len(s) == 4:
		hh, mm = s[:2], s[2:]
	case len(s) <= 2:
		hh, mm = s, "0"
	default:
		return 0, fmt.Errorf("unrecognized offset %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("unrecognized offset hours %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("unrecognized offset minutes %q", mm)
	}
	if h < 0 || h > 14 || m < 0 || m > 59 || (h == 14 && m > 0) {
		return 0, fmt.Errorf("offset out of range: %02d:%02d", h, m)
	}
	return sign * (h*3600 + m*60), nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
