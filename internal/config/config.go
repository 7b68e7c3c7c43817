// Package config provides application configuration loaded from environment
// variables (and optionally a CONFIG_FILE read through viper) with defaults
// and validation. It centralizes server timeouts,
// logging, persistence, token verification, realtime session limits, the
// optional Redis/Kafka integrations and observability.
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

// CORSConfig defines Cross-Origin Resource Sharing settings. The same origin
// list is used to validate WebSocket upgrade requests.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// AuthConfig defines how bearer tokens are verified.
type AuthConfig struct {
	JWTSecret     string        // JWT_SECRET (HS256)
	Issuer        string        // JWT_ISSUER, empty disables the check
	TokenTTL      time.Duration // JWT_TTL, used when issuing tokens
	LookupTimeout time.Duration // AUTH_LOOKUP_TIMEOUT for the user-store lookup
}

// RealtimeConfig bounds the per-connection resources of a WebSocket session.
type RealtimeConfig struct {
	QueueSize       int           // WS_QUEUE_SIZE outbound frames per session
	WriteTimeout    time.Duration // WS_WRITE_TIMEOUT
	PongWait        time.Duration // WS_PONG_WAIT
	PingInterval    time.Duration // WS_PING_INTERVAL, must be < PongWait
	MaxMessageBytes int64         // WS_MAX_MESSAGE_BYTES
	InboundRPS      float64       // WS_INBOUND_RPS
	InboundBurst    int           // WS_INBOUND_BURST
	InitialWindow   int           // INITIAL_UNREAD_WINDOW
}

// RedisConfig enables cross-instance fan-out when URL is set.
type RedisConfig struct {
	URL     string // REDIS_URL (redis://host:6379/0)
	Channel string // REDIS_CHANNEL
}

// KafkaConfig enables the commerce event consumer when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string // KAFKA_BROKERS (csv)
	Topic   string   // KAFKA_TOPIC
	GroupID string   // KAFKA_GROUP_ID
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-notify-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Persistence
	DBPath string // SQLite path

	// Producers
	LowStockThreshold int // LOW_STOCK_THRESHOLD, stock at or below triggers an alert

	// Rate limiting (HTTP)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Auth     AuthConfig
	Realtime RealtimeConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	// Observability
	OTEL OTELConfig
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
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		// Server
		Port:              src.getenv("PORT", "8080"),
		ReadTimeout:       src.getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: src.getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      src.getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       src.getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    src.getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(src.getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(src.getenv("LOG_LEVEL", "info")),
		LogPretty:      src.getbool("LOG_PRETTY", false),
		SwaggerEnabled: src.getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(src.getenv("API_BASE_PATH", "/api/v1")),

		DBPath:            src.getenv("DB_PATH", "notifications.db"),
		LowStockThreshold: src.getint("LOW_STOCK_THRESHOLD", 5),

		RateRPS:   src.getfloat("RATE_RPS", 5.0),
		RateBurst: src.getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(src.getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: src.getbool("ENABLE_HSTS", false),
			HSTSMaxAge: src.getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: src.getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Auth: AuthConfig{
			JWTSecret:     src.getenv("JWT_SECRET", ""),
			Issuer:        src.getenv("JWT_ISSUER", ""),
			TokenTTL:      src.getdur("JWT_TTL", time.Hour),
			LookupTimeout: src.getdur("AUTH_LOOKUP_TIMEOUT", 2*time.Second),
		},
		Realtime: RealtimeConfig{
			QueueSize:       src.getint("WS_QUEUE_SIZE", 64),
			WriteTimeout:    src.getdur("WS_WRITE_TIMEOUT", 10*time.Second),
			PongWait:        src.getdur("WS_PONG_WAIT", 60*time.Second),
			PingInterval:    src.getdur("WS_PING_INTERVAL", 50*time.Second),
			MaxMessageBytes: int64(src.getint("WS_MAX_MESSAGE_BYTES", 64<<10)),
			InboundRPS:      src.getfloat("WS_INBOUND_RPS", 10),
			InboundBurst:    src.getint("WS_INBOUND_BURST", 20),
			InitialWindow:   src.getint("INITIAL_UNREAD_WINDOW", 20),
		},
		Redis: RedisConfig{
			URL:     src.getenv("REDIS_URL", ""),
			Channel: src.getenv("REDIS_CHANNEL", "notifications:fanout"),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(src.getenv("KAFKA_BROKERS", "")),
			Topic:   src.getenv("KAFKA_TOPIC", "commerce.events"),
			GroupID: src.getenv("KAFKA_GROUP_ID", "notification-hub"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     src.getbool("OTEL_ENABLED", false),
			Endpoint:    src.getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    src.getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: src.getenv("OTEL_SERVICE_NAME", "go-notify-backend"),
			SampleRatio: src.getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.LowStockThreshold < 0 {
		return cfg, errors.New("LOW_STOCK_THRESHOLD must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Auth.TokenTTL <= 0 || cfg.Auth.LookupTimeout <= 0 {
		return cfg, errors.New("JWT_TTL and AUTH_LOOKUP_TIMEOUT must be > 0")
	}
	if err := cfg.Realtime.validate(); err != nil {
		return cfg, err
	}
	if len(cfg.Kafka.Brokers) > 0 && (cfg.Kafka.Topic == "" || cfg.Kafka.GroupID == "") {
		return cfg, errors.New("KAFKA_TOPIC and KAFKA_GROUP_ID are required when KAFKA_BROKERS is set")
	}
	if cfg.Redis.URL != "" && strings.TrimSpace(cfg.Redis.Channel) == "" {
		return cfg, errors.New("REDIS_CHANNEL must not be empty when REDIS_URL is set")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func (r RealtimeConfig) validate() error {
	switch {
	case r.QueueSize < 1:
		return errors.New("WS_QUEUE_SIZE must be >= 1")
	case r.WriteTimeout <= 0 || r.PongWait <= 0 || r.PingInterval <= 0:
		return errors.New("WS timeouts must be positive durations")
	case r.PingInterval >= r.PongWait:
		return errors.New("WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	case r.MaxMessageBytes <= 0:
		return errors.New("WS_MAX_MESSAGE_BYTES must be > 0")
	case r.InboundRPS <= 0 || r.InboundBurst < 1:
		return errors.New("WS_INBOUND_RPS must be > 0 and WS_INBOUND_BURST >= 1")
	case r.InitialWindow < 0:
		return errors.New("INITIAL_UNREAD_WINDOW must be >= 0")
	}
	return nil
}

// ---- helpers ----

// source resolves keys from the environment first, then from the optional
// config file. Empty values count as unset.
type source struct {
	v *viper.Viper
}

func newSource(file string) (source, error) {
	v := viper.New()
	v.AutomaticEnv()
	if file = strings.TrimSpace(file); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return source{}, fmt.Errorf("CONFIG_FILE %q: %w", file, err)
		}
	}
	return source{v: v}, nil
}

func (s source) getenv(k, def string) string {
	if v := s.v.GetString(k); v != "" {
		return v
	}
	return def
}

func (s source) getfloat(k string, def float64) float64 {
	if v := s.v.GetString(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s source) getint(k string, def int) int {
	if v := s.v.GetString(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) getbool(k string, def bool) bool {
	if v := s.v.GetString(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func (s source) getdur(k string, def time.Duration) time.Duration {
	if v := s.v.GetString(k); v != "" {
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
