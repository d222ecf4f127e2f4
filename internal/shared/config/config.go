package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"assessment-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	JWTSecret      string
	JWTIssuer      string
	DevIdentity    bool
	RateLimitRPM   int
	RateLimitBurst int

	Export ExportConfig

	// ExportQueueURL is the SQS queue that carries worker nudges. Empty disables SQS.
	ExportQueueURL string
}

// ExportConfig tunes the export worker and its sweeper.
type ExportConfig struct {
	MaxAttempts       int
	PollInterval      time.Duration
	GenerationTimeout time.Duration
	SweepInterval     time.Duration
	// InProcessWorker runs the worker inside the API process.
	InProcessWorker bool
}

// Load reads configuration from the environment, after best-effort loading
// of local .env files. Invalid numbers and durations fall back to defaults
// with a warning.
func Load() Config {
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	v.AutomaticEnv()
	for key, def := range defaults {
		v.SetDefault(key, def)
	}

	env := normalizeEnv(v.GetString("ENV"))
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": env})
	}

	return Config{
		Port:            v.GetString("PORT"),
		Env:             env,
		LogLevel:        v.GetString("LOG_LEVEL"),
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		DatabaseURL:     dbURL,
		ObjectStoreType: normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:   v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:       v.GetString("AWS_REGION"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3Prefix:        v.GetString("S3_PREFIX"),
		SSEKMSKeyID:     v.GetString("SSE_KMS_KEY_ID"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		JWTIssuer:       v.GetString("JWT_ISSUER"),
		DevIdentity:     boolOr(v, "DEV_IDENTITY_HEADER", env != "production"),
		RateLimitRPM:    positiveInt(v, "RATE_LIMIT_RPM"),
		RateLimitBurst:  positiveInt(v, "RATE_LIMIT_BURST"),
		Export: ExportConfig{
			MaxAttempts:       positiveInt(v, "EXPORT_MAX_ATTEMPTS"),
			PollInterval:      positiveDuration(v, "EXPORT_POLL_INTERVAL"),
			GenerationTimeout: positiveDuration(v, "EXPORT_GENERATION_TIMEOUT"),
			SweepInterval:     positiveDuration(v, "EXPORT_SWEEP_INTERVAL"),
			InProcessWorker:   boolOr(v, "EXPORT_IN_PROCESS_WORKER", dbURL == ""),
		},
		ExportQueueURL: v.GetString("EXPORT_QUEUE_URL"),
	}
}

var defaults = map[string]any{
	"ENV":                       "dev",
	"PORT":                      "8080",
	"LOG_LEVEL":                 "info",
	"CORS_ALLOW_ORIGINS":        "http://localhost:5173",
	"OBJECT_STORE":              "local",
	"LOCAL_STORE_DIR":           "./data",
	"RATE_LIMIT_RPM":            30,
	"RATE_LIMIT_BURST":          10,
	"EXPORT_MAX_ATTEMPTS":       4,
	"EXPORT_POLL_INTERVAL":      15 * time.Second,
	"EXPORT_GENERATION_TIMEOUT": 2 * time.Minute,
	"EXPORT_SWEEP_INTERVAL":     5 * time.Minute,
}

func positiveInt(v *viper.Viper, key string) int {
	if n, err := cast.ToIntE(v.Get(key)); err == nil && n > 0 {
		return n
	}
	telemetry.Warn("config.invalid_int", map[string]any{"key": key, "value": v.GetString(key)})
	return cast.ToInt(defaults[key])
}

func positiveDuration(v *viper.Viper, key string) time.Duration {
	if d, err := cast.ToDurationE(v.Get(key)); err == nil && d > 0 {
		return d
	}
	telemetry.Warn("config.invalid_duration", map[string]any{"key": key, "value": v.GetString(key)})
	return cast.ToDuration(defaults[key])
}

func boolOr(v *viper.Viper, key string, def bool) bool {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging", "local", "test":
		return strings.ToLower(strings.TrimSpace(raw))
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "s3") {
		return "s3"
	}
	return "local"
}
