package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/spf13/viper"

	"assessment-backend/internal/shared/telemetry"
)

// Options sizes the pool and bounds the startup ping.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

var openDB = sql.Open

// IsLambdaRuntime reports whether the process was started by AWS Lambda.
func IsLambdaRuntime() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

// DefaultLambdaOptions keeps each function instance to a couple of
// connections, since it serves one event at a time.
func DefaultLambdaOptions() Options {
	return Options{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxIdleTime: 30 * time.Second, ConnMaxLifetime: 15 * time.Minute, PingTimeout: 3 * time.Second}
}

// DefaultServerOptions suits the API server and the long-running worker.
func DefaultServerOptions() Options {
	return Options{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxIdleTime: 2 * time.Minute, ConnMaxLifetime: time.Hour, PingTimeout: 5 * time.Second}
}

// DefaultCLIOptions suits one-shot commands such as migrate and dlqctl.
func DefaultCLIOptions() Options {
	return Options{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxIdleTime: time.Minute, ConnMaxLifetime: time.Hour, PingTimeout: 5 * time.Second}
}

// OptionsFromEnv applies DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS,
// DB_CONN_MAX_LIFETIME, DB_CONN_MAX_IDLE_TIME and DB_PING_TIMEOUT on top of
// defaults. Unparseable or non-positive values leave the default in place.
func OptionsFromEnv(defaults Options) Options {
	v := viper.New()
	v.SetEnvPrefix("DB")
	v.AutomaticEnv()

	opts := defaults
	overrideInt(v, "max_open_conns", &opts.MaxOpenConns)
	overrideInt(v, "max_idle_conns", &opts.MaxIdleConns)
	overrideDuration(v, "conn_max_lifetime", &opts.ConnMaxLifetime)
	overrideDuration(v, "conn_max_idle_time", &opts.ConnMaxIdleTime)
	overrideDuration(v, "ping_timeout", &opts.PingTimeout)
	return opts
}

func overrideInt(v *viper.Viper, key string, dst *int) {
	if n := v.GetInt(key); n > 0 {
		*dst = n
	} else if v.GetString(key) != "" {
		telemetry.Warn("db.env_ignored", map[string]any{"key": "DB_" + strings.ToUpper(key), "value": v.GetString(key)})
	}
}

func overrideDuration(v *viper.Viper, key string, dst *time.Duration) {
	if d := v.GetDuration(key); d > 0 {
		*dst = d
	} else if v.GetString(key) != "" {
		telemetry.Warn("db.env_ignored", map[string]any{"key": "DB_" + strings.ToUpper(key), "value": v.GetString(key)})
	}
}

// Connect opens a pgx-backed pool and fails unless it answers a ping in time.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	pool, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyPool(pool, opts)

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	telemetry.Info("db.connected", map[string]any{
		"max_open": pool.Stats().MaxOpenConnections,
		"ping":     timeout.String(),
	})
	return pool, nil
}

var shared struct {
	sync.Mutex
	pool *sql.DB
}

// GetSingleton hands every caller in the process the same pool. Callers
// queue on the lock while the first one connects; if that connect fails the
// next caller tries again.
func GetSingleton(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	shared.Lock()
	defer shared.Unlock()
	if shared.pool != nil {
		return shared.pool, nil
	}
	pool, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	shared.pool = pool
	return pool, nil
}

func applyPool(pool *sql.DB, opts Options) {
	def := DefaultServerOptions()
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = def.MaxOpenConns
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = def.MaxIdleConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = def.ConnMaxLifetime
	}
	pool.SetMaxOpenConns(opts.MaxOpenConns)
	pool.SetMaxIdleConns(opts.MaxIdleConns)
	pool.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}
