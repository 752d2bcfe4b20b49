package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/spf13/viper"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// Role selects pool sizing for the process that opens the database.
type Role string

const (
	RoleServer  Role = "server"
	RoleLambda  Role = "lambda"
	RoleMigrate Role = "migrate"
)

// Pool sizes the connection pool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

var openDB = sql.Open

// Lambda warm starts reuse one handle per execution environment.
var shared struct {
	mu sync.Mutex
	db *sql.DB
}

// RuntimeRole reports RoleLambda inside AWS Lambda and RoleServer elsewhere.
func RuntimeRole() Role {
	if strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != "" {
		return RoleLambda
	}
	return RoleServer
}

// PoolFor returns the sizing for role with DB_* environment overrides applied.
func PoolFor(role Role) Pool {
	p := defaultPool(role)

	v := viper.New()
	v.SetEnvPrefix("DB")
	v.AutomaticEnv()
	overrideInt(v, "MAX_OPEN_CONNS", &p.MaxOpen)
	overrideInt(v, "MAX_IDLE_CONNS", &p.MaxIdle)
	overrideDuration(v, "CONN_MAX_LIFETIME", &p.MaxLifetime)
	overrideDuration(v, "CONN_MAX_IDLE_TIME", &p.MaxIdleTime)
	overrideDuration(v, "PING_TIMEOUT", &p.PingTimeout)
	return p
}

func defaultPool(role Role) Pool {
	switch role {
	case RoleLambda:
		// Concurrent invocations each hold their own pool; keep it small.
		return Pool{MaxOpen: 2, MaxIdle: 1, MaxLifetime: 15 * time.Minute, MaxIdleTime: 30 * time.Second, PingTimeout: 3 * time.Second}
	case RoleMigrate:
		return Pool{MaxOpen: 1, MaxIdle: 1, MaxLifetime: time.Hour, MaxIdleTime: 2 * time.Minute, PingTimeout: 5 * time.Second}
	default:
		return Pool{MaxOpen: 10, MaxIdle: 5, MaxLifetime: time.Hour, MaxIdleTime: 2 * time.Minute, PingTimeout: 5 * time.Second}
	}
}

// Open connects for role. Lambda callers share one handle; a failed attempt is retried
// by the next call.
func Open(ctx context.Context, databaseURL string, role Role) (*sql.DB, error) {
	pool := PoolFor(role)
	if role != RoleLambda {
		return Connect(ctx, databaseURL, pool)
	}

	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.db != nil {
		return shared.db, nil
	}
	conn, err := Connect(ctx, databaseURL, pool)
	if err != nil {
		return nil, err
	}
	shared.db = conn
	return conn, nil
}

// Connect opens a pgx-backed *sql.DB and pings it before returning.
func Connect(ctx context.Context, databaseURL string, pool Pool) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	conn, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(pool.MaxOpen)
	conn.SetMaxIdleConns(pool.MaxIdle)
	conn.SetConnMaxLifetime(pool.MaxLifetime)
	conn.SetConnMaxIdleTime(pool.MaxIdleTime)

	timeout := pool.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	telemetry.Info("db.connected", map[string]any{
		"max_open": pool.MaxOpen,
		"max_idle": pool.MaxIdle,
	})
	return conn, nil
}

func overrideInt(v *viper.Viper, key string, dst *int) {
	if !v.IsSet(key) {
		return
	}
	if n := v.GetInt(key); n > 0 {
		*dst = n
		return
	}
	telemetry.Warn("db.env.invalid", map[string]any{"key": "DB_" + key, "value": v.GetString(key)})
}

func overrideDuration(v *viper.Viper, key string, dst *time.Duration) {
	if !v.IsSet(key) {
		return
	}
	if d := v.GetDuration(key); d > 0 {
		*dst = d
		return
	}
	telemetry.Warn("db.env.invalid", map[string]any{"key": "DB_" + key, "value": v.GetString(key)})
}
