package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"forex-signal-engine/internal/logging"
)

// querier is the subset of the pool the repositories use
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration
type Config struct {
	Enabled  bool   `yaml:"enabled" default:"false"`
	Host     string `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
	Port     int    `yaml:"port" default:"5432" validate:"min=1,max=65535"`
	User     string `yaml:"user" default:"forex"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database" default:"forex_signals"`
	SSLMode  string `yaml:"ssl_mode" default:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `yaml:"max_conns" default:"10" validate:"min=1"`
}

// DSN builds the libpq connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger := logging.WithComponent("database")
	logger.Info("Connected to PostgreSQL", "database", cfg.Database, "host", cfg.Host)

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// migrations are applied in order on every start; each statement is idempotent
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		id VARCHAR(64) PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(4) NOT NULL,
		grade VARCHAR(2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		timeframe VARCHAR(4) NOT NULL,
		entry DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		take_profit_1 DOUBLE PRECISION NOT NULL,
		take_profit_2 DOUBLE PRECISION,
		take_profit_3 DOUBLE PRECISION,
		confluence DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		lots DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_price DOUBLE PRECISION,
		source VARCHAR(40),
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS candles (
		symbol VARCHAR(20) NOT NULL,
		timeframe VARCHAR(4) NOT NULL,
		time TIMESTAMPTZ NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, timeframe, time)
	)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("Running database migrations", "count", len(migrations))
	for i, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
