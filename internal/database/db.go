package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		// Generated trading signals
		`CREATE TABLE IF NOT EXISTS signals (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(5) NOT NULL,
			strategy VARCHAR(20) NOT NULL,
			entry DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8) NOT NULL,
			take_profit_1 DECIMAL(20, 8) NOT NULL,
			take_profit_2 DECIMAL(20, 8) NOT NULL,
			take_profit_3 DECIMAL(20, 8) NOT NULL,
			position_size DECIMAL(20, 8) NOT NULL DEFAULT 0,
			leverage DECIMAL(10, 2) NOT NULL DEFAULT 0,
			risk_amount DECIMAL(20, 8) NOT NULL DEFAULT 0,
			confidence INTEGER NOT NULL,
			weighted_confidence INTEGER NOT NULL,
			regime VARCHAR(30),
			atr DECIMAL(20, 8),
			current_price DECIMAL(20, 8),
			reasons TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		// Sizing columns for databases created before they existed
		`ALTER TABLE signals ADD COLUMN IF NOT EXISTS position_size DECIMAL(20, 8) NOT NULL DEFAULT 0`,
		`ALTER TABLE signals ADD COLUMN IF NOT EXISTS leverage DECIMAL(10, 2) NOT NULL DEFAULT 0`,
		`ALTER TABLE signals ADD COLUMN IF NOT EXISTS risk_amount DECIMAL(20, 8) NOT NULL DEFAULT 0`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at)`,

		// Tracked paper trades derived from signals
		`CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY,
			signal_id UUID REFERENCES signals(id) ON DELETE SET NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(5) NOT NULL,
			strategy VARCHAR(20),
			entry DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8) NOT NULL,
			take_profit_1 DECIMAL(20, 8),
			take_profit_2 DECIMAL(20, 8),
			take_profit_3 DECIMAL(20, 8),
			quantity DECIMAL(20, 8) NOT NULL,
			leverage DECIMAL(10, 2),
			status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
			pnl_percent DECIMAL(10, 4),
			opened_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades(opened_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// HealthCheck verifies the database connection is alive
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}
