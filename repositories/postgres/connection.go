package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/switchpay/gateway/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Transactions table
		CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			merchant_id VARCHAR(255) NOT NULL,
			amount DECIMAL(14, 2) NOT NULL,
			currency VARCHAR(3) NOT NULL,
			country VARCHAR(2) NOT NULL,
			device VARCHAR(50),
			provider VARCHAR(100),
			provider_reference VARCHAR(255),
			status VARCHAR(50) NOT NULL,
			latency_ms DECIMAL(12, 1),
			attempts_log JSONB,
			-- fixed-width RFC 3339; string order equals time order
			created_at TEXT NOT NULL
		);

		-- Idempotency guards table
		CREATE TABLE IF NOT EXISTS idempotency_guards (
			token TEXT PRIMARY KEY,
			merchant_id VARCHAR(255) NOT NULL,
			fingerprint VARCHAR(64) NOT NULL,
			state VARCHAR(50) NOT NULL,
			transaction_id UUID,
			response_snapshot JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_transactions_merchant_id ON transactions(merchant_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);
		CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
		CREATE INDEX IF NOT EXISTS idx_transactions_provider ON transactions(provider);

		CREATE INDEX IF NOT EXISTS idx_idempotency_guards_merchant_id ON idempotency_guards(merchant_id);
		CREATE INDEX IF NOT EXISTS idx_idempotency_guards_created_at ON idempotency_guards(created_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
