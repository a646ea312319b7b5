package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/switchpay/gateway/models"
	"github.com/switchpay/gateway/repositories"
	"go.uber.org/zap"
)

// TransactionRepository implements the repositories.TransactionRepository interface
type TransactionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB, logger *zap.Logger) repositories.TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// Put upserts a transaction by id. Re-submitting the same id overwrites the
// earlier record rather than duplicating it.
func (r *TransactionRepository) Put(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, merchant_id, amount, currency, country, device,
			provider, provider_reference, status, latency_ms, attempts_log, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (id) DO UPDATE SET
			provider = EXCLUDED.provider,
			provider_reference = EXCLUDED.provider_reference,
			status = EXCLUDED.status,
			latency_ms = EXCLUDED.latency_ms,
			attempts_log = EXCLUDED.attempts_log
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.MerchantID,
		tx.Amount,
		tx.Currency,
		tx.Country,
		tx.Device,
		tx.Provider,
		tx.ProviderReference,
		tx.Status,
		tx.LatencyMs,
		nullableJSON(tx.AttemptsLog),
		tx.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to put transaction: %w", err)
	}

	r.logger.Debug("transaction stored",
		zap.String("id", tx.ID.String()),
		zap.String("status", string(tx.Status)))
	return nil
}

// GetByID retrieves a transaction by id
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT id, merchant_id, amount, currency, country, device,
		       provider, provider_reference, status, latency_ms, attempts_log, created_at
		FROM transactions
		WHERE id = $1
	`

	tx := &models.Transaction{}
	var attemptsLog []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tx.ID,
		&tx.MerchantID,
		&tx.Amount,
		&tx.Currency,
		&tx.Country,
		&tx.Device,
		&tx.Provider,
		&tx.ProviderReference,
		&tx.Status,
		&tx.LatencyMs,
		&attemptsLog,
		&tx.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	tx.AttemptsLog = attemptsLog
	return tx, nil
}

// ListByMerchant retrieves a merchant's transactions with pagination,
// most recent first
func (r *TransactionRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT id, merchant_id, amount, currency, country, device,
		       provider, provider_reference, status, latency_ms, attempts_log, created_at
		FROM transactions
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx := &models.Transaction{}
		var attemptsLog []byte
		err := rows.Scan(
			&tx.ID,
			&tx.MerchantID,
			&tx.Amount,
			&tx.Currency,
			&tx.Country,
			&tx.Device,
			&tx.Provider,
			&tx.ProviderReference,
			&tx.Status,
			&tx.LatencyMs,
			&attemptsLog,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.AttemptsLog = attemptsLog
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}

// UpdateStatus sets a transaction's status
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus) error {
	query := `
		UPDATE transactions
		SET status = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("transaction status updated",
		zap.String("id", id.String()),
		zap.String("status", string(status)))
	return nil
}

// GetMetrics retrieves aggregate transaction metrics
func (r *TransactionRepository) GetMetrics(ctx context.Context) (*models.TransactionMetrics, error) {
	metrics := &models.TransactionMetrics{
		ByProvider: make(map[string]int),
		ByStatus:   make(map[string]int),
	}

	totalsQuery := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
	`
	if err := r.db.QueryRowContext(ctx, totalsQuery).Scan(
		&metrics.TotalTransactions,
		&metrics.TotalVolume,
	); err != nil {
		return nil, fmt.Errorf("failed to get transaction totals: %w", err)
	}

	providerQuery := `
		SELECT COALESCE(provider, ''), COUNT(*)
		FROM transactions
		GROUP BY provider
	`
	if err := r.scanGroupCounts(ctx, providerQuery, metrics.ByProvider); err != nil {
		return nil, fmt.Errorf("failed to get provider breakdown: %w", err)
	}

	statusQuery := `
		SELECT status, COUNT(*)
		FROM transactions
		GROUP BY status
	`
	if err := r.scanGroupCounts(ctx, statusQuery, metrics.ByStatus); err != nil {
		return nil, fmt.Errorf("failed to get status breakdown: %w", err)
	}

	return metrics, nil
}

// scanGroupCounts fills dest with label -> count pairs from a GROUP BY query
func (r *TransactionRepository) scanGroupCounts(ctx context.Context, query string, dest map[string]int) error {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return err
		}
		if label == "" {
			continue
		}
		dest[label] = count
	}

	return rows.Err()
}

// nullableJSON maps an empty JSON payload to SQL NULL
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
