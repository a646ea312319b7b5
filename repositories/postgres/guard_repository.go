package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/switchpay/gateway/models"
	"github.com/switchpay/gateway/repositories"
	"go.uber.org/zap"
)

// GuardRepository implements the repositories.GuardRepository interface
type GuardRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewGuardRepository creates a new idempotency guard repository
func NewGuardRepository(db *DB, logger *zap.Logger) repositories.GuardRepository {
	return &GuardRepository{
		db:     db,
		logger: logger,
	}
}

// CreateIfAbsent inserts a guard unless one already exists for its token.
// The token's primary key makes the insert a single atomic check-and-set, so
// concurrent first arrivals resolve to exactly one winner.
func (r *GuardRepository) CreateIfAbsent(ctx context.Context, guard *models.IdempotencyGuard) (bool, error) {
	query := `
		INSERT INTO idempotency_guards (
			token, merchant_id, fingerprint, state, transaction_id, response_snapshot, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (token) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		guard.Token,
		guard.MerchantID,
		guard.Fingerprint,
		guard.State,
		guard.TransactionID,
		nullableJSON(guard.ResponseSnapshot),
		guard.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create idempotency guard: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	created := rowsAffected == 1
	if created {
		r.logger.Debug("idempotency guard created", zap.String("token", guard.Token))
	}
	return created, nil
}

// GetByToken retrieves a guard by token
func (r *GuardRepository) GetByToken(ctx context.Context, token string) (*models.IdempotencyGuard, error) {
	query := `
		SELECT token, merchant_id, fingerprint, state, transaction_id, response_snapshot, created_at
		FROM idempotency_guards
		WHERE token = $1
	`

	guard := &models.IdempotencyGuard{}
	var snapshot []byte
	var transactionID uuid.NullUUID

	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&guard.Token,
		&guard.MerchantID,
		&guard.Fingerprint,
		&guard.State,
		&transactionID,
		&snapshot,
		&guard.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("idempotency guard %s: %w", token, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get idempotency guard: %w", err)
	}

	if transactionID.Valid {
		id := transactionID.UUID
		guard.TransactionID = &id
	}
	guard.ResponseSnapshot = snapshot
	return guard, nil
}

// Complete transitions a guard from in-progress to completed. The state
// predicate in the update makes the first write win; later calls change
// nothing and return false.
func (r *GuardRepository) Complete(ctx context.Context, token string, snapshot json.RawMessage, transactionID uuid.UUID) (bool, error) {
	query := `
		UPDATE idempotency_guards
		SET state = $2,
		    response_snapshot = $3,
		    transaction_id = $4
		WHERE token = $1 AND state = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		token,
		models.GuardStateCompleted,
		nullableJSON(snapshot),
		transactionID,
		models.GuardStateInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete idempotency guard: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	completed := rowsAffected == 1
	if completed {
		r.logger.Debug("idempotency guard completed",
			zap.String("token", token),
			zap.String("transaction_id", transactionID.String()))
	}
	return completed, nil
}
