package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/switchpay/gateway/models"
)

// ErrNotFound marks lookups that matched no record. Implementations wrap it
// so callers can test with errors.Is.
var ErrNotFound = errors.New("not found")

// TransactionRepository is the authoritative record of a transaction's
// lifecycle, keyed by transaction id.
type TransactionRepository interface {
	// Put upserts a transaction by id
	Put(ctx context.Context, tx *models.Transaction) error

	// GetByID retrieves a transaction by id
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)

	// ListByMerchant retrieves a merchant's transactions with pagination,
	// most recent first
	ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*models.Transaction, error)

	// UpdateStatus sets a transaction's status (administrative override)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus) error

	// GetMetrics retrieves aggregate transaction metrics
	GetMetrics(ctx context.Context) (*models.TransactionMetrics, error)
}

// GuardRepository owns idempotency guard records. CreateIfAbsent must be a
// single atomic check-and-set so that concurrent first arrivals for the same
// token resolve to exactly one winner even across process instances.
type GuardRepository interface {
	// CreateIfAbsent inserts a guard unless one already exists for its token.
	// Returns true when this call created the guard.
	CreateIfAbsent(ctx context.Context, guard *models.IdempotencyGuard) (bool, error)

	// GetByToken retrieves a guard by token
	GetByToken(ctx context.Context, token string) (*models.IdempotencyGuard, error)

	// Complete transitions a guard from in-progress to completed, attaching
	// the response snapshot and transaction id. The first write wins; a call
	// against an already-completed guard changes nothing and returns false.
	Complete(ctx context.Context, token string, snapshot json.RawMessage, transactionID uuid.UUID) (bool, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Transactions TransactionRepository
	Guards       GuardRepository
}
