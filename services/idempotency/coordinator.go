package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/switchpay/gateway/models"
	"github.com/switchpay/gateway/repositories"
	"github.com/switchpay/gateway/services"
)

// DecisionKind tells the caller what to do after BeginOrReplay.
type DecisionKind int

const (
	// Proceed: no guard existed; one was created and the caller must run the
	// operation and call Complete afterwards.
	Proceed DecisionKind = iota

	// Replay: a completed guard with a matching fingerprint exists; the
	// caller must return the stored snapshot verbatim and make no provider
	// call.
	Replay

	// Conflict: the token was reused with a different payload.
	Conflict

	// InProgress: another operation holds the token; the caller should ask
	// the client to retry later.
	InProgress
)

// Decision is the result of BeginOrReplay.
type Decision struct {
	Kind             DecisionKind
	ResponseSnapshot json.RawMessage
	TransactionID    *uuid.UUID
}

// Coordinator guards an operation so that one idempotency token yields
// exactly one outcome regardless of how many times the operation is invoked,
// concurrently or sequentially.
type Coordinator struct {
	guards repositories.GuardRepository
	logger *zap.Logger
}

// NewCoordinator creates an idempotency coordinator
func NewCoordinator(guards repositories.GuardRepository, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		guards: guards,
		logger: logger,
	}
}

// Fingerprint computes the stable hash of a normalized request payload.
// Marshaling a struct keeps field order fixed, so equal payloads always hash
// equal.
func Fingerprint(payload interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain request structs; Marshal cannot fail on them.
		// Fall back to the error text so no two distinct failures collide.
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BeginOrReplay atomically claims the token or reports how a previous claim
// ended. The guard insert is a single check-and-set, so exactly one of any
// number of concurrent first arrivals proceeds.
func (c *Coordinator) BeginOrReplay(ctx context.Context, token, merchantID, fingerprint string) (*Decision, error) {
	guard := models.NewIdempotencyGuard(token, merchantID, fingerprint)

	created, err := c.guards.CreateIfAbsent(ctx, guard)
	if err != nil {
		return nil, services.WrapPersistence("create idempotency guard", err)
	}
	if created {
		c.logger.Debug("idempotency guard created",
			zap.String("token", token),
			zap.String("merchant_id", merchantID))
		return &Decision{Kind: Proceed}, nil
	}

	existing, err := c.guards.GetByToken(ctx, token)
	if err != nil {
		return nil, services.WrapPersistence("load idempotency guard", err)
	}

	if !existing.Completed() {
		return &Decision{Kind: InProgress}, nil
	}
	if existing.Fingerprint != fingerprint {
		return &Decision{Kind: Conflict}, nil
	}
	return &Decision{
		Kind:             Replay,
		ResponseSnapshot: existing.ResponseSnapshot,
		TransactionID:    existing.TransactionID,
	}, nil
}

// Complete finalizes the guard with the canonical response. It is safe to
// call more than once; only the first write takes effect. A failure here is
// returned for logging but must never override the payment outcome already
// obtained by the caller.
func (c *Coordinator) Complete(ctx context.Context, token string, snapshot json.RawMessage, transactionID uuid.UUID) error {
	written, err := c.guards.Complete(ctx, token, snapshot, transactionID)
	if err != nil {
		return services.WrapPersistence(fmt.Sprintf("complete idempotency guard %s", token), err)
	}
	if !written {
		c.logger.Debug("idempotency guard already completed",
			zap.String("token", token))
	}
	return nil
}
