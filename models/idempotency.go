package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GuardState represents the state of an idempotency guard
type GuardState string

const (
	GuardStateInProgress GuardState = "in-progress"
	GuardStateCompleted  GuardState = "completed"
)

// IdempotencyGuard is the safety record for one idempotency token. The token
// and fingerprint are immutable after creation; state only moves
// in-progress -> completed, and a completed guard's response snapshot is the
// canonical reply for every later request bearing the same token.
type IdempotencyGuard struct {
	Token            string          `json:"token" db:"token"`
	MerchantID       string          `json:"merchant_id" db:"merchant_id"`
	Fingerprint      string          `json:"fingerprint" db:"fingerprint"`
	State            GuardState      `json:"state" db:"state"`
	TransactionID    *uuid.UUID      `json:"transaction_id,omitempty" db:"transaction_id"`
	ResponseSnapshot json.RawMessage `json:"response_snapshot,omitempty" db:"response_snapshot"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the IdempotencyGuard model
func (IdempotencyGuard) TableName() string {
	return "idempotency_guards"
}

// NewIdempotencyGuard creates an in-progress guard for a token.
func NewIdempotencyGuard(token, merchantID, fingerprint string) *IdempotencyGuard {
	return &IdempotencyGuard{
		Token:       token,
		MerchantID:  merchantID,
		Fingerprint: fingerprint,
		State:       GuardStateInProgress,
		CreatedAt:   time.Now().UTC(),
	}
}

// Completed reports whether the guard has reached its terminal state.
func (g *IdempotencyGuard) Completed() bool {
	return g.State == GuardStateCompleted
}
