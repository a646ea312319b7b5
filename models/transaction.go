package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CreatedAtLayout formats timestamps with fixed-width fractional seconds.
// time.RFC3339Nano trims trailing zeros, which breaks lexicographic ordering;
// this layout keeps all nine digits so string order matches time order.
const CreatedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TransactionStatus represents the lifecycle state of a payment transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// ValidTransition reports whether a status change is allowed.
// Transitions only move forward: pending -> succeeded|failed.
func (s TransactionStatus) ValidTransition(to TransactionStatus) bool {
	if s != TransactionStatusPending {
		return false
	}
	return to == TransactionStatusSucceeded || to == TransactionStatusFailed
}

// Transaction represents one payment attempt lifecycle.
// ID, MerchantID, Amount, Currency, Country and Device are set at creation
// and never mutated. LatencyMs is written exactly once, at completion.
type Transaction struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	MerchantID        string            `json:"merchant_id" db:"merchant_id"`
	Amount            float64           `json:"amount" db:"amount"`
	Currency          string            `json:"currency" db:"currency"`
	Country           string            `json:"country" db:"country"`
	Device            string            `json:"device" db:"device"`
	Provider          string            `json:"provider" db:"provider"`
	ProviderReference *string           `json:"provider_reference,omitempty" db:"provider_reference"`
	Status            TransactionStatus `json:"status" db:"status"`
	LatencyMs         *float64          `json:"latency_ms,omitempty" db:"latency_ms"`

	// AttemptsLog records every provider try made during dispatch, in order.
	AttemptsLog json.RawMessage `json:"attempts_log,omitempty" db:"attempts_log"`

	// CreatedAt is stored as a fixed-width RFC 3339 UTC string
	// (CreatedAtLayout) so lexicographic order matches creation order.
	CreatedAt string `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Transaction model
func (Transaction) TableName() string {
	return "transactions"
}

// NewTransaction creates a pending transaction for a merchant. The id is
// assigned here exactly once.
func NewTransaction(merchantID string, amount float64, currency, country, device string) *Transaction {
	return &Transaction{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Amount:     amount,
		Currency:   currency,
		Country:    country,
		Device:     device,
		Status:     TransactionStatusPending,
		CreatedAt:  time.Now().UTC().Format(CreatedAtLayout),
	}
}

// TransactionMetrics represents aggregate transaction metrics
type TransactionMetrics struct {
	TotalTransactions int                `json:"total_transactions"`
	TotalVolume       float64            `json:"total_volume"`
	ByProvider        map[string]int     `json:"transactions_by_provider"`
	ByStatus          map[string]int     `json:"transactions_by_status"`
}
