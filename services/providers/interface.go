package providers

import (
	"context"
	"time"
)

// Provider represents a unified payment provider interface. Implementations
// must not return an error for ordinary business declines; those are reported
// through AttemptResult. An error return means the adapter itself faulted,
// which callers treat the same as a failed attempt.
type Provider interface {
	// Name returns the stable provider name (e.g., "stripe", "adyen")
	Name() string

	// Attempt performs one payment attempt against the provider
	Attempt(ctx context.Context, req *PaymentRequest) (*AttemptResult, error)
}

// PaymentRequest represents a single payment instruction handed to a provider
type PaymentRequest struct {
	// TransactionID is the id of the transaction this attempt belongs to
	TransactionID string `json:"transaction_id"`

	// MerchantID identifies the owning caller
	MerchantID string `json:"merchant_id"`

	// Amount is the payment amount, always positive
	Amount float64 `json:"amount"`

	// Currency is the ISO-4217 3-letter currency code
	Currency string `json:"currency"`

	// Country is the destination country code
	Country string `json:"country"`

	// Device is the originating device label
	Device string `json:"device"`
}

// AttemptResult represents the outcome of one provider attempt
type AttemptResult struct {
	// Succeeded reports whether the provider accepted the payment
	Succeeded bool `json:"succeeded"`

	// ProviderReference is the provider-side id for a successful payment
	ProviderReference string `json:"provider_reference,omitempty"`

	// ErrorInfo carries the provider's failure reason when Succeeded is false
	ErrorInfo string `json:"error,omitempty"`

	// Latency is how long the provider took to answer
	Latency time.Duration `json:"-"`
}

// ProviderError represents an adapter-internal fault
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}
