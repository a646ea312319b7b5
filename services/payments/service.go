package payments

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/switchpay/gateway/internal/observability"
	"github.com/switchpay/gateway/models"
	"github.com/switchpay/gateway/repositories"
	"github.com/switchpay/gateway/services"
	"github.com/switchpay/gateway/services/dispatch"
	"github.com/switchpay/gateway/services/idempotency"
	"github.com/switchpay/gateway/services/providers"
	"github.com/switchpay/gateway/services/routing"
	"github.com/switchpay/gateway/utils"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SubmitRequest is the payload for submitting a payment
type SubmitRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"required,len=3,alpha"`
	Country  string  `json:"country" validate:"required,len=2,alpha"`
	Device   string  `json:"device,omitempty" validate:"omitempty,max=50"`
}

// fingerprintPayload binds the request to the merchant, so the same payload
// submitted under two merchants never shares a fingerprint.
type fingerprintPayload struct {
	MerchantID string        `json:"merchant_id"`
	Request    SubmitRequest `json:"request"`
}

// SubmitResult carries the stored transaction plus whether it was served
// from an idempotent replay rather than a fresh dispatch.
type SubmitResult struct {
	Transaction *models.Transaction
	Replayed    bool
}

// Service orchestrates a payment submission end to end: validation,
// idempotency claim, routing, dispatch and persistence.
type Service struct {
	repos       *repositories.Repositories
	router      *routing.Service
	executor    *dispatch.Executor
	coordinator *idempotency.Coordinator
	logger      *zap.Logger
}

// NewService creates a payment service
func NewService(
	repos *repositories.Repositories,
	router *routing.Service,
	executor *dispatch.Executor,
	coordinator *idempotency.Coordinator,
	logger *zap.Logger,
) *Service {
	return &Service{
		repos:       repos,
		router:      router,
		executor:    executor,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Submit runs one payment through the engine. When token is non-empty the
// submission is guarded: the same token with the same payload always yields
// the same stored transaction, and at most one dispatch ever happens for it.
func (s *Service) Submit(ctx context.Context, merchantID, token string, req *SubmitRequest) (*SubmitResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	s.normalize(req)

	if token != "" {
		fingerprint := idempotency.Fingerprint(fingerprintPayload{
			MerchantID: merchantID,
			Request:    *req,
		})

		decision, err := s.coordinator.BeginOrReplay(ctx, token, merchantID, fingerprint)
		if err != nil {
			return nil, err
		}

		switch decision.Kind {
		case idempotency.Replay:
			tx := &models.Transaction{}
			if err := json.Unmarshal(decision.ResponseSnapshot, tx); err != nil {
				return nil, services.WrapInternal("stored response snapshot is unreadable", err)
			}
			observability.IdempotencyReplays.Inc()
			s.logger.Info("idempotent replay served",
				zap.String("merchant_id", merchantID),
				zap.String("transaction_id", tx.ID.String()))
			return &SubmitResult{Transaction: tx, Replayed: true}, nil
		case idempotency.Conflict:
			return nil, services.ErrIdempotencyConflict
		case idempotency.InProgress:
			return nil, services.ErrIdempotencyInProgress
		}
		// Proceed: the guard is ours; dispatch exactly once below.
	}

	tx := models.NewTransaction(merchantID, req.Amount, req.Currency, req.Country, req.Device)

	// The pending record must exist before any provider is touched. If it
	// cannot be written, no money may move.
	if err := s.repos.Transactions.Put(ctx, tx); err != nil {
		return nil, services.WrapPersistence("failed to store pending transaction", err)
	}

	candidates := s.router.Decide(req.Country, req.Currency)

	start := time.Now()
	outcome := s.executor.Execute(ctx, candidates, &providers.PaymentRequest{
		TransactionID: tx.ID.String(),
		MerchantID:    merchantID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Country:       req.Country,
		Device:        req.Device,
	})
	elapsed := time.Since(start)

	latency := math.Round(float64(elapsed.Microseconds())/100) / 10
	tx.Status = outcome.Status
	tx.LatencyMs = &latency
	if outcome.Provider != "" {
		tx.Provider = outcome.Provider
	}
	if outcome.ProviderReference != "" {
		ref := outcome.ProviderReference
		tx.ProviderReference = &ref
	}
	if attempts, err := json.Marshal(outcome.Attempts); err == nil {
		tx.AttemptsLog = attempts
	}

	observability.TransactionsDispatched.WithLabelValues(
		labelOrNone(outcome.Provider), string(outcome.Status)).Inc()
	observability.DispatchDuration.Observe(elapsed.Seconds())

	// The provider outcome is already final. A write failure here must not
	// turn a succeeded payment into an error for the caller.
	if err := s.repos.Transactions.Put(ctx, tx); err != nil {
		s.logger.Error("failed to store transaction outcome",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
	}

	if token != "" {
		s.completeGuard(ctx, token, tx)
	}

	s.logger.Info("transaction dispatched",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("merchant_id", merchantID),
		zap.String("status", string(tx.Status)),
		zap.String("provider", tx.Provider),
		zap.Float64("latency_ms", latency))

	return &SubmitResult{Transaction: tx}, nil
}

// GetTransaction retrieves one transaction scoped to the calling merchant.
// A transaction owned by another merchant is indistinguishable from a
// missing one.
func (s *Service) GetTransaction(ctx context.Context, merchantID string, id uuid.UUID) (*models.Transaction, error) {
	tx, err := s.repos.Transactions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTransactionNotFound
		}
		return nil, services.WrapPersistence("failed to load transaction", err)
	}
	if tx.MerchantID != merchantID {
		return nil, services.ErrTransactionNotFound
	}
	return tx, nil
}

// ListTransactions retrieves the calling merchant's transactions, most
// recent first. Limit defaults to 20 and is capped at 100.
func (s *Service) ListTransactions(ctx context.Context, merchantID string, limit, offset int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := s.repos.Transactions.ListByMerchant(ctx, merchantID, limit, offset)
	if err != nil {
		return nil, services.WrapPersistence("failed to list transactions", err)
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	return txs, nil
}

// CorrectStatus applies an administrative status override. Only forward
// transitions out of pending are allowed.
func (s *Service) CorrectStatus(ctx context.Context, merchantID string, id uuid.UUID, status models.TransactionStatus) (*models.Transaction, error) {
	if status != models.TransactionStatusSucceeded && status != models.TransactionStatusFailed {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid status transition", nil).
			WithDetail("status", string(status))
	}

	tx, err := s.GetTransaction(ctx, merchantID, id)
	if err != nil {
		return nil, err
	}

	if !tx.Status.ValidTransition(status) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid status transition", nil).
			WithDetail("from", string(tx.Status)).
			WithDetail("to", string(status))
	}

	if err := s.repos.Transactions.UpdateStatus(ctx, id, status); err != nil {
		return nil, services.WrapPersistence("failed to update transaction status", err)
	}

	tx.Status = status
	s.logger.Info("transaction status corrected",
		zap.String("transaction_id", id.String()),
		zap.String("status", string(status)))
	return tx, nil
}

// Metrics retrieves aggregate transaction metrics across all merchants
func (s *Service) Metrics(ctx context.Context) (*models.TransactionMetrics, error) {
	metrics, err := s.repos.Transactions.GetMetrics(ctx)
	if err != nil {
		return nil, services.WrapPersistence("failed to load transaction metrics", err)
	}
	return metrics, nil
}

// validate rejects malformed submissions before any state is created
func (s *Service) validate(req *SubmitRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		var validationErr *utils.ValidationError
		if errors.As(err, &validationErr) {
			domainErr := services.NewDomainError(services.ErrorTypeValidation, validationErr.Message, nil)
			for field, msg := range validationErr.Fields {
				domainErr.WithDetail(field, msg)
			}
			return domainErr
		}
		return services.WrapError(services.ErrorTypeValidation, "invalid request", err)
	}
	return nil
}

// normalize folds currency and country into their canonical case
func (s *Service) normalize(req *SubmitRequest) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Country = strings.ToLower(strings.TrimSpace(req.Country))
	req.Device = strings.TrimSpace(req.Device)
}

// completeGuard transitions the idempotency guard to completed with the
// stored transaction as the snapshot. Failures are logged, never surfaced:
// the transaction outcome is already committed.
func (s *Service) completeGuard(ctx context.Context, token string, tx *models.Transaction) {
	snapshot, err := json.Marshal(tx)
	if err != nil {
		s.logger.Error("failed to marshal response snapshot",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
		return
	}
	if err := s.coordinator.Complete(ctx, token, snapshot, tx.ID); err != nil {
		s.logger.Error("failed to complete idempotency guard",
			zap.String("token", token),
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
	}
}

func labelOrNone(provider string) string {
	if provider == "" {
		return "none"
	}
	return provider
}
