package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/switchpay/gateway/middleware"
	"github.com/switchpay/gateway/models"
	"github.com/switchpay/gateway/services/payments"
	"github.com/switchpay/gateway/utils"
)

// idempotencyKeyHeader carries the client's idempotency token
const idempotencyKeyHeader = "Idempotency-Key"

// PaymentService defines the operations the transaction handler depends on
type PaymentService interface {
	Submit(ctx context.Context, merchantID, token string, req *payments.SubmitRequest) (*payments.SubmitResult, error)
	GetTransaction(ctx context.Context, merchantID string, id uuid.UUID) (*models.Transaction, error)
	ListTransactions(ctx context.Context, merchantID string, limit, offset int) ([]*models.Transaction, error)
	CorrectStatus(ctx context.Context, merchantID string, id uuid.UUID, status models.TransactionStatus) (*models.Transaction, error)
	Metrics(ctx context.Context) (*models.TransactionMetrics, error)
}

// TransactionHandler handles transaction-related HTTP requests
type TransactionHandler struct {
	service PaymentService
	logger  *zap.Logger
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(service PaymentService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSubmit handles POST /api/v1/transactions
func (h *TransactionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	merchantID := middleware.GetMerchantIDFromContext(ctx)

	if merchantID == "" {
		h.logger.Error("missing merchant in context",
			zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req payments.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	token := r.Header.Get(idempotencyKeyHeader)

	result, err := h.service.Submit(ctx, merchantID, token, &req)
	if err != nil {
		h.logger.Warn("transaction submission failed",
			zap.String("request_id", requestID),
			zap.String("merchant_id", merchantID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("transaction submission handled",
		zap.String("request_id", requestID),
		zap.String("merchant_id", merchantID),
		zap.String("transaction_id", result.Transaction.ID.String()),
		zap.Bool("replayed", result.Replayed))

	// A replay returns the stored response, not a fresh creation.
	if result.Replayed {
		_ = utils.WriteOK(w, result.Transaction)
		return
	}
	_ = utils.WriteCreated(w, result.Transaction)
}

// HandleGet handles GET /api/v1/transactions/{id}
func (h *TransactionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantIDFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid transaction ID", nil)
		return
	}

	tx, err := h.service.GetTransaction(ctx, merchantID, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, tx)
}

// HandleList handles GET /api/v1/transactions
func (h *TransactionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantIDFromContext(ctx)

	limit := parseQueryInt(r, "limit", 0)
	offset := parseQueryInt(r, "offset", 0)

	txs, err := h.service.ListTransactions(ctx, merchantID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, txs)
}

// statusCorrectionRequest is the payload for PATCH /api/v1/transactions/{id}/status
type statusCorrectionRequest struct {
	Status string `json:"status" validate:"required"`
}

// HandleCorrectStatus handles PATCH /api/v1/transactions/{id}/status
func (h *TransactionHandler) HandleCorrectStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantIDFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid transaction ID", nil)
		return
	}

	var req statusCorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	tx, err := h.service.CorrectStatus(ctx, merchantID, id, models.TransactionStatus(req.Status))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, tx)
}

// HandleMetrics handles GET /api/v1/metrics/transactions
func (h *TransactionHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.Metrics(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, metrics)
}

// parseQueryInt reads an integer query parameter, falling back on absence or
// garbage
func parseQueryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
