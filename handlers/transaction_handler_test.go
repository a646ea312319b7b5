package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/switchpay/gateway/middleware"
	"github.com/switchpay/gateway/models"
	"github.com/switchpay/gateway/services"
	"github.com/switchpay/gateway/services/payments"
)

// MockPaymentService is a mock implementation of PaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Submit(ctx context.Context, merchantID, token string, req *payments.SubmitRequest) (*payments.SubmitResult, error) {
	args := m.Called(ctx, merchantID, token, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.SubmitResult), args.Error(1)
}

func (m *MockPaymentService) GetTransaction(ctx context.Context, merchantID string, id uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, merchantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockPaymentService) ListTransactions(ctx context.Context, merchantID string, limit, offset int) ([]*models.Transaction, error) {
	args := m.Called(ctx, merchantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockPaymentService) CorrectStatus(ctx context.Context, merchantID string, id uuid.UUID, status models.TransactionStatus) (*models.Transaction, error) {
	args := m.Called(ctx, merchantID, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockPaymentService) Metrics(ctx context.Context) (*models.TransactionMetrics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransactionMetrics), args.Error(1)
}

func authedRequest(method, target string, body []byte, merchantID string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := middleware.WithMerchantID(req.Context(), merchantID)
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func succeededTransaction(merchantID string) *models.Transaction {
	tx := models.NewTransaction(merchantID, 120.50, "EUR", "de", "ios")
	tx.Status = models.TransactionStatusSucceeded
	tx.Provider = "adyen"
	ref := "adyen_00042"
	tx.ProviderReference = &ref
	latency := 215.3
	tx.LatencyMs = &latency
	return tx
}

func TestHandleSubmit(t *testing.T) {
	logger := zap.NewNop()

	t.Run("fresh submission returns 201", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)
		tx := succeededTransaction("merchant-1")

		svc.On("Submit", mock.Anything, "merchant-1", "", mock.AnythingOfType("*payments.SubmitRequest")).
			Return(&payments.SubmitResult{Transaction: tx}, nil)

		body, _ := json.Marshal(map[string]interface{}{
			"amount": 120.50, "currency": "EUR", "country": "de", "device": "ios",
		})
		req := authedRequest(http.MethodPost, "/api/v1/transactions", body, "merchant-1")
		w := httptest.NewRecorder()

		handler.HandleSubmit(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		data := response["data"].(map[string]interface{})
		assert.Equal(t, tx.ID.String(), data["id"])
		assert.Equal(t, "succeeded", data["status"])
		assert.Equal(t, "adyen", data["provider"])
		svc.AssertExpectations(t)
	})

	t.Run("idempotent replay returns 200", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)
		tx := succeededTransaction("merchant-1")

		svc.On("Submit", mock.Anything, "merchant-1", "tok-1", mock.Anything).
			Return(&payments.SubmitResult{Transaction: tx, Replayed: true}, nil)

		body, _ := json.Marshal(map[string]interface{}{
			"amount": 120.50, "currency": "EUR", "country": "de",
		})
		req := authedRequest(http.MethodPost, "/api/v1/transactions", body, "merchant-1")
		req.Header.Set("Idempotency-Key", "tok-1")
		w := httptest.NewRecorder()

		handler.HandleSubmit(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("idempotency conflict returns 409", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)

		svc.On("Submit", mock.Anything, "merchant-1", "tok-1", mock.Anything).
			Return(nil, services.ErrIdempotencyConflict)

		body, _ := json.Marshal(map[string]interface{}{
			"amount": 999.0, "currency": "EUR", "country": "de",
		})
		req := authedRequest(http.MethodPost, "/api/v1/transactions", body, "merchant-1")
		req.Header.Set("Idempotency-Key", "tok-1")
		w := httptest.NewRecorder()

		handler.HandleSubmit(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("in-progress token returns 409 with retry detail", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)

		svc.On("Submit", mock.Anything, "merchant-1", "tok-1", mock.Anything).
			Return(nil, services.ErrIdempotencyInProgress)

		body, _ := json.Marshal(map[string]interface{}{
			"amount": 10.0, "currency": "EUR", "country": "de",
		})
		req := authedRequest(http.MethodPost, "/api/v1/transactions", body, "merchant-1")
		req.Header.Set("Idempotency-Key", "tok-1")
		w := httptest.NewRecorder()

		handler.HandleSubmit(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		details := response["details"].(map[string]interface{})
		assert.Contains(t, details["retry"], "in progress")
	})

	t.Run("validation error returns 400", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)

		svc.On("Submit", mock.Anything, "merchant-1", "", mock.Anything).
			Return(nil, services.NewDomainError(services.ErrorTypeValidation, "amount must be positive", nil))

		body, _ := json.Marshal(map[string]interface{}{
			"amount": -4.0, "currency": "EUR", "country": "de",
		})
		req := authedRequest(http.MethodPost, "/api/v1/transactions", body, "merchant-1")
		w := httptest.NewRecorder()

		handler.HandleSubmit(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body returns 400 without touching the service", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)

		req := authedRequest(http.MethodPost, "/api/v1/transactions", []byte("{not json"), "merchant-1")
		w := httptest.NewRecorder()

		handler.HandleSubmit(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Submit")
	})

	t.Run("missing merchant returns 401", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)

		body, _ := json.Marshal(map[string]interface{}{
			"amount": 10.0, "currency": "EUR", "country": "de",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
		w := httptest.NewRecorder()

		handler.HandleSubmit(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "Submit")
	})
}

func TestHandleGet(t *testing.T) {
	logger := zap.NewNop()

	t.Run("returns the transaction", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)
		tx := succeededTransaction("merchant-1")

		svc.On("GetTransaction", mock.Anything, "merchant-1", tx.ID).Return(tx, nil)

		req := authedRequest(http.MethodGet, "/api/v1/transactions/"+tx.ID.String(), nil, "merchant-1")
		req = withURLParam(req, "id", tx.ID.String())
		w := httptest.NewRecorder()

		handler.HandleGet(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unknown id returns 404", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)
		id := uuid.New()

		svc.On("GetTransaction", mock.Anything, "merchant-1", id).
			Return(nil, services.ErrTransactionNotFound)

		req := authedRequest(http.MethodGet, "/api/v1/transactions/"+id.String(), nil, "merchant-1")
		req = withURLParam(req, "id", id.String())
		w := httptest.NewRecorder()

		handler.HandleGet(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id returns 400", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)

		req := authedRequest(http.MethodGet, "/api/v1/transactions/nope", nil, "merchant-1")
		req = withURLParam(req, "id", "nope")
		w := httptest.NewRecorder()

		handler.HandleGet(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "GetTransaction")
	})
}

func TestHandleList(t *testing.T) {
	logger := zap.NewNop()

	t.Run("passes pagination through", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)
		txs := []*models.Transaction{succeededTransaction("merchant-1")}

		svc.On("ListTransactions", mock.Anything, "merchant-1", 5, 10).Return(txs, nil)

		req := authedRequest(http.MethodGet, "/api/v1/transactions?limit=5&offset=10", nil, "merchant-1")
		w := httptest.NewRecorder()

		handler.HandleList(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("garbage pagination falls back to defaults", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)

		svc.On("ListTransactions", mock.Anything, "merchant-1", 0, 0).
			Return([]*models.Transaction{}, nil)

		req := authedRequest(http.MethodGet, "/api/v1/transactions?limit=abc&offset=-", nil, "merchant-1")
		w := httptest.NewRecorder()

		handler.HandleList(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})
}

func TestHandleCorrectStatus(t *testing.T) {
	logger := zap.NewNop()

	t.Run("applies the override", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)
		tx := succeededTransaction("merchant-1")

		svc.On("CorrectStatus", mock.Anything, "merchant-1", tx.ID, models.TransactionStatusSucceeded).
			Return(tx, nil)

		body, _ := json.Marshal(map[string]string{"status": "succeeded"})
		req := authedRequest(http.MethodPatch, "/api/v1/transactions/"+tx.ID.String()+"/status", body, "merchant-1")
		req = withURLParam(req, "id", tx.ID.String())
		w := httptest.NewRecorder()

		handler.HandleCorrectStatus(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("invalid transition returns 400", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)
		id := uuid.New()

		svc.On("CorrectStatus", mock.Anything, "merchant-1", id, models.TransactionStatus("failed")).
			Return(nil, services.NewDomainError(services.ErrorTypeValidation, "invalid status transition", nil))

		body, _ := json.Marshal(map[string]string{"status": "failed"})
		req := authedRequest(http.MethodPatch, "/api/v1/transactions/"+id.String()+"/status", body, "merchant-1")
		req = withURLParam(req, "id", id.String())
		w := httptest.NewRecorder()

		handler.HandleCorrectStatus(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing status returns 400", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewTransactionHandler(svc, logger)
		id := uuid.New()

		req := authedRequest(http.MethodPatch, "/api/v1/transactions/"+id.String()+"/status", []byte(`{}`), "merchant-1")
		req = withURLParam(req, "id", id.String())
		w := httptest.NewRecorder()

		handler.HandleCorrectStatus(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "CorrectStatus")
	})
}

func TestHandleMetrics(t *testing.T) {
	logger := zap.NewNop()
	svc := new(MockPaymentService)
	handler := NewTransactionHandler(svc, logger)

	svc.On("Metrics", mock.Anything).Return(&models.TransactionMetrics{
		TotalTransactions: 3,
		TotalVolume:       512.75,
		ByProvider:        map[string]int{"stripe": 2, "wise": 1},
		ByStatus:          map[string]int{"succeeded": 3},
	}, nil)

	req := authedRequest(http.MethodGet, "/api/v1/metrics/transactions", nil, "merchant-1")
	w := httptest.NewRecorder()

	handler.HandleMetrics(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["total_transactions"])
	assert.Equal(t, 512.75, data["total_volume"])
	svc.AssertExpectations(t)
}
