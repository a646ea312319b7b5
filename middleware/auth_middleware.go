package middleware

import (
	"net/http"
	"strings"

	"github.com/switchpay/gateway/utils"
	"go.uber.org/zap"
)

// apiKeyHeader is where merchants present their key
const apiKeyHeader = "X-API-Key"

// AuthMiddleware authenticates merchants by static API key
type AuthMiddleware struct {
	keys   map[string]string // api key -> merchant id
	logger *zap.Logger
}

// NewAuthMiddleware creates an AuthMiddleware from the configured key table
func NewAuthMiddleware(keys map[string]string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		keys:   keys,
		logger: logger,
	}
}

// RequireAPIKey is a middleware that requires a valid merchant API key. The
// key may arrive in the X-API-Key header or as a Bearer token.
func (m *AuthMiddleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		key := extractAPIKey(r)
		if key == "" {
			m.logger.Warn("missing API key",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Missing API key")
			return
		}

		merchantID, ok := m.keys[key]
		if !ok {
			m.logger.Warn("unknown API key",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Invalid API key")
			return
		}

		ctx = WithMerchantID(ctx, merchantID)

		m.logger.Debug("merchant authenticated",
			zap.String("request_id", requestID),
			zap.String("merchant_id", merchantID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractAPIKey pulls the key from the X-API-Key header, falling back to a
// Bearer Authorization header
func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
