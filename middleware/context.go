package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// MerchantIDKey is the context key for the authenticated merchant
	MerchantIDKey contextKey = "merchant_id"
)

// GetRequestIDFromContext retrieves the request ID from context, falling back
// to the id set by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimiddleware.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetMerchantIDFromContext retrieves the authenticated merchant from context
func GetMerchantIDFromContext(ctx context.Context) string {
	if val := ctx.Value(MerchantIDKey); val != nil {
		if merchantID, ok := val.(string); ok {
			return merchantID
		}
	}
	return ""
}

// WithMerchantID adds a merchant ID to the context
func WithMerchantID(ctx context.Context, merchantID string) context.Context {
	return context.WithValue(ctx, MerchantIDKey, merchantID)
}
