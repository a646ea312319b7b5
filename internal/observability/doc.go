// Package observability provides structured logging and Prometheus metrics
// for the payment gateway.
package observability
