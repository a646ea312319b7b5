package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/switchpay/gateway/internal/observability"
	"github.com/switchpay/gateway/models"
	"github.com/switchpay/gateway/services/providers"
)

// Config holds retry and backoff settings for the executor
type Config struct {
	// MaxAttempts is the number of tries per candidate before falling back
	MaxAttempts int

	// BackoffBase is the delay before the second try on the same candidate;
	// each further try doubles it
	BackoffBase time.Duration

	// BackoffJitter bounds the random component added to every backoff delay
	BackoffJitter time.Duration

	// Timeout bounds the whole sweep, backoff delays included. Zero means
	// only the caller's context limits it.
	Timeout time.Duration

	// BreakersEnabled turns per-provider circuit breakers on
	BreakersEnabled bool
}

// DefaultConfig returns the retry settings used in production
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     2,
		BackoffBase:     100 * time.Millisecond,
		BackoffJitter:   50 * time.Millisecond,
		Timeout:         5 * time.Second,
		BreakersEnabled: true,
	}
}

// Attempt is one entry in the attempts log
type Attempt struct {
	Provider  string `json:"provider"`
	Attempt   int    `json:"attempt"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// Outcome is the terminal result of one dispatch sweep
type Outcome struct {
	Status            models.TransactionStatus
	Provider          string
	ProviderReference string
	Attempts          []Attempt
	LastError         string
}

// Executor drives retries per candidate and fallback across candidates. It
// owns no persistent state; persistence is the caller's responsibility after
// receiving the outcome.
type Executor struct {
	config   Config
	registry *providers.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	rng      *rand.Rand
}

// NewExecutor creates a dispatch executor
func NewExecutor(config Config, registry *providers.Registry, logger *zap.Logger) *Executor {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Executor{
		config:   config,
		registry: registry,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute tries each candidate in order, up to MaxAttempts tries per
// candidate, and returns one terminal outcome. A success on any try ends the
// whole sweep immediately. Candidates the registry does not know, and
// candidates whose circuit breaker is open, count as an immediate failure and
// dispatch moves on with no retry loop spent on them.
func (e *Executor) Execute(ctx context.Context, candidates []string, req *providers.PaymentRequest) *Outcome {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	outcome := &Outcome{
		Status:   models.TransactionStatusFailed,
		Attempts: make([]Attempt, 0, len(candidates)*e.config.MaxAttempts),
	}

	for _, candidate := range candidates {
		provider, err := e.registry.Get(candidate)
		if err != nil {
			e.logger.Warn("candidate provider not registered",
				zap.String("provider", candidate))
			outcome.LastError = "provider " + candidate + " not found"
			outcome.Attempts = append(outcome.Attempts, Attempt{
				Provider: candidate,
				Attempt:  1,
				Error:    outcome.LastError,
			})
			observability.ProviderAttempts.WithLabelValues(candidate, "unknown").Inc()
			continue
		}

		if e.tryCandidate(ctx, provider, req, outcome) {
			outcome.Status = models.TransactionStatusSucceeded
			return outcome
		}

		if ctx.Err() != nil {
			// The caller's deadline is spent; stop the sweep.
			outcome.LastError = ctx.Err().Error()
			return outcome
		}
	}

	return outcome
}

// tryCandidate runs the retry loop for one provider. Returns true on success.
func (e *Executor) tryCandidate(ctx context.Context, provider providers.Provider, req *providers.PaymentRequest, outcome *Outcome) bool {
	name := provider.Name()

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		result, err := e.attemptThroughBreaker(ctx, provider, req)

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				// Breaker refuses the candidate outright; don't burn the
				// retry budget on it.
				outcome.LastError = "circuit breaker open for " + name
				outcome.Attempts = append(outcome.Attempts, Attempt{
					Provider: name,
					Attempt:  attempt,
					Error:    outcome.LastError,
				})
				observability.ProviderAttempts.WithLabelValues(name, "rejected").Inc()
				return false
			}
			// Adapter-internal fault: treated like a business failure.
			outcome.LastError = err.Error()
		} else if result.Succeeded {
			outcome.Provider = name
			outcome.ProviderReference = result.ProviderReference
			outcome.Attempts = append(outcome.Attempts, Attempt{
				Provider:  name,
				Attempt:   attempt,
				Succeeded: true,
			})
			observability.ProviderAttempts.WithLabelValues(name, "success").Inc()
			e.logger.Info("payment attempt succeeded",
				zap.String("provider", name),
				zap.Int("attempt", attempt),
				zap.String("transaction_id", req.TransactionID))
			return true
		} else {
			outcome.LastError = result.ErrorInfo
		}

		outcome.Attempts = append(outcome.Attempts, Attempt{
			Provider: name,
			Attempt:  attempt,
			Error:    outcome.LastError,
		})
		observability.ProviderAttempts.WithLabelValues(name, "failure").Inc()
		e.logger.Warn("payment attempt failed",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.String("error", outcome.LastError),
			zap.String("transaction_id", req.TransactionID))

		// Backoff before retrying the same candidate; no delay between
		// candidates.
		if attempt < e.config.MaxAttempts {
			if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
				return false
			}
		}
	}

	return false
}

// attemptThroughBreaker runs one attempt, through the provider's circuit
// breaker when enabled.
func (e *Executor) attemptThroughBreaker(ctx context.Context, provider providers.Provider, req *providers.PaymentRequest) (*providers.AttemptResult, error) {
	if !e.config.BreakersEnabled {
		return provider.Attempt(ctx, req)
	}

	cb := e.breaker(provider.Name())
	res, err := cb.Execute(func() (interface{}, error) {
		result, err := provider.Attempt(ctx, req)
		if err != nil {
			return nil, err
		}
		if !result.Succeeded {
			// Declines must count against the breaker but still carry the
			// provider's reason back to the caller.
			return result, &providers.ProviderError{Provider: provider.Name(), Message: result.ErrorInfo}
		}
		return result, nil
	})
	if err != nil {
		if result, ok := res.(*providers.AttemptResult); ok {
			return result, nil
		}
		return nil, err
	}
	return res.(*providers.AttemptResult), nil
}

// breaker returns the circuit breaker for a provider, creating it on first use.
func (e *Executor) breaker(name string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.8
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			var state float64
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			observability.CircuitBreakerState.WithLabelValues(cbName).Set(state)
			e.logger.Info("circuit breaker state changed",
				zap.String("provider", cbName),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(name).Set(0)

	e.breakers[name] = cb
	return cb
}

// backoff computes base x 2^(attempt-1) plus bounded jitter.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.config.BackoffBase << (attempt - 1)
	if e.config.BackoffJitter > 0 {
		e.mu.Lock()
		delay += time.Duration(e.rng.Int63n(int64(e.config.BackoffJitter)))
		e.mu.Unlock()
	}
	return delay
}

// sleep waits for d or until ctx is done.
func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
