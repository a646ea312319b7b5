package providers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulatedConfig holds configuration for a simulated provider
type SimulatedConfig struct {
	// Name is the provider name the simulator answers to
	Name string

	// MinLatency and MaxLatency bound the simulated processing delay
	MinLatency time.Duration
	MaxLatency time.Duration

	// FailureRate is the probability in [0,1] that an attempt is declined
	FailureRate float64

	// Seed makes the simulator deterministic when non-zero
	Seed int64
}

// SimulatedProvider stands in for a real PSP integration. It sleeps a bounded
// random delay and declines a configurable fraction of attempts, so retry and
// fallback paths can be exercised without network access.
type SimulatedProvider struct {
	cfg SimulatedConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedProvider creates a simulated provider from config
func NewSimulatedProvider(cfg SimulatedConfig) *SimulatedProvider {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedProvider{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Name returns the provider name
func (p *SimulatedProvider) Name() string {
	return p.cfg.Name
}

// Attempt simulates one payment attempt. Business declines are reported in
// the result, never as an error.
func (p *SimulatedProvider) Attempt(ctx context.Context, req *PaymentRequest) (*AttemptResult, error) {
	start := time.Now()

	delay, declined, ref := p.roll()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, &ProviderError{Provider: p.cfg.Name, Message: "attempt canceled", Cause: ctx.Err()}
		case <-timer.C:
		}
	}

	if declined {
		return &AttemptResult{
			Succeeded: false,
			ErrorInfo: fmt.Sprintf("%s declined the payment", p.cfg.Name),
			Latency:   time.Since(start),
		}, nil
	}

	return &AttemptResult{
		Succeeded:         true,
		ProviderReference: ref,
		Latency:           time.Since(start),
	}, nil
}

// roll draws the delay, outcome and reference under the lock; rand.Rand is
// not safe for concurrent use.
func (p *SimulatedProvider) roll() (time.Duration, bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var delay time.Duration
	if span := p.cfg.MaxLatency - p.cfg.MinLatency; span > 0 {
		delay = p.cfg.MinLatency + time.Duration(p.rng.Int63n(int64(span)))
	} else {
		delay = p.cfg.MinLatency
	}

	declined := p.rng.Float64() < p.cfg.FailureRate
	ref := fmt.Sprintf("%s_%05d", p.cfg.Name, p.rng.Intn(90000)+10000)
	return delay, declined, ref
}
