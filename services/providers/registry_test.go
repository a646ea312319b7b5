package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Attempt(ctx context.Context, req *PaymentRequest) (*AttemptResult, error) {
	return &AttemptResult{Succeeded: true, ProviderReference: s.name + "_ref"}, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubProvider{name: "stripe"}))
	assert.Equal(t, 1, r.Count())

	t.Run("duplicate registration fails", func(t *testing.T) {
		err := r.Register(&stubProvider{name: "stripe"})
		assert.ErrorIs(t, err, ErrProviderAlreadyRegistered)
	})

	t.Run("nil provider fails", func(t *testing.T) {
		assert.Error(t, r.Register(nil))
	})

	t.Run("empty name fails", func(t *testing.T) {
		assert.Error(t, r.Register(&stubProvider{name: ""}))
	})
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubProvider{name: "adyen"}))

	p, err := r.Get("adyen")
	require.NoError(t, err)
	assert.Equal(t, "adyen", p.Name())

	_, err = r.Get("unknown")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"wise", "stripe", "adyen", "rapyd"} {
		require.NoError(t, r.Register(&stubProvider{name: name}))
	}

	// Sorted regardless of registration order.
	assert.Equal(t, []string{"adyen", "rapyd", "stripe", "wise"}, r.Names())
}
