package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker("slack", 5, 5*time.Minute, zap.NewNop())

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.NoError(t, b.Allow(), "failure %d should not open the breaker", i+1)
	}

	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), domain.ErrCircuitOpen)
}

func TestCircuitBreakerSuccessResetsCounter(t *testing.T) {
	b := NewCircuitBreaker("slack", 5, 5*time.Minute, zap.NewNop())

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}

	assert.NoError(t, b.Allow())
}

func TestCircuitBreakerHalfOpenAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker("slack", 5, 5*time.Minute, zap.NewNop())
	b.clock = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.ErrorIs(t, b.Allow(), domain.ErrCircuitOpen)

	// still inside the cooldown
	now = now.Add(4 * time.Minute)
	assert.ErrorIs(t, b.Allow(), domain.ErrCircuitOpen)

	// cooldown elapsed: one probe call goes through
	now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Allow())

	// a single failure in half-open reopens immediately
	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), domain.ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenSuccessCloses(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker("slack", 5, time.Minute, zap.NewNop())
	b.clock = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Allow())

	b.RecordSuccess()
	b.RecordFailure()
	assert.NoError(t, b.Allow())
}

func TestCircuitBreakerDefaults(t *testing.T) {
	b := NewCircuitBreaker("webhook", 0, 0, zap.NewNop())
	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 5*time.Minute, b.cooldown)
}
