package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

// CircuitBreaker guards one outbound endpoint: after failureThreshold
// consecutive failures it rejects calls with domain.ErrCircuitOpen until the
// cooldown elapses. A successful call resets the counter. In-process only.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	cooldown         time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	logger   *zap.Logger
	clock    func() time.Time
}

// NewCircuitBreaker creates a breaker with the given threshold and cooldown.
// Zero values fall back to 5 failures and a 5 minute cooldown.
func NewCircuitBreaker(name string, failureThreshold int, cooldown time.Duration, logger *zap.Logger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		logger:           logger,
		clock:            time.Now,
	}
}

// Allow reports whether a call may proceed. While open, it returns
// domain.ErrCircuitOpen until the cooldown has elapsed.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.clock().Sub(b.openedAt) >= b.cooldown {
		// Half-open: let one call through and keep the counter at the edge
		// so another failure reopens immediately.
		b.open = false
		b.failures = b.failureThreshold - 1
		return nil
	}
	return domain.ErrCircuitOpen
}

// RecordSuccess resets the failure counter and closes the breaker
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// RecordFailure counts one failure and opens the breaker at the threshold
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.failureThreshold && !b.open {
		b.open = true
		b.openedAt = b.clock()
		b.logger.Warn("circuit breaker opened",
			zap.String("breaker", b.name),
			zap.Int("failures", b.failures),
			zap.Duration("cooldown", b.cooldown),
		)
	}
}
