package ecommerce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/erp/ordersync/internal/domain/integration"
)

// DefaultMinCallInterval is the minimum spacing between two outbound remote calls
const DefaultMinCallInterval = 1100 * time.Millisecond

// Limiter serialises every outbound remote call to at least one per interval.
// A single instance is shared by the periodic sync, manual runs, specific-order
// sync and the hot refresh path. Waiters are granted in arrival order.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration

	mu        sync.Mutex
	lastGrant time.Time
	grants    int64
}

// NewLimiter creates a limiter granting one slot per interval
func NewLimiter(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = DefaultMinCallInterval
	}
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Acquire blocks until a slot is available and records the grant
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrRateLimiterCanceled, err)
	}

	l.mu.Lock()
	l.lastGrant = time.Now()
	l.grants++
	l.mu.Unlock()
	return nil
}

// LastGrant returns the time of the most recent grant (zero before the first)
func (l *Limiter) LastGrant() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastGrant
}

// Grants returns how many slots have been handed out
func (l *Limiter) Grants() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.grants
}

// Interval returns the configured minimum spacing
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

var _ integration.SlotLimiter = (*Limiter)(nil)
