// Package velocity tracks short-window transaction counts per account,
// feeding the velocity_count variable of supplemental screen rules.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Tracker counts transactions per account over a sliding window using the
// cache's atomic windowed counters. With a two-phase cache the counts are
// shared across instances.
type Tracker struct {
	cache  domain.Cache
	window time.Duration
}

// NewTracker builds a tracker. A zero window disables expiry-based
// windowing and falls back to one hour.
func NewTracker(cache domain.Cache, window time.Duration) *Tracker {
	if window <= 0 {
		window = time.Hour
	}
	return &Tracker{cache: cache, window: window}
}

func key(accountNumber string) string {
	return "velocity:" + accountNumber
}

// Record counts one observed transaction for the account and returns the
// account's running total inside the current window.
func (t *Tracker) Record(ctx context.Context, accountNumber string) (int64, error) {
	n, err := t.cache.IncrementCounter(ctx, key(accountNumber), t.window)
	if err != nil {
		return 0, fmt.Errorf("recording velocity for %s: %w", accountNumber, err)
	}
	return n, nil
}

// Count reads the account's current windowed total without incrementing.
// Unknown accounts count zero.
func (t *Tracker) Count(ctx context.Context, accountNumber string) (int, error) {
	n, err := t.cache.GetCounter(ctx, key(accountNumber))
	if err != nil {
		return 0, fmt.Errorf("reading velocity for %s: %w", accountNumber, err)
	}
	return int(n), nil
}
