package obslog

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
)

// Throttled wraps a protocol.Logger so that repeated Error/Warn calls for
// the same key collapse to at most one log line per period, per key. It is
// meant for paths that can legitimately fire on every poll loop iteration
// -- an unknown commit error, a repeatedly failing produce -- where logging
// every occurrence would drown everything else out.
type Throttled struct {
	log protocol.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New wraps log so that Error/Warn calls sharing a key are limited to
// ratePerSecond occurrences per second, with burst allowed immediately.
func New(log protocol.Logger, ratePerSecond float64, burst int) *Throttled {
	if log == nil {
		log = protocol.NopLogger{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{
		log:      log,
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(ratePerSecond),
		burst:    burst,
	}
}

func (t *Throttled) allow(key string) bool {
	t.mu.Lock()
	lim, ok := t.limiters[key]
	if !ok {
		lim = rate.NewLimiter(t.limit, t.burst)
		t.limiters[key] = lim
	}
	t.mu.Unlock()
	return lim.Allow()
}

// Error logs at error level, throttled per key. key is typically something
// like "<bucket>/<topic>/<partition>" so distinct partitions don't share a
// budget.
func (t *Throttled) Error(ctx context.Context, key, msg string, args ...any) {
	if !t.allow(key) {
		return
	}
	t.log.Error(ctx, msg, args...)
}

// Warn logs at warn level, throttled per key.
func (t *Throttled) Warn(ctx context.Context, key, msg string, args ...any) {
	if !t.allow(key) {
		return
	}
	t.log.Warn(ctx, msg, args...)
}
