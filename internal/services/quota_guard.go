package services

import (
	"errors"
	"sync"
	"time"
)

// ErrQuotaExceeded reports that the per-scan model call budget is spent. It
// is a policy signal, not a failure: callers fall back to the heuristic tier.
var ErrQuotaExceeded = errors.New("model call quota exceeded for this scan")

// QuotaGuard limits external model calls two ways: a per-scan counter, reset
// at the start of every ranking pass, and a process-global minimum spacing
// between consecutive calls that persists across passes.
type QuotaGuard struct {
	maxPerScan  int
	minInterval time.Duration

	mu         sync.Mutex
	calls      int
	lastCallAt time.Time

	clock Clock
	sleep func(time.Duration)
}

func NewQuotaGuard(maxPerScan int, minInterval time.Duration, clock Clock) *QuotaGuard {
	if clock == nil {
		clock = SystemClock()
	}
	return &QuotaGuard{
		maxPerScan:  maxPerScan,
		minInterval: minInterval,
		clock:       clock,
		sleep:       time.Sleep,
	}
}

// ResetScan zeroes the per-scan counter. The spacing timer is deliberately
// not reset: it throttles absolute call rate, not per-pass count.
func (g *QuotaGuard) ResetScan() {
	g.mu.Lock()
	g.calls = 0
	g.mu.Unlock()
}

// Acquire grants one model call. It fails fast on quota exhaustion and
// otherwise waits out the remaining spacing before granting.
func (g *QuotaGuard) Acquire() error {
	g.mu.Lock()
	if g.calls >= g.maxPerScan {
		g.mu.Unlock()
		return ErrQuotaExceeded
	}
	wait := g.minInterval - g.clock.Now().Sub(g.lastCallAt)
	g.calls++
	g.mu.Unlock()

	if wait > 0 {
		g.sleep(wait)
	}

	g.mu.Lock()
	g.lastCallAt = g.clock.Now()
	g.mu.Unlock()
	return nil
}

// CallsThisScan reports the number of grants since the last ResetScan.
func (g *QuotaGuard) CallsThisScan() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
