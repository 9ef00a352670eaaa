package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Breaker latches trading pauses: a daily-loss trip that holds until the
// next UTC calendar day (or a manual reset), and a rejection-burst trip
// computed over a sliding window. Counters are mutated under a mutex.
type Breaker struct {
	dailyLossCap float64
	maxRejects   int
	window       time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu        sync.Mutex
	rejects   []time.Time
	tripped   bool
	trippedAt time.Time
	reason    string
}

// NewBreaker creates a Breaker. dailyLossCap is the positive dollar limit;
// the breaker trips when realized + unrealized <= -dailyLossCap.
func NewBreaker(dailyLossCap float64, maxRejects int, window time.Duration, logger *slog.Logger) *Breaker {
	return &Breaker{
		dailyLossCap: dailyLossCap,
		maxRejects:   maxRejects,
		window:       window,
		logger:       logger.With(slog.String("component", "circuit_breaker")),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the breaker's clock. Tests only.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// CheckDailyLoss evaluates the daily PnL against the loss cap and trips the
// breaker when breached. It returns true when trading may continue.
func (b *Breaker) CheckDailyLoss(realizedPnL, unrealizedPnL float64) bool {
	total := realizedPnL + unrealizedPnL

	b.mu.Lock()
	defer b.mu.Unlock()

	if total <= -b.dailyLossCap {
		if !b.trippedLocked() {
			b.tripped = true
			b.trippedAt = b.now()
			b.reason = fmt.Sprintf("daily loss %.2f breaches cap %.2f", -total, b.dailyLossCap)
			b.logger.Error("daily loss limit breached, trading paused",
				slog.Float64("realized_pnl", realizedPnL),
				slog.Float64("unrealized_pnl", unrealizedPnL),
				slog.Float64("cap", b.dailyLossCap),
			)
		}
		return false
	}

	return !b.trippedLocked()
}

// RecordRejection notes one order rejection at the current time.
func (b *Breaker) RecordRejection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejects = append(b.rejects, b.now())
	b.pruneLocked()
}

// RejectionBurst reports whether the sliding window holds at least the
// configured number of rejections.
func (b *Breaker) RejectionBurst() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	return len(b.rejects) >= b.maxRejects
}

// Tripped reports whether the daily-loss latch is engaged. The latch
// releases automatically at the next UTC calendar day boundary.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trippedLocked()
}

// Reason returns the current trip reason, or "" when not tripped.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.trippedLocked() {
		return ""
	}
	return b.reason
}

// Reset clears the latch and the rejection window. Manual intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		b.logger.Warn("circuit breaker reset", slog.String("previous_reason", b.reason))
	}
	b.tripped = false
	b.reason = ""
	b.rejects = nil
}

// trippedLocked applies the calendar-day release: a trip from a previous
// UTC day no longer holds.
func (b *Breaker) trippedLocked() bool {
	if !b.tripped {
		return false
	}
	now := b.now()
	ty, tm, td := b.trippedAt.Date()
	ny, nm, nd := now.Date()
	if ny != ty || nm != tm || nd != td {
		b.tripped = false
		b.reason = ""
		return false
	}
	return true
}

// pruneLocked drops rejections older than the window.
func (b *Breaker) pruneLocked() {
	cutoff := b.now().Add(-b.window)
	kept := b.rejects[:0]
	for _, ts := range b.rejects {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.rejects = kept
}
