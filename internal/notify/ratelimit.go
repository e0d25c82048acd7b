package notify

import (
	"sync"
	"time"
)

// DefaultMaxSMSPerHour bounds SMS sends when the deployment does not
// configure its own limit.
const DefaultMaxSMSPerHour = 10

// rateWindow is the span the SMS limiter counts sends over.
const rateWindow = time.Hour

// RateLimiter is a sliding-window counter over SMS sends. A send reserves
// its slot at admission time, so concurrent callers cannot both squeeze
// through the last slot.
type RateLimiter struct {
	mu    sync.Mutex
	max   int
	sent  []time.Time
	clock func() time.Time
}

// NewRateLimiter returns a limiter admitting at most max sends per rolling
// hour. max values below 1 fall back to [DefaultMaxSMSPerHour].
func NewRateLimiter(max int) *RateLimiter {
	if max < 1 {
		max = DefaultMaxSMSPerHour
	}
	return &RateLimiter{max: max, clock: time.Now}
}

// Allow reports whether another send fits in the current window and, if so,
// records it.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.prune(now)
	if len(l.sent) >= l.max {
		return false
	}
	l.sent = append(l.sent, now)
	return true
}

// Remaining returns how many sends the current window still admits.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.clock())
	return l.max - len(l.sent)
}

// prune drops timestamps older than the window. Callers hold l.mu.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)
	keep := l.sent[:0]
	for _, t := range l.sent {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	l.sent = keep
}
