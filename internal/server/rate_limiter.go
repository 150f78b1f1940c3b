// Package server implements a sliding window rate limiter for per-session
// chat throttling.
package server

import "time"

// rateLimiter admits at most limit events in any trailing window. It keeps the
// timestamps of accepted events only, so it never holds more than limit entries.
//
// It is owned by a single connection handler and is not safe for concurrent use.
type rateLimiter struct {
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func newRateLimiter(limit int, window time.Duration, now func() time.Time) *rateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if now == nil {
		now = time.Now
	}

	return &rateLimiter{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    now,
	}
}

func (rl *rateLimiter) allow() bool {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	expired := 0
	for expired < len(rl.stamps) && !rl.stamps[expired].After(cutoff) {
		expired++
	}
	if expired > 0 {
		rl.stamps = append(rl.stamps[:0], rl.stamps[expired:]...)
	}

	if len(rl.stamps) >= rl.limit {
		return false
	}

	rl.stamps = append(rl.stamps, now)
	return true
}

// inWindow reports how many accepted events still count against the limit.
func (rl *rateLimiter) inWindow() int {
	cutoff := rl.now().Add(-rl.window)
	n := 0
	for _, ts := range rl.stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
