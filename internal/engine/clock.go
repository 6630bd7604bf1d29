package engine

import "time"

// GameDuration is the fixed length of a round.
const GameDuration = 60 * time.Second

// TickInterval bounds how stale a client's remaining-time display can be.
// All clients converge on "time's up" within one tick of each other; exact
// cross-client synchrony is not promised because each client offsets its
// own clock against the shared start timestamp.
const TickInterval = time.Second

// Remaining computes the milliseconds left on the session clock. It floors
// at zero and is non-increasing for a fixed start time.
func Remaining(startMillis, nowMillis int64, duration time.Duration) int64 {
	if startMillis <= 0 {
		return duration.Milliseconds()
	}
	left := duration.Milliseconds() - (nowMillis - startMillis)
	if left < 0 {
		return 0
	}
	return left
}
