package stream

import "time"

// ReconnectPolicy computes reconnection delays and the attempt ceiling.
// Pure exponential backoff without jitter or a delay cap: the source
// protocols tolerate synchronized retries and the attempt limit bounds
// the worst case.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy mirrors the venue client defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   5 * time.Second,
		MaxAttempts: 10,
	}
}

// NextDelay returns BaseDelay * 2^(attempt-1). Attempts count from 1;
// values below 1 are treated as the first attempt.
func (p ReconnectPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Clamp the shift so pathological attempt counts cannot overflow.
	shift := uint(attempt - 1)
	if shift > 32 {
		shift = 32
	}
	return p.BaseDelay << shift
}

// ShouldRetry reports whether another attempt is permitted after
// `attempt` attempts have been made.
func (p ReconnectPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
