package stream

import (
	"testing"
	"time"
)

func TestNextDelay(t *testing.T) {
	p := ReconnectPolicy{BaseDelay: 5 * time.Second, MaxAttempts: 10}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
	}
	for _, tt := range tests {
		if got := p.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNextDelayFirstAttempt(t *testing.T) {
	p := ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 3}
	if got := p.NextDelay(0); got != time.Second {
		t.Errorf("NextDelay(0) = %v, want base delay", got)
	}
}

func TestShouldRetry(t *testing.T) {
	p := ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 3}

	for attempt := 0; attempt < 3; attempt++ {
		if !p.ShouldRetry(attempt) {
			t.Errorf("ShouldRetry(%d) = false, want true", attempt)
		}
	}
	if p.ShouldRetry(3) {
		t.Error("ShouldRetry at max attempts = true, want false")
	}
	if p.ShouldRetry(4) {
		t.Error("ShouldRetry past max attempts = true, want false")
	}
}
