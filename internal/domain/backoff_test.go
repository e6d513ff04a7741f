package domain

import (
	"testing"
	"time"
)

func TestRetryPolicy_DelayGrowsUntilCap(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Minute}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > p.MaxDelay {
			t.Fatalf("delay exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}

	if got := p.Delay(1); got != 30*time.Second {
		t.Errorf("first delay = %v, want 30s", got)
	}
	if got := p.Delay(2); got != 60*time.Second {
		t.Errorf("second delay = %v, want 60s", got)
	}
	if got := p.Delay(100); got != p.MaxDelay {
		t.Errorf("delay past cap = %v, want %v", got, p.MaxDelay)
	}
}

func TestRetryPolicy_DelayStrictlyIncreasingBelowCap(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Hour}

	for attempt := 1; attempt < 5; attempt++ {
		if p.Delay(attempt+1) <= p.Delay(attempt) {
			t.Errorf("delay not strictly increasing between attempts %d and %d", attempt, attempt+1)
		}
	}
}
