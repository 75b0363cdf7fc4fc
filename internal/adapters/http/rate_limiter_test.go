package http

import (
	"testing"
	"time"
)

func TestTokenRateLimiterSlidingWindow(t *testing.T) {
	rl := NewTokenRateLimiter(2, 50*time.Millisecond)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow("a") {
		t.Error("third request inside window allowed")
	}
	if !rl.Allow("b") {
		t.Error("other client blocked by a's history")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("a") {
		t.Error("request after window expiry rejected")
	}
}
