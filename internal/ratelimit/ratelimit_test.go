package ratelimit

import (
	"testing"
	"time"
)

func TestAdmit_WindowLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if !l.Admit("u1") {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	if l.Admit("u1") {
		t.Fatalf("6th request within the window should be rejected")
	}

	// rejection must not consume window capacity
	if l.Admit("u1") {
		t.Fatalf("7th request within the window should be rejected")
	}

	// other users are unaffected
	if !l.Admit("u2") {
		t.Fatalf("separate user should be admitted")
	}

	now = now.Add(61 * time.Second)
	if !l.Admit("u1") {
		t.Fatalf("request after the window elapsed should be admitted")
	}
}

func TestAdmit_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Admit("u1") {
		t.Fatalf("first request should be admitted")
	}

	now = now.Add(40 * time.Second)
	if !l.Admit("u1") {
		t.Fatalf("second request should be admitted")
	}
	if l.Admit("u1") {
		t.Fatalf("third request should be rejected")
	}

	// first entry expires, second still counts
	now = now.Add(25 * time.Second)
	if !l.Admit("u1") {
		t.Fatalf("request after oldest entry expired should be admitted")
	}
	if l.Admit("u1") {
		t.Fatalf("window is full again, request should be rejected")
	}
}
