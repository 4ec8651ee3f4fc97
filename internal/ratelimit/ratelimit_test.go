package ratelimit

import (
	"testing"
	"time"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(c *clock) *Limiter {
	l := New(Config{})
	l.now = c.now
	return l
}

func TestLimiter_SendWindow(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := newTestLimiter(c)

	for i := 0; i < 30; i++ {
		if !l.Allow("u1", ActionSend) {
			t.Fatalf("send %d should be allowed", i+1)
		}
		c.t = c.t.Add(time.Second)
	}

	if l.Allow("u1", ActionSend) {
		t.Error("31st send within the window should be rejected")
	}

	// Other users and other action classes are independent.
	if !l.Allow("u2", ActionSend) {
		t.Error("u2 should not be limited by u1")
	}
	if !l.Allow("u1", ActionEdit) {
		t.Error("edit window should be independent of send")
	}

	// Window started at t0 and resets lazily once now is past t0+60s.
	c.t = time.Unix(1_700_000_000, 0).Add(61 * time.Second)
	if !l.Allow("u1", ActionSend) {
		t.Error("first send in a fresh window should be allowed")
	}
}

func TestLimiter_RejectedAttemptsNotCounted(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	l := New(Config{Limits: map[Action]int{ActionDelete: 2}})
	l.now = c.now

	l.Allow("u1", ActionDelete)
	l.Allow("u1", ActionDelete)
	for i := 0; i < 5; i++ {
		if l.Allow("u1", ActionDelete) {
			t.Fatal("should be rejected")
		}
	}

	tx := l.windows.RLock()
	w, err := tx.Get(key{userID: "u1", action: ActionDelete})
	tx.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if w.count != 2 {
		t.Errorf("expected count 2, got %d", w.count)
	}
}

func TestLimiter_DefaultLimits(t *testing.T) {
	tests := []struct {
		action Action
		limit  int
	}{
		{ActionSend, 30},
		{ActionEdit, 20},
		{ActionDelete, 15},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			l := newTestLimiter(&clock{t: time.Unix(0, 0)})
			allowed := 0
			for i := 0; i < tt.limit+5; i++ {
				if l.Allow("u", tt.action) {
					allowed++
				}
			}
			if allowed != tt.limit {
				t.Errorf("expected %d allowed, got %d", tt.limit, allowed)
			}
		})
	}
}

func TestLimiter_UnknownActionUnlimited(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if !l.Allow("u", Action("react")) {
			t.Fatal("unknown actions are not limited")
		}
	}
}
