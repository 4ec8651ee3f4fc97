package ratelimit

import (
	"time"

	"github.com/c-pro/geche"
)

// Action is a class of limited chat actions. Each class has its own window.
type Action string

const (
	ActionSend   Action = "send"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

const DefaultWindow = 60 * time.Second

// DefaultLimits are the per-window allowances of each action class.
var DefaultLimits = map[Action]int{
	ActionSend:   30,
	ActionEdit:   20,
	ActionDelete: 15,
}

type Config struct {
	Window time.Duration
	Limits map[Action]int
}

type key struct {
	userID string
	action Action
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter per user and action class. Windows
// reset lazily on the next check, so a burst straddling a boundary can
// pass up to twice the limit. State is per process.
type Limiter struct {
	window  time.Duration
	limits  map[Action]int
	windows *geche.Locker[key, window]
	now     func() time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	limits := make(map[Action]int, len(DefaultLimits))
	for a, n := range DefaultLimits {
		limits[a] = n
	}
	for a, n := range cfg.Limits {
		if n > 0 {
			limits[a] = n
		}
	}

	return &Limiter{
		window:  cfg.Window,
		limits:  limits,
		windows: geche.NewLocker[key, window](geche.NewMapCache[key, window]()),
		now:     time.Now,
	}
}

// Allow reports whether userID may perform action now and counts the
// attempt if so. Rejected attempts are not counted.
func (l *Limiter) Allow(userID string, action Action) bool {
	limit, ok := l.limits[action]
	if !ok {
		return true
	}

	now := l.now()
	k := key{userID: userID, action: action}

	tx := l.windows.Lock()
	defer tx.Unlock()

	w, err := tx.Get(k)
	if err != nil || now.After(w.resetAt) {
		tx.Set(k, window{count: 1, resetAt: now.Add(l.window)})
		return true
	}

	if w.count >= limit {
		return false
	}
	w.count++
	tx.Set(k, w)
	return true
}
