package registry

import (
	"palaver/internal/models"

	"github.com/c-pro/geche"
)

// Handle is a live connection the registry can address.
type Handle interface {
	Send(evt models.ServerEvent) bool
	Close() error
}

// Registry maps a user to at most one live connection. A new connection
// for the same user replaces the old entry; the old connection is not
// closed by the registry. Multi-device fan-out is not supported.
type Registry struct {
	conns *geche.Locker[string, Handle]
}

func New() *Registry {
	return &Registry{
		conns: geche.NewLocker[string, Handle](geche.NewMapCache[string, Handle]()),
	}
}

// Register stores h as the live connection of userID and returns the
// handle it replaced, if any.
func (r *Registry) Register(userID string, h Handle) (Handle, bool) {
	tx := r.conns.Lock()
	defer tx.Unlock()

	prev, err := tx.Get(userID)
	tx.Set(userID, h)
	return prev, err == nil
}

// Unregister removes the entry of userID whatever handle it holds.
func (r *Registry) Unregister(userID string) bool {
	tx := r.conns.Lock()
	defer tx.Unlock()

	if _, err := tx.Get(userID); err != nil {
		return false
	}
	_ = tx.Del(userID)
	return true
}

// Release removes the entry only if it still points at h. A socket that
// was replaced by a reconnect must not evict its successor.
func (r *Registry) Release(userID string, h Handle) bool {
	tx := r.conns.Lock()
	defer tx.Unlock()

	cur, err := tx.Get(userID)
	if err != nil || cur != h {
		return false
	}
	_ = tx.Del(userID)
	return true
}

func (r *Registry) HandleFor(userID string) (Handle, bool) {
	tx := r.conns.RLock()
	defer tx.Unlock()

	h, err := tx.Get(userID)
	if err != nil {
		return nil, false
	}
	return h, true
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.HandleFor(userID)
	return ok
}

// Online returns the ids of all connected users.
func (r *Registry) Online() []string {
	tx := r.conns.RLock()
	defer tx.Unlock()

	snapshot := tx.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	return ids
}

// Emit delivers evt to the live connection of userID, if any.
func (r *Registry) Emit(userID string, evt models.ServerEvent) bool {
	h, ok := r.HandleFor(userID)
	if !ok {
		return false
	}
	return h.Send(evt)
}
