package tracker

import (
	"sort"
	"sync"
)

// Typing records outstanding "is typing" relations from a sender to its
// receivers. Relations never expire on a timer: they end on typing_stop,
// on send, when the sender leaves the chat or disconnects.
type Typing struct {
	mu   sync.Mutex
	to   map[string]map[string]struct{} // sender -> receivers
	from map[string]map[string]struct{} // receiver -> senders
}

func NewTyping() *Typing {
	return &Typing{
		to:   make(map[string]map[string]struct{}),
		from: make(map[string]map[string]struct{}),
	}
}

// Start records that sender is typing to receiver. It reports whether the
// relation is new.
func (t *Typing) Start(senderID, receiverID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.to[senderID][receiverID]; ok {
		return false
	}
	add(t.to, senderID, receiverID)
	add(t.from, receiverID, senderID)
	return true
}

// Stop removes the relation and reports whether it existed.
func (t *Typing) Stop(senderID, receiverID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.to[senderID][receiverID]; !ok {
		return false
	}
	remove(t.to, senderID, receiverID)
	remove(t.from, receiverID, senderID)
	return true
}

func (t *Typing) IsTypingTo(senderID, receiverID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.to[senderID][receiverID]
	return ok
}

// ClearSender drops every relation of senderID and returns the receivers
// that were being notified.
func (t *Typing) ClearSender(senderID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	receivers := keys(t.to[senderID])
	for _, r := range receivers {
		remove(t.from, r, senderID)
	}
	delete(t.to, senderID)
	return receivers
}

// TypingTo returns the senders currently typing to receiverID.
func (t *Typing) TypingTo(receiverID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return keys(t.from[receiverID])
}

func add(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func remove(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
