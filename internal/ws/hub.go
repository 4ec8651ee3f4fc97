package ws

import (
	"time"

	"palaver/internal/messaging"
	"palaver/internal/models"
	"palaver/internal/presence"
	"palaver/internal/registry"
	"palaver/internal/tracker"

	"go.uber.org/zap"
)

// UserStore is what the hub persists on its own, outside the pipeline.
type UserStore interface {
	TouchLastSeen(userID string, at time.Time) error
}

type HubDeps struct {
	Registry *registry.Registry
	Pipeline *messaging.Pipeline
	Presence *presence.Resolver
	Active   *tracker.ActiveChats
	Typing   *tracker.Typing
	Users    UserStore
	Log      *zap.Logger
}

// Hub routes events from connected users to the pipeline and trackers,
// and addresses outbound events by user id.
type Hub struct {
	conns    *registry.Registry
	pipeline *messaging.Pipeline
	presence *presence.Resolver
	active   *tracker.ActiveChats
	typing   *tracker.Typing
	users    UserStore
	log      *zap.Logger
	now      func() time.Time
}

func NewHub(deps HubDeps) *Hub {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		conns:    deps.Registry,
		pipeline: deps.Pipeline,
		presence: deps.Presence,
		active:   deps.Active,
		typing:   deps.Typing,
		users:    deps.Users,
		log:      log,
		now:      time.Now,
	}
}

// Connect makes h the live connection of userID. A previous connection of
// the same user is closed; its own teardown will not touch the new entry.
func (h *Hub) Connect(userID string, conn registry.Handle) {
	prev, replaced := h.conns.Register(userID, conn)
	if replaced && prev != conn {
		h.log.Info("connection replaced", zap.String("user_id", userID))
		if err := prev.Close(); err != nil {
			h.log.Debug("close replaced connection", zap.String("user_id", userID), zap.Error(err))
		}
	}
	h.log.Info("user connected", zap.String("user_id", userID))

	if err := h.presence.Broadcast(userID); err != nil {
		h.log.Warn("presence broadcast failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Disconnect tears down the session state of userID if conn is still its
// live connection. Calls for replaced connections are ignored.
func (h *Hub) Disconnect(userID string, conn registry.Handle) {
	if !h.conns.Release(userID, conn) {
		return
	}

	for _, receiverID := range h.typing.ClearSender(userID) {
		h.emitTyping(receiverID, userID, false)
	}
	h.active.Leave(userID)

	if err := h.users.TouchLastSeen(userID, h.now()); err != nil {
		h.log.Warn("failed to update last seen", zap.String("user_id", userID), zap.Error(err))
	}
	if err := h.presence.Broadcast(userID); err != nil {
		h.log.Warn("presence broadcast failed", zap.String("user_id", userID), zap.Error(err))
	}
	h.log.Info("user disconnected", zap.String("user_id", userID))
}

// ForceDisconnect closes the live connection of userID and tears down its
// session state. The connection's own teardown is then a no-op.
func (h *Hub) ForceDisconnect(userID string) bool {
	conn, ok := h.conns.HandleFor(userID)
	if !ok {
		return false
	}
	if err := conn.Close(); err != nil {
		h.log.Debug("force disconnect", zap.String("user_id", userID), zap.Error(err))
	}
	h.Disconnect(userID, conn)
	return true
}

// CloseAll closes every live connection.
func (h *Hub) CloseAll() {
	for _, userID := range h.conns.Online() {
		h.ForceDisconnect(userID)
	}
}

func (h *Hub) Emit(userID string, evt models.ServerEvent) bool {
	return h.conns.Emit(userID, evt)
}

func (h *Hub) IsOnline(userID string) bool {
	return h.conns.IsOnline(userID)
}

func (h *Hub) DisplayedStatus(userID string) (models.DisplayedStatus, error) {
	return h.presence.DisplayedStatus(userID)
}

func (h *Hub) SetPreference(userID string, pref models.PresencePreference) error {
	return h.presence.SetPreference(userID, pref)
}

// Dispatch handles one validated event that arrived on conn. Events from a
// connection that is no longer the user's live one are dropped. Failures
// are reported to the user as events; they never end the session.
func (h *Hub) Dispatch(userID string, conn registry.Handle, evt models.ClientEvent) {
	if !h.isLive(userID, conn) {
		h.log.Debug("dropping event from stale connection",
			zap.String("user_id", userID), zap.String("type", string(evt.EventType())))
		return
	}

	switch e := evt.(type) {
	case *models.SendMessage:
		_, _ = h.pipeline.Send(userID, *e)
	case *models.MessageReceived:
		_ = h.pipeline.MarkReceived(userID, e.MessageID)
	case *models.EditMessage:
		_, _ = h.pipeline.Edit(userID, *e)
	case *models.DeleteMessage:
		_, _ = h.pipeline.Delete(userID, e.MessageID)

	case *models.TypingStart:
		if e.ReceiverID == userID {
			return
		}
		h.typing.Start(userID, e.ReceiverID)
		if !h.conns.IsOnline(userID) {
			// Disconnect ran concurrently and may have missed this entry.
			h.typing.Stop(userID, e.ReceiverID)
			return
		}
		h.emitTyping(e.ReceiverID, userID, true)
	case *models.TypingStop:
		h.typing.Stop(userID, e.ReceiverID)
		h.emitTyping(e.ReceiverID, userID, false)
	case *models.RequestTypingStatus:
		h.emitTyping(userID, e.FriendID, h.typing.IsTypingTo(e.FriendID, userID))

	case *models.EnterChat:
		h.active.Enter(userID, e.FriendID)
		if !h.conns.IsOnline(userID) {
			h.active.Leave(userID)
			return
		}
		if h.typing.IsTypingTo(e.FriendID, userID) {
			h.emitTyping(userID, e.FriendID, true)
		}
	case *models.LeaveChat:
		counterpart, ok := h.active.Leave(userID)
		if ok && h.typing.Stop(userID, counterpart) {
			h.emitTyping(counterpart, userID, false)
		}

	case *models.Disconnect:
		h.ForceDisconnect(userID)

	default:
		h.log.Warn("unhandled event", zap.String("user_id", userID), zap.String("type", string(evt.EventType())))
	}
}

// isLive reports whether conn is still the registered connection of userID.
func (h *Hub) isLive(userID string, conn registry.Handle) bool {
	cur, ok := h.conns.HandleFor(userID)
	return ok && cur == conn
}

// emitTyping tells to whether from is typing to them.
func (h *Hub) emitTyping(to, from string, typing bool) {
	h.Emit(to, models.ServerEvent{
		Type: models.ServerUserTyping,
		Data: models.UserTyping{UserID: from, IsTyping: typing},
	})
}
