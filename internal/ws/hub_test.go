package ws

import (
	"path/filepath"
	"testing"

	"palaver/internal/messaging"
	"palaver/internal/models"
	"palaver/internal/presence"
	"palaver/internal/ratelimit"
	"palaver/internal/registry"
	"palaver/internal/storage"
	"palaver/internal/tracker"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	events []models.ServerEvent
	closed int
}

func (r *recorder) Send(evt models.ServerEvent) bool {
	r.events = append(r.events, evt)
	return true
}

func (r *recorder) Close() error {
	r.closed++
	return nil
}

func (r *recorder) ofType(typ models.ServerEventType) []models.ServerEvent {
	var out []models.ServerEvent
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

type hubFixture struct {
	hub    *Hub
	store  *storage.BboltStorage
	conns  *registry.Registry
	active *tracker.ActiveChats
	typing *tracker.Typing

	handles map[string]*recorder
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.CreateUser(models.User{ID: "a", UserName: "alice", LastSeenEnabled: true}))
	require.NoError(t, store.CreateUser(models.User{ID: "b", UserName: "bob", LastSeenEnabled: true}))
	require.NoError(t, store.AddFriendship("a", "b"))

	log := zaptest.NewLogger(t)
	conns := registry.New()
	active := tracker.NewActiveChats()
	typing := tracker.NewTyping()
	pipeline := messaging.New(messaging.Deps{
		Store:   store,
		Limiter: ratelimit.New(ratelimit.Config{}),
		Emitter: conns,
		Active:  active,
		Typing:  typing,
		Log:     log,
	})

	hub := NewHub(HubDeps{
		Registry: conns,
		Pipeline: pipeline,
		Presence: presence.NewResolver(conns, store, conns, log),
		Active:   active,
		Typing:   typing,
		Users:    store,
		Log:      log,
	})
	return &hubFixture{
		hub:     hub,
		store:   store,
		conns:   conns,
		active:  active,
		typing:  typing,
		handles: make(map[string]*recorder),
	}
}

func (f *hubFixture) connect(userID string) *recorder {
	r := &recorder{}
	f.hub.Connect(userID, r)
	f.handles[userID] = r
	return r
}

// dispatch sends evt on the most recent connection opened for userID.
func (f *hubFixture) dispatch(userID string, evt models.ClientEvent) {
	f.hub.Dispatch(userID, f.handles[userID], evt)
}

func TestHub_ConnectBroadcastsPresence(t *testing.T) {
	f := newHubFixture(t)
	rb := f.connect("b")
	require.Empty(t, rb.events)

	ra := f.connect("a")
	require.Equal(t, []models.ServerEvent{{
		Type: models.ServerUserStatusChanged,
		Data: models.UserStatusChanged{UserID: "a", Status: models.StatusOnline},
	}}, rb.events)

	f.hub.Disconnect("a", ra)
	require.False(t, f.hub.IsOnline("a"))
	require.Equal(t, models.UserStatusChanged{UserID: "a", Status: models.StatusOffline}, rb.events[1].Data)

	a, err := f.store.GetUser("a")
	require.NoError(t, err)
	require.NotNil(t, a.LastSeenAt, "last seen recorded on disconnect")
}

func TestHub_ReconnectReplacesConnection(t *testing.T) {
	f := newHubFixture(t)
	rb := f.connect("b")

	first := f.connect("a")
	second := f.connect("a")
	require.Equal(t, 1, first.closed, "replaced connection is closed")

	// The old socket's teardown must not evict the new one.
	f.hub.Disconnect("a", first)
	require.True(t, f.hub.IsOnline("a"))

	require.True(t, f.hub.Emit("a", models.ServerEvent{Type: models.ServerNewNotification}))
	require.Len(t, second.events, 1)
	require.Empty(t, first.events)

	for _, e := range rb.ofType(models.ServerUserStatusChanged) {
		require.Equal(t, models.StatusOnline, e.Data.(models.UserStatusChanged).Status)
	}
}

func TestHub_SendMessage(t *testing.T) {
	f := newHubFixture(t)
	ra, rb := f.connect("a"), f.connect("b")
	ra.reset()

	f.dispatch("b", &models.EnterChat{FriendID: "a"})
	f.dispatch("a", &models.SendMessage{ReceiverID: "b", Content: "hi"})

	require.Len(t, ra.ofType(models.ServerMessageSent), 1)
	require.Len(t, ra.ofType(models.ServerMessageDelivered), 1)
	require.Len(t, rb.ofType(models.ServerNewMessage), 1)
	require.Empty(t, rb.ofType(models.ServerNewNotification), "viewing the chat suppresses notifications")

	f.dispatch("b", &models.LeaveChat{})
	f.dispatch("a", &models.SendMessage{ReceiverID: "b", Content: "still there?"})
	require.Len(t, rb.ofType(models.ServerNewNotification), 1)
}

func TestHub_Typing(t *testing.T) {
	f := newHubFixture(t)
	ra, rb := f.connect("a"), f.connect("b")
	ra.reset()
	rb.reset()

	f.dispatch("a", &models.TypingStart{ReceiverID: "b"})
	require.Equal(t, []models.ServerEvent{{
		Type: models.ServerUserTyping,
		Data: models.UserTyping{UserID: "a", IsTyping: true},
	}}, rb.events)

	f.dispatch("b", &models.RequestTypingStatus{FriendID: "a"})
	require.Equal(t, models.UserTyping{UserID: "a", IsTyping: true}, rb.events[1].Data)

	f.dispatch("a", &models.TypingStop{ReceiverID: "b"})
	require.Equal(t, models.UserTyping{UserID: "a", IsTyping: false}, rb.events[2].Data)
	require.False(t, f.typing.IsTypingTo("a", "b"))

	f.dispatch("b", &models.RequestTypingStatus{FriendID: "a"})
	require.Equal(t, models.UserTyping{UserID: "a", IsTyping: false}, rb.events[3].Data)

	// Typing to yourself is ignored.
	f.dispatch("a", &models.TypingStart{ReceiverID: "a"})
	require.Empty(t, ra.events)
}

func TestHub_EnterChatReplaysTyping(t *testing.T) {
	f := newHubFixture(t)
	f.connect("a")
	rb := f.connect("b")

	f.dispatch("a", &models.TypingStart{ReceiverID: "b"})
	rb.reset()

	f.dispatch("b", &models.EnterChat{FriendID: "a"})
	require.Equal(t, []models.ServerEvent{{
		Type: models.ServerUserTyping,
		Data: models.UserTyping{UserID: "a", IsTyping: true},
	}}, rb.events)
	require.True(t, f.active.IsViewing("b", "a"))
}

func TestHub_LeaveChatStopsTyping(t *testing.T) {
	f := newHubFixture(t)
	f.connect("a")
	rb := f.connect("b")

	f.dispatch("a", &models.EnterChat{FriendID: "b"})
	f.dispatch("a", &models.TypingStart{ReceiverID: "b"})
	rb.reset()

	f.dispatch("a", &models.LeaveChat{})
	require.Equal(t, []models.ServerEvent{{
		Type: models.ServerUserTyping,
		Data: models.UserTyping{UserID: "a", IsTyping: false},
	}}, rb.events)
	require.False(t, f.active.IsViewing("a", "b"))
}

func TestHub_DisconnectClearsSessionState(t *testing.T) {
	f := newHubFixture(t)
	ra := f.connect("a")
	rb := f.connect("b")

	f.dispatch("a", &models.EnterChat{FriendID: "b"})
	f.dispatch("a", &models.TypingStart{ReceiverID: "b"})
	rb.reset()

	f.hub.Disconnect("a", ra)
	require.Equal(t, models.ServerEvent{
		Type: models.ServerUserTyping,
		Data: models.UserTyping{UserID: "a", IsTyping: false},
	}, rb.events[0])
	require.Len(t, rb.ofType(models.ServerUserStatusChanged), 1)
	require.False(t, f.typing.IsTypingTo("a", "b"))
	_, viewing := f.active.Viewing("a")
	require.False(t, viewing)
}

func TestHub_ForceDisconnect(t *testing.T) {
	f := newHubFixture(t)
	require.False(t, f.hub.ForceDisconnect("a"))

	ra := f.connect("a")
	rb := f.connect("b")
	f.dispatch("a", &models.TypingStart{ReceiverID: "b"})
	f.dispatch("a", &models.EnterChat{FriendID: "b"})
	rb.reset()

	require.True(t, f.hub.ForceDisconnect("a"))
	require.Equal(t, 1, ra.closed)
	require.False(t, f.hub.IsOnline("a"))
	require.False(t, f.typing.IsTypingTo("a", "b"))
	require.False(t, f.active.IsViewing("a", "b"))
	require.Equal(t, models.UserTyping{UserID: "a", IsTyping: false}, rb.ofType(models.ServerUserTyping)[0].Data)
	require.Equal(t, models.UserStatusChanged{UserID: "a", Status: models.StatusOffline}, rb.ofType(models.ServerUserStatusChanged)[0].Data)

	// Already gone.
	f.dispatch("a", &models.Disconnect{})
	require.Equal(t, 1, ra.closed)
}

func TestHub_EventsAfterDisconnectIgnored(t *testing.T) {
	f := newHubFixture(t)
	f.connect("a")
	rb := f.connect("b")
	require.True(t, f.hub.ForceDisconnect("a"))
	rb.reset()

	// Events already read from the closed socket arrive late.
	f.dispatch("a", &models.EnterChat{FriendID: "b"})
	f.dispatch("a", &models.TypingStart{ReceiverID: "b"})

	require.False(t, f.active.IsViewing("a", "b"))
	require.False(t, f.typing.IsTypingTo("a", "b"))
	require.Empty(t, rb.events)

	// a is offline and not viewing the chat, so b's message leaves a notification.
	f.dispatch("b", &models.SendMessage{ReceiverID: "a", Content: "are you there?"})
	notifications, err := f.store.ListNotifications("a", 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
}

func TestHub_StaleConnectionAfterReconnect(t *testing.T) {
	f := newHubFixture(t)
	first := f.connect("a")
	f.connect("b")
	second := f.connect("a")

	f.hub.Dispatch("a", first, &models.EnterChat{FriendID: "b"})
	require.False(t, f.active.IsViewing("a", "b"))

	f.hub.Dispatch("a", second, &models.EnterChat{FriendID: "b"})
	require.True(t, f.active.IsViewing("a", "b"))
}

func TestHub_CloseAll(t *testing.T) {
	f := newHubFixture(t)
	ra, rb := f.connect("a"), f.connect("b")
	f.hub.CloseAll()
	require.Equal(t, 1, ra.closed)
	require.Equal(t, 1, rb.closed)
}

func TestHub_PresencePreference(t *testing.T) {
	f := newHubFixture(t)
	f.connect("a")
	rb := f.connect("b")
	rb.reset()

	require.NoError(t, f.hub.SetPreference("a", models.PreferenceDoNotDisturb))
	status, err := f.hub.DisplayedStatus("a")
	require.NoError(t, err)
	require.Equal(t, models.StatusDoNotDisturb, status)
	require.Equal(t, models.UserStatusChanged{UserID: "a", Status: models.StatusDoNotDisturb}, rb.events[0].Data)
}
