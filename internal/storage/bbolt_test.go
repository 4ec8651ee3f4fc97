package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"palaver/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *BboltStorage {
	t.Helper()
	store, err := NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorage_Users(t *testing.T) {
	store := newTestStorage(t)

	created := time.Now()
	alice := models.User{
		ID:              "u1",
		UserName:        "alice",
		DisplayName:     "Alice",
		Presence:        models.PreferenceDoNotDisturb,
		LastSeenEnabled: true,
		CreatedAt:       created,
	}
	require.NoError(t, store.CreateUser(alice))
	require.NoError(t, store.CreateUser(models.User{ID: "u2", UserName: "bob"}))

	err := store.CreateUser(models.User{ID: "u3", UserName: "alice"})
	require.ErrorIs(t, err, ErrUsernameTaken)

	got, err := store.GetUser("u1")
	require.NoError(t, err)
	require.Equal(t, "Alice", got.DisplayName)
	require.Equal(t, models.PreferenceDoNotDisturb, got.Presence)
	require.True(t, got.LastSeenEnabled)
	require.True(t, created.Equal(got.CreatedAt))
	require.Nil(t, got.LastSeenAt)

	bob, err := store.GetUser("u2")
	require.NoError(t, err)
	require.Equal(t, models.PreferenceOnline, bob.Presence, "missing preference reads as online")

	_, err = store.GetUser("nope")
	require.True(t, errors.Is(err, models.ErrNotFound))

	users, err := store.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "alice", users[0].UserName)
}

func TestStorage_FriendsAndBlocks(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.CreateUser(models.User{ID: "a", UserName: "a"}))
	require.NoError(t, store.CreateUser(models.User{ID: "b", UserName: "b"}))

	require.NoError(t, store.AddFriendship("a", "b"))
	require.NoError(t, store.AddFriendship("b", "a"), "repeat is a no-op")
	require.Error(t, store.AddFriendship("a", "a"))
	require.ErrorIs(t, store.AddFriendship("a", "ghost"), models.ErrNotFound)

	a, _ := store.GetUser("a")
	b, _ := store.GetUser("b")
	require.Equal(t, []string{"b"}, a.Friends)
	require.Equal(t, []string{"a"}, b.Friends)

	require.NoError(t, store.Block("b", "a"))
	a, _ = store.GetUser("a")
	b, _ = store.GetUser("b")
	require.True(t, b.HasBlocked("a"))
	require.False(t, a.HasBlocked("b"), "block is one-directional")
}

func TestStorage_Preferences(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.CreateUser(models.User{ID: "a", UserName: "a", LastSeenEnabled: true}))

	require.NoError(t, store.SetPresence("a", models.PreferenceOffline))
	require.NoError(t, store.SetLastSeenEnabled("a", false))
	at := time.Now()
	require.NoError(t, store.TouchLastSeen("a", at))

	a, err := store.GetUser("a")
	require.NoError(t, err)
	require.Equal(t, models.PreferenceOffline, a.Presence)
	require.False(t, a.LastSeenEnabled)
	require.NotNil(t, a.LastSeenAt)
	require.True(t, at.Equal(*a.LastSeenAt))

	require.ErrorIs(t, store.SetPresence("ghost", models.PreferenceOnline), models.ErrNotFound)
}

func TestStorage_Messages(t *testing.T) {
	store := newTestStorage(t)

	base := time.Now()
	for i := 0; i < 5; i++ {
		sender, receiver := "a", "b"
		if i%2 == 1 {
			sender, receiver = "b", "a"
		}
		delivered := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateMessage(models.Message{
			ID:          fmt.Sprintf("m%d", i),
			SenderID:    sender,
			ReceiverID:  receiver,
			Content:     fmt.Sprintf("msg %d", i),
			DeliveredAt: &delivered,
			CreatedAt:   delivered,
		}))
	}
	require.NoError(t, store.CreateMessage(models.Message{ID: "other", SenderID: "a", ReceiverID: "c"}))
	require.Error(t, store.CreateMessage(models.Message{ID: "m0", SenderID: "a", ReceiverID: "b"}))

	msgs, err := store.ListConversation("b", "a", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, []string{"m2", "m3", "m4"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	all, err := store.ListConversation("a", "b", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	none, err := store.ListConversation("x", "y", 10)
	require.NoError(t, err)
	require.Empty(t, none)

	m, err := store.GetMessage("m1")
	require.NoError(t, err)
	require.Equal(t, "b", m.SenderID)
	require.NotNil(t, m.DeliveredAt)
	require.Nil(t, m.ReadAt)

	readAt := time.Now()
	m.IsRead = true
	m.ReadAt = &readAt
	require.NoError(t, store.UpdateMessage(m))

	m, err = store.GetMessage("m1")
	require.NoError(t, err)
	require.True(t, m.IsRead)
	require.True(t, readAt.Equal(*m.ReadAt))

	require.ErrorIs(t, store.UpdateMessage(models.Message{ID: "ghost"}), models.ErrNotFound)
	_, err = store.GetMessage("ghost")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStorage_Notifications(t *testing.T) {
	store := newTestStorage(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateNotification(models.Notification{
			ID:         fmt.Sprintf("n%d", i),
			UserID:     "b",
			Type:       models.NotificationNewMessage,
			FromUserID: "a",
			Content:    "hi",
			CreatedAt:  time.Now(),
		}))
	}

	list, err := store.ListNotifications("b", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "n2", list[0].ID, "newest first")
	require.Equal(t, models.NotificationNewMessage, list[0].Type)

	empty, err := store.ListNotifications("a", 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestStorage_PushSubscriptions(t *testing.T) {
	store := newTestStorage(t)

	sub := models.PushSubscription{UserID: "a", Endpoint: "https://push.example/1", P256dh: "key", Auth: "auth"}
	require.NoError(t, store.UpsertPushSubscription(sub))
	require.NoError(t, store.UpsertPushSubscription(sub))

	subs, err := store.ListPushSubscriptions("a")
	require.NoError(t, err)
	require.Equal(t, []models.PushSubscription{sub}, subs)

	require.NoError(t, store.DeletePushSubscription("a", sub.Endpoint))
	subs, err = store.ListPushSubscriptions("a")
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestConversationID(t *testing.T) {
	require.Equal(t, "dm_a_b", ConversationID("a", "b"))
	require.Equal(t, "dm_a_b", ConversationID("b", "a"))
}
