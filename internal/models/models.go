package models

import (
	"errors"
	"slices"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// PresencePreference is the status a user chose for themselves.
type PresencePreference string

const (
	PreferenceOnline       PresencePreference = "online"
	PreferenceOffline      PresencePreference = "offline"
	PreferenceDoNotDisturb PresencePreference = "do_not_disturb"
)

func (p PresencePreference) Valid() bool {
	switch p {
	case PreferenceOnline, PreferenceOffline, PreferenceDoNotDisturb:
		return true
	}
	return false
}

// DisplayedStatus is what other users see. It is derived, never stored.
type DisplayedStatus string

const (
	StatusOnline       DisplayedStatus = "online"
	StatusOffline      DisplayedStatus = "offline"
	StatusDoNotDisturb DisplayedStatus = "do_not_disturb"
)

// User represents a user in the system.
type User struct {
	ID              string             `json:"id"`
	UserName        string             `json:"userName"`
	DisplayName     string             `json:"displayName"`
	Friends         []string           `json:"friends,omitempty"`
	Blocked         []string           `json:"blocked,omitempty"`
	Presence        PresencePreference `json:"presence"`
	LastSeenEnabled bool               `json:"lastSeenEnabled"`
	LastSeenAt      *time.Time         `json:"lastSeenAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

func (u User) IsFriend(id string) bool {
	return slices.Contains(u.Friends, id)
}

func (u User) HasBlocked(id string) bool {
	return slices.Contains(u.Blocked, id)
}

// Message represents a direct chat message.
type Message struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"senderId"`
	ReceiverID  string     `json:"receiverId"`
	Content     string     `json:"content"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	AudioURL    string     `json:"audioUrl,omitempty"`
	IsRead      bool       `json:"isRead"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	IsEdited    bool       `json:"isEdited"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
	IsDeleted   bool       `json:"isDeleted"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (m Message) HasMedia() bool {
	return m.ImageURL != "" || m.AudioURL != ""
}

type NotificationType string

const (
	NotificationNewMessage NotificationType = "new_message"
)

// Notification is a persisted record shown in the user's notification list.
type Notification struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	Type       NotificationType `json:"type"`
	FromUserID string           `json:"fromUserId"`
	MessageID  string           `json:"messageId,omitempty"`
	Content    string           `json:"content"`
	IsRead     bool             `json:"isRead"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// PushSubscription is a browser Web Push endpoint registered by a user.
type PushSubscription struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
