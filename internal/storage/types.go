package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"palaver/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID              string   `msgpack:"id"`
	UserName        string   `msgpack:"userName"`
	DisplayName     string   `msgpack:"displayName"`
	Friends         []string `msgpack:"friends"`
	Blocked         []string `msgpack:"blocked"`
	Presence        string   `msgpack:"presence"`
	LastSeenEnabled bool     `msgpack:"lastSeenEnabled"`
	LastSeenAt      int64    `msgpack:"lastSeenAt"`
	CreatedAt       int64    `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func (u *DBUser) toModel() models.User {
	presence := models.PresencePreference(u.Presence)
	if !presence.Valid() {
		presence = models.PreferenceOnline
	}
	return models.User{
		ID:              u.ID,
		UserName:        u.UserName,
		DisplayName:     u.DisplayName,
		Friends:         u.Friends,
		Blocked:         u.Blocked,
		Presence:        presence,
		LastSeenEnabled: u.LastSeenEnabled,
		LastSeenAt:      fromNanos(u.LastSeenAt),
		CreatedAt:       timeFromNanos(u.CreatedAt),
	}
}

func dbUserFrom(u models.User) *DBUser {
	return &DBUser{
		ID:              u.ID,
		UserName:        u.UserName,
		DisplayName:     u.DisplayName,
		Friends:         u.Friends,
		Blocked:         u.Blocked,
		Presence:        string(u.Presence),
		LastSeenEnabled: u.LastSeenEnabled,
		LastSeenAt:      toNanos(u.LastSeenAt),
		CreatedAt:       toNanos(&u.CreatedAt),
	}
}

type DBMessage struct {
	ID          string `msgpack:"id"`
	SenderID    string `msgpack:"senderId"`
	ReceiverID  string `msgpack:"receiverId"`
	Content     string `msgpack:"content"`
	ImageURL    string `msgpack:"imageUrl"`
	AudioURL    string `msgpack:"audioUrl"`
	IsRead      bool   `msgpack:"isRead"`
	ReadAt      int64  `msgpack:"readAt"`
	DeliveredAt int64  `msgpack:"deliveredAt"`
	IsEdited    bool   `msgpack:"isEdited"`
	EditedAt    int64  `msgpack:"editedAt"`
	IsDeleted   bool   `msgpack:"isDeleted"`
	DeletedAt   int64  `msgpack:"deletedAt"`
	CreatedAt   int64  `msgpack:"createdAt"`
}

func (m *DBMessage) Key() []byte {
	return []byte(m.ID)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBMessage) toModel() models.Message {
	return models.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		ImageURL:    m.ImageURL,
		AudioURL:    m.AudioURL,
		IsRead:      m.IsRead,
		ReadAt:      fromNanos(m.ReadAt),
		DeliveredAt: fromNanos(m.DeliveredAt),
		IsEdited:    m.IsEdited,
		EditedAt:    fromNanos(m.EditedAt),
		IsDeleted:   m.IsDeleted,
		DeletedAt:   fromNanos(m.DeletedAt),
		CreatedAt:   timeFromNanos(m.CreatedAt),
	}
}

func dbMessageFrom(m models.Message) *DBMessage {
	return &DBMessage{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		ImageURL:    m.ImageURL,
		AudioURL:    m.AudioURL,
		IsRead:      m.IsRead,
		ReadAt:      toNanos(m.ReadAt),
		DeliveredAt: toNanos(m.DeliveredAt),
		IsEdited:    m.IsEdited,
		EditedAt:    toNanos(m.EditedAt),
		IsDeleted:   m.IsDeleted,
		DeletedAt:   toNanos(m.DeletedAt),
		CreatedAt:   toNanos(&m.CreatedAt),
	}
}

type DBNotification struct {
	Seq        uint64 `msgpack:"seq"`
	ID         string `msgpack:"id"`
	UserID     string `msgpack:"userId"`
	Type       string `msgpack:"type"`
	FromUserID string `msgpack:"fromUserId"`
	MessageID  string `msgpack:"messageId"`
	Content    string `msgpack:"content"`
	IsRead     bool   `msgpack:"isRead"`
	CreatedAt  int64  `msgpack:"createdAt"`
}

func (n *DBNotification) Key() []byte {
	return seqKey(n.Seq)
}

func (n *DBNotification) MarshalBinary() (data []byte, err error) {
	type alias DBNotification
	return msgpack.Marshal((*alias)(n))
}

func (n *DBNotification) UnmarshalBinary(data []byte) error {
	type alias DBNotification
	return msgpack.Unmarshal(data, (*alias)(n))
}

type DBPushSubscription struct {
	UserID   string `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	P256dh   string `msgpack:"p256dh"`
	Auth     string `msgpack:"auth"`
}

func (p *DBPushSubscription) Key() []byte {
	return []byte(p.Endpoint)
}

func (p *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Zero means "not set" for optional timestamps.
func toNanos(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n)
	return &t
}

func timeFromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
