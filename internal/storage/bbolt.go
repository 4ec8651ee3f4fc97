package storage

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"palaver/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers             = []byte("users")
	bucketMessages          = []byte("messages")
	bucketConversations     = []byte("conversations")
	bucketNotifications     = []byte("notifications")
	bucketPushSubscriptions = []byte("push_subscriptions")
)

var ErrUsernameTaken = errors.New("username already taken")

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketMessages,
			bucketConversations,
			bucketNotifications,
			bucketPushSubscriptions,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// Users

func getUser(tx *bbolt.Tx, id string) (*DBUser, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	var u DBUser
	if err := u.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", id, err)
	}
	return &u, nil
}

func putUser(tx *bbolt.Tx, u *DBUser) error {
	data, err := u.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketUsers).Put(u.Key(), data)
}

func (s *BboltStorage) updateUser(id string, fn func(u *DBUser) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		u, err := getUser(tx, id)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		return putUser(tx, u)
	})
}

// CreateUser stores a new user. User names are unique.
func (s *BboltStorage) CreateUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.ID)) != nil {
			return fmt.Errorf("user %s already exists", user.ID)
		}
		err := b.ForEach(func(k, v []byte) error {
			var existing DBUser
			if err := existing.UnmarshalBinary(v); err != nil {
				return err
			}
			if existing.UserName == user.UserName {
				return ErrUsernameTaken
			}
			return nil
		})
		if err != nil {
			return err
		}
		return putUser(tx, dbUserFrom(user))
	})
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		u, err := getUser(tx, id)
		if err != nil {
			return err
		}
		user = u.toModel()
		return nil
	})
	return user, err
}

// ListUsers returns all users sorted by user name.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var u DBUser
			if err := u.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, u.toModel())
			return nil
		})
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].UserName < users[j].UserName
	})
	return users, err
}

// AddFriendship makes a and b mutual friends.
func (s *BboltStorage) AddFriendship(a, b string) error {
	if a == b {
		return errors.New("user cannot befriend themselves")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		ua, err := getUser(tx, a)
		if err != nil {
			return err
		}
		ub, err := getUser(tx, b)
		if err != nil {
			return err
		}
		if !slices.Contains(ua.Friends, b) {
			ua.Friends = append(ua.Friends, b)
		}
		if !slices.Contains(ub.Friends, a) {
			ub.Friends = append(ub.Friends, a)
		}
		if err := putUser(tx, ua); err != nil {
			return err
		}
		return putUser(tx, ub)
	})
}

// Block records that blocker blocked blocked. It does not touch the
// other side's block list.
func (s *BboltStorage) Block(blocker, blocked string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getUser(tx, blocked); err != nil {
			return err
		}
		u, err := getUser(tx, blocker)
		if err != nil {
			return err
		}
		if !slices.Contains(u.Blocked, blocked) {
			u.Blocked = append(u.Blocked, blocked)
		}
		return putUser(tx, u)
	})
}

func (s *BboltStorage) SetPresence(userID string, pref models.PresencePreference) error {
	return s.updateUser(userID, func(u *DBUser) error {
		u.Presence = string(pref)
		return nil
	})
}

func (s *BboltStorage) SetLastSeenEnabled(userID string, enabled bool) error {
	return s.updateUser(userID, func(u *DBUser) error {
		u.LastSeenEnabled = enabled
		return nil
	})
}

func (s *BboltStorage) TouchLastSeen(userID string, at time.Time) error {
	return s.updateUser(userID, func(u *DBUser) error {
		u.LastSeenAt = at.UnixNano()
		return nil
	})
}

// Messages

// CreateMessage saves a new message and appends it to the conversation
// index of its two participants.
func (s *BboltStorage) CreateMessage(message models.Message) error {
	if message.ID == "" {
		return errors.New("message missing id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		msgs := tx.Bucket(bucketMessages)
		if msgs.Get([]byte(message.ID)) != nil {
			return fmt.Errorf("message %s already exists", message.ID)
		}

		dbMessage := dbMessageFrom(message)
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := msgs.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		conv, err := tx.Bucket(bucketConversations).CreateBucketIfNotExists(
			[]byte(ConversationID(message.SenderID, message.ReceiverID)))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}
		seq, err := conv.NextSequence()
		if err != nil {
			return err
		}
		return conv.Put(seqKey(seq), dbMessage.Key())
	})
}

func (s *BboltStorage) GetMessage(id string) (models.Message, error) {
	var message models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMessages).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("message %s: %w", id, models.ErrNotFound)
		}
		var m DBMessage
		if err := m.UnmarshalBinary(data); err != nil {
			return err
		}
		message = m.toModel()
		return nil
	})
	return message, err
}

// UpdateMessage overwrites an existing message.
func (s *BboltStorage) UpdateMessage(message models.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		msgs := tx.Bucket(bucketMessages)
		if msgs.Get([]byte(message.ID)) == nil {
			return fmt.Errorf("message %s: %w", message.ID, models.ErrNotFound)
		}
		dbMessage := dbMessageFrom(message)
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return msgs.Put(dbMessage.Key(), data)
	})
}

// ListConversation returns up to limit most recent messages between a and
// b in insertion order.
func (s *BboltStorage) ListConversation(a, b string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		conv := tx.Bucket(bucketConversations).Bucket([]byte(ConversationID(a, b)))
		if conv == nil {
			return nil
		}
		msgs := tx.Bucket(bucketMessages)

		c := conv.Cursor()
		for k, v := c.Last(); k != nil && len(messages) < limit; k, v = c.Prev() {
			data := msgs.Get(v)
			if data == nil {
				continue
			}
			var m DBMessage
			if err := m.UnmarshalBinary(data); err != nil {
				return err
			}
			messages = append(messages, m.toModel())
		}
		return nil
	})
	slices.Reverse(messages)
	return messages, err
}

// Notifications

func (s *BboltStorage) CreateNotification(n models.Notification) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketNotifications).CreateBucketIfNotExists([]byte(n.UserID))
		if err != nil {
			return fmt.Errorf("failed to create notification bucket: %w", err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		dbn := &DBNotification{
			Seq:        seq,
			ID:         n.ID,
			UserID:     n.UserID,
			Type:       string(n.Type),
			FromUserID: n.FromUserID,
			MessageID:  n.MessageID,
			Content:    n.Content,
			IsRead:     n.IsRead,
			CreatedAt:  toNanos(&n.CreatedAt),
		}
		data, err := dbn.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal notification: %w", err)
		}
		return b.Put(dbn.Key(), data)
	})
}

// ListNotifications returns the newest notifications of userID first.
func (s *BboltStorage) ListNotifications(userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.Notification
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNotifications).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var n DBNotification
			if err := n.UnmarshalBinary(v); err != nil {
				return err
			}
			out = append(out, models.Notification{
				ID:         n.ID,
				UserID:     n.UserID,
				Type:       models.NotificationType(n.Type),
				FromUserID: n.FromUserID,
				MessageID:  n.MessageID,
				Content:    n.Content,
				IsRead:     n.IsRead,
				CreatedAt:  timeFromNanos(n.CreatedAt),
			})
		}
		return nil
	})
	return out, err
}

// ConversationID is the deterministic key of the direct chat between two users.
func ConversationID(u1, u2 string) string {
	if bytes.Compare([]byte(u1), []byte(u2)) > 0 {
		u1, u2 = u2, u1
	}
	return fmt.Sprintf("dm_%s_%s", u1, u2)
}
