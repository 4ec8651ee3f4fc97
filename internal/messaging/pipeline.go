package messaging

import (
	"errors"
	"strings"
	"time"

	"palaver/internal/content"
	"palaver/internal/errs"
	"palaver/internal/models"
	"palaver/internal/ratelimit"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence the pipeline needs.
type Store interface {
	GetUser(id string) (models.User, error)
	TouchLastSeen(userID string, at time.Time) error
	CreateMessage(message models.Message) error
	GetMessage(id string) (models.Message, error)
	UpdateMessage(message models.Message) error
	CreateNotification(n models.Notification) error
}

type Limiter interface {
	Allow(userID string, action ratelimit.Action) bool
}

type Emitter interface {
	Emit(userID string, evt models.ServerEvent) bool
	IsOnline(userID string) bool
}

type ActiveChats interface {
	IsViewing(userID, counterpartID string) bool
}

type Typing interface {
	Stop(senderID, receiverID string) bool
}

// OfflineNotifier is told about notifications whose receiver is not connected.
type OfflineNotifier interface {
	Notify(userID string, n models.Notification)
}

type Deps struct {
	Store    Store
	Limiter  Limiter
	Emitter  Emitter
	Active   ActiveChats
	Typing   Typing
	Notifier OfflineNotifier
	Log      *zap.Logger
}

// Pipeline validates, persists and fans out chat messages and receipts.
//
// Every operation checks all preconditions before the first write, so a
// rejected action leaves no trace. Store calls may block; live delivery
// is decided after they return, by asking the emitter at that moment.
type Pipeline struct {
	Deps
	now   func() time.Time
	newID func() string
}

const notificationPreviewLength = 100

func New(deps Deps) *Pipeline {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Pipeline{
		Deps:  deps,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Send delivers a new message from senderID. Failures are reported to the
// sender as message_error.
func (p *Pipeline) Send(senderID string, req models.SendMessage) (models.Message, error) {
	msg, err := p.send(senderID, req)
	if err != nil {
		p.fail(senderID, models.ServerMessageError, "", err)
		return models.Message{}, err
	}
	return msg, nil
}

func (p *Pipeline) send(senderID string, req models.SendMessage) (models.Message, error) {
	receiverID := strings.TrimSpace(req.ReceiverID)
	if receiverID == "" {
		return models.Message{}, errs.Invalid("Receiver ID is required")
	}
	if strings.TrimSpace(req.Content) == "" && req.ImageURL == "" && req.AudioURL == "" {
		return models.Message{}, errs.Invalid("Message content, image, or audio is required")
	}
	if !p.Limiter.Allow(senderID, ratelimit.ActionSend) {
		return models.Message{}, errs.RateLimited("You are sending messages too quickly. Please slow down.")
	}
	if req.ImageURL != "" && content.ValidateMediaURL(req.ImageURL) != nil {
		return models.Message{}, errs.Invalid("Invalid image URL")
	}
	if req.AudioURL != "" && content.ValidateMediaURL(req.AudioURL) != nil {
		return models.Message{}, errs.Invalid("Invalid audio URL")
	}
	if senderID == receiverID {
		return models.Message{}, errs.Invalid("You cannot send a message to yourself")
	}

	receiver, err := p.user(receiverID)
	if err != nil {
		return models.Message{}, err
	}
	sender, err := p.user(senderID)
	if err != nil {
		return models.Message{}, err
	}
	if !sender.IsFriend(receiverID) || !receiver.IsFriend(senderID) {
		return models.Message{}, errs.Forbidden("You can only message your friends")
	}
	// Only the receiver's block list matters here.
	if receiver.HasBlocked(senderID) {
		return models.Message{}, errs.BlockedBy()
	}

	body := content.Clean(req.Content)
	if body == "" && req.ImageURL == "" && req.AudioURL == "" {
		return models.Message{}, errs.Invalid("Message content is invalid")
	}

	now := p.now()
	msg := models.Message{
		ID:          p.newID(),
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     body,
		ImageURL:    req.ImageURL,
		AudioURL:    req.AudioURL,
		DeliveredAt: &now,
		CreatedAt:   now,
	}
	if err := p.Store.CreateMessage(msg); err != nil {
		return models.Message{}, errs.Internal(err)
	}

	p.Emitter.Emit(senderID, models.ServerEvent{Type: models.ServerMessageSent, Data: msg})
	p.Emitter.Emit(receiverID, models.ServerEvent{Type: models.ServerNewMessage, Data: msg})
	p.Emitter.Emit(senderID, models.ServerEvent{
		Type: models.ServerMessageDelivered,
		Data: models.MessageDelivered{MessageID: msg.ID, DeliveredAt: now},
	})

	if !p.Active.IsViewing(receiverID, senderID) {
		p.notifyNewMessage(msg)
	}

	if p.Typing.Stop(senderID, receiverID) {
		p.Emitter.Emit(receiverID, models.ServerEvent{
			Type: models.ServerUserTyping,
			Data: models.UserTyping{UserID: senderID, IsTyping: false},
		})
	}

	p.Log.Debug("message sent",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", senderID),
		zap.String("receiver_id", receiverID))
	return msg, nil
}

// notifyNewMessage records a notification for the receiver. The message
// itself is already stored, so failures here are only logged.
func (p *Pipeline) notifyNewMessage(msg models.Message) {
	preview := content.Preview(msg.Content, notificationPreviewLength)
	switch {
	case preview != "":
	case msg.ImageURL != "":
		preview = "Sent an image"
	case msg.AudioURL != "":
		preview = "Sent a voice message"
	}

	n := models.Notification{
		ID:         p.newID(),
		UserID:     msg.ReceiverID,
		Type:       models.NotificationNewMessage,
		FromUserID: msg.SenderID,
		MessageID:  msg.ID,
		Content:    preview,
		CreatedAt:  p.now(),
	}
	if err := p.Store.CreateNotification(n); err != nil {
		p.Log.Error("failed to create notification",
			zap.String("message_id", msg.ID),
			zap.String("user_id", msg.ReceiverID),
			zap.Error(err))
		return
	}

	if p.Emitter.Emit(msg.ReceiverID, models.ServerEvent{Type: models.ServerNewNotification, Data: n}) {
		return
	}
	if p.Notifier != nil {
		p.Notifier.Notify(msg.ReceiverID, n)
	}
}

// MarkReceived is the read receipt sent by the receiver of a message.
func (p *Pipeline) MarkReceived(userID, messageID string) error {
	if err := p.markReceived(userID, messageID); err != nil {
		p.fail(userID, models.ServerMessageError, messageID, err)
		return err
	}
	return nil
}

func (p *Pipeline) markReceived(userID, messageID string) error {
	msg, err := p.message(messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != userID {
		return errs.Forbidden("You can only mark messages sent to you as read")
	}
	if msg.IsRead {
		return nil
	}
	receiver, err := p.user(userID)
	if err != nil {
		return err
	}
	sender, err := p.user(msg.SenderID)
	if err != nil {
		return err
	}

	now := p.now()
	msg.IsRead = true
	msg.ReadAt = &now
	if err := p.Store.UpdateMessage(msg); err != nil {
		return errs.Internal(err)
	}
	if err := p.Store.TouchLastSeen(userID, now); err != nil {
		p.Log.Warn("failed to update last seen", zap.String("user_id", userID), zap.Error(err))
	}

	if !receiver.LastSeenEnabled {
		return nil
	}

	if sender.LastSeenEnabled {
		p.Emitter.Emit(sender.ID, models.ServerEvent{
			Type: models.ServerMessageSeen,
			Data: models.MessageSeen{
				MessageID:  msg.ID,
				ReadBy:     userID,
				ReadAt:     now,
				LastSeenAt: now,
			},
		})
	}

	update := models.ServerEvent{
		Type: models.ServerLastSeenUpdated,
		Data: models.LastSeenUpdated{UserID: userID, LastSeenAt: now},
	}
	for _, friendID := range receiver.Friends {
		if !p.Emitter.IsOnline(friendID) {
			continue
		}
		friend := sender
		if friendID != sender.ID {
			if friend, err = p.Store.GetUser(friendID); err != nil {
				p.Log.Warn("skip last seen update", zap.String("friend_id", friendID), zap.Error(err))
				continue
			}
		}
		if friend.LastSeenEnabled {
			p.Emitter.Emit(friendID, update)
		}
	}
	return nil
}

// Edit replaces the content of a message. Only its sender may edit it,
// and deleted messages stay deleted.
func (p *Pipeline) Edit(userID string, req models.EditMessage) (models.Message, error) {
	msg, err := p.edit(userID, req)
	if err != nil {
		p.fail(userID, models.ServerMessageEditError, req.MessageID, err)
		return models.Message{}, err
	}
	return msg, nil
}

func (p *Pipeline) edit(userID string, req models.EditMessage) (models.Message, error) {
	if !p.Limiter.Allow(userID, ratelimit.ActionEdit) {
		return models.Message{}, errs.RateLimited("You are editing messages too quickly. Please slow down.")
	}
	msg, err := p.message(req.MessageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != userID {
		return models.Message{}, errs.Forbidden("You can only edit your own messages")
	}
	if msg.IsDeleted {
		return models.Message{}, errs.Invalid("Cannot edit a deleted message")
	}

	body := content.Clean(req.NewContent)
	if body == "" && !msg.HasMedia() {
		return models.Message{}, errs.Invalid("Message content cannot be empty")
	}

	now := p.now()
	msg.Content = body
	msg.IsEdited = true
	msg.EditedAt = &now
	if err := p.Store.UpdateMessage(msg); err != nil {
		return models.Message{}, errs.Internal(err)
	}

	evt := models.ServerEvent{Type: models.ServerMessageEdited, Data: msg}
	p.Emitter.Emit(msg.SenderID, evt)
	p.Emitter.Emit(msg.ReceiverID, evt)
	return msg, nil
}

// Delete tombstones a message. The record is kept.
func (p *Pipeline) Delete(userID, messageID string) (models.Message, error) {
	msg, err := p.delete(userID, messageID)
	if err != nil {
		p.fail(userID, models.ServerMessageDeleteError, messageID, err)
		return models.Message{}, err
	}
	return msg, nil
}

func (p *Pipeline) delete(userID, messageID string) (models.Message, error) {
	if !p.Limiter.Allow(userID, ratelimit.ActionDelete) {
		return models.Message{}, errs.RateLimited("You are deleting messages too quickly. Please slow down.")
	}
	msg, err := p.message(messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != userID {
		return models.Message{}, errs.Forbidden("You can only delete your own messages")
	}
	if msg.IsDeleted {
		return models.Message{}, errs.Invalid("Message is already deleted")
	}

	now := p.now()
	msg.Content = content.Tombstone
	msg.ImageURL = ""
	msg.AudioURL = ""
	msg.IsDeleted = true
	msg.DeletedAt = &now
	if err := p.Store.UpdateMessage(msg); err != nil {
		return models.Message{}, errs.Internal(err)
	}

	evt := models.ServerEvent{Type: models.ServerMessageDeleted, Data: msg}
	p.Emitter.Emit(msg.SenderID, evt)
	p.Emitter.Emit(msg.ReceiverID, evt)
	return msg, nil
}

func (p *Pipeline) user(id string) (models.User, error) {
	u, err := p.Store.GetUser(id)
	if errors.Is(err, models.ErrNotFound) {
		return models.User{}, errs.NotFound("User not found")
	}
	if err != nil {
		return models.User{}, errs.Internal(err)
	}
	return u, nil
}

func (p *Pipeline) message(id string) (models.Message, error) {
	m, err := p.Store.GetMessage(id)
	if errors.Is(err, models.ErrNotFound) {
		return models.Message{}, errs.NotFound("Message not found")
	}
	if err != nil {
		return models.Message{}, errs.Internal(err)
	}
	return m, nil
}

// fail reports err to the actor. Internal causes are logged and replaced
// by a generic message.
func (p *Pipeline) fail(actorID string, typ models.ServerEventType, messageID string, err error) {
	pub := errs.Public(err)
	if pub.Code == errs.CodeInternal {
		p.Log.Error("chat action failed",
			zap.String("event", string(typ)),
			zap.String("user_id", actorID),
			zap.String("message_id", messageID),
			zap.Error(err))
	} else {
		p.Log.Debug("chat action rejected",
			zap.String("event", string(typ)),
			zap.String("user_id", actorID),
			zap.String("code", string(pub.Code)),
			zap.String("reason", pub.Message))
	}

	p.Emitter.Emit(actorID, models.ServerEvent{
		Type: typ,
		Data: models.ErrorPayload{
			Message:   pub.Message,
			MessageID: messageID,
			IsBlocked: pub.Blocked,
		},
	})
}
