package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type ClientEventType string

const (
	ClientSendMessage         ClientEventType = "send_message"
	ClientMessageReceived     ClientEventType = "message_received"
	ClientTypingStart         ClientEventType = "typing_start"
	ClientTypingStop          ClientEventType = "typing_stop"
	ClientRequestTypingStatus ClientEventType = "request_typing_status"
	ClientEnterChat           ClientEventType = "enter_chat"
	ClientLeaveChat           ClientEventType = "leave_chat"
	ClientEditMessage         ClientEventType = "edit_message"
	ClientDeleteMessage       ClientEventType = "delete_message"
	ClientDisconnect          ClientEventType = "disconnect"
)

type ServerEventType string

const (
	ServerMessageSent        ServerEventType = "message_sent"
	ServerNewMessage         ServerEventType = "new_message"
	ServerMessageDelivered   ServerEventType = "message_delivered"
	ServerMessageSeen        ServerEventType = "message_seen"
	ServerLastSeenUpdated    ServerEventType = "last_seen_updated"
	ServerMessageEdited      ServerEventType = "message_edited"
	ServerMessageDeleted     ServerEventType = "message_deleted"
	ServerMessageError       ServerEventType = "message_error"
	ServerMessageEditError   ServerEventType = "message_edit_error"
	ServerMessageDeleteError ServerEventType = "message_delete_error"
	ServerUserTyping         ServerEventType = "user_typing"
	ServerUserStatusChanged  ServerEventType = "user_status_changed"
	ServerNewNotification    ServerEventType = "new_notification"
	ServerError              ServerEventType = "error"
)

var ErrUnknownEvent = errors.New("unknown event type")

// ClientEnvelope is the frame a client sends: {"type": ..., "data": {...}}.
type ClientEnvelope struct {
	Type ClientEventType `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is one of the inbound event structs below. The set is closed.
type ClientEvent interface {
	EventType() ClientEventType
	Validate() error
}

type SendMessage struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	AudioURL   string `json:"audioUrl,omitempty"`
}

type MessageReceived struct {
	MessageID string `json:"messageId"`
}

type TypingStart struct {
	ReceiverID string `json:"receiverId"`
}

type TypingStop struct {
	ReceiverID string `json:"receiverId"`
}

type RequestTypingStatus struct {
	FriendID string `json:"friendId"`
}

type EnterChat struct {
	FriendID string `json:"friendId"`
}

type LeaveChat struct{}

type EditMessage struct {
	MessageID  string `json:"messageId"`
	NewContent string `json:"newContent"`
}

type DeleteMessage struct {
	MessageID string `json:"messageId"`
}

type Disconnect struct{}

func (SendMessage) EventType() ClientEventType         { return ClientSendMessage }
func (MessageReceived) EventType() ClientEventType     { return ClientMessageReceived }
func (TypingStart) EventType() ClientEventType         { return ClientTypingStart }
func (TypingStop) EventType() ClientEventType          { return ClientTypingStop }
func (RequestTypingStatus) EventType() ClientEventType { return ClientRequestTypingStatus }
func (EnterChat) EventType() ClientEventType           { return ClientEnterChat }
func (LeaveChat) EventType() ClientEventType           { return ClientLeaveChat }
func (EditMessage) EventType() ClientEventType         { return ClientEditMessage }
func (DeleteMessage) EventType() ClientEventType       { return ClientDeleteMessage }
func (Disconnect) EventType() ClientEventType          { return ClientDisconnect }

// SendMessage is validated by the message pipeline itself, since the
// order of its checks is part of the contract.
func (SendMessage) Validate() error { return nil }

func (e MessageReceived) Validate() error { return required("messageId", e.MessageID) }
func (e TypingStart) Validate() error     { return required("receiverId", e.ReceiverID) }
func (e TypingStop) Validate() error      { return required("receiverId", e.ReceiverID) }
func (e RequestTypingStatus) Validate() error {
	return required("friendId", e.FriendID)
}
func (e EnterChat) Validate() error     { return required("friendId", e.FriendID) }
func (LeaveChat) Validate() error       { return nil }
func (e EditMessage) Validate() error   { return required("messageId", e.MessageID) }
func (e DeleteMessage) Validate() error { return required("messageId", e.MessageID) }
func (Disconnect) Validate() error      { return nil }

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// Decode turns the envelope into a typed, validated event.
func (env ClientEnvelope) Decode() (ClientEvent, error) {
	var evt ClientEvent
	switch env.Type {
	case ClientSendMessage:
		evt = &SendMessage{}
	case ClientMessageReceived:
		evt = &MessageReceived{}
	case ClientTypingStart:
		evt = &TypingStart{}
	case ClientTypingStop:
		evt = &TypingStop{}
	case ClientRequestTypingStatus:
		evt = &RequestTypingStatus{}
	case ClientEnterChat:
		evt = &EnterChat{}
	case ClientLeaveChat:
		evt = &LeaveChat{}
	case ClientEditMessage:
		evt = &EditMessage{}
	case ClientDeleteMessage:
		evt = &DeleteMessage{}
	case ClientDisconnect:
		evt = &Disconnect{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, evt); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

// ServerEvent is the frame sent to a client.
type ServerEvent struct {
	Type ServerEventType `json:"type"`
	Data any             `json:"data,omitempty"`
}

type MessageDelivered struct {
	MessageID   string    `json:"messageId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type MessageSeen struct {
	MessageID  string    `json:"messageId"`
	ReadBy     string    `json:"readBy"`
	ReadAt     time.Time `json:"readAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type LastSeenUpdated struct {
	UserID     string    `json:"userId"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type UserTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type UserStatusChanged struct {
	UserID string          `json:"userId"`
	Status DisplayedStatus `json:"displayedStatus"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
	IsBlocked bool   `json:"isBlocked,omitempty"`
}
