package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientEnvelope_Decode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    ClientEvent
		wantErr bool
	}{
		{
			name:  "send message",
			frame: `{"type":"send_message","data":{"receiverId":"b","content":"hi"}}`,
			want:  &SendMessage{ReceiverID: "b", Content: "hi"},
		},
		{
			name:  "send message with empty fields is left to the pipeline",
			frame: `{"type":"send_message","data":{}}`,
			want:  &SendMessage{},
		},
		{
			name:  "leave chat without data",
			frame: `{"type":"leave_chat"}`,
			want:  &LeaveChat{},
		},
		{
			name:  "edit message",
			frame: `{"type":"edit_message","data":{"messageId":"m1","newContent":"fixed"}}`,
			want:  &EditMessage{MessageID: "m1", NewContent: "fixed"},
		},
		{
			name:    "typing start requires receiver",
			frame:   `{"type":"typing_start","data":{}}`,
			wantErr: true,
		},
		{
			name:    "enter chat requires friend",
			frame:   `{"type":"enter_chat","data":{"friendId":""}}`,
			wantErr: true,
		},
		{
			name:    "payload of wrong shape",
			frame:   `{"type":"delete_message","data":{"messageId":42}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env ClientEnvelope
			require.NoError(t, json.Unmarshal([]byte(tt.frame), &env))

			got, err := env.Decode()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, env.Type, got.EventType())
		})
	}
}

func TestClientEnvelope_DecodeUnknown(t *testing.T) {
	_, err := ClientEnvelope{Type: "shout"}.Decode()
	require.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestServerEvent_JSON(t *testing.T) {
	data, err := json.Marshal(ServerEvent{
		Type: ServerUserTyping,
		Data: UserTyping{UserID: "a", IsTyping: true},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"user_typing","data":{"userId":"a","isTyping":true}}`, string(data))
}

func TestUserStatusChanged_JSON(t *testing.T) {
	data, err := json.Marshal(ServerEvent{
		Type: ServerUserStatusChanged,
		Data: UserStatusChanged{UserID: "a", Status: StatusDoNotDisturb},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"user_status_changed","data":{"userId":"a","displayedStatus":"do_not_disturb"}}`, string(data))
}

func TestPresencePreference_Valid(t *testing.T) {
	require.True(t, PreferenceDoNotDisturb.Valid())
	require.False(t, PresencePreference("away").Valid())
}
