package ws

import (
	"context"
	"net/http"

	"palaver/internal/auth"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Authenticator interface {
	GetUserID(token string) (string, error)
}

// Server upgrades authenticated requests to chat sessions.
type Server struct {
	auth     Authenticator
	hub      *Hub
	upgrader *websocket.Upgrader
	log      *zap.Logger
	baseCtx  context.Context
}

func NewServer(ctx context.Context, authService Authenticator, hub *Hub, log *zap.Logger) *Server {
	return &Server{
		auth: authService,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:     log,
		baseCtx: ctx,
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := s.auth.GetUserID(auth.TokenFromRequest(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("error upgrading to websocket", zap.String("user_id", userID), zap.Error(err))
		return
	}

	conn := NewConnection(s.hub, ws, userID, s.log)
	if err := conn.Handle(s.baseCtx); err != nil {
		s.log.Debug("connection closed with error", zap.String("user_id", userID), zap.Error(err))
	}
}
