package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"palaver/internal/api"
	"palaver/internal/ws"

	"go.uber.org/zap"
)

type APIServer struct {
	server *http.Server
	log    *zap.Logger
	wg     sync.WaitGroup
}

func NewAPIServer(ctx context.Context, apiHandlers *api.API, chat *ws.Server, addr string, log *zap.Logger) *APIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/logoff", apiHandlers.LogoffHandler)
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("PUT /api/me/presence", apiHandlers.RequireAuth(apiHandlers.SetPresenceHandler))
	mux.HandleFunc("PUT /api/me/last-seen", apiHandlers.RequireAuth(apiHandlers.SetLastSeenHandler))
	mux.HandleFunc("GET /api/users/{id}/status", apiHandlers.RequireAuth(apiHandlers.UserStatusHandler))
	mux.HandleFunc("GET /api/chats/{friendId}/messages", apiHandlers.RequireAuth(apiHandlers.HistoryHandler))
	mux.HandleFunc("GET /api/notifications", apiHandlers.RequireAuth(apiHandlers.NotificationsHandler))
	mux.HandleFunc("POST /api/push/subscriptions", apiHandlers.RequireAuth(apiHandlers.PushSubscribeHandler))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/chat", chat.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		},
		log: log,
	}
}

func (s *APIServer) Start() error {
	s.log.Info("API server started", zap.String("addr", s.server.Addr))
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *APIServer) Serve(l net.Listener) error {
	s.log.Info("API server started", zap.String("addr", l.Addr().String()))
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
