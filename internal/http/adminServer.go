package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"palaver/internal/api"

	"go.uber.org/zap"
)

type AdminServer struct {
	server *http.Server
	log    *zap.Logger
	wg     sync.WaitGroup
}

func NewAdminServer(adminHandler *api.AdminHandler, addr string, log *zap.Logger) *AdminServer {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/users", adminHandler.AddUserHandler)
	mux.HandleFunc("POST /admin/users/{id}/token", adminHandler.TokenHandler)
	mux.HandleFunc("POST /admin/users/{id}/disconnect", adminHandler.DisconnectHandler)
	mux.HandleFunc("POST /admin/friends", adminHandler.AddFriendHandler)
	mux.HandleFunc("POST /admin/blocks", adminHandler.BlockHandler)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (s *AdminServer) Start() error {
	s.log.Info("Admin API started", zap.String("addr", s.server.Addr))
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *AdminServer) Serve(l net.Listener) error {
	s.log.Info("Admin API started", zap.String("addr", l.Addr().String()))
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
