package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
)

// Server exposes the hub's upgrade endpoint on a dedicated listener.
type Server struct {
	hub  *Hub
	http *http.Server
}

func NewServer(hub *Hub, addr string) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWebSocket)

	return &Server{
		hub: hub,
		http: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) ListenAndServe() error {
	log.Print(nil).Info("Realtime server listening on " + s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
