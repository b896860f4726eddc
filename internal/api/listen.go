package api

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Start binds addr and serves in a goroutine. It returns the bound address
// once the socket is listening, so ":0" works.
func (s *Server) Start(addr string) (string, error) {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// above the /api/v1 timeout so waited rolls can finish
		WriteTimeout: 65 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("serve: %v", err)
		}
	}()
	return ln.Addr().String(), nil
}

// Shutdown gracefully stops the HTTP server and disconnects websocket
// clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
