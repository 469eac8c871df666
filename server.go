package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/studycircle/studycircle/auth"
	"github.com/studycircle/studycircle/config"
	"github.com/studycircle/studycircle/middleware"
)

// Server handles HTTP and WebSocket connections.
type Server struct {
	hub       *Hub
	config    *config.Config
	handlers  *Handlers
	validator *auth.Validator
	upgrader  websocket.Upgrader
}

// NewServer creates a new server.
func NewServer(hub *Hub, cfg *config.Config, handlers *Handlers, validator *auth.Validator) *Server {
	return &Server{
		hub:       hub,
		config:    cfg,
		handlers:  handlers,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.CheckOrigin(cfg.Server.AllowedOrigins),
		},
	}
}

// SetupRoutes configures HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v0/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
}

// handleWebSocket upgrades HTTP to WebSocket and creates a session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	remoteAddr := r.RemoteAddr
	if s.config.Server.UseXForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			remoteAddr = xff
		}
	}

	sess := NewSession(s.hub, conn, remoteAddr, s.handlers)

	// A token passed at upgrade authenticates the session up front, so the
	// client can skip the login frame.
	if token := r.URL.Query().Get("token"); token != "" {
		if userID, err := s.validator.ValidateToken(token); err == nil {
			sess.SetUserID(userID)
		}
	}

	s.hub.Register(sess)

	// Run the session (blocks until session closes)
	sess.Run()
}

// handleHealth is a simple health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","sessions":%d,"online":%d}`, s.hub.SessionCount(), s.hub.OnlineCount())
}
