// Package api provides the HTTP API and WebSocket event stream.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"keyroute/internal/config"
	"keyroute/internal/engine"
	"keyroute/internal/window"
)

// Server provides HTTP API for remote observation and control
type Server struct {
	configMgr *config.Manager
	engine    *engine.Engine
	logger    *slog.Logger
	hub       *Hub

	handlerOnce sync.Once
	handler     http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(configMgr *config.Manager, eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		configMgr: configMgr,
		engine:    eng,
		logger:    logger.With(slog.String("component", "api")),
	}
	s.hub = newHub(eng, logger)
	return s
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler and starts the hub on first use.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		go s.hub.run()

		mux := http.NewServeMux()
		mux.HandleFunc("/health", s.handleHealth)
		mux.HandleFunc("/api/status", s.handleStatus)
		mux.HandleFunc("/api/windows", s.handleWindows)
		mux.HandleFunc("/api/windows/action", s.handleWindowAction)
		mux.HandleFunc("/api/config", s.handleConfig)
		mux.HandleFunc("/ws", s.hub.handleWebSocket)

		s.handler = s.authMiddleware(s.recoverMiddleware(mux))
	})
	return s.handler
}

// Start serves the API on the loopback interface. It blocks until Shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		s.logger.Error("API server failed to listen", slog.String("addr", addr), slog.String("error", err.Error()))
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("Starting API server", slog.String("addr", addr))

	// This is blocking
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server stopped", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, if running, and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.hub.close()
	return err
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Handler panicked",
					slog.String("path", r.URL.Path),
					slog.Any("panic", err),
					slog.String("stack", string(debug.Stack())),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("remote", r.RemoteAddr))

		// Skip auth for health check
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		// If token is configured, verify it
		if token := s.configMgr.Get().API.Token; token != "" {
			if !validToken(r.Header.Get("Authorization"), token) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// validToken compares the bearer credential in constant time.
func validToken(header, token string) bool {
	return subtle.ConstantTimeCompare([]byte(header), []byte("Bearer "+token)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	engine.Status
	Clients int `json:"clients"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: s.engine.Status(), Clients: s.hub.ClientCount()})
}

// handleWindows handles GET (list) and POST (rediscover) for target windows
func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.Windows().ListKnownWindows())

	case http.MethodPost:
		n, err := s.engine.RefreshWindows()
		if err != nil {
			s.logger.Warn("Window refresh failed", slog.String("error", err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": n})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type windowActionRequest struct {
	Handle window.Handle `json:"handle"`
	Action string        `json:"action"`
}

var windowActions = map[string]func(window.Handle) error{
	"focus":    window.Focus,
	"maximize": window.Maximize,
	"minimize": window.Minimize,
	"restore":  window.Restore,
}

// handleWindowAction handles POST /api/windows/action
func (s *Server) handleWindowAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req windowActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	action, ok := windowActions[req.Action]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown action %q", req.Action), http.StatusBadRequest)
		return
	}
	if _, ok := s.engine.Windows().Lookup(req.Handle); !ok {
		http.Error(w, "Unknown window", http.StatusNotFound)
		return
	}

	if err := action(req.Handle); err != nil {
		s.logger.Warn("Window action failed",
			slog.String("action", req.Action),
			slog.String("window", req.Handle.String()),
			slog.String("error", err.Error()),
		)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig handles GET (read) and POST (update) for configuration
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.configMgr.Get())

	case http.MethodPost:
		var newCfg config.Config
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			http.Error(w, "Invalid configuration data", http.StatusBadRequest)
			return
		}

		s.logger.Info("Receiving configuration update", slog.String("remote", r.RemoteAddr))

		if err := s.configMgr.Set(&newCfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.configMgr.Save(); err != nil {
			s.logger.Error("Failed to save received config", slog.String("error", err.Error()))
			http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
