// Package api implements the HTTP API: the streaming chat endpoint,
// thread management, and health/version plumbing.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerlabs/wayfarer/internal/agent"
	"github.com/wayfarerlabs/wayfarer/internal/buildinfo"
	"github.com/wayfarerlabs/wayfarer/internal/extract"
	"github.com/wayfarerlabs/wayfarer/internal/memory"
	"github.com/wayfarerlabs/wayfarer/internal/prefs"
	"github.com/wayfarerlabs/wayfarer/internal/session"
)

const sessionCookie = "wayfarer_session"

// TurnEventPublisher fans turn events out to an external bus. Optional.
type TurnEventPublisher interface {
	PublishTurnEvent(threadID string, ev agent.Event)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address     string
	port        int
	publicURL   string
	controller  *agent.Controller
	transcripts *memory.Store
	prefs       *prefs.Store
	sealer      *session.Sealer
	locks       *session.Locks
	extractor   *extract.Extractor
	publisher   TurnEventPublisher
	logger      *slog.Logger
	server      *http.Server
}

// NewServer wires the API server.
func NewServer(address string, port int, controller *agent.Controller, transcripts *memory.Store, prefsStore *prefs.Store, sealer *session.Sealer, logger *slog.Logger) *Server {
	return &Server{
		address:     address,
		port:        port,
		publicURL:   fmt.Sprintf("http://localhost:%d", port),
		controller:  controller,
		transcripts: transcripts,
		prefs:       prefsStore,
		sealer:      sealer,
		locks:       session.NewLocks(),
		logger:      logger.With("component", "api"),
	}
}

// SetExtractor configures post-turn knowledge extraction.
func (s *Server) SetExtractor(e *extract.Extractor) {
	s.extractor = e
}

// SetPublisher configures the optional turn-event bridge.
func (s *Server) SetPublisher(p TurnEventPublisher) {
	s.publisher = p
}

// SetPublicURL overrides the base URL used in share links.
func (s *Server) SetPublicURL(u string) {
	if u != "" {
		s.publicURL = u
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/chat/ws", s.handleChatWS)

	mux.HandleFunc("GET /v1/threads", s.handleThreadList)
	mux.HandleFunc("GET /v1/threads/{id}", s.handleThreadGet)
	mux.HandleFunc("GET /v1/threads/{id}/qr", s.handleThreadQR)

	mux.HandleFunc("GET /v1/preferences", s.handlePreferences)

	mux.HandleFunc("POST /v1/session/google", s.handleAttachGoogle)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: chat streams stay open across slow tool
		// calls; per-write deadlines are managed in the handler.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// ensureSession resolves the caller's sealed session, minting and
// setting a fresh one when the cookie is absent, expired, or invalid.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) *session.Session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess, err := s.sealer.Open(c.Value); err == nil {
			return sess
		}
	}

	sess := session.Session{ID: uuid.NewString(), UserID: uuid.NewString()}
	s.setSessionCookie(w, sess)
	return &sess
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess session.Session) {
	token, err := s.sealer.Seal(sess)
	if err != nil {
		s.logger.Error("sealing session failed", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleAttachGoogle stores a Google access token inside the session
// cookie so token-gated tools can use it on later turns.
func (s *Server) handleAttachGoogle(w http.ResponseWriter, r *http.Request) {
	sess := s.ensureSession(w, r)

	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		s.errorResponse(w, http.StatusBadRequest, "access_token is required")
		return
	}

	sess.GoogleToken = req.AccessToken
	s.setSessionCookie(w, *sess)
	writeJSON(w, map[string]any{"connected": true}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": buildinfo.Uptime().String(),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
