package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerlabs/wayfarer/internal/agent"
	"github.com/wayfarerlabs/wayfarer/internal/session"
)

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message"`

	// GoogleToken overrides the session's stored token for this turn.
	GoogleToken string `json:"google_token,omitempty"`
}

// handleChat runs one turn and streams its events as SSE.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess := s.ensureSession(w, r)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	if !s.authorizeThread(w, req.ThreadID, sess.UserID) {
		return
	}

	release, ok := s.locks.TryAcquire(req.ThreadID)
	if !ok {
		s.errorResponse(w, http.StatusConflict, "a turn is already running for this thread")
		return
	}
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Thread-Id", req.ThreadID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	rc := http.NewResponseController(w)
	sink := func(ev agent.Event) {
		s.writeSSE(w, ev)
		flusher.Flush()
		if s.publisher != nil {
			s.publisher.PublishTurnEvent(req.ThreadID, ev)
		}
		// Reset the write deadline after every event so a slow tool
		// batch doesn't kill the stream.
		if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}

	s.runTurn(r.Context(), sess, req, sink)
}

// runTurn loads history, drives the state machine, and checkpoints the
// result. Shared by the SSE and websocket transports.
func (s *Server) runTurn(ctx context.Context, sess *session.Session, req ChatRequest, sink agent.EventSink) {
	if err := s.transcripts.EnsureConversation(req.ThreadID, sess.UserID); err != nil {
		s.logger.Error("ensuring conversation failed", "thread", req.ThreadID, "error", err)
		sink(agent.Event{Kind: agent.EventError, Text: "something went wrong starting this conversation"})
		return
	}

	history, err := s.transcripts.Messages(req.ThreadID)
	if err != nil {
		s.logger.Error("loading transcript failed", "thread", req.ThreadID, "error", err)
		sink(agent.Event{Kind: agent.EventError, Text: "something went wrong loading this conversation"})
		return
	}

	token := req.GoogleToken
	if token == "" {
		token = sess.GoogleToken
	}

	state := &agent.TurnState{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		CapabilityToken: token,
		Transcript:      history,
	}

	res, err := s.controller.RunTurn(ctx, state, req.Message, sink)
	if err != nil {
		// The controller already emitted the error event.
		return
	}

	if err := s.transcripts.AppendMessages(req.ThreadID, res.Appended); err != nil {
		s.logger.Error("transcript checkpoint failed", "thread", req.ThreadID, "error", err)
	}

	if s.extractor != nil {
		// Extraction is best-effort and must not depend on the request
		// context, which may already be canceled by a disconnect.
		if err := s.extractor.Run(context.WithoutCancel(ctx), sess.UserID, req.ThreadID, state.Transcript); err != nil {
			s.logger.Warn("knowledge extraction failed", "thread", req.ThreadID, "error", err)
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, ev agent.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Debug("failed to marshal SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		s.logger.Debug("failed to write SSE event", "error", err)
	}
}
