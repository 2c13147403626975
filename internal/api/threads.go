package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/skip2/go-qrcode"
)

// authorizeThread checks thread ownership. A thread that does not exist
// yet is allowed; ownership is fixed at its first write. The not-found
// status deliberately matches the wrong-owner status so thread ids
// can't be enumerated.
func (s *Server) authorizeThread(w http.ResponseWriter, threadID, userID string) bool {
	th, err := s.prefs.Thread(threadID)
	if err != nil {
		s.logger.Error("thread lookup failed", "thread", threadID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "thread lookup failed")
		return false
	}
	if th != nil && th.UserID != userID {
		s.errorResponse(w, http.StatusNotFound, "thread not found")
		return false
	}
	return true
}

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	sess := s.ensureSession(w, r)

	threads, err := s.prefs.Threads(sess.UserID)
	if err != nil {
		s.logger.Error("listing threads failed", "user", sess.UserID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "listing threads failed")
		return
	}
	writeJSON(w, map[string]any{"threads": threads}, s.logger)
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request) {
	sess := s.ensureSession(w, r)
	threadID := r.PathValue("id")

	th, err := s.prefs.Thread(threadID)
	if err != nil {
		s.logger.Error("thread lookup failed", "thread", threadID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "thread lookup failed")
		return
	}
	if th == nil || th.UserID != sess.UserID {
		s.errorResponse(w, http.StatusNotFound, "thread not found")
		return
	}

	messages, err := s.transcripts.Messages(threadID)
	if err != nil {
		s.logger.Error("loading transcript failed", "thread", threadID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "loading transcript failed")
		return
	}

	writeJSON(w, map[string]any{
		"thread":   th,
		"messages": messages,
	}, s.logger)
}

// handleThreadQR renders the thread's share link as a QR PNG.
func (s *Server) handleThreadQR(w http.ResponseWriter, r *http.Request) {
	sess := s.ensureSession(w, r)
	threadID := r.PathValue("id")

	th, err := s.prefs.Thread(threadID)
	if err != nil || th == nil || th.UserID != sess.UserID {
		if err != nil {
			s.logger.Error("thread lookup failed", "thread", threadID, "error", err)
		}
		s.errorResponse(w, http.StatusNotFound, "thread not found")
		return
	}

	shareURL := fmt.Sprintf("%s/t/%s", s.publicURL, threadID)
	png, err := qrcode.Encode(shareURL, qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("QR encoding failed", "thread", threadID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "QR encoding failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		s.logger.Debug("failed to write QR response", "error", err)
	}
}
