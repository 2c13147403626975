package api

import "net/http"

// maxPreferenceFacts caps the keyed facts returned by the preferences
// endpoint. Per-user facts are bounded by the extraction rule set, so
// this is a safety rail, not pagination.
const maxPreferenceFacts = 50

// handlePreferences returns everything the assistant remembers about
// the traveler: keyed preference facts and free-text preference
// statements, both scoped to the session's user.
func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	sess := s.ensureSession(w, r)

	facts, err := s.prefs.TopFacts(sess.UserID, maxPreferenceFacts)
	if err != nil {
		s.logger.Error("loading preference facts failed", "user", sess.UserID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "loading preferences failed")
		return
	}

	texts, err := s.prefs.TextPreferences(sess.UserID)
	if err != nil {
		s.logger.Error("loading text preferences failed", "user", sess.UserID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "loading preferences failed")
		return
	}

	writeJSON(w, map[string]any{
		"facts":       facts,
		"preferences": texts,
	}, s.logger)
}
