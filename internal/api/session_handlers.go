package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/page"
)

// lookupSession resolves the id query parameter to a connected page session,
// writing the error response itself when it cannot.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request, handler string) (*page.Session, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		slog.Warn(handler+": missing session id")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Session id is required"))
		return nil, false
	}
	sess, ok := s.pages.Get(id)
	if !ok {
		slog.Debug(handler+": session not found", "session_id", id)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return nil, false
	}
	return sess, true
}

func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listSessionsHandler: processing request", "method", r.Method)
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "Server.listSessionsHandler", r.Method, http.MethodGet)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.pages.IDs()))
}

func (s *Server) sessionStatsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionStatsHandler: processing request", "method", r.Method)
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "Server.sessionStatsHandler", r.Method, http.MethodGet)
		return
	}
	sess, ok := s.lookupSession(w, r, "Server.sessionStatsHandler")
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess.Coordinator().Stats()))
}

func (s *Server) sessionStateHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionStateHandler: processing request", "method", r.Method)
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "Server.sessionStateHandler", r.Method, http.MethodGet)
		return
	}
	sess, ok := s.lookupSession(w, r, "Server.sessionStateHandler")
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess.Coordinator().Snapshot(sess.ID())))
}

func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.resetSessionHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "Server.resetSessionHandler", r.Method, http.MethodPost)
		return
	}
	sess, ok := s.lookupSession(w, r, "Server.resetSessionHandler")
	if !ok {
		return
	}
	sess.Coordinator().Reset(context.Background())
	slog.Info("Server.resetSessionHandler: session reset", "session_id", sess.ID())
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", sess.Coordinator().Snapshot(sess.ID())))
}
