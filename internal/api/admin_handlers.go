package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/screenline/screenline/internal/api/middleware"
	"github.com/screenline/screenline/internal/classify"
	"github.com/screenline/screenline/internal/database"
	"github.com/screenline/screenline/internal/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAuthToken exchanges the call-control credentials for an admin JWT.
// Credentials are checked in constant time.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	account, token, ok := r.BasicAuth()
	if !ok {
		writeError(w, http.StatusUnauthorized, "basic auth required")
		return
	}

	accountOK := subtle.ConstantTimeCompare([]byte(account), []byte(s.cfg.CallControlAccount)) == 1
	tokenOK := subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CallControlToken)) == 1
	if !accountOK || !tokenOK {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	signed, expiresAt, err := middleware.GenerateAdminToken(s.jwtSecret, account)
	if err != nil {
		slog.Error("signing admin token failed", "error", err)
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      signed,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// handleConfig returns the effective configuration with secrets redacted.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"http_port":            s.cfg.HTTPPort,
		"data_dir":             s.cfg.DataDir,
		"log_level":            s.cfg.LogLevel,
		"log_format":           s.cfg.LogFormat,
		"identify_message":     s.cfg.IdentifyMessage,
		"voicemail_message":    s.cfg.VoicemailMessage,
		"call_control_url":     s.cfg.CallControlURL,
		"call_control_account": s.cfg.CallControlAccount,
		"call_control_token":   "[redacted]",
		"session_store":        sessionStoreKind(s.cfg.SessionStoreDSN),
		"pattern_version":      s.classifier.Patterns().Version,
	})
}

func sessionStoreKind(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return "postgres"
}

type sessionResponse struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	StartedAt     string `json:"started_at"`
	MachineSignal string `json:"machine_signal"`
	WindowBytes   int    `json:"window_bytes"`
}

func toSessionResponse(snap session.Snapshot) sessionResponse {
	return sessionResponse{
		ID:            snap.ID,
		State:         snap.State.String(),
		StartedAt:     snap.StartedAt.UTC().Format(time.RFC3339),
		MachineSignal: snap.MachineSignal.String(),
		WindowBytes:   len(snap.Window),
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.store.Count(ctx)
	if err != nil {
		slog.Error("counting sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	ids, err := s.store.ActiveIDs(ctx)
	if err != nil {
		slog.Error("listing sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    count,
		"call_ids": ids,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	snap, err := s.store.Get(r.Context(), callID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("loading session failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "loading session failed")
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleGetPatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.classifier.Patterns())
}

// handlePutPatterns publishes a new pattern set revision and swaps it into
// the classifier.
func (s *Server) handlePutPatterns(w http.ResponseWriter, r *http.Request) {
	if s.patterns == nil {
		writeError(w, http.StatusNotImplemented, "no pattern store configured")
		return
	}

	var ps classify.PatternSet
	if err := decodeJSON(r, &ps); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pattern set payload")
		return
	}
	if len(ps.Preamble) == 0 || len(ps.VoicemailGreeting) == 0 || len(ps.Interactive) == 0 {
		writeError(w, http.StatusBadRequest, "preamble, voicemail_greeting, and interactive lists must be non-empty")
		return
	}

	version, err := s.patterns.Publish(r.Context(), &ps)
	if err != nil {
		slog.Error("publishing pattern set failed", "error", err)
		writeError(w, http.StatusInternalServerError, "publishing pattern set failed")
		return
	}

	ps.Version = version
	s.classifier.Swap(&ps)
	slog.Info("pattern set published", "version", version)

	writeJSON(w, http.StatusOK, map[string]int64{"version": version})
}

func (s *Server) handlePatternRevisions(w http.ResponseWriter, r *http.Request) {
	if s.patterns == nil {
		writeError(w, http.StatusNotImplemented, "no pattern store configured")
		return
	}

	revs, err := s.patterns.ListRevisions(r.Context())
	if err != nil {
		slog.Error("listing pattern revisions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing revisions failed")
		return
	}

	writeJSON(w, http.StatusOK, revs)
}

// handleActivatePatternRevision swaps a previously published revision back
// into the classifier without creating a new version.
func (s *Server) handleActivatePatternRevision(w http.ResponseWriter, r *http.Request) {
	if s.patterns == nil {
		writeError(w, http.StatusNotImplemented, "no pattern store configured")
		return
	}

	version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version")
		return
	}

	ps, err := s.patterns.GetByVersion(r.Context(), version)
	if err != nil {
		if errors.Is(err, database.ErrNoPatternSet) {
			writeError(w, http.StatusNotFound, "revision not found")
			return
		}
		slog.Error("loading pattern revision failed", "version", version, "error", err)
		writeError(w, http.StatusInternalServerError, "loading revision failed")
		return
	}

	s.classifier.Swap(ps)
	slog.Info("pattern set activated", "version", version)

	writeJSON(w, http.StatusOK, map[string]int64{"version": version})
}
