package api

import (
	"log/slog"
	"net/http"

	"github.com/screenline/screenline/internal/resolver"
	"github.com/screenline/screenline/internal/session"
)

// Webhook payloads arrive form-encoded, matching the call-control API's own
// convention. A malformed payload is answered with 400 and mutates nothing;
// an accepted event is always answered 200, because the platform retries
// non-2xx deliveries and a retry storm helps nobody.

func (s *Server) handleLifecycleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form payload")
		return
	}
	callID := r.PostForm.Get("CallSid")
	status := r.PostForm.Get("CallStatus")
	if callID == "" || status == "" {
		writeError(w, http.StatusBadRequest, "CallSid and CallStatus are required")
		return
	}

	ev := resolver.LifecycleEvent{CallID: callID, Status: status}
	if err := s.resolver.HandleLifecycle(r.Context(), ev); err != nil {
		slog.Error("lifecycle event failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	s.countWebhook("lifecycle")
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleMachineDetectionWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form payload")
		return
	}
	callID := r.PostForm.Get("CallSid")
	answeredBy := r.PostForm.Get("AnsweredBy")
	if callID == "" || answeredBy == "" {
		writeError(w, http.StatusBadRequest, "CallSid and AnsweredBy are required")
		return
	}

	ev := resolver.MachineDetectionEvent{
		CallID: callID,
		Signal: session.ParseMachineSignal(answeredBy),
	}
	if err := s.resolver.HandleMachineDetection(r.Context(), ev); err != nil {
		slog.Error("machine detection event failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	s.countWebhook("amd")
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleTranscriptWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form payload")
		return
	}
	callID := r.PostForm.Get("CallSid")
	text := r.PostForm.Get("TranscriptionText")
	if callID == "" || text == "" {
		writeError(w, http.StatusBadRequest, "CallSid and TranscriptionText are required")
		return
	}

	ev := resolver.TranscriptEvent{
		CallID: callID,
		Text:   text,
		Final:  r.PostForm.Get("Final") == "true",
	}
	dec, err := s.resolver.HandleTranscript(r.Context(), ev)
	if err != nil {
		slog.Error("transcript event failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	s.countWebhook("transcript")
	resp := map[string]any{"status": "accepted", "resolved": dec.Resolved}
	if dec.Resolved {
		resp["rule"] = dec.Rule
		resp["action"] = dec.Tag
		resp["result"] = dec.Result.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
