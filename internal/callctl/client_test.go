package callctl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/Accounts/AC123/Calls/CA1.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Error("missing or wrong basic auth")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "in-progress", "date_updated": "2025-06-01T12:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "AC123", "secret")
	cs, err := c.GetCall(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if cs.Status != "in-progress" {
		t.Errorf("status = %q, want in-progress", cs.Status)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !cs.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want %v", cs.UpdatedAt, want)
	}
	if cs.Terminal() {
		t.Error("in-progress should not be terminal")
	}
}

func TestCallStatusTerminal(t *testing.T) {
	for _, status := range []string{"completed", "busy", "failed", "no-answer", "canceled"} {
		if !(CallStatus{Status: status}).Terminal() {
			t.Errorf("status %q should be terminal", status)
		}
	}
	for _, status := range []string{"queued", "initiated", "ringing", "in-progress"} {
		if (CallStatus{Status: status}).Terminal() {
			t.Errorf("status %q should not be terminal", status)
		}
	}
}

func TestUpdateCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("StopTranscription") != "true" {
			t.Error("StopTranscription not set")
		}
		if r.PostForm.Get("Pause") != "3" {
			t.Errorf("Pause = %q, want 3", r.PostForm.Get("Pause"))
		}
		if r.PostForm.Get("Speak") != "goodbye" {
			t.Errorf("Speak = %q, want goodbye", r.PostForm.Get("Speak"))
		}
		if r.PostForm.Get("Status") != "completed" {
			t.Error("Status=completed not set for hangup")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "AC123", "secret")
	err := c.UpdateCall(context.Background(), "CA1", Update{
		StopTranscription: true,
		PauseSeconds:      3,
		Speak:             "goodbye",
		Hangup:            true,
	})
	if err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}
}

func TestUpdateCallConflict(t *testing.T) {
	for _, code := range []int{http.StatusConflict, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		c := NewClient(srv.URL, "AC123", "secret")
		err := c.UpdateCall(context.Background(), "CA1", Update{Hangup: true})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("status %d: err = %v, want ErrConflict", code, err)
		}
		srv.Close()
	}
}

func TestUpdateCallServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "AC123", "secret")
	err := c.UpdateCall(context.Background(), "CA1", Update{Hangup: true})
	if err == nil || errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want genuine error", err)
	}
}
