// Package callctl talks to the telephony platform's call-control REST API.
// It is the only place that knows how live calls are read and mutated; the
// dispatcher works against the API interface so it can be tested without a
// platform.
package callctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrConflict is returned when the platform rejects a mutation because the
// call was modified concurrently by another actor. Callers treat this as a
// benign outcome, not a failure.
var ErrConflict = errors.New("call modified concurrently")

// CallStatus is the live state of a call as reported by the platform.
type CallStatus struct {
	// Status is the platform call status: queued, initiated, ringing,
	// in-progress, completed, busy, failed, no-answer, canceled.
	Status string

	// UpdatedAt is when the call resource was last mutated.
	UpdatedAt time.Time
}

// Terminal reports whether the status means the call can no longer be
// mutated.
func (cs CallStatus) Terminal() bool {
	switch cs.Status {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	default:
		return false
	}
}

// Update describes a mutation to apply to a live call. Fields are applied in
// declaration order; zero values are omitted. How these are rendered into
// the platform's instruction language is the client's concern alone.
type Update struct {
	// StopTranscription tears down live transcription streams before any
	// speech, so the system does not transcribe its own output.
	StopTranscription bool

	// PauseSeconds waits before speaking, sized to outlast a greeting/beep
	// tail when leaving voicemail.
	PauseSeconds int

	// Speak is the message to read to the call, if any.
	Speak string

	// ResumeTranscription re-arms live transcription after speaking.
	ResumeTranscription bool

	// Hangup ends the call after all other steps.
	Hangup bool
}

// API is the call-control surface the dispatcher depends on.
type API interface {
	// GetCall fetches the live status of a call.
	GetCall(ctx context.Context, callID string) (CallStatus, error)

	// UpdateCall applies the update to a live call. Returns ErrConflict when
	// the platform reports the call was modified concurrently.
	UpdateCall(ctx context.Context, callID string, upd Update) error
}

// Client is the HTTP implementation of API. Authentication is HTTP basic
// auth with the account SID and token, Twilio-style.
type Client struct {
	httpClient *http.Client
	baseURL    string
	account    string
	token      string
}

// NewClient creates a call-control client. baseURL is the platform API root
// (e.g. "https://api.example.com/2010-04-01").
func NewClient(baseURL, account, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		account:    account,
		token:      token,
	}
}

// callResource is the platform's JSON representation of a call.
type callResource struct {
	Status      string `json:"status"`
	DateUpdated string `json:"date_updated"`
}

// GetCall implements API.
func (c *Client) GetCall(ctx context.Context, callID string) (CallStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.callURL(callID), nil)
	if err != nil {
		return CallStatus{}, fmt.Errorf("callctl: creating request: %w", err)
	}
	req.SetBasicAuth(c.account, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CallStatus{}, fmt.Errorf("callctl: fetching call %s: %w", callID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return CallStatus{}, fmt.Errorf("callctl: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return CallStatus{}, fmt.Errorf("callctl: fetching call %s: status %d", callID, resp.StatusCode)
	}

	var res callResource
	if err := json.Unmarshal(body, &res); err != nil {
		return CallStatus{}, fmt.Errorf("callctl: decoding call resource: %w", err)
	}

	cs := CallStatus{Status: res.Status}
	if res.DateUpdated != "" {
		// The platform uses RFC 1123 timestamps on call resources.
		t, err := time.Parse(time.RFC1123Z, res.DateUpdated)
		if err != nil {
			t, err = time.Parse(time.RFC3339, res.DateUpdated)
		}
		if err == nil {
			cs.UpdatedAt = t
		}
	}
	return cs, nil
}

// UpdateCall implements API.
func (c *Client) UpdateCall(ctx context.Context, callID string, upd Update) error {
	form := url.Values{}
	if upd.StopTranscription {
		form.Set("StopTranscription", "true")
	}
	if upd.PauseSeconds > 0 {
		form.Set("Pause", strconv.Itoa(upd.PauseSeconds))
	}
	if upd.Speak != "" {
		form.Set("Speak", upd.Speak)
	}
	if upd.ResumeTranscription {
		form.Set("ResumeTranscription", "true")
	}
	if upd.Hangup {
		form.Set("Status", "completed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.callURL(callID),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("callctl: creating request: %w", err)
	}
	req.SetBasicAuth(c.account, c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callctl: updating call %s: %w", callID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode == http.StatusNotFound:
		// The call ended between our status check and the mutation.
		return ErrConflict
	default:
		return fmt.Errorf("callctl: updating call %s: status %d", callID, resp.StatusCode)
	}
}

func (c *Client) callURL(callID string) string {
	return fmt.Sprintf("%s/Accounts/%s/Calls/%s.json",
		c.baseURL, url.PathEscape(c.account), url.PathEscape(callID))
}

// Ensure Client satisfies API.
var _ API = (*Client)(nil)
