package config

import (
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	// Clear any env vars that might interfere.
	for _, env := range []string{
		"SCREENLINE_DATA_DIR", "SCREENLINE_HTTP_PORT", "SCREENLINE_LOG_LEVEL",
		"SCREENLINE_LOG_FORMAT", "SCREENLINE_IDENTIFY_MESSAGE",
		"SCREENLINE_VOICEMAIL_MESSAGE", "SCREENLINE_PREAMBLE_PHRASES",
		"SCREENLINE_SESSION_STORE_DSN",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"screenline"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.IdentifyMessage != defaultIdentifyMessage {
		t.Errorf("IdentifyMessage = %q, want default", cfg.IdentifyMessage)
	}
	if cfg.VoicemailMessage != defaultVoicemailMessage {
		t.Errorf("VoicemailMessage = %q, want default", cfg.VoicemailMessage)
	}
	if cfg.SessionStoreDSN != "" {
		t.Errorf("SessionStoreDSN = %q, want empty", cfg.SessionStoreDSN)
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"screenline"}
	t.Setenv("SCREENLINE_HTTP_PORT", "9090")
	t.Setenv("SCREENLINE_DATA_DIR", "/tmp/screenline-test")
	t.Setenv("SCREENLINE_LOG_LEVEL", "debug")
	t.Setenv("SCREENLINE_VOICEMAIL_MESSAGE", "custom voicemail")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/screenline-test" {
		t.Errorf("DataDir = %q, want /tmp/screenline-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.VoicemailMessage != "custom voicemail" {
		t.Errorf("VoicemailMessage = %q, want custom voicemail", cfg.VoicemailMessage)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	os.Args = []string{"screenline", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("SCREENLINE_HTTP_PORT", "9090")
	t.Setenv("SCREENLINE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"screenline", "--http-port", "99999"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid http-port, got nil")
	}
}

func TestValidateMismatchedCredentials(t *testing.T) {
	os.Args = []string{"screenline", "--call-control-account", "AC123"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error when only call-control-account is set, got nil")
	}
}

func TestPreamblePhraseList(t *testing.T) {
	cfg := &Config{PreamblePhrases: "Record your name, see if this person , ,IS AVAILABLE"}
	got := cfg.PreamblePhraseList()
	want := []string{"record your name", "see if this person", "is available"}

	if len(got) != len(want) {
		t.Fatalf("got %d phrases, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phrase[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPreamblePhraseListEmpty(t *testing.T) {
	cfg := &Config{}
	if got := cfg.PreamblePhraseList(); got != nil {
		t.Errorf("expected nil for empty override, got %v", got)
	}
}
