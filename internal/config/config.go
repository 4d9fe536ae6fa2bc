package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the screenline server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir            string
	HTTPPort           int
	LogLevel           string
	LogFormat          string // log output format: "text" or "json"
	IdentifyMessage    string // spoken to the screening service when a preamble is detected
	VoicemailMessage   string // spoken when a voicemail greeting is detected
	PreamblePhrases    string // comma-separated override for the preamble phrase list
	CallControlURL     string // base URL of the call-control REST API
	CallControlAccount string // account SID for call-control auth
	CallControlToken   string // auth token for call-control auth
	SessionStoreDSN    string // PostgreSQL DSN for the shared session store (empty = in-memory)
	JWTSecret          string // hex-encoded 32-byte secret for admin API JWT signing
}

// defaults
const (
	defaultDataDir   = "./data"
	defaultHTTPPort  = 8080
	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	defaultIdentifyMessage = "Hello, this is an automated assistant calling on behalf of our office. " +
		"Please pick up if you are available."
	defaultVoicemailMessage = "Hello, we tried to reach you but could not get through. " +
		"Please call us back at your earliest convenience. Thank you."
)

// envPrefix is the prefix for all screenline environment variables.
const envPrefix = "SCREENLINE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("screenline", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the pattern database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.IdentifyMessage, "identify-message", defaultIdentifyMessage, "message spoken to the screening service")
	fs.StringVar(&cfg.VoicemailMessage, "voicemail-message", defaultVoicemailMessage, "message left on voicemail")
	fs.StringVar(&cfg.PreamblePhrases, "preamble-phrases", "", "comma-separated override for preamble detection phrases")
	fs.StringVar(&cfg.CallControlURL, "call-control-url", "", "base URL of the call-control REST API")
	fs.StringVar(&cfg.CallControlAccount, "call-control-account", "", "account SID for call-control authentication")
	fs.StringVar(&cfg.CallControlToken, "call-control-token", "", "auth token for call-control authentication")
	fs.StringVar(&cfg.SessionStoreDSN, "session-store-dsn", "", "PostgreSQL DSN for the shared session store (in-memory if empty)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for admin API JWT signing (auto-generated if empty)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":             envPrefix + "DATA_DIR",
		"http-port":            envPrefix + "HTTP_PORT",
		"log-level":            envPrefix + "LOG_LEVEL",
		"log-format":           envPrefix + "LOG_FORMAT",
		"identify-message":     envPrefix + "IDENTIFY_MESSAGE",
		"voicemail-message":    envPrefix + "VOICEMAIL_MESSAGE",
		"preamble-phrases":     envPrefix + "PREAMBLE_PHRASES",
		"call-control-url":     envPrefix + "CALL_CONTROL_URL",
		"call-control-account": envPrefix + "CALL_CONTROL_ACCOUNT",
		"call-control-token":   envPrefix + "CALL_CONTROL_TOKEN",
		"session-store-dsn":    envPrefix + "SESSION_STORE_DSN",
		"jwt-secret":           envPrefix + "JWT_SECRET",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "identify-message":
			cfg.IdentifyMessage = val
		case "voicemail-message":
			cfg.VoicemailMessage = val
		case "preamble-phrases":
			cfg.PreamblePhrases = val
		case "call-control-url":
			cfg.CallControlURL = val
		case "call-control-account":
			cfg.CallControlAccount = val
		case "call-control-token":
			cfg.CallControlToken = val
		case "session-store-dsn":
			cfg.SessionStoreDSN = val
		case "jwt-secret":
			cfg.JWTSecret = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.IdentifyMessage == "" {
		return fmt.Errorf("identify-message must not be empty")
	}
	if c.VoicemailMessage == "" {
		return fmt.Errorf("voicemail-message must not be empty")
	}

	// Account and token must both be set or both be empty.
	if (c.CallControlAccount == "") != (c.CallControlToken == "") {
		return fmt.Errorf("call-control-account and call-control-token must both be provided or both be omitted")
	}

	return nil
}

// PreamblePhraseList returns the parsed preamble phrase override, or nil if
// none is configured. Empty entries are dropped and phrases are lower-cased.
func (c *Config) PreamblePhraseList() []string {
	if c.PreamblePhrases == "" {
		return nil
	}
	parts := strings.Split(c.PreamblePhrases, ",")
	phrases := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
