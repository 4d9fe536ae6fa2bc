// Screenline monitors outbound calls through a telephony platform's webhooks
// and resolves each call into exactly one outcome: identify to a screening
// service, pass a live human through, or leave a voicemail message.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/screenline/screenline/internal/api"
	"github.com/screenline/screenline/internal/callctl"
	"github.com/screenline/screenline/internal/classify"
	"github.com/screenline/screenline/internal/config"
	"github.com/screenline/screenline/internal/database"
	"github.com/screenline/screenline/internal/dispatch"
	"github.com/screenline/screenline/internal/metrics"
	"github.com/screenline/screenline/internal/resolver"
	"github.com/screenline/screenline/internal/session"
	"github.com/screenline/screenline/internal/session/pgstore"
)

const (
	// sessionPruneInterval / sessionMaxAge bound how long a session whose
	// terminal lifecycle event was lost can linger.
	sessionPruneInterval = time.Minute
	sessionMaxAge        = 15 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting screenline",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
	)

	// Pattern store: SQLite with embedded migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Classifier: newest published pattern set, or the built-in default,
	// with the configured preamble override applied on top.
	patterns := database.NewPatternSetRepository(db)
	ps, err := patterns.Latest(appCtx)
	if err != nil {
		if !errors.Is(err, database.ErrNoPatternSet) {
			slog.Error("failed to load pattern set", "error", err)
			os.Exit(1)
		}
		ps = classify.DefaultPatternSet()
	}
	ps = ps.WithPreamble(cfg.PreamblePhraseList())
	classifier := classify.New(ps)
	slog.Info("classifier ready", "pattern_version", ps.Version)

	// Session store: shared PostgreSQL store when a DSN is configured, else
	// the in-process map store.
	var store session.Store
	if cfg.SessionStoreDSN != "" {
		pg, err := pgstore.New(cfg.SessionStoreDSN, logger)
		if err != nil {
			slog.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		slog.Info("using postgres session store")
	} else {
		store = session.NewMemoryStore(logger, nil)
	}
	session.StartPruneTicker(appCtx, store, sessionPruneInterval, sessionMaxAge, logger)

	// Call control, dispatcher, resolver.
	callAPI := callctl.NewClient(cfg.CallControlURL, cfg.CallControlAccount, cfg.CallControlToken)
	dispatcher := dispatch.New(callAPI, logger, cfg.IdentifyMessage, cfg.VoicemailMessage, dispatch.Options{})
	res := resolver.New(store, classifier, dispatcher, logger, nil)

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	// Metrics registry with the standard process/go collectors plus ours.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	handler := api.NewServer(cfg, store, res, classifier, patterns, metricsHandler, jwtSecret)
	registry.MustRegister(metrics.NewCollector(store, res, handler, time.Now()))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	appCancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("screenline stopped")
}
