// Package metrics exposes Screenline operational metrics as a Prometheus
// collector. All values are gathered at scrape time from providers; nothing
// in the hot path touches a metric directly.
package metrics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCounter exposes the number of live call sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// OutcomeProvider exposes resolved-scenario and action-result counts.
type OutcomeProvider interface {
	OutcomeCounts() map[string]uint64
	ActionResultCounts() map[string]uint64
}

// WebhookCounter exposes accepted webhook event counts by kind.
type WebhookCounter interface {
	WebhookCounts() map[string]uint64
}

// Collector is a prometheus.Collector that gathers Screenline metrics at
// scrape time.
type Collector struct {
	sessions  SessionCounter
	outcomes  OutcomeProvider
	webhooks  WebhookCounter
	startTime time.Time

	activeSessionsDesc *prometheus.Desc
	scenariosDesc      *prometheus.Desc
	actionsDesc        *prometheus.Desc
	webhooksDesc       *prometheus.Desc
	uptimeDesc         *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(sessions SessionCounter, outcomes OutcomeProvider, webhooks WebhookCounter, startTime time.Time) *Collector {
	return &Collector{
		sessions:  sessions,
		outcomes:  outcomes,
		webhooks:  webhooks,
		startTime: startTime,

		activeSessionsDesc: prometheus.NewDesc(
			"screenline_active_sessions",
			"Number of live call sessions being monitored",
			nil, nil,
		),
		scenariosDesc: prometheus.NewDesc(
			"screenline_scenarios_resolved_total",
			"Total resolved call scenarios by terminal action tag",
			[]string{"outcome"}, nil,
		),
		actionsDesc: prometheus.NewDesc(
			"screenline_actions_total",
			"Total dispatched call actions by tag and result",
			[]string{"tag", "result"}, nil,
		),
		webhooksDesc: prometheus.NewDesc(
			"screenline_webhook_events_total",
			"Total accepted webhook events by kind",
			[]string{"kind"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"screenline_uptime_seconds",
			"Seconds since the Screenline process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessionsDesc
	ch <- c.scenariosDesc
	ch <- c.actionsDesc
	ch <- c.webhooksDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.sessions != nil {
		count, err := c.sessions.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count sessions", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.activeSessionsDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	if c.outcomes != nil {
		for outcome, n := range c.outcomes.OutcomeCounts() {
			ch <- prometheus.MustNewConstMetric(
				c.scenariosDesc, prometheus.CounterValue,
				float64(n), outcome,
			)
		}
		for key, n := range c.outcomes.ActionResultCounts() {
			tag, result, ok := strings.Cut(key, "/")
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(
				c.actionsDesc, prometheus.CounterValue,
				float64(n), tag, result,
			)
		}
	}

	if c.webhooks != nil {
		for kind, n := range c.webhooks.WebhookCounts() {
			ch <- prometheus.MustNewConstMetric(
				c.webhooksDesc, prometheus.CounterValue,
				float64(n), kind,
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
