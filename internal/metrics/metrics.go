package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxci_runs_total",
			Help: "Finished runs by type and final state",
		},
		[]string{"type", "state"}, // upload|preview , done|done_with_warning|aborted
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxci_notifications_total",
			Help: "Webhook notifications by type and result",
		},
		[]string{"type", "result"}, // sent|failed|skipped
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wxci_run_duration_seconds",
			Help:    "Wall time of a run, SDK call included",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		RunsTotal,
		NotificationsTotal,
		RunDuration,
	)
}

// Push sends everything gathered by g to a Prometheus Pushgateway. A CLI run
// is too short-lived to be scraped.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer, grouping map[string]string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "wx-ci"
	}

	p := push.New(url, job).Gatherer(g)
	for k, v := range grouping {
		if v != "" {
			p = p.Grouping(k, v)
		}
	}
	if err := p.AddContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
