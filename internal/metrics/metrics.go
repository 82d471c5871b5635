/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/

// Package metrics records repair runs as Prometheus metrics. A CLI process is
// short-lived, so the collected values are exported to a node_exporter
// textfile rather than served.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fulmenhq/draftfix/pkg/diagnose"
	"github.com/fulmenhq/draftfix/pkg/repair"
)

// Namespace prefixes every metric name.
const Namespace = "draftfix"

// Noop discards everything.
type Noop struct{}

func (Noop) ActionFinished(repair.ActionKind, repair.Outcome, time.Duration) {}
func (Noop) FindingObserved(diagnose.Kind)                                  {}
func (Noop) RunFinished(string, time.Duration)                              {}

// Prom collects counters and histograms on its own registry.
type Prom struct {
	reg      *prometheus.Registry
	actions  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	findings *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewProm creates and registers the collectors.
func NewProm() *Prom {
	p := &Prom{
		reg: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "actions_total",
			Help:      "Repair actions by kind and outcome",
		}, []string{"action", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "action_duration_seconds",
			Help:      "Repair action latency by kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "findings_total",
			Help:      "Diagnosed findings by kind",
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Bundle runs by final status",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one bundle run",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	p.reg.MustRegister(p.actions, p.latency, p.findings, p.runs, p.duration)
	return p
}

// Registry exposes the underlying registry.
func (p *Prom) Registry() *prometheus.Registry { return p.reg }

func (p *Prom) ActionFinished(kind repair.ActionKind, outcome repair.Outcome, elapsed time.Duration) {
	p.actions.WithLabelValues(string(kind), string(outcome)).Inc()
	p.latency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (p *Prom) FindingObserved(kind diagnose.Kind) {
	p.findings.WithLabelValues(string(kind)).Inc()
}

func (p *Prom) RunFinished(status string, elapsed time.Duration) {
	p.runs.WithLabelValues(status).Inc()
	p.duration.Observe(elapsed.Seconds())
}

// WriteTextfile writes the current values in the text exposition format,
// creating the parent directory.
func (p *Prom) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
