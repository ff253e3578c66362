// Package telemetry exposes Prometheus metrics for reducer and repo
// activity.
//
// Metrics are registered on a caller-supplied registry, never the global
// one, so tests and embedded engines stay isolated. A nil *Metrics is valid
// and records nothing.
package telemetry

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "strata"

// Action results.
const (
	ResultApplied  = "applied"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
)

// Metrics holds the engine and repo collectors.
type Metrics struct {
	// ActionsTotal counts reduced actions.
	// Labels: type (action type), result (applied, noop, rejected)
	ActionsTotal *prometheus.CounterVec

	// RecomputesTotal counts derived node recomputations.
	// Labels: kind (view, formula)
	RecomputesTotal *prometheus.CounterVec

	// RepoEvictionsTotal counts history entries evicted from a branch.
	RepoEvictionsTotal prometheus.Counter

	// RepoBranches tracks the number of branches in the last reduced repo.
	RepoBranches prometheus.Gauge

	// RepoHistoryLength tracks the current branch length in the last
	// reduced repo.
	RepoHistoryLength prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "actions_total",
			Help:      "Total actions reduced by type and result",
		}, []string{"type", "result"}),
		RecomputesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "recomputes_total",
			Help:      "Total derived node recomputations by entry kind",
		}, []string{"kind"}),
		RepoEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repo",
			Name:      "evictions_total",
			Help:      "Total history entries evicted past the history bound",
		}),
		RepoBranches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "repo",
			Name:      "branches",
			Help:      "Number of branches in the most recently reduced repo",
		}),
		RepoHistoryLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "repo",
			Name:      "history_length",
			Help:      "Length of the current branch in the most recently reduced repo",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActionsTotal,
			m.RecomputesTotal,
			m.RepoEvictionsTotal,
			m.RepoBranches,
			m.RepoHistoryLength,
		)
	}
	return m
}

// RecordAction records one reduced action.
func (m *Metrics) RecordAction(actionType, result string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(actionType, result).Inc()
}

// RecordRecompute records one derived node recomputation.
func (m *Metrics) RecordRecompute(kind string) {
	if m == nil {
		return
	}
	m.RecomputesTotal.WithLabelValues(kind).Inc()
}

// RecordEvictions adds n evicted history entries.
func (m *Metrics) RecordEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RepoEvictionsTotal.Add(float64(n))
}

// RecordRepo sets the repo shape gauges.
func (m *Metrics) RecordRepo(branches, historyLength int) {
	if m == nil {
		return
	}
	m.RepoBranches.Set(float64(branches))
	m.RepoHistoryLength.Set(float64(historyLength))
}

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
