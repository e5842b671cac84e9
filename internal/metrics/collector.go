// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/autobrr/arrwarden/internal/services/monitor"
)

var monitorStates = []monitor.State{
	monitor.StateIdle,
	monitor.StatePolling,
	monitor.StateReconciling,
	monitor.StateDeciding,
	monitor.StatePersisting,
	monitor.StateSleeping,
	monitor.StateStopped,
}

// Collector records monitor activity on a private registry.
type Collector struct {
	registry *prometheus.Registry

	IterationsTotal   *prometheus.CounterVec
	IterationDuration *prometheus.HistogramVec
	TrackedItems      *prometheus.GaugeVec
	DecisionsTotal    *prometheus.CounterVec
	ActionsTotal      *prometheus.CounterVec
	MonitorState      *prometheus.GaugeVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		IterationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arrwarden_iterations_total",
			Help: "Completed monitor iterations by queue fetch result",
		}, []string{"monitor", "queue"}),
		IterationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arrwarden_iteration_duration_seconds",
			Help:    "Time spent in one monitor iteration, including remediation requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"monitor"}),
		TrackedItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arrwarden_tracked_items",
			Help: "Queue items currently tracked in the run record",
		}, []string{"monitor"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arrwarden_decisions_total",
			Help: "Per-item evaluations by outcome",
		}, []string{"monitor", "outcome"}),
		ActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arrwarden_actions_total",
			Help: "Remediation requests by kind, reason and result",
		}, []string{"monitor", "kind", "reason", "result"}),
		MonitorState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arrwarden_monitor_state",
			Help: "Current run loop state (1 for the active state)",
		}, []string{"monitor", "state"}),
	}
}

// Registry exposes the registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveIteration(name string, elapsed time.Duration, queueOK bool, tracked int) {
	queue := "ok"
	if !queueOK {
		queue = "failed"
	}
	c.IterationsTotal.WithLabelValues(name, queue).Inc()
	c.IterationDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	c.TrackedItems.WithLabelValues(name).Set(float64(tracked))
}

func (c *Collector) ObserveDecision(name string, outcome monitor.Outcome) {
	c.DecisionsTotal.WithLabelValues(name, string(outcome)).Inc()
}

func (c *Collector) ObserveAction(name string, kind monitor.ActionKind, reason monitor.Reason, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.ActionsTotal.WithLabelValues(name, string(kind), string(reason), result).Inc()
}

func (c *Collector) ObserveState(name string, state monitor.State) {
	for _, s := range monitorStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.MonitorState.WithLabelValues(name, string(s)).Set(v)
	}
}
