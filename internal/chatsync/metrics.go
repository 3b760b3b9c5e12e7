package chatsync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Poll task labels.
const (
	taskList   = "list"
	taskThread = "thread"
	taskTyping = "typing"
)

// Metrics counts poll and send outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	polls        *prometheus.CounterVec
	pollFailures *prometheus.CounterVec
	skippedTicks *prometheus.CounterVec
	sends        *prometheus.CounterVec
}

// NewMetrics creates the session counters and registers them on reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesync_polls_total",
			Help: "Completed backend polls by task.",
		}, []string{"task"}),
		pollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesync_poll_failures_total",
			Help: "Failed backend polls by task.",
		}, []string{"task"}),
		skippedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesync_skipped_ticks_total",
			Help: "Poll ticks skipped without a network call.",
		}, []string{"task", "reason"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesync_sends_total",
			Help: "Message send attempts by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.polls, m.pollFailures, m.skippedTicks, m.sends)
	}
	return m
}

func (m *Metrics) pollDone(task string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.pollFailures.WithLabelValues(task).Inc()
		return
	}
	m.polls.WithLabelValues(task).Inc()
}

func (m *Metrics) skipped(task, reason string) {
	if m == nil {
		return
	}
	m.skippedTicks.WithLabelValues(task, reason).Inc()
}

func (m *Metrics) sent(outcome string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
}
