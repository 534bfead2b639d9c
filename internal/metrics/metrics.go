package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultDenied   = "denied"
	ResultError    = "error"
	ResultLimited  = "rate_limited"
	ResultRejected = "rejected"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	ClockIns        *prometheus.CounterVec
	FeedEvents      *prometheus.CounterVec
}

// New registers the collectors with reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbot_commands_total",
			Help: "Bot commands handled, by command and result.",
		}, []string{"command", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbot_command_duration_seconds",
			Help:    "Time spent handling a bot command.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		ClockIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbot_clockins_total",
			Help: "Clock-in attempts by outcome.",
		}, []string{"status"}),
		FeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbot_feed_events_total",
			Help: "Feed events consumed, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.CommandDuration, m.ClockIns, m.FeedEvents)
	}
	return m
}

// ObserveCommand records one handled command.
func (m *Metrics) ObserveCommand(command, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, result).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(took.Seconds())
}

// ObserveClockIn counts a clock-in outcome.
func (m *Metrics) ObserveClockIn(status string) {
	if m == nil {
		return
	}
	m.ClockIns.WithLabelValues(status).Inc()
}

// ObserveFeed counts a consumed feed event.
func (m *Metrics) ObserveFeed(result string) {
	if m == nil {
		return
	}
	m.FeedEvents.WithLabelValues(result).Inc()
}
