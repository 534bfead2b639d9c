package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommand("ping", ResultOK, 10*time.Millisecond)
	m.ObserveCommand("ping", ResultOK, 20*time.Millisecond)
	m.ObserveCommand("clear", ResultDenied, time.Millisecond)
	m.ObserveClockIn("clocked_in")
	m.ObserveFeed(ResultError)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("ping", ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("clear", ResultDenied)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ClockIns.WithLabelValues("clocked_in")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FeedEvents.WithLabelValues(ResultError)))
	require.Equal(t, 1, testutil.CollectAndCount(m.CommandDuration.WithLabelValues("ping").(prometheus.Histogram)))

	n, err := testutil.GatherAndCount(reg, "dbot_commands_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCommand("ping", ResultOK, time.Second)
	m.ObserveClockIn("x")
	m.ObserveFeed(ResultOK)
}
