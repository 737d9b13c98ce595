package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWith(reg, "liverelay", nil), reg
}

func TestCollector_ConnectionLifecycle(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetGauge() != nil {
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
			if m.GetCounter() != nil {
				values[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, float64(1), values["liverelay_connections_active"])
	assert.Equal(t, float64(2), values["liverelay_connections_total"])
}

func TestCollector_FrameCounters(t *testing.T) {
	c, _ := newTestCollector(t)

	c.FrameReceived("text_message")
	c.FrameReceived("text_message")
	c.FrameSent("text_response")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.framesReceived.WithLabelValues("text_message")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.framesSent.WithLabelValues("text_response")))
}

func TestCollector_UpstreamOutcomes(t *testing.T) {
	c, _ := newTestCollector(t)

	c.UpstreamStarted()
	c.UpstreamFailed()
	c.UpstreamClosed()

	assert.Equal(t, float64(1), testutil.ToFloat64(c.upstreamTotal.WithLabelValues("started")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.upstreamTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.upstreamActive))
}

func TestCollector_ResponseAndErrorCounters(t *testing.T) {
	c, _ := newTestCollector(t)

	c.UpstreamResponse("text")
	c.UpstreamResponse("audio")
	c.UpstreamResponse("audio")
	c.ErrorReported("MALFORMED_FRAME")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.upstreamResponses.WithLabelValues("text")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.upstreamResponses.WithLabelValues("audio")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.errorsTotal.WithLabelValues("MALFORMED_FRAME")))
}

// A nil collector must be a no-op on every record method.
func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	c.ConnectionOpened()
	c.ConnectionClosed()
	c.FrameReceived("x")
	c.FrameSent("x")
	c.UpstreamStarted()
	c.UpstreamFailed()
	c.UpstreamClosed()
	c.UpstreamResponse("text")
	c.ErrorReported("INTERNAL_ERROR")
}
