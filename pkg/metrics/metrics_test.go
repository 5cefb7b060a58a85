package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	assert.NotPanics(t, func() {
		m.Sent(TransportUnicast, 10)
		m.SendFailed(TransportMulticast)
		m.Heartbeat(1, nil)
		m.PublishDuration(time.Millisecond)
		m.ZeroCopyWait(time.Millisecond)
		m.SetRoutes(1)
		m.SetClients(2)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Sent(TransportUnicast, 100)
	m.Sent(TransportUnicast, 50)
	m.Sent(TransportMulticast, 10)
	m.SendFailed(TransportMulticast)
	m.Heartbeat(2, nil)
	m.Heartbeat(0, errors.New("boom"))
	m.SetRoutes(3)
	m.SetClients(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.published.WithLabelValues(TransportUnicast)))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.bytesSent.WithLabelValues(TransportUnicast)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues(TransportMulticast)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishErrors.WithLabelValues(TransportMulticast)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.heartbeats))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.heartbeatErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.routes))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.clients))
}

func TestHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.PublishDuration(2 * time.Millisecond)
	m.ZeroCopyWait(5 * time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(m.publishDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.zeroCopyWait))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
