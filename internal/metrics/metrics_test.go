package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.MessageRelayed("room")
	m.MessageRelayed("room")
	m.MessageRelayed("direct")
	m.PendingDropped()

	assert.InDelta(t, 1, testutil.ToFloat64(m.clients), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.messages.WithLabelValues("room")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.messages.WithLabelValues("direct")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.pendingDropped), 0)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ClientConnected()
		m.ChannelOpened("room")
		m.MessageRelayed("room")
		m.EventDropped()
		m.RateLimited()
	})
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.ChannelOpened("room")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `sugarchat_open_channels{kind="room"} 1`))
}
