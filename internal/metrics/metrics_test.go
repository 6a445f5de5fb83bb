package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMessageSent()
	c.RecordMessageSent()
	c.RecordDelivery("room")
	c.RecordDelivery("user")
	c.RecordDelivery("user")
	c.RecordDrop()
	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.messagesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries.WithLabelValues("room")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.deliveries.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.drops))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connections))
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("POST", "/api/v1/messages", 201, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/api/v1/messages", "201")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.requestDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordMessageSent()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chat_messages_sent_total 1")
}
