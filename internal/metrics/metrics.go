// Package metrics exposes Prometheus counters for message ingestion, fanout
// and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the service, realtime and middleware layers report to.
type Recorder interface {
	RecordMessageSent()
	RecordDelivery(channel string)
	RecordDrop()
	ConnectionOpened()
	ConnectionClosed()
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

type Collector struct {
	messagesSent    prometheus.Counter
	deliveries      *prometheus.CounterVec
	drops           prometheus.Counter
	connections     prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages committed to the store.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_fanout_deliveries_total",
			Help: "Frames handed to subscribers, by channel kind.",
		}, []string{"channel"}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_fanout_drops_total",
			Help: "Subscribers disconnected because their outbound buffer was full.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Open websocket sessions.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.messagesSent,
		c.deliveries,
		c.drops,
		c.connections,
		c.httpRequests,
		c.requestDuration,
	)

	return c
}

func (c *Collector) RecordMessageSent() {
	c.messagesSent.Inc()
}

func (c *Collector) RecordDelivery(channel string) {
	c.deliveries.WithLabelValues(channel).Inc()
}

func (c *Collector) RecordDrop() {
	c.drops.Inc()
}

func (c *Collector) ConnectionOpened() {
	c.connections.Inc()
}

func (c *Collector) ConnectionClosed() {
	c.connections.Dec()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type nop struct{}

// Nop discards everything.
func Nop() Recorder { return nop{} }

func (nop) RecordMessageSent() {}
func (nop) RecordDelivery(string) {}
func (nop) RecordDrop() {}
func (nop) ConnectionOpened() {}
func (nop) ConnectionClosed() {}
func (nop) RecordHTTPRequest(string, string, int, time.Duration) {}
