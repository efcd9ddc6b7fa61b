package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"

	"github.com/mbeoliero/nexosync/internal/entity"
)

const namespace = "nexosync"

var connStatuses = []entity.ConnStatus{
	entity.ConnStatusDisconnected,
	entity.ConnStatusConnecting,
	entity.ConnStatusConnected,
	entity.ConnStatusReconnecting,
	entity.ConnStatusResyncingRooms,
	entity.ConnStatusResyncingHistory,
}

// Metrics holds the engine's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connStatus     *prometheus.GaugeVec
	reconnects     prometheus.Counter
	events         *prometheus.CounterVec
	ingests        *prometheus.CounterVec
	sends          *prometheus.CounterVec
	historyFetches *prometheus.CounterVec
	resyncDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec

	mu         sync.Mutex
	lastStatus entity.ConnStatus
}

// New creates the collectors and registers them with the Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current connection status, 0 otherwise",
		}, []string{"status"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Number of times the live connection was lost and redialed",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Live events received, by kind",
		}, []string{"kind"}),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_ingests_total",
			Help:      "Live messages merged into the store, by result",
		}, []string{"result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_sends_total",
			Help:      "Message send round trips, by outcome",
		}, []string{"outcome"}),
		historyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_fetches_total",
			Help:      "History page fetches, by outcome",
		}, []string{"outcome"}),
		resyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resync_duration_seconds",
			Help:      "Duration of the post-reconnect resync",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Local HTTP requests",
		}, []string{"method", "path", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Local HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		lastStatus: entity.ConnStatusDisconnected,
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connStatus, m.reconnects, m.events, m.ingests, m.sends,
		m.historyFetches, m.resyncDuration, m.httpRequests, m.httpDuration,
	)
	m.setStatus(entity.ConnStatusDisconnected)
	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Expose gathers the registry and encodes it in the exposition format negotiated
// from accept. The whole body is buffered so it can be handed to any server.
func (m *Metrics) Expose(accept string) ([]byte, string, error) {
	format := expfmt.Negotiate(http.Header{"Accept": []string{accept}})
	if m == nil {
		return nil, string(format), nil
	}

	families, err := m.registry.Gather()
	if err != nil {
		return nil, "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, "", fmt.Errorf("encode metric %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return nil, "", fmt.Errorf("close encoder: %w", err)
		}
	}
	return buf.Bytes(), string(format), nil
}

// ObserveConnection records a connection state change; entering reconnecting counts a reconnect
func (m *Metrics) ObserveConnection(c entity.Connection) {
	if m == nil {
		return
	}
	m.mu.Lock()
	prev := m.lastStatus
	m.lastStatus = c.Status
	m.mu.Unlock()

	if c.Status == entity.ConnStatusReconnecting && prev != entity.ConnStatusReconnecting {
		m.reconnects.Inc()
	}
	m.setStatus(c.Status)
}

func (m *Metrics) setStatus(status entity.ConnStatus) {
	for _, s := range connStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.connStatus.WithLabelValues(string(s)).Set(v)
	}
}

// ObserveEvent counts a live event
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// ObserveIngest counts a merged live message
func (m *Metrics) ObserveIngest(result string) {
	if m == nil {
		return
	}
	m.ingests.WithLabelValues(result).Inc()
}

// ObserveSend counts a send round trip
func (m *Metrics) ObserveSend(err error) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome(err)).Inc()
}

// ObserveHistory counts a history fetch
func (m *Metrics) ObserveHistory(err error) {
	if m == nil {
		return
	}
	m.historyFetches.WithLabelValues(outcome(err)).Inc()
}

// ObserveResync records how long a resync took
func (m *Metrics) ObserveResync(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.resyncDuration.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

// ObserveRequest records a local HTTP request
func (m *Metrics) ObserveRequest(method, path string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, statusText(code)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
