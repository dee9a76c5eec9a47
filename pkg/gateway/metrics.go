package gateway

import (
	"net/http"
	"time"

	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the gateway's instrumentation. Each Server owns its own
// prometheus registry so several gateways can live in one process.
type metrics struct {
	registry *prometheus.Registry

	messages   *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	trades     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newMetrics(s *Server) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketgate_messages_total",
				Help: "Total number of inbound messages by port and method",
			},
			[]string{"port", "method"},
		),
		broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketgate_broadcast_failures_total",
				Help: "Total number of failed broadcast sends by pool",
			},
			[]string{"pool"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketgate_trade_commands_total",
				Help: "Total number of dispatched trade commands by action and outcome",
			},
			[]string{"action", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "marketgate_request_duration_seconds",
				Help: "Duration of tool-port request handling",
			},
			[]string{"method"},
		),
	}
	m.registry.MustRegister(m.messages, m.broadcasts, m.trades, m.duration)
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "marketgate_connected_peers",
			Help:        "Number of connected peers",
			ConstLabels: prometheus.Labels{"pool": "tool"},
		},
		func() float64 { return float64(s.toolPeers.Count()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "marketgate_connected_peers",
			Help:        "Number of connected peers",
			ConstLabels: prometheus.Labels{"pool": "execution"},
		},
		func() float64 { return float64(s.execPeers.Count()) },
	))
	return m
}

func (m *metrics) countMessage(port, method string) {
	m.messages.WithLabelValues(port, method).Inc()
}

// startRequest returns a stop function that records the elapsed time.
func (m *metrics) startRequest(method string) func() {
	start := time.Now()
	return func() {
		m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

func (m *metrics) countBroadcast(pool string, failed int) {
	if failed > 0 {
		m.broadcasts.WithLabelValues(pool).Add(float64(failed))
	}
}

func (m *metrics) countTrade(action domain.Action, status string) {
	m.trades.WithLabelValues(string(action), status).Inc()
}

func (m *metrics) httpHandler() http.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return h.ServeHTTP
}
