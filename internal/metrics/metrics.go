// Package metrics holds the Prometheus collectors of the feed service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swimadsb_cache_requests_total",
			Help: "Cache lookups by cache name and result (hit, miss, fallback)",
		},
		[]string{"cache", "result"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swimadsb_provider_errors_total",
			Help: "Failed calls to the flight data provider",
		},
		[]string{"call"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swimadsb_provider_request_duration_seconds",
			Help:    "Latency of flight data provider calls",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"call"},
	)

	TopicMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swimadsb_topic_messages_total",
			Help: "Topic invocations by topic and status (published, produce_error, publish_error)",
		},
		[]string{"topic", "status"},
	)

	JoinedRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swimadsb_joined_records",
			Help: "Records in the last joined feed per airport and direction",
		},
		[]string{"airport", "direction"},
	)

	RelayClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swimadsb_relay_clients",
			Help: "Connected WebSocket relay clients",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
