package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_active_connections",
		Help: "Currently connected websocket clients",
	})

	MessagesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_messages_stored_total",
		Help: "Chat messages appended to the message store",
	})

	AIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_ai_requests_total",
		Help: "AI generation requests by outcome",
	}, []string{"outcome"})
)

func Init() {
	prometheus.MustRegister(ActiveConnections, MessagesStored, AIRequests)
}

// Handler returns the http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
