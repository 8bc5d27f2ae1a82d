package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_connects_total",
		Help: "WebSocket connections accepted",
	})
	MessagesRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_routed_total",
		Help: "Messages routed through the hub",
	})
	DeliveryAcks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_delivery_acks_total",
		Help: "Delivered acknowledgments emitted",
	})
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_media_uploads_total",
		Help: "Media uploads by outcome",
	}, []string{"outcome"})
)

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
