// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strings"

	"github.com/chatterbox/internal/apperror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatterbox_ws_clients",
		Help: "Connected WebSocket clients.",
	})
	WSRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatterbox_ws_rooms",
		Help: "Channels with at least one joined client.",
	})
	BroadcastEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatterbox_broadcast_events_total",
		Help: "Realtime events broadcast, by event type.",
	}, []string{"event"})
	DroppedClients = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatterbox_ws_dropped_clients_total",
		Help: "Clients disconnected because their send buffer was full.",
	})
	Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatterbox_operations_total",
		Help: "Core chat operations, by operation and outcome.",
	}, []string{"op", "outcome"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		WSClients, WSRooms, BroadcastEvents, DroppedClients, Operations,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveOp counts one call of op. The outcome is "ok" or the lower-cased error code.
func ObserveOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(apperror.CodeOf(err)))
	}
	Operations.WithLabelValues(op, outcome).Inc()
}
