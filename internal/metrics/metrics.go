package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "teslemetry2mqtt"

var (
	FleetRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fleet_requests_total",
		Help:      "Requests sent to the Teslemetry API, by operation and result.",
	}, []string{"operation", "result"})

	CoordinatorUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coordinator_updates_total",
		Help:      "Coordinator refreshes, by kind and result.",
	}, []string{"kind", "result"})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Entity commands received from MQTT, by platform and result.",
	}, []string{"platform", "result"})

	StreamEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_events_total",
		Help:      "Telemetry stream events received.",
	})

	Entities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "entities",
		Help:      "Registered entities.",
	})
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
