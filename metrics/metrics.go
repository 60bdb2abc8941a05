// Package metrics はPrometheusのメトリクスを定義します。/metrics で公開
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "imposter",
		Name:      "active_rooms",
		Help:      "Number of rooms with a live session.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "imposter",
		Name:      "connected_clients",
		Help:      "Number of open websocket connections.",
	})

	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imposter",
		Name:      "phase_transitions_total",
		Help:      "Room phase transitions by target phase.",
	}, []string{"phase"})

	Intents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imposter",
		Name:      "intents_total",
		Help:      "Client intents by type and outcome.",
	}, []string{"type", "outcome"})

	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "imposter",
		Name:      "dropped_frames_total",
		Help:      "Outbound frames skipped because the client was closed or its buffer was full.",
	})
)
