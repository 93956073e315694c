package relay

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "warpcall"

type hubMetrics struct {
	relayed *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

func newHubMetrics() *hubMetrics {
	return &hubMetrics{
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "relay",
			Name:      "relayed_total",
			Help:      "signaling frames forwarded between participants",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "relay",
			Name:      "dropped_total",
			Help:      "frames that could not be delivered",
		}, []string{"reason"}),
	}
}

// RegisterMetrics exposes the hub's counters and the registry's live size
// on reg.
func (h *Hub) RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		h.metrics.relayed,
		h.metrics.dropped,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "count of live rooms",
		}, func() float64 {
			rooms, _ := h.registry.Counts()
			return float64(rooms)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "relay",
			Name:      "participants",
			Help:      "count of participants in a room",
		}, func() float64 {
			_, participants := h.registry.Counts()
			return float64(participants)
		}),
	)
}
