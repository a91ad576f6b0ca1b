package fleet

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	prometheusRegisteredWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleet",
		Subsystem: "controller",
		Name:      "registered_workers",
		Help:      "Number of workers currently in the registry.",
	})
	prometheusRegistrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "controller",
		Name:      "registrations",
		Help:      "Number of worker registrations accepted, including re-registrations.",
	})
	prometheusProbes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "controller",
		Name:      "liveness_probes",
		Help:      "Number of worker liveness probes by outcome.",
	}, []string{"outcome"})
	prometheusEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "controller",
		Name:      "evictions",
		Help:      "Number of workers evicted after failing liveness probes.",
	})
	prometheusDispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "controller",
		Name:      "dispatches",
		Help:      "Number of dispatch attempts by status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(
		prometheusRegisteredWorkers,
		prometheusRegistrations,
		prometheusProbes,
		prometheusEvictions,
		prometheusDispatches,
	)
}

func setRegisteredWorkers(n int) {
	prometheusRegisteredWorkers.Set(float64(n))
}

func incRegistrations(n int) {
	prometheusRegistrations.Add(float64(n))
}

func incProbes(outcome string) {
	prometheusProbes.WithLabelValues(outcome).Inc()
}

func incEvictions(n int) {
	prometheusEvictions.Add(float64(n))
}

func incDispatches(status string) {
	prometheusDispatches.WithLabelValues(status).Inc()
}
