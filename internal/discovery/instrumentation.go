package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	prometheusAnnouncementsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "discovery",
		Name:      "announcements_sent",
		Help:      "Number of controller announcements multicast.",
	})
	prometheusAnnouncementsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "discovery",
		Name:      "announcements_failed",
		Help:      "Number of controller announcements that could not be sent.",
	})
	prometheusAnnouncementsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "discovery",
		Name:      "announcements_received",
		Help:      "Number of datagrams received by workers, by validity. Stale ones were queued before the controller was lost.",
	}, []string{"result"})
	prometheusRegistrationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "discovery",
		Name:      "registration_attempts",
		Help:      "Number of worker registration attempts by outcome.",
	}, []string{"outcome"})
	prometheusControllerLost = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "discovery",
		Name:      "controller_lost",
		Help:      "Number of times a connected worker lost its controller.",
	})
)

func init() {
	prometheus.MustRegister(
		prometheusAnnouncementsSent,
		prometheusAnnouncementsFailed,
		prometheusAnnouncementsReceived,
		prometheusRegistrationAttempts,
		prometheusControllerLost,
	)
}

func incAnnouncementsSent(n int) {
	prometheusAnnouncementsSent.Add(float64(n))
}

func incAnnouncementsFailed(n int) {
	prometheusAnnouncementsFailed.Add(float64(n))
}

func incAnnouncementsReceived(result string, n int) {
	prometheusAnnouncementsReceived.WithLabelValues(result).Add(float64(n))
}

func incRegistrationAttempts(outcome string) {
	prometheusRegistrationAttempts.WithLabelValues(outcome).Inc()
}

func incControllerLost(n int) {
	prometheusControllerLost.Add(float64(n))
}
