// Package metrics collects and exposes Prometheus metrics for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Collector gathers the service's domain counters.
type Collector struct {
	votesCast         *prometheus.CounterVec
	sessionsStarted   prometheus.Counter
	sessionsEnded     prometheus.Counter
	notificationsSent prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chaiii_votes_cast_total",
			Help: "Accepted votes by beverage type.",
		}, []string{"type"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaiii_sessions_started_total",
			Help: "Voting sessions started.",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaiii_sessions_ended_total",
			Help: "Voting sessions ended, by admin action or expiry.",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaiii_notifications_sent_total",
			Help: "Session-start push notifications delivered.",
		}),
	}

	reg.MustRegister(
		c.votesCast,
		c.sessionsStarted,
		c.sessionsEnded,
		c.notificationsSent,
	)

	return c
}

// RecordVote counts an accepted vote of the given type.
func (c *Collector) RecordVote(voteType string) {
	c.votesCast.WithLabelValues(voteType).Inc()
}

// RecordSessionStarted counts a session start.
func (c *Collector) RecordSessionStarted() {
	c.sessionsStarted.Inc()
}

// RecordSessionEnded counts a session end.
func (c *Collector) RecordSessionEnded() {
	c.sessionsEnded.Inc()
}

// RecordNotificationSent counts a delivered push notification.
func (c *Collector) RecordNotificationSent() {
	c.notificationsSent.Inc()
}

// Handler returns a gin handler serving the registry's metrics.
func Handler(reg *prometheus.Registry) gin.HandlerFunc {
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
