package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll outcomes: ok, rate_limited, transient, failed, in_flight
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpoll_polls_total",
			Help: "Total number of polls by outcome",
		},
		[]string{"instance", "outcome"},
	)

	IncidentsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpoll_incidents_emitted_total",
			Help: "Total number of incidents emitted",
		},
		[]string{"instance"},
	)

	DedupSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpoll_dedup_skipped_total",
			Help: "Items skipped because their message id was already seen",
		},
		[]string{"instance"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpoll_rate_limited_total",
			Help: "Polls rejected by the mail store with a rate limit",
		},
		[]string{"instance"},
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailpoll_poll_duration_seconds",
			Help:    "Poll duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"instance"},
	)

	CursorWindowSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailpoll_cursor_window_size",
			Help: "Number of message ids held in the dedup window",
		},
		[]string{"instance"},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpoll_outbox_published_total",
			Help: "Outbox entries handed to the publisher",
		},
		[]string{"status"}, // status: published, retry
	)
)

// RecordPoll records the outcome and duration of one poll
func RecordPoll(instance, outcome string, duration time.Duration) {
	PollsTotal.WithLabelValues(instance, outcome).Inc()
	PollDuration.WithLabelValues(instance).Observe(duration.Seconds())
}

// RecordEmitted adds n emitted incidents
func RecordEmitted(instance string, n int) {
	IncidentsEmitted.WithLabelValues(instance).Add(float64(n))
}

// RecordDedupSkipped adds n items dropped by the dedup window
func RecordDedupSkipped(instance string, n int) {
	if n > 0 {
		DedupSkipped.WithLabelValues(instance).Add(float64(n))
	}
}

// IncrementRateLimited counts a rate-limited poll
func IncrementRateLimited(instance string) {
	RateLimited.WithLabelValues(instance).Inc()
}

// SetWindowSize reports the current dedup window length
func SetWindowSize(instance string, n int) {
	CursorWindowSize.WithLabelValues(instance).Set(float64(n))
}

// IncrementOutbox counts an outbox publish attempt
func IncrementOutbox(status string) {
	OutboxPublished.WithLabelValues(status).Inc()
}
