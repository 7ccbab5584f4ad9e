package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	TransmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "transmissions_total",
			Help:      "Packets written to the transport, by port.",
		},
		[]string{"port"},
	)

	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "retries_total",
			Help:      "Retransmissions after a reply timeout.",
		},
	)

	GrantsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "channel_grants_total",
			Help:      "Exclusive channel-access grants.",
		},
	)

	ChecksumErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "checksum_errors_total",
			Help:      "Received packets discarded for a bad checksum.",
		},
	)

	ReplyTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "reply_timeouts_total",
			Help:      "Reply waits that expired without a packet.",
		},
	)

	RoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "routed_total",
			Help:      "Packets delivered to a virtual node, by outcome.",
		},
		[]string{"outcome"},
	)

	ChannelWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lockstep",
			Name:      "channel_wait_seconds",
			Help:      "Time an action spent waiting for channel access.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "lockstep",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		TransmissionsTotal,
		RetriesTotal,
		GrantsTotal,
		ChecksumErrorsTotal,
		ReplyTimeoutsTotal,
		RoutedTotal,
		ChannelWait,
		uptime,
	)
}

// Handler exposes the lockstep registry, for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
