package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	deviceRoundTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "psbridge",
			Subsystem: "device",
			Name:      "roundtrips_total",
			Help:      "Command channel round trips.",
		},
		[]string{"command", "outcome"},
	)
	deviceRoundTripDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "psbridge",
			Subsystem: "device",
			Name:      "roundtrip_duration_seconds",
			Help:      "Command channel round trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "outcome"},
	)
	udpDatagrams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "psbridge",
			Subsystem: "udp",
			Name:      "datagrams_total",
			Help:      "Inbound control datagrams by disposition.",
		},
		[]string{"disposition"},
	)
	udpReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "psbridge",
			Subsystem: "udp",
			Name:      "replies_total",
			Help:      "Outbound response frames by send result.",
		},
		[]string{"result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "psbridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total ops HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "psbridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Ops HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Datagram dispositions and reply results.
const (
	DatagramAnswered  = "answered"
	DatagramBadLength = "bad_length"
	DatagramBadMagic  = "bad_magic"

	ReplySent   = "sent"
	ReplyFailed = "failed"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			deviceRoundTrips,
			deviceRoundTripDuration,
			udpDatagrams,
			udpReplies,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordRoundTrip(command string, err error, duration time.Duration) {
	RegisterMetrics()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	deviceRoundTrips.WithLabelValues(command, outcome).Inc()
	deviceRoundTripDuration.WithLabelValues(command, outcome).Observe(duration.Seconds())
}

func RecordDatagram(disposition string) {
	RegisterMetrics()
	udpDatagrams.WithLabelValues(disposition).Inc()
}

func RecordReply(result string) {
	RegisterMetrics()
	udpReplies.WithLabelValues(result).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
