package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matrixctl",
			Subsystem: "transport",
			Name:      "frames_sent_total",
			Help:      "Frames written to the board, by kind and result.",
		},
		[]string{"kind", "success"},
	)
	bytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matrixctl",
			Subsystem: "transport",
			Name:      "bytes_received_total",
			Help:      "Bytes read from the board.",
		},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matrixctl",
			Subsystem: "upgrade",
			Name:      "transfers_total",
			Help:      "Firmware transfers by final state.",
		},
		[]string{"state"},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matrixctl",
			Subsystem: "upgrade",
			Name:      "transfer_duration_seconds",
			Help:      "Firmware transfer duration in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"state"},
	)
	transferBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matrixctl",
			Subsystem: "upgrade",
			Name:      "image_bytes_sent_total",
			Help:      "Firmware image bytes sent.",
		},
	)
	telemetryFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matrixctl",
			Subsystem: "telemetry",
			Name:      "frames_total",
			Help:      "Status frames decoded, by checksum validity.",
		},
		[]string{"valid"},
	)
	telemetryErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matrixctl",
			Subsystem: "telemetry",
			Name:      "read_errors_total",
			Help:      "Reported status read errors.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent, bytesReceived, transfers, transferDuration,
			transferBytes, telemetryFrames, telemetryErrors)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordFrameSent(kind string, success bool) {
	RegisterMetrics()
	framesSent.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
}

func RecordBytesReceived(n int) {
	RegisterMetrics()
	bytesReceived.Add(float64(n))
}

func RecordTransfer(state string, bytesSent int, duration time.Duration) {
	RegisterMetrics()
	transfers.WithLabelValues(state).Inc()
	transferDuration.WithLabelValues(state).Observe(duration.Seconds())
	transferBytes.Add(float64(bytesSent))
}

func RecordTelemetryFrame(valid bool) {
	RegisterMetrics()
	telemetryFrames.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func RecordTelemetryError() {
	RegisterMetrics()
	telemetryErrors.Inc()
}
