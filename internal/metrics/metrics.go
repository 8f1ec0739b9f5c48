// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts chat messages by entrypoint and outcome (sent, skipped, failed).
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botte_messages_total",
		Help: "Total number of chat messages by entrypoint and outcome",
	}, []string{"entrypoint", "outcome"})

	// SendDuration tracks bot API send latency.
	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "botte_send_duration_seconds",
		Help:    "Time taken to send a message to the chat",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// StreamBatches counts change-stream batches by result (ok, dropped, failed).
	StreamBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botte_stream_batches_total",
		Help: "Total number of task stream batches by result",
	}, []string{"result"})

	// StreamRecords counts records handed to the relay.
	StreamRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botte_stream_records_total",
		Help: "Total number of task stream records handled",
	})

	// TasksWritten counts queue writes by result (ok, duplicate, invalid, error).
	TasksWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botte_tasks_written_total",
		Help: "Total number of task queue writes by result",
	}, []string{"result"})

	// SweptRows counts rows removed by the sweeper per table.
	SweptRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botte_swept_rows_total",
		Help: "Total number of rows removed by the sweeper",
	}, []string{"table"})

	// BotUpdates counts webhook updates by command.
	BotUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botte_bot_updates_total",
		Help: "Total number of bot updates by command",
	}, []string{"command"})

	// HTTPRequests tracks API latency by route and status.
	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botte_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveSend records one send attempt.
func ObserveSend(entrypoint string, d time.Duration, err error) {
	SendDuration.Observe(d.Seconds())
	if err != nil {
		MessagesSent.WithLabelValues(entrypoint, "failed").Inc()
		return
	}
	MessagesSent.WithLabelValues(entrypoint, "sent").Inc()
}
