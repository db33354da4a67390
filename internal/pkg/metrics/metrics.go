package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barcos_txlog_captured_total",
		Help: "Transaction log entries handed to the store",
	}, []string{"source", "module"})

	DroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barcos_txlog_dropped_total",
		Help: "Entries dropped because the async queue was full",
	})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barcos_txlog_store_errors_total",
		Help: "Persistence failures per backing store",
	}, []string{"store"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barcos_http_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
