// Package metrics defines the gateway's Prometheus metrics.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipfsgate_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ipfsgate_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Storage-node RPC metrics.
var (
	// CASOperationsTotal counts RPC calls to the storage node by endpoint
	// and outcome.
	CASOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipfsgate_cas_operations_total",
			Help: "Storage node RPC calls by endpoint",
		},
		[]string{"endpoint", "status"},
	)

	// OrphanUnpinsTotal counts pins removed because no index row referenced
	// the CID anymore.
	OrphanUnpinsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ipfsgate_orphan_unpins_total",
			Help: "Pins removed for unreferenced CIDs",
		},
	)

	// MultipartUploadsInFlight tracks in-memory multipart uploads.
	MultipartUploadsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipfsgate_multipart_uploads_in_flight",
			Help: "Multipart uploads currently held in memory",
		},
	)
)

// Register registers all collectors with the default registry. Called from
// main so registration stays conditional on configuration. Safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			CASOperationsTotal,
			OrphanUnpinsTotal,
			MultipartUploadsInFlight,
		)
	})
}

// NormalizePath maps request paths to path templates suitable for metric
// labels, avoiding high-cardinality labels from bucket and key names.
func NormalizePath(path string) string {
	switch path {
	case "/healthz":
		return "/healthz"
	case "/metrics":
		return "/metrics"
	case "/", "":
		return "/"
	}

	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}

	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 || trimmed[idx+1:] == "" {
		return "/{bucket}"
	}
	return "/{bucket}/{key}"
}
