// Package metrics provides the centralized Prometheus registry for the tap.
// All metrics are defined in their respective packages (client, ratelimit,
// sync) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the tap.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - shipstation_rate_limit_remaining (Gauge): Requests remaining in the current rate limit window
//   - shipstation_rate_limit_waits_total (Counter): Times the client paused waiting for a window reset
//   - shipstation_rate_limit_wait_seconds (Histogram): Duration of rate limit pauses
//
// Request Metrics (pkg/client):
//   - shipstation_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - shipstation_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - shipstation_errors_total{class} (Counter): Errors by class (auth, rate_limit, not_found, structural, client, server, network)
//   - shipstation_pages_total{endpoint} (Counter): Pages fetched by endpoint
//
// Sync Metrics (pkg/sync):
//   - shipstation_sync_windows_total{stream, result} (Counter): Sync windows processed by stream and result
//   - shipstation_sync_records_emitted_total{stream} (Counter): Records emitted by stream
//   - shipstation_sync_bookmark_timestamp_seconds{stream} (Gauge): Committed bookmark as a unix timestamp
//
// Example Prometheus Queries:
//
//   # Rate Limit Pressure
//   shipstation_rate_limit_remaining < 5
//
//   # Request Error Rate
//   rate(shipstation_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(shipstation_request_duration_seconds_bucket[5m]))
//
//   # Window Failure Rate
//   sum(rate(shipstation_sync_windows_total{result="failed"}[1h])) /
//   sum(rate(shipstation_sync_windows_total[1h]))
