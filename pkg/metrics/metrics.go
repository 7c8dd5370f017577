// Package metrics serves the Prometheus metrics of the harvester.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, harvest, storage) and registered through promauto.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer every package's promauto metrics land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer exposes the same registry for scraping.
var Gatherer = prometheus.DefaultGatherer

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Server is a metrics listener bound to the lifetime of a command.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server on addr.
func NewServer(addr string) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background. Listen errors other than a clean shutdown
// are logged.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", s.srv.Addr).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{endpoint, status} (Counter): requests by endpoint group and status
//   - catalog_request_duration_seconds{endpoint} (Histogram): request duration
//   - catalog_errors_total{class} (Counter): errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - catalog_retries_total{error_class} (Counter): retry attempts
//   - catalog_retry_backoff_seconds{error_class} (Histogram): backoff waits
//   - catalog_retry_exhausted_total{error_class} (Counter): requests that ran out of attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - catalog_rate_limit_remaining (Gauge): requests left in the upstream window
//   - catalog_rate_limit_waits_total (Counter): waits for a window reset
//   - catalog_rate_limit_throttles_total (Counter): throttled requests
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total{layer} (Counter)
//   - catalog_cache_misses_total (Counter)
//   - catalog_cache_stored_bytes_total{encoding} (Counter): raw vs zstd bytes stored
//   - catalog_cache_errors_total{operation} (Counter)
//
// Harvest Metrics (pkg/harvest, pkg/storage):
//   - harvest_pages_total{result} (Counter): fetched, failed, recovered, unrecovered
//   - harvest_inflight_fetches (Gauge)
//   - harvest_partitions_total{status} (Counter): merged, skipped, failed
//   - harvest_partition_duration_seconds (Histogram)
//   - harvest_merged_records_total (Counter)
//   - harvest_publish_total{publisher, result} (Counter)
//   - harvest_artifact_bytes_written_total{kind} (Counter): page, merged, mirror
//
// Example Prometheus Queries:
//
//   # Page failure ratio
//   sum(rate(harvest_pages_total{result="failed"}[15m])) / sum(rate(harvest_pages_total[15m]))
//
//   # Incomplete partitions
//   increase(harvest_partitions_total{status="skipped"}[1d])
//
//   # Cache compression ratio
//   sum(catalog_cache_stored_bytes_total{encoding="zstd"}) / sum(catalog_cache_stored_bytes_total{encoding="raw"})
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
