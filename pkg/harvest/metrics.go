package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_pages_total",
		Help: "Pages processed by result (fetched, failed, recovered, unrecovered)",
	}, []string{"result"})

	inflightFetches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_inflight_fetches",
		Help: "Fetch units currently holding a worker slot",
	})

	partitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_partitions_total",
		Help: "Partitions finished by merge status",
	}, []string{"status"})

	partitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_partition_duration_seconds",
		Help:    "Wall time of a partition run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	mergedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_merged_records_total",
		Help: "Records written to merged artifacts",
	})

	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_publish_total",
		Help: "Publisher calls by publisher and result",
	}, []string{"publisher", "result"})
)
