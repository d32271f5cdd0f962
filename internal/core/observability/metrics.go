package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func Init(r prometheus.Registerer, isEnabled bool) {
	enabled.Store(isEnabled)
	if !isEnabled || r == nil {
		return
	}
	initCollectors(r)
}

func Enabled() bool { return enabled.Load() }

var (
	shardLoadsTotal          *prometheus.CounterVec
	shardLoadDurationSeconds *prometheus.HistogramVec
	shardCacheHitsTotal      *prometheus.CounterVec
	shardCacheMissesTotal    *prometheus.CounterVec
	shardsResidentGauge      prometheus.Gauge

	spliceRequestsTotal    *prometheus.CounterVec
	spliceDurationSeconds  prometheus.Histogram
	spliceCacheHitsTotal   prometheus.Counter
	spliceCacheMissesTotal prometheus.Counter

	dijkstraDurationSeconds *prometheus.HistogramVec
	dijkstraNodesVisited    *prometheus.HistogramVec

	gridFillDurationSeconds *prometheus.HistogramVec

	catchmentRequestsTotal   *prometheus.CounterVec
	catchmentDurationSeconds *prometheus.HistogramVec
	catchmentErrorsTotal     *prometheus.CounterVec

	heatmapCellsProcessedTotal *prometheus.CounterVec
	heatmapBatchInsertSeconds  prometheus.Histogram
	heatmapWorkerActiveGauge   prometheus.Gauge

	dbQueryDurationSeconds *prometheus.HistogramVec
	dbQueryErrorsTotal     *prometheus.CounterVec

	redisOpDurationSeconds  *prometheus.HistogramVec
	matrixCacheHitsTotal    prometheus.Counter
	matrixCacheMissesTotal  prometheus.Counter
)

func initCollectors(r prometheus.Registerer) {
	shardLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shard_loads_total", Help: "Network shard loads by source (memory|disk|database) and outcome."},
		[]string{"source", "outcome"},
	)
	shardLoadDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "shard_load_duration_seconds", Help: "Time to load a network shard by source.", Buckets: prometheus.ExponentialBuckets(0.001, 2, 15)},
		[]string{"source"},
	)
	shardCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shard_cache_hits_total", Help: "Shard cache hits by tier (memory|disk)."},
		[]string{"tier"},
	)
	shardCacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shard_cache_misses_total", Help: "Shard cache misses by tier (memory|disk)."},
		[]string{"tier"},
	)
	shardsResidentGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "shards_resident", Help: "Number of network shards currently resident in memory."},
	)

	spliceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "splice_requests_total", Help: "Origin splice requests by outcome (ok|disconnected|error)."},
		[]string{"outcome"},
	)
	spliceDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "splice_duration_seconds", Help: "Time to splice an origin onto the network.", Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15)},
	)
	spliceCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "splice_cache_hits_total", Help: "Origin splice memoization cache hits."},
	)
	spliceCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "splice_cache_misses_total", Help: "Origin splice memoization cache misses."},
	)

	dijkstraDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dijkstra_duration_seconds", Help: "Time to run multi-source Dijkstra by mode.", Buckets: prometheus.ExponentialBuckets(0.001, 2, 16)},
		[]string{"mode"},
	)
	dijkstraNodesVisited = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dijkstra_nodes_visited", Help: "Number of nodes visited per Dijkstra run.", Buckets: prometheus.ExponentialBuckets(8, 2, 14)},
		[]string{"mode"},
	)

	gridFillDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "grid_fill_duration_seconds", Help: "Time to interpolate the cost grid by mode.", Buckets: prometheus.ExponentialBuckets(0.001, 2, 15)},
		[]string{"mode"},
	)

	catchmentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "catchment_requests_total", Help: "Catchment computations by mode and return type."},
		[]string{"mode", "return_type"},
	)
	catchmentDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "catchment_duration_seconds", Help: "End-to-end catchment computation latency.", Buckets: prometheus.ExponentialBuckets(0.01, 2, 14)},
		[]string{"mode", "return_type"},
	)
	catchmentErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "catchment_errors_total", Help: "Catchment computation failures by error kind."},
		[]string{"kind"},
	)

	heatmapCellsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "heatmap_cells_processed_total", Help: "Heatmap origin cells processed by outcome (ok|skipped|error)."},
		[]string{"outcome"},
	)
	heatmapBatchInsertSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "heatmap_batch_insert_duration_seconds", Help: "Time to flush a heatmap matrix row batch to the store.", Buckets: prometheus.ExponentialBuckets(0.005, 2, 14)},
	)
	heatmapWorkerActiveGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "heatmap_workers_active", Help: "Number of heatmap worker goroutines currently processing a chunk."},
	)

	dbQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "db_query_duration_seconds", Help: "Postgres query latency by operation.", Buckets: prometheus.ExponentialBuckets(0.001, 2, 16)},
		[]string{"op"},
	)
	dbQueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "db_query_errors_total", Help: "Postgres query failures by operation."},
		[]string{"op"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "matrixstore_redis_op_duration_seconds", Help: "Latency of matrix store Redis operations by op and outcome.", Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16)},
		[]string{"op", "outcome"},
	)
	matrixCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "matrixstore_cache_hits_total", Help: "Matrix row reads satisfied by the store."},
	)
	matrixCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "matrixstore_cache_misses_total", Help: "Matrix row reads not found in the store."},
	)

	r.MustRegister(
		shardLoadsTotal, shardLoadDurationSeconds, shardCacheHitsTotal, shardCacheMissesTotal, shardsResidentGauge,
		spliceRequestsTotal, spliceDurationSeconds, spliceCacheHitsTotal, spliceCacheMissesTotal,
		dijkstraDurationSeconds, dijkstraNodesVisited,
		gridFillDurationSeconds,
		catchmentRequestsTotal, catchmentDurationSeconds, catchmentErrorsTotal,
		heatmapCellsProcessedTotal, heatmapBatchInsertSeconds, heatmapWorkerActiveGauge,
		dbQueryDurationSeconds, dbQueryErrorsTotal,
		redisOpDurationSeconds, matrixCacheHitsTotal, matrixCacheMissesTotal,
	)
}

func ObserveShardLoad(source, outcome string, durationSeconds float64) {
	if !enabled.Load() || shardLoadsTotal == nil {
		return
	}
	shardLoadsTotal.WithLabelValues(source, outcome).Inc()
	shardLoadDurationSeconds.WithLabelValues(source).Observe(durationSeconds)
}

func IncShardCacheHit(tier string) {
	if !enabled.Load() || shardCacheHitsTotal == nil {
		return
	}
	shardCacheHitsTotal.WithLabelValues(tier).Inc()
}

func IncShardCacheMiss(tier string) {
	if !enabled.Load() || shardCacheMissesTotal == nil {
		return
	}
	shardCacheMissesTotal.WithLabelValues(tier).Inc()
}

func SetShardsResident(n int) {
	if !enabled.Load() || shardsResidentGauge == nil {
		return
	}
	shardsResidentGauge.Set(float64(n))
}

func ObserveSplice(outcome string, durationSeconds float64) {
	if !enabled.Load() || spliceRequestsTotal == nil {
		return
	}
	spliceRequestsTotal.WithLabelValues(outcome).Inc()
	spliceDurationSeconds.Observe(durationSeconds)
}

func IncSpliceCacheHit() {
	if enabled.Load() && spliceCacheHitsTotal != nil {
		spliceCacheHitsTotal.Inc()
	}
}

func IncSpliceCacheMiss() {
	if enabled.Load() && spliceCacheMissesTotal != nil {
		spliceCacheMissesTotal.Inc()
	}
}

func ObserveDijkstra(mode string, durationSeconds float64, nodesVisited int) {
	if !enabled.Load() || dijkstraDurationSeconds == nil {
		return
	}
	dijkstraDurationSeconds.WithLabelValues(mode).Observe(durationSeconds)
	dijkstraNodesVisited.WithLabelValues(mode).Observe(float64(nodesVisited))
}

func ObserveGridFill(mode string, durationSeconds float64) {
	if !enabled.Load() || gridFillDurationSeconds == nil {
		return
	}
	gridFillDurationSeconds.WithLabelValues(mode).Observe(durationSeconds)
}

func ObserveCatchment(mode, returnType string, durationSeconds float64) {
	if !enabled.Load() || catchmentRequestsTotal == nil {
		return
	}
	catchmentRequestsTotal.WithLabelValues(mode, returnType).Inc()
	catchmentDurationSeconds.WithLabelValues(mode, returnType).Observe(durationSeconds)
}

func IncCatchmentError(kind string) {
	if !enabled.Load() || catchmentErrorsTotal == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	catchmentErrorsTotal.WithLabelValues(kind).Inc()
}

func IncHeatmapCell(outcome string) {
	if !enabled.Load() || heatmapCellsProcessedTotal == nil {
		return
	}
	heatmapCellsProcessedTotal.WithLabelValues(outcome).Inc()
}

func ObserveHeatmapBatchInsert(durationSeconds float64) {
	if enabled.Load() && heatmapBatchInsertSeconds != nil {
		heatmapBatchInsertSeconds.Observe(durationSeconds)
	}
}

func SetHeatmapWorkersActive(n int) {
	if enabled.Load() && heatmapWorkerActiveGauge != nil {
		heatmapWorkerActiveGauge.Set(float64(n))
	}
}

func ObserveDBQuery(op string, durationSeconds float64, err error) {
	if !enabled.Load() || dbQueryDurationSeconds == nil {
		return
	}
	dbQueryDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
	if err != nil && dbQueryErrorsTotal != nil {
		dbQueryErrorsTotal.WithLabelValues(op).Inc()
	}
}

// ObserveRedisOp records a matrix store Redis round trip.
func ObserveRedisOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() || redisOpDurationSeconds == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	redisOpDurationSeconds.WithLabelValues(op, outcome).Observe(durationSeconds)
}

func AddMatrixCacheHits(n int) {
	if enabled.Load() && matrixCacheHitsTotal != nil && n > 0 {
		matrixCacheHitsTotal.Add(float64(n))
	}
}

func AddMatrixCacheMisses(n int) {
	if enabled.Load() && matrixCacheMissesTotal != nil && n > 0 {
		matrixCacheMissesTotal.Add(float64(n))
	}
}
