package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide environment-derived configuration, read once
// at startup via FromEnv.
type Config struct {
	Addr        string
	LogLevel    string
	MetricsAddr string

	PostgresDSN string

	NetworkRegionTable string

	NetworkResMin int
	NetworkResMax int

	ShardCacheDir  string
	ShardLRUStripes int

	SpliceLRUSize int

	HeatmapNumThreads  int
	HeatmapRedisAddr   string
	HeatmapBatchSize   int

	CacheOpTimeout time.Duration
}

func FromEnv() Config {
	resMin := getint("NETWORK_RES_MIN", 8)
	resMax := getint("NETWORK_RES_MAX", 10)
	if resMin < 0 {
		resMin = 0
	}
	if resMax > 15 {
		resMax = 15
	}
	if resMin > resMax {
		resMin, resMax = resMax, resMin
	}

	return Config{
		Addr:        getenv("ADDR", ":8090"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),

		PostgresDSN: getenv("POSTGRES_DSN", "postgres://localhost:5432/goat"),

		NetworkRegionTable: getenv("NETWORK_REGION_TABLE", "basic.study_area"),

		NetworkResMin: resMin,
		NetworkResMax: resMax,

		ShardCacheDir:   getenv("SHARD_CACHE_DIR", "/var/cache/catchment-engine/shards"),
		ShardLRUStripes: getint("SHARD_CACHE_STRIPES", 32),

		SpliceLRUSize: getint("SPLICE_LRU_SIZE", 4096),

		HeatmapNumThreads: getint("HEATMAP_NUM_THREADS", 16),
		HeatmapRedisAddr:  getenv("HEATMAP_REDIS_ADDR", "localhost:6379"),
		HeatmapBatchSize:  getint("HEATMAP_BATCH_SIZE", 1000),

		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
