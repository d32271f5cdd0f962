package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/plan4better/catchment-engine/internal/catchment"
	"github.com/plan4better/catchment-engine/internal/core/config"
	"github.com/plan4better/catchment-engine/internal/core/middleware"
	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
	"github.com/plan4better/catchment-engine/internal/core/opsserver"
	"github.com/plan4better/catchment-engine/internal/heatmap"
	"github.com/plan4better/catchment-engine/internal/jsoline"
	"github.com/plan4better/catchment-engine/internal/logger"
	"github.com/plan4better/catchment-engine/internal/matrixstore/redisstore"
	"github.com/plan4better/catchment-engine/internal/network/shardstore"
	"github.com/plan4better/catchment-engine/internal/network/splice"
	"github.com/plan4better/catchment-engine/internal/network/subnetwork"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	heatmapOnce := flag.Bool("heatmap-once", false, "run a single heatmap sweep over the geofence and exit")
	heatmapMode := flag.String("heatmap-mode", "walking", "routing mode for -heatmap-once (walking|bicycle|pedelec|car)")
	flag.Parse()

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Component: "catchment-worker",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)
	appLog.Info("starting catchment-worker", "version", Version, "addr", cfg.Addr)

	metricsEnabled := strings.ToLower(os.Getenv("METRICS_ENABLED")) != "false"
	observability.Init(prometheus.DefaultRegisterer, metricsEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		appLog.Error("connect postgres", "err", err)
		return 1
	}
	defer pool.Close()

	diskCache := shardstore.NewCache(cfg.ShardCacheDir)
	sqlLoader := shardstore.NewLoader(pool)
	shards := shardstore.New(sqlLoader, diskCache, cfg.ShardLRUStripes)

	envelope := subnetwork.NewPgEnvelopeFinder(pool)
	geofence := subnetwork.NewPgNetworkGeofence(pool, cfg.NetworkRegionTable)
	assembler := subnetwork.New(envelope, shards, geofence)

	splicer, err := splice.New(splice.NewPgSplicer(pool, cfg.NetworkResMin), cfg.SpliceLRUSize)
	if err != nil {
		appLog.Error("init splicer", "err", err)
		return 1
	}

	if *heatmapOnce {
		return runHeatmapOnce(ctx, appLog.With("job", "heatmap"), cfg, pool, splicer, assembler, model.RoutingMode(*heatmapMode))
	}

	orch := catchment.New(
		splicer,
		assembler,
		catchment.H3CellResolver{},
		jsoline.HexBandContourer{},
		func(ctx context.Context) (catchment.ResultWriter, error) {
			return catchment.NewPgResultWriter(ctx, pool)
		},
	)

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		return opsserver.Run(gctx, cfg, appLog, nil)
	})

	grp.Go(func() error {
		return runCatchmentServer(gctx, cfg, appLog, orch)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("catchment-worker exited with error", "err", err)
		return 1
	}
	appLog.Info("catchment-worker stopped")
	return 0
}

func runCatchmentServer(ctx context.Context, cfg config.Config, logger *slog.Logger, orch *catchment.Orchestrator) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Post("/catchment", catchmentHandler(orch))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("catchment http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// runHeatmapOnce drives one complete geofence sweep, per spec §4.7: each
// worker goroutine gets its own Redis-backed matrix store. The splicer and
// the assembler, and with them the Postgres pool and the shard store, are
// shared by all workers; destinations come from H3RingDestinations, which
// issues no queries.
func runHeatmapOnce(ctx context.Context, logger *slog.Logger, cfg config.Config, pool *pgxpool.Pool, splicer *splice.Splicer, assembler *subnetwork.Assembler, mode model.RoutingMode) int {
	geofence := heatmap.NewPgGeofenceSource(pool, cfg.NetworkRegionTable)

	driver := &heatmap.Driver{
		Geofence:   geofence,
		NumThreads: cfg.HeatmapNumThreads,
		BatchSize:  cfg.HeatmapBatchSize,
		NewWorker: func(ctx context.Context, workerIndex int) (heatmap.WorkerDeps, error) {
			store, err := redisstore.New(ctx, cfg.HeatmapRedisAddr)
			if err != nil {
				return heatmap.WorkerDeps{}, err
			}
			return heatmap.WorkerDeps{
				Splicer:      splicer,
				Assembler:    assembler,
				Destinations: heatmap.H3RingDestinations{},
				Store:        store,
			}, nil
		},
	}

	cost := model.TimeCost{MaxTravelTime: 30, Step: 10, SpeedKPH: 5}
	if mode == model.ModeCar {
		cost = model.TimeCost{MaxTravelTime: 30, Step: 10}
	}

	if err := driver.Run(ctx, mode, cost); err != nil {
		logger.Error("heatmap sweep failed", "err", err)
		return 1
	}
	logger.Info("heatmap sweep complete")
	return 0
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
