package heatmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// GeofenceSource enumerates the H3-6 cells covering the configured
// geofence (spec §4.7 step 1).
type GeofenceSource interface {
	H3_6Cells(ctx context.Context) ([]string, error)
}

// WorkerFactory builds one worker's collaborators. The Driver calls it once
// per worker; whatever the factory shares between its results (in the
// catchment-worker binary: the splicer, the assembler and so the database
// pool and shard store) is shared by the workers.
type WorkerFactory func(ctx context.Context, workerIndex int) (WorkerDeps, error)

// Driver orchestrates the full heatmap run: geofence enumeration,
// round-robin chunking, and a bounded worker pool.
type Driver struct {
	Geofence   GeofenceSource
	NumThreads int
	BatchSize  int
	NewWorker  WorkerFactory
}

// Run partitions the geofence into NumThreads chunks and processes them
// concurrently, matching the teacher's jobs/results worker-pool shape.
func (d *Driver) Run(ctx context.Context, mode model.RoutingMode, cost model.TravelCost) error {
	parents, err := d.Geofence.H3_6Cells(ctx)
	if err != nil {
		return fmt.Errorf("heatmap: resolve geofence: %w", err)
	}
	if len(parents) == 0 {
		return nil
	}

	numThreads := d.NumThreads
	if numThreads <= 0 {
		numThreads = 1
	}
	chunks := roundRobinChunks(parents, numThreads)
	cfg := Config{Mode: mode, Cost: cost, BatchSize: d.BatchSize}

	var wg sync.WaitGroup
	errCh := make(chan error, numThreads)

	observability.SetHeatmapWorkersActive(numThreads)
	defer observability.SetHeatmapWorkersActive(0)

	for i, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		wg.Add(1)
		go func(idx int, cells []string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}
			deps, err := d.NewWorker(ctx, idx)
			if err != nil {
				errCh <- fmt.Errorf("heatmap: init worker %d: %w", idx, err)
				return
			}
			if err := RunChunk(ctx, deps, cfg, cells); err != nil {
				errCh <- err
			}
		}(i, chunk)
	}

	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func roundRobinChunks(items []string, n int) [][]string {
	chunks := make([][]string, n)
	for i, item := range items {
		idx := i % n
		chunks[idx] = append(chunks[idx], item)
	}
	return chunks
}
