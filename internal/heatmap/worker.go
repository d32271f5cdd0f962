// Package heatmap enumerates a geofence, generates synthetic origins on a
// round-robin worker pool, and writes a travel-time matrix per spec §4.7.
package heatmap

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
	"github.com/plan4better/catchment-engine/internal/geo/h3index"
	"github.com/plan4better/catchment-engine/internal/matrixstore"
	"github.com/plan4better/catchment-engine/internal/network/subnetwork"
	"github.com/plan4better/catchment-engine/internal/routing/graph"
	"github.com/plan4better/catchment-engine/internal/routing/grid"
)

// Splicer is component C's contract, as consumed by a single worker.
type Splicer interface {
	Splice(ctx context.Context, origins []model.LatLng, mode model.RoutingMode) ([]model.Origin, []model.ArtificialEdge, error)
}

// Assembler is component D's contract, as consumed by a single worker.
type Assembler interface {
	Assemble(ctx context.Context, origins []model.LatLng, mode model.RoutingMode, cost model.TravelCost, artificial []model.ArtificialEdge, discardIDs map[int64]struct{}) (model.Columns, error)
}

// DestinationResolver resolves the ring of destination H3 cells (and their
// mercator centroids) around a synthetic origin, sized by buffer distance.
type DestinationResolver interface {
	Destinations(ctx context.Context, originCell string, mode model.RoutingMode, bufferMeters float64) (map[string]model.Point, error)
}

// WorkerDeps are the collaborators one worker goroutine uses. RunChunk does
// not require them to be private: the database connection and shard store
// live inside Splicer/Assembler/Destinations, and a factory that shares
// those across workers (as the catchment-worker binary does) shares them
// too; only Store is per worker there.
type WorkerDeps struct {
	Splicer      Splicer
	Assembler    Assembler
	Destinations DestinationResolver
	Store        matrixstore.Store
}

// Config is the per-run routing parameterization shared by every worker.
type Config struct {
	Mode      model.RoutingMode
	Cost      model.TravelCost
	BatchSize int
}

// RunChunk processes one worker's share of H3-6 parent cells, per spec
// §4.7 step 5. DisconnectedOrigin and BufferExceedsNetwork are logged and
// skipped; any other error aborts the remaining chunk.
func RunChunk(ctx context.Context, deps WorkerDeps, cfg Config, parents []string) error {
	res := h3index.MatrixResolution(cfg.Mode)
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 800
	}

	batch := make([]model.MatrixRow, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		byShard := make(map[int64][]model.MatrixRow)
		for _, row := range batch {
			byShard[row.H3_3] = append(byShard[row.H3_3], row)
		}
		for h3_3, rows := range byShard {
			if err := deps.Store.PutRows(ctx, h3_3, rows); err != nil {
				return fmt.Errorf("heatmap: flush batch for h3_3=%d: %w", h3_3, err)
			}
		}
		observability.ObserveHeatmapBatchInsert(time.Since(start).Seconds())
		batch = batch[:0]
		return nil
	}

	for _, parent := range parents {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		children, err := h3index.ChildrenAt(parent, res)
		if err != nil {
			return fmt.Errorf("heatmap: children of %s: %w", parent, err)
		}

		for _, origin := range children {
			row, skip, err := processOrigin(ctx, deps, cfg, origin)
			if err != nil {
				return err
			}
			if skip {
				slog.InfoContext(ctx, "heatmap: origin cell skipped", "cell", origin)
				observability.IncHeatmapCell("skipped")
				continue
			}
			observability.IncHeatmapCell("ok")
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func processOrigin(ctx context.Context, deps WorkerDeps, cfg Config, originCell string) (model.MatrixRow, bool, error) {
	centroid, err := h3index.Centroid(originCell)
	if err != nil {
		return model.MatrixRow{}, false, fmt.Errorf("heatmap: centroid of %s: %w", originCell, err)
	}
	origins := []model.LatLng{centroid}

	splicedOrigins, artificial, err := deps.Splicer.Splice(ctx, origins, cfg.Mode)
	if err != nil {
		if errs.IsDisconnectedOrigin(err) {
			return model.MatrixRow{}, true, nil
		}
		return model.MatrixRow{}, false, fmt.Errorf("heatmap: splice %s: %w", originCell, err)
	}

	discard := make(map[int64]struct{}, len(artificial))
	for _, e := range artificial {
		discard[e.OldID] = struct{}{}
	}

	cols, err := deps.Assembler.Assemble(ctx, origins, cfg.Mode, cfg.Cost, artificial, discard)
	if err != nil {
		if errs.IsBufferExceedsNetwork(err) {
			return model.MatrixRow{}, true, nil
		}
		return model.MatrixRow{}, false, fmt.Errorf("heatmap: assemble %s: %w", originCell, err)
	}

	g := graph.Build(cols)
	var starts []int32
	for _, o := range splicedOrigins {
		if o.HasConnector {
			if id, ok := g.NodeID[o.ConnectorNode]; ok {
				starts = append(starts, id)
			}
		}
	}
	if len(starts) == 0 {
		return model.MatrixRow{}, true, nil
	}

	budget := budgetOf(cfg.Cost)
	rows := g.MultiSourceDijkstra(ctx, cfg.Mode, starts, budget)
	dist := combineMin(rows, g.NumNodes())

	bufferMeters := subnetwork.BufferDistance(cfg.Mode, cfg.Cost)
	destCentroids, err := deps.Destinations.Destinations(ctx, originCell, cfg.Mode, bufferMeters)
	if err != nil {
		return model.MatrixRow{}, false, fmt.Errorf("heatmap: destinations for %s: %w", originCell, err)
	}

	pg := grid.Fill(ctx, g, dist, cfg.Mode)
	cellGrid := grid.AggregateCells(pg, destCentroids, cfg.Cost)

	costMap := make(map[int][]string)
	for i, id := range cellGrid.CellIDs {
		c := cellGrid.Costs[i]
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 1) {
			continue
		}
		t := int(c)
		if t < 1 {
			t = 1
		}
		costMap[t] = append(costMap[t], id)
	}
	ensureOriginPresent(costMap, originCell)

	h3_3, err := h3index.H3_3Of(originCell)
	if err != nil {
		return model.MatrixRow{}, false, fmt.Errorf("heatmap: h3_3 of %s: %w", originCell, err)
	}

	destCells, traveltimes := flattenCostMap(costMap)
	return model.MatrixRow{OrigCell: originCell, H3_3: h3_3, DestCells: destCells, Traveltime: traveltimes}, false, nil
}

func ensureOriginPresent(costMap map[int][]string, originCell string) {
	for _, cells := range costMap[1] {
		if cells == originCell {
			return
		}
	}
	costMap[1] = append(costMap[1], originCell)
}

func flattenCostMap(costMap map[int][]string) ([]string, []float32) {
	ts := make([]int, 0, len(costMap))
	for t := range costMap {
		ts = append(ts, t)
	}
	sort.Ints(ts)

	var cells []string
	var times []float32
	for _, t := range ts {
		for _, id := range costMap[t] {
			cells = append(cells, id)
			times = append(times, float32(t))
		}
	}
	return cells, times
}

func combineMin(rows [][]float64, numNodes int) []float64 {
	out := make([]float64, numNodes)
	for i := range out {
		out[i] = math.Inf(1)
	}
	for _, row := range rows {
		for i, d := range row {
			if d < out[i] {
				out[i] = d
			}
		}
	}
	return out
}

func budgetOf(cost model.TravelCost) float64 {
	if tc, ok := cost.(model.TimeCost); ok {
		return tc.BudgetSeconds()
	}
	return cost.(model.DistanceCost).MaxDistance
}
