// Package catchment drives a single catchment request end-to-end: origin
// splicing, sub-network assembly, shortest-path search, grid interpolation
// and contouring, persisted through a transactional ResultWriter.
package catchment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
	"github.com/plan4better/catchment-engine/internal/geo/mercator"
	"github.com/plan4better/catchment-engine/internal/jsoline"
	"github.com/plan4better/catchment-engine/internal/routing/graph"
	"github.com/plan4better/catchment-engine/internal/routing/grid"
)

// Splicer produces artificial edges connecting raw origins onto the
// network (component C).
type Splicer interface {
	Splice(ctx context.Context, origins []model.LatLng, mode model.RoutingMode) ([]model.Origin, []model.ArtificialEdge, error)
}

// Assembler produces the bounded, costed sub-network a request needs
// (component D).
type Assembler interface {
	Assemble(ctx context.Context, origins []model.LatLng, mode model.RoutingMode, cost model.TravelCost, artificial []model.ArtificialEdge, discardIDs map[int64]struct{}) (model.Columns, error)
}

// CellResolver resolves the H3 cells (and their mercator centroids) the
// Grid Interpolator should aggregate onto, for a given bounding box and
// mode's matrix resolution.
type CellResolver interface {
	Centroids(ctx context.Context, bounds model.BBox, mode model.RoutingMode) (map[string]model.Point, error)
}

// NetworkFeature is one reached edge, ready for EPSG:4326 persistence.
type NetworkFeature struct {
	EdgeID      int64
	Geometry    []model.LatLng
	IngressCost float64
}

// ResultWriter owns the request's transaction boundary: the Orchestrator
// is the sole caller of Commit/Rollback, matching spec §7's propagation
// policy that only the orchestrator performs I/O cleanup.
type ResultWriter interface {
	InsertShapes(ctx context.Context, layerID string, shapes []jsoline.Shape) error
	InsertNetworkFeatures(ctx context.Context, layerID string, features []NetworkFeature) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WriterFactory opens a new transactional ResultWriter for one request.
type WriterFactory func(ctx context.Context) (ResultWriter, error)

type Orchestrator struct {
	splicer   Splicer
	assembler Assembler
	cells     CellResolver
	contourer jsoline.Contourer
	writers   WriterFactory
}

func New(splicer Splicer, assembler Assembler, cells CellResolver, contourer jsoline.Contourer, writers WriterFactory) *Orchestrator {
	return &Orchestrator{splicer: splicer, assembler: assembler, cells: cells, contourer: contourer, writers: writers}
}

// Run executes steps 1-6 of spec §4.6 for a single request.
func (o *Orchestrator) Run(ctx context.Context, req model.CatchmentRequest) (err error) {
	start := time.Now()
	defer func() {
		observability.ObserveCatchment(string(req.Mode), string(req.ReturnType), time.Since(start).Seconds())
		if err != nil {
			observability.IncCatchmentError(kindOf(err))
		}
	}()

	writer, err := o.writers(ctx)
	if err != nil {
		return fmt.Errorf("catchment: open result writer: %w", err)
	}

	origins, artificial, err := o.splicer.Splice(ctx, req.Origins, req.Mode)
	if err != nil {
		_ = writer.Rollback(ctx)
		return err
	}

	discard := discardSet(artificial)
	cols, err := o.assembler.Assemble(ctx, req.Origins, req.Mode, req.Cost, artificial, discard)
	if err != nil {
		_ = writer.Rollback(ctx)
		return err
	}

	g := graph.Build(cols)
	starts := startNodes(g, origins)
	if len(starts) == 0 {
		_ = writer.Rollback(ctx)
		return &errs.DisconnectedOrigin{NumOrigins: len(req.Origins)}
	}

	budget := budgetOf(req.Cost)
	rows := g.MultiSourceDijkstra(ctx, req.Mode, starts, budget)
	dist := combineMin(rows, g.NumNodes())

	switch req.ReturnType {
	case model.ReturnPolygon:
		err = o.writePolygon(ctx, writer, req, g, dist)
	case model.ReturnNetwork:
		err = o.writeNetwork(ctx, writer, req, g, dist)
	case model.ReturnRectangularGrid:
		err = o.writeRectangularGrid(ctx, writer, req, g, dist)
	default:
		err = fmt.Errorf("catchment: unknown return_type %q", req.ReturnType)
	}
	if err != nil {
		_ = writer.Rollback(ctx)
		return err
	}

	if err := writer.Commit(ctx); err != nil {
		return fmt.Errorf("catchment: commit: %w", err)
	}
	return nil
}

func (o *Orchestrator) writePolygon(ctx context.Context, writer ResultWriter, req model.CatchmentRequest, g *graph.Graph, dist []float64) error {
	bbox := bboxOfCoords(g.Coord)
	centroids, err := o.cells.Centroids(ctx, bbox, req.Mode)
	if err != nil {
		return fmt.Errorf("catchment: resolve grid cells: %w", err)
	}

	pg := grid.Fill(ctx, g, dist, req.Mode)
	cellGrid := grid.AggregateCells(pg, centroids, req.Cost)

	steps := req.Steps
	if steps <= 0 {
		steps = 1
	}
	shapes, err := o.contourer.Contour(cellGrid, req.Cost.StepValue(), steps, req.Difference)
	if err != nil {
		return fmt.Errorf("catchment: contour: %w", err)
	}
	return writer.InsertShapes(ctx, req.LayerID, shapes)
}

func (o *Orchestrator) writeNetwork(ctx context.Context, writer ResultWriter, req model.CatchmentRequest, g *graph.Graph, dist []float64) error {
	var features []NetworkFeature
	const batchSize = 1000

	for e := 0; e < g.NumEdges(); e++ {
		u, v := g.EdgeU[e], g.EdgeV[e]
		if math.IsInf(dist[u], 1) || math.IsInf(dist[v], 1) {
			continue
		}
		pts := g.EdgePoints(int32(e))
		geom := make([]model.LatLng, len(pts))
		for i, p := range pts {
			lon, lat := mercator.WebMercatorToLonLat(p.X, p.Y)
			geom[i] = model.LatLng{Lat: lat, Lng: lon}
		}
		features = append(features, NetworkFeature{
			EdgeID:      g.EdgeID[e],
			Geometry:    geom,
			IngressCost: math.Min(dist[u], dist[v]),
		})
		if len(features) >= batchSize {
			if err := writer.InsertNetworkFeatures(ctx, req.LayerID, features); err != nil {
				return err
			}
			features = features[:0]
		}
	}
	if len(features) > 0 {
		return writer.InsertNetworkFeatures(ctx, req.LayerID, features)
	}
	return nil
}

// writeRectangularGrid is the rectangular-grid stub: it resolves the cell
// grid and contours one step at the request's StepValue, so only the cells
// reached within the first step are written, as a single Step 1 shape made
// of their H3 cell boundaries. It writes no rectangular raster, and writes
// no shape at all when StepValue is not positive.
func (o *Orchestrator) writeRectangularGrid(ctx context.Context, writer ResultWriter, req model.CatchmentRequest, g *graph.Graph, dist []float64) error {
	bbox := bboxOfCoords(g.Coord)
	centroids, err := o.cells.Centroids(ctx, bbox, req.Mode)
	if err != nil {
		return fmt.Errorf("catchment: resolve grid cells: %w", err)
	}
	pg := grid.Fill(ctx, g, dist, req.Mode)
	cellGrid := grid.AggregateCells(pg, centroids, req.Cost)

	shapes, err := o.contourer.Contour(cellGrid, req.Cost.StepValue(), 1, false)
	if err != nil {
		return fmt.Errorf("catchment: contour rectangular grid stub: %w", err)
	}
	return writer.InsertShapes(ctx, req.LayerID, shapes)
}

func discardSet(artificial []model.ArtificialEdge) map[int64]struct{} {
	out := make(map[int64]struct{}, len(artificial))
	for _, e := range artificial {
		out[e.OldID] = struct{}{}
	}
	return out
}

func startNodes(g *graph.Graph, origins []model.Origin) []int32 {
	var starts []int32
	for _, o := range origins {
		if !o.HasConnector {
			continue
		}
		if id, ok := g.NodeID[o.ConnectorNode]; ok {
			starts = append(starts, id)
		}
	}
	return starts
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

func bboxOfCoords(coords []model.Point) model.BBox {
	if len(coords) == 0 {
		return model.BBox{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range coords {
		lon, lat := mercator.WebMercatorToLonLat(c.X, c.Y)
		if lon < minX {
			minX = lon
		}
		if lon > maxX {
			maxX = lon
		}
		if lat < minY {
			minY = lat
		}
		if lat > maxY {
			maxY = lat
		}
	}
	return model.BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

func kindOf(err error) string {
	switch {
	case errs.IsDisconnectedOrigin(err):
		return "disconnected_origin"
	case errs.IsBufferExceedsNetwork(err):
		return "buffer_exceeds_network"
	default:
		return "error"
	}
}
