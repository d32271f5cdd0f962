// Package grid turns per-node routing costs into a dense, H3-indexed cost
// surface: a pixel raster in Web Mercator space (step 1-2), then an
// aggregation of that raster onto the caller's H3 cell centroids (step 3).
package grid

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
	"github.com/plan4better/catchment-engine/internal/geo/mercator"
	"github.com/plan4better/catchment-engine/internal/routing/graph"
)

// TileSize is the pixel edge length of one mercator tile at zoom 0,
// matching the XYZ tiling scheme the teacher's pixel utilities assume.
const TileSize = 256

const (
	activeMobilityZoom = 12
	carZoom            = 10
	extentMarginPixels = 32
	neighbourhoodRadius = 2
)

// ZoomForMode returns the raster zoom level spec.md §4.5 pins per mode:
// 12 for active mobility, 10 for car.
func ZoomForMode(mode model.RoutingMode) int {
	if mode == model.ModeCar {
		return carZoom
	}
	return activeMobilityZoom
}

// PixelGrid is the dense step-2 raster: a width*height array of minimum
// reach costs in pixel space, +Inf where unreached.
type PixelGrid struct {
	West, North   int
	Width, Height int
	Zoom          int
	Costs         []float32
}

func newPixelGrid(west, north, width, height, zoom int) *PixelGrid {
	g := &PixelGrid{West: west, North: north, Width: width, Height: height, Zoom: zoom}
	g.Costs = make([]float32, width*height)
	inf := float32(math.Inf(1))
	for i := range g.Costs {
		g.Costs[i] = inf
	}
	return g
}

func (g *PixelGrid) idx(x, y int) int { return y*g.Width + x }

func (g *PixelGrid) contains(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// PixelExtent computes step 1: the mercator pixel bounding box covering
// every coordinate, with a small margin, clipped so width/height never
// exceed TILE*2^zoom.
func PixelExtent(coords []model.Point, zoom int) (west, north, width, height int) {
	if len(coords) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range coords {
		px := mercator.CoordinateToPixel(c.X, c.Y, zoom, true)
		if px.X < minX {
			minX = px.X
		}
		if px.X > maxX {
			maxX = px.X
		}
		if px.Y < minY {
			minY = px.Y
		}
		if px.Y > maxY {
			maxY = px.Y
		}
	}

	west = int(math.Floor(minX)) - extentMarginPixels
	north = int(math.Floor(minY)) - extentMarginPixels
	width = int(math.Ceil(maxX)) - west + extentMarginPixels
	height = int(math.Ceil(maxY)) - north + extentMarginPixels

	maxSpan := TileSize << uint(zoom)
	if width > maxSpan {
		width = maxSpan
	}
	if height > maxSpan {
		height = maxSpan
	}
	return west, north, width, height
}

// Fill implements step 2: rasterize every edge whose endpoints are both
// finitely reached, interpolating a reach cost at each traversed pixel
// from the two endpoint costs weighted by projected-length fraction, and
// keeping the minimum across overlapping edges.
func Fill(ctx context.Context, g *graph.Graph, dist []float64, mode model.RoutingMode) *PixelGrid {
	start := time.Now()
	west, north, width, height := PixelExtent(g.Coord, ZoomForMode(mode))
	zoom := ZoomForMode(mode)
	pg := newPixelGrid(west, north, width, height, zoom)

	for e := 0; e < g.NumEdges(); e++ {
		if e%2048 == 0 && ctx.Err() != nil {
			break
		}
		u, v := g.EdgeU[e], g.EdgeV[e]
		du, dv := dist[u], dist[v]
		if math.IsInf(du, 1) || math.IsInf(dv, 1) {
			continue
		}

		pts := g.EdgePoints(int32(e))
		if len(pts) < 2 {
			continue
		}

		fillEdge(pg, pts, du, dv, zoom)
	}

	observability.ObserveGridFill(string(mode), time.Since(start).Seconds())
	return pg
}

func fillEdge(pg *PixelGrid, pts []model.Point, du, dv float64, zoom int) {
	cum := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		dx := pts[i].X - pts[i-1].X
		dy := pts[i].Y - pts[i-1].Y
		cum[i] = cum[i-1] + math.Hypot(dx, dy)
	}
	total := cum[len(cum)-1]

	for i := 0; i+1 < len(pts); i++ {
		p0 := mercator.CoordinateToPixel(pts[i].X, pts[i].Y, zoom, true)
		p1 := mercator.CoordinateToPixel(pts[i+1].X, pts[i+1].Y, zoom, true)
		segPixels := bresenhamLine(
			pixel{X: int(math.Round(p0.X)) - pg.West, Y: int(math.Round(p0.Y)) - pg.North},
			pixel{X: int(math.Round(p1.X)) - pg.West, Y: int(math.Round(p1.Y)) - pg.North},
		)
		m := len(segPixels)
		for j, px := range segPixels {
			if !pg.contains(px.X, px.Y) {
				continue
			}
			tLocal := 0.0
			if m > 1 {
				tLocal = float64(j) / float64(m-1)
			}
			segDist := cum[i] + tLocal*(cum[i+1]-cum[i])
			fraction := 0.0
			if total > 0 {
				fraction = segDist / total
			}
			cost := float32(du + fraction*(dv-du))
			idx := pg.idx(px.X, px.Y)
			if cost < pg.Costs[idx] {
				pg.Costs[idx] = cost
			}
		}
	}
}

// AggregateCells implements step 3: for each named H3 cell centroid
// (supplied in the same mercator coordinate space as the graph), look up
// the raster cost at its pixel, searching a small neighbourhood when the
// exact pixel is unreached or the centroid lands between samples. Cells
// outside the extent, or whose resolved cost is +Inf, yield NaN. Costs are
// rounded to the nearest minute for time budgets; distance budgets are
// left in metres.
func AggregateCells(pg *PixelGrid, centroids map[string]model.Point, cost model.TravelCost) model.Grid {
	ids := make([]string, 0, len(centroids))
	for id := range centroids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := model.Grid{Width: pg.Width, Height: pg.Height, West: pg.West, North: pg.North, Zoom: pg.Zoom}
	out.Costs = make([]float32, 0, len(ids))
	out.CellIDs = make([]string, 0, len(ids))

	for _, id := range ids {
		c := centroids[id]
		proj := mercator.CoordinateToPixel(c.X, c.Y, pg.Zoom, true)
		x := int(math.Round(proj.X)) - pg.West
		y := int(math.Round(proj.Y)) - pg.North

		val := lookupNearest(pg, x, y)
		if !cost.IsDistanceBased() && !math.IsInf(float64(val), 1) {
			// dist[] and the pixel raster carry seconds (cost = length/speed);
			// spec.md §4.5 stores time budgets as whole minutes.
			val = float32(math.Round(float64(val) / 60))
		}
		out.CellIDs = append(out.CellIDs, id)
		out.Costs = append(out.Costs, val)
	}
	return out
}

func lookupNearest(pg *PixelGrid, x, y int) float32 {
	if pg.contains(x, y) {
		if v := pg.Costs[pg.idx(x, y)]; !math.IsInf(float64(v), 1) {
			return v
		}
	}
	best := float32(math.Inf(1))
	for dy := -neighbourhoodRadius; dy <= neighbourhoodRadius; dy++ {
		for dx := -neighbourhoodRadius; dx <= neighbourhoodRadius; dx++ {
			nx, ny := x+dx, y+dy
			if !pg.contains(nx, ny) {
				continue
			}
			if v := pg.Costs[pg.idx(nx, ny)]; v < best {
				best = v
			}
		}
	}
	if math.IsInf(float64(best), 1) {
		return float32(math.NaN())
	}
	return best
}
