// Package jsoline turns a cost grid into contoured catchment shapes. It is
// an intentionally simplified stand-in for the real marching-squares
// jsoline algorithm the Catchment Orchestrator treats as an external
// collaborator (spec §1): since the Grid Interpolator's output is already
// H3-indexed, HexBandContourer bands cells by reached cost and emits their
// hexagon boundaries directly instead of tracing isolines through a raster.
package jsoline

import (
	"math"
	"sort"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/geo/h3index"
)

// Shape is the set of H3 cells at a single cost step, one boundary ring per
// cell, ready for EPSG:4326 persistence.
type Shape struct {
	Step          int
	CostThreshold float64
	Rings         [][]model.Point
}

// Contourer produces catchment shapes from a cost grid. grid is the
// step-3 output of the Grid Interpolator; stepSize is the per-step cost
// increment (the TravelCost's StepValue()); diff requests each shape hold
// only the cells newly reached since the previous step rather than the
// full cumulative set.
type Contourer interface {
	Contour(grid model.Grid, stepSize float64, steps int, diff bool) ([]Shape, error)
}

// HexBandContourer is the default Contourer: step n's shape holds every
// cell whose cost is within n*stepSize (with diff, only the cells not
// already within the previous step's threshold), and each cell's hexagon
// boundary becomes one of the shape's rings.
type HexBandContourer struct{}

func (HexBandContourer) Contour(grid model.Grid, stepSize float64, steps int, diff bool) ([]Shape, error) {
	if stepSize <= 0 || steps <= 0 {
		return nil, nil
	}

	var shapes []Shape
	prevSet := map[string]struct{}{}

	for step := 1; step <= steps; step++ {
		threshold := float64(step) * stepSize
		cumulative := cellsUnderThreshold(grid, threshold)

		cellSet := cumulative
		if diff {
			cellSet = subtract(cumulative, prevSet)
		}
		prevSet = cumulative

		if len(cellSet) == 0 {
			continue
		}

		rings, err := boundariesFor(cellSet)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, Shape{Step: step, CostThreshold: threshold, Rings: rings})
	}
	return shapes, nil
}

func cellsUnderThreshold(grid model.Grid, threshold float64) map[string]struct{} {
	out := map[string]struct{}{}
	for i, id := range grid.CellIDs {
		c := float64(grid.Costs[i])
		if math.IsNaN(c) || math.IsInf(c, 1) {
			continue
		}
		if c <= threshold {
			out[id] = struct{}{}
		}
	}
	return out
}

func subtract(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a))
	for id := range a {
		if _, skip := b[id]; !skip {
			out[id] = struct{}{}
		}
	}
	return out
}

func boundariesFor(cells map[string]struct{}) ([][]model.Point, error) {
	ids := make([]string, 0, len(cells))
	for id := range cells {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rings := make([][]model.Point, 0, len(ids))
	for _, id := range ids {
		boundary, err := h3index.BoundaryLatLng(id)
		if err != nil {
			return nil, err
		}
		rings = append(rings, boundary)
	}
	return rings, nil
}
