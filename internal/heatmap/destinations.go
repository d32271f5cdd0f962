package heatmap

import (
	"context"
	"fmt"
	"math"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/geo/h3index"
	"github.com/plan4better/catchment-engine/internal/geo/mercator"
)

// H3RingDestinations resolves a synthetic origin's destination ring by
// deriving a grid-disk radius from the buffer distance and the H3
// resolution's average edge length (spec §4.7 step 5c).
type H3RingDestinations struct{}

func (H3RingDestinations) Destinations(ctx context.Context, originCell string, mode model.RoutingMode, bufferMeters float64) (map[string]model.Point, error) {
	res := h3index.MatrixResolution(mode)
	edgeLen := h3index.AverageEdgeLengthMeters(res)
	radius := int(math.Ceil(bufferMeters / edgeLen))
	if radius < 1 {
		radius = 1
	}

	cells, err := h3index.GridDiskAround(originCell, radius)
	if err != nil {
		return nil, fmt.Errorf("destinations: grid disk around %s: %w", originCell, err)
	}

	out := make(map[string]model.Point, len(cells))
	for _, c := range cells {
		centroid, err := h3index.Centroid(c)
		if err != nil {
			return nil, fmt.Errorf("destinations: centroid of %s: %w", c, err)
		}
		x, y := mercator.LonLatToWebMercator(centroid.Lng, centroid.Lat)
		out[c] = model.Point{X: x, Y: y}
	}
	return out, nil
}
