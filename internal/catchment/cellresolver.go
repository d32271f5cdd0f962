package catchment

import (
	"context"
	"fmt"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/geo/h3index"
	"github.com/plan4better/catchment-engine/internal/geo/mercator"
)

// H3CellResolver resolves the Grid Interpolator's aggregation targets
// directly from H3, without a SQL round trip: it polyfills bounds at the
// mode's matrix resolution and projects each cell's WGS84 centroid into
// the same EPSG:3857 space the routing graph's geometry uses.
type H3CellResolver struct{}

func (H3CellResolver) Centroids(ctx context.Context, bounds model.BBox, mode model.RoutingMode) (map[string]model.Point, error) {
	res := h3index.MatrixResolution(mode)
	cells, err := h3index.CellsForBBox(bounds, res)
	if err != nil {
		return nil, fmt.Errorf("cellresolver: polyfill bounds: %w", err)
	}

	out := make(map[string]model.Point, len(cells))
	for _, c := range cells {
		centroid, err := h3index.Centroid(c)
		if err != nil {
			return nil, fmt.Errorf("cellresolver: centroid of %s: %w", c, err)
		}
		x, y := mercator.LonLatToWebMercator(centroid.Lng, centroid.Lat)
		out[c] = model.Point{X: x, Y: y}
	}
	return out, nil
}
