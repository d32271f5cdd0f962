package subnetwork

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// PgEnvelopeFinder buffers each origin by bufferMeters and fills the union
// with H3-6 cells via `temporal.fill_polygon_h3_3`, grouping by
// resolution-3 parent, matching spec §4.3 step 2.
type PgEnvelopeFinder struct {
	pool *pgxpool.Pool
}

func NewPgEnvelopeFinder(pool *pgxpool.Pool) *PgEnvelopeFinder {
	return &PgEnvelopeFinder{pool: pool}
}

const envelopeQuery = `
SELECT h3_3, h3_6
FROM temporal.fill_polygon_h3_3($1, $2, $3)
`

func (f *PgEnvelopeFinder) Envelope(ctx context.Context, origins []model.LatLng, bufferMeters float64) ([]int64, map[int64]struct{}, error) {
	lons := make([]float64, len(origins))
	lats := make([]float64, len(origins))
	for i, o := range origins {
		lons[i] = o.Lng
		lats[i] = o.Lat
	}

	start := time.Now()
	rows, err := f.pool.Query(ctx, envelopeQuery, lons, lats, bufferMeters)
	if err != nil {
		observability.ObserveDBQuery("subnetwork.envelope", time.Since(start).Seconds(), err)
		return nil, nil, fmt.Errorf("query fill_polygon_h3_3: %w", err)
	}
	defer rows.Close()

	seen3 := make(map[int64]struct{})
	var h3_3s []int64
	h3_6set := make(map[int64]struct{})

	for rows.Next() {
		var k3, k6 int64
		if err := rows.Scan(&k3, &k6); err != nil {
			observability.ObserveDBQuery("subnetwork.envelope", time.Since(start).Seconds(), err)
			return nil, nil, fmt.Errorf("scan envelope row: %w", err)
		}
		if _, ok := seen3[k3]; !ok {
			seen3[k3] = struct{}{}
			h3_3s = append(h3_3s, k3)
		}
		h3_6set[k6] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		observability.ObserveDBQuery("subnetwork.envelope", time.Since(start).Seconds(), err)
		return nil, nil, fmt.Errorf("iterate envelope rows: %w", err)
	}
	observability.ObserveDBQuery("subnetwork.envelope", time.Since(start).Seconds(), nil)
	return h3_3s, h3_6set, nil
}
