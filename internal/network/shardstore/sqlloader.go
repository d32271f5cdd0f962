package shardstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// Loader is the SQLLoader implementation backed by Postgres, querying the
// `basic.segment` table filtered to a single resolution-3 shard. h3_3 is
// always passed as a bound parameter, never interpolated into the SQL
// text.
type Loader struct {
	pool *pgxpool.Pool
}

func NewLoader(pool *pgxpool.Pool) *Loader {
	return &Loader{pool: pool}
}

const shardQuery = `
SELECT id, source, target, length_m, class_,
       impedance_slope, impedance_slope_reverse, impedance_surface,
       coordinates_3857, h3_3, h3_6, cost, reverse_cost
FROM basic.segment
WHERE h3_3 = $1
`

func (l *Loader) LoadShard(ctx context.Context, h3_3 int64) (model.Columns, error) {
	start := time.Now()
	rows, err := l.pool.Query(ctx, shardQuery, h3_3)
	if err != nil {
		observability.ObserveDBQuery("shardstore.load_shard", time.Since(start).Seconds(), err)
		return model.Columns{}, fmt.Errorf("query basic.segment h3_3=%d: %w", h3_3, err)
	}
	defer rows.Close()

	var cols model.Columns
	for rows.Next() {
		var (
			e        model.Edge
			class    string
			flatCoords []float64
		)
		if err := rows.Scan(
			&e.ID, &e.Source, &e.Target, &e.LengthM, &class,
			&e.ImpedanceSlope, &e.ImpedanceSlopeRev, &e.ImpedanceSurface,
			&flatCoords, &e.H3_3, &e.H3_6, &e.Cost, &e.ReverseCost,
		); err != nil {
			observability.ObserveDBQuery("shardstore.load_shard", time.Since(start).Seconds(), err)
			return model.Columns{}, fmt.Errorf("scan basic.segment row: %w", err)
		}
		e.Class = model.NewClass(class)
		for i := 0; i+1 < len(flatCoords); i += 2 {
			e.Coordinates3857 = append(e.Coordinates3857, model.Point{X: flatCoords[i], Y: flatCoords[i+1]})
		}
		cols.Append(e)
	}
	if err := rows.Err(); err != nil {
		observability.ObserveDBQuery("shardstore.load_shard", time.Since(start).Seconds(), err)
		return model.Columns{}, fmt.Errorf("iterate basic.segment rows h3_3=%d: %w", h3_3, err)
	}
	observability.ObserveDBQuery("shardstore.load_shard", time.Since(start).Seconds(), nil)
	return cols, nil
}
