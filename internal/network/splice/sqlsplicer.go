package splice

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// PgSplicer is the SQLSplicer implementation backed by
// temporal.get_artificial_segments, a stored function performing nearest
// edge projection and id generation inside Postgres.
type PgSplicer struct {
	pool         *pgxpool.Pool
	targetH3Res  int
}

func NewPgSplicer(pool *pgxpool.Pool, targetH3Res int) *PgSplicer {
	return &PgSplicer{pool: pool, targetH3Res: targetH3Res}
}

const spliceQuery = `
SELECT id, source, target, old_id, length_m, class_,
       impedance_slope, impedance_slope_reverse, impedance_surface,
       coordinates_3857, h3_3, connector_node_id, h3_short, h3_3_short
FROM temporal.get_artificial_segments($1, $2, $3, $4)
`

func (p *PgSplicer) SpliceOne(ctx context.Context, origin model.LatLng, allowedClasses map[model.Class]struct{}) (SpliceResult, error) {
	classNames := make([]string, 0, len(allowedClasses))
	for c := range allowedClasses {
		classNames = append(classNames, string(c))
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, spliceQuery, origin.Lng, origin.Lat, classNames, p.targetH3Res)
	if err != nil {
		observability.ObserveDBQuery("splice.get_artificial_segments", time.Since(start).Seconds(), err)
		return SpliceResult{}, fmt.Errorf("query get_artificial_segments: %w", err)
	}
	defer rows.Close()

	var res SpliceResult
	for rows.Next() {
		var (
			e          model.ArtificialEdge
			class      string
			flatCoords []float64
		)
		if err := rows.Scan(
			&e.ID, &e.Source, &e.Target, &e.OldID, &e.LengthM, &class,
			&e.ImpedanceSlope, &e.ImpedanceSlopeRev, &e.ImpedanceSurface,
			&flatCoords, &e.H3_3, &res.ConnectorNodeID, &res.H3Short, &res.H3_3Short,
		); err != nil {
			observability.ObserveDBQuery("splice.get_artificial_segments", time.Since(start).Seconds(), err)
			return SpliceResult{}, fmt.Errorf("scan artificial segment row: %w", err)
		}
		e.Class = model.NewClass(class)
		e.PointID = res.ConnectorNodeID
		for i := 0; i+1 < len(flatCoords); i += 2 {
			e.Coordinates3857 = append(e.Coordinates3857, model.Point{X: flatCoords[i], Y: flatCoords[i+1]})
		}
		res.ArtificialEdges = append(res.ArtificialEdges, e)
	}
	if err := rows.Err(); err != nil {
		observability.ObserveDBQuery("splice.get_artificial_segments", time.Since(start).Seconds(), err)
		return SpliceResult{}, fmt.Errorf("iterate artificial segment rows: %w", err)
	}
	observability.ObserveDBQuery("splice.get_artificial_segments", time.Since(start).Seconds(), nil)
	return res, nil
}
