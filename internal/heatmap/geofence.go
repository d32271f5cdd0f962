package heatmap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// PgGeofenceSource resolves the H3-6 cover of the configured network
// region table via `basic.fill_polygon_h3`, spec §6's named entry point.
type PgGeofenceSource struct {
	pool        *pgxpool.Pool
	regionTable string
}

func NewPgGeofenceSource(pool *pgxpool.Pool, regionTable string) *PgGeofenceSource {
	return &PgGeofenceSource{pool: pool, regionTable: regionTable}
}

func (s *PgGeofenceSource) H3_6Cells(ctx context.Context) ([]string, error) {
	ident := pgx.Identifier(strings.Split(s.regionTable, "."))
	query := fmt.Sprintf(
		`SELECT h3_index::text FROM basic.fill_polygon_h3((SELECT ST_Union(geom) FROM %s), 6)`,
		ident.Sanitize(),
	)

	start := time.Now()
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		observability.ObserveDBQuery("heatmap.geofence", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("query fill_polygon_h3: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cell string
		if err := rows.Scan(&cell); err != nil {
			observability.ObserveDBQuery("heatmap.geofence", time.Since(start).Seconds(), err)
			return nil, fmt.Errorf("scan geofence cell: %w", err)
		}
		out = append(out, cell)
	}
	if err := rows.Err(); err != nil {
		observability.ObserveDBQuery("heatmap.geofence", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("iterate geofence rows: %w", err)
	}
	observability.ObserveDBQuery("heatmap.geofence", time.Since(start).Seconds(), nil)
	return out, nil
}
