package subnetwork

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// GeofenceSource answers which resolution-3 H3 cells the configured
// network region actually covers, per spec §4.1's "enumerate all H3-3
// keys covering the configured geofence" step. The Assembler uses this to
// tell a shard that is legitimately empty (zero segments, still inside
// the network) apart from a buffer that walked off the edge of the
// network entirely.
type GeofenceSource interface {
	H3_3Keys(ctx context.Context) (map[int64]struct{}, error)
}

// PgNetworkGeofence resolves the resolution-3 cover of the configured
// network region table via basic.fill_polygon_h3, the same SQL entry
// point heatmap.PgGeofenceSource uses at resolution 6. The result never
// changes for the lifetime of a process, so it is resolved once and
// cached.
type PgNetworkGeofence struct {
	pool        *pgxpool.Pool
	regionTable string

	mu   sync.Mutex
	keys map[int64]struct{}
}

func NewPgNetworkGeofence(pool *pgxpool.Pool, regionTable string) *PgNetworkGeofence {
	return &PgNetworkGeofence{pool: pool, regionTable: regionTable}
}

func (g *PgNetworkGeofence) H3_3Keys(ctx context.Context) (map[int64]struct{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys != nil {
		return g.keys, nil
	}

	ident := pgx.Identifier(strings.Split(g.regionTable, "."))
	query := fmt.Sprintf(
		`SELECT h3_index FROM basic.fill_polygon_h3((SELECT ST_Union(geom) FROM %s), 3)`,
		ident.Sanitize(),
	)

	start := time.Now()
	rows, err := g.pool.Query(ctx, query)
	if err != nil {
		observability.ObserveDBQuery("subnetwork.geofence", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("query fill_polygon_h3: %w", err)
	}
	defer rows.Close()

	keys := make(map[int64]struct{})
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			observability.ObserveDBQuery("subnetwork.geofence", time.Since(start).Seconds(), err)
			return nil, fmt.Errorf("scan geofence cell: %w", err)
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		observability.ObserveDBQuery("subnetwork.geofence", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("iterate geofence rows: %w", err)
	}
	observability.ObserveDBQuery("subnetwork.geofence", time.Since(start).Seconds(), nil)

	g.keys = keys
	return keys, nil
}
