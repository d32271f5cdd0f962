package catchment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
	"github.com/plan4better/catchment-engine/internal/core/ogc"
	"github.com/plan4better/catchment-engine/internal/jsoline"
)

// PgResultWriter persists shapes and network features inside a single
// transaction, per the result-table contract of spec.md §6: polygon rows
// are (layer_id, geom Polygon/4326, integer_attr1), network rows are
// (layer_id, geom LineString/4326, float_attr1).
type PgResultWriter struct {
	tx pgx.Tx
}

// NewPgResultWriter opens a transaction against pool; Commit/Rollback close
// it. Callers close over pool to build a WriterFactory.
func NewPgResultWriter(ctx context.Context, pool *pgxpool.Pool) (ResultWriter, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("catchment: begin transaction: %w", err)
	}
	return &PgResultWriter{tx: tx}, nil
}

func (w *PgResultWriter) InsertShapes(ctx context.Context, layerID string, shapes []jsoline.Shape) error {
	start := time.Now()
	batch := &pgx.Batch{}
	queued := 0
	for _, shape := range shapes {
		for _, ring := range shape.Rings {
			wkt, err := ogc.PointsToPolygonWKT([][]model.Point{ring})
			if err != nil {
				return fmt.Errorf("catchment: shape step %d geometry: %w", shape.Step, err)
			}
			batch.Queue(
				`INSERT INTO catchment_polygon_result (layer_id, geom, integer_attr1) VALUES ($1, ST_GeomFromText($2, 4326), $3)`,
				layerID, wkt, shape.Step,
			)
			queued++
		}
	}
	br := w.tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			observability.ObserveDBQuery("catchment.insert_shapes", time.Since(start).Seconds(), err)
			return fmt.Errorf("catchment: insert shape: %w", err)
		}
	}
	observability.ObserveDBQuery("catchment.insert_shapes", time.Since(start).Seconds(), nil)
	return nil
}

func (w *PgResultWriter) InsertNetworkFeatures(ctx context.Context, layerID string, features []NetworkFeature) error {
	start := time.Now()
	batch := &pgx.Batch{}
	for _, f := range features {
		wkt, err := ogc.PointsToLineStringWKT(f.Geometry)
		if err != nil {
			return fmt.Errorf("catchment: network feature %d geometry: %w", f.EdgeID, err)
		}
		batch.Queue(
			`INSERT INTO catchment_network_result (layer_id, geom, float_attr1) VALUES ($1, ST_GeomFromText($2, 4326), $3)`,
			layerID, wkt, f.IngressCost,
		)
	}
	br := w.tx.SendBatch(ctx, batch)
	defer br.Close()
	for range features {
		if _, err := br.Exec(); err != nil {
			observability.ObserveDBQuery("catchment.insert_network", time.Since(start).Seconds(), err)
			return fmt.Errorf("catchment: insert network feature: %w", err)
		}
	}
	observability.ObserveDBQuery("catchment.insert_network", time.Since(start).Seconds(), nil)
	return nil
}

func (w *PgResultWriter) Commit(ctx context.Context) error {
	if err := w.tx.Commit(ctx); err != nil {
		return fmt.Errorf("catchment: commit: %w", err)
	}
	return nil
}

func (w *PgResultWriter) Rollback(ctx context.Context) error {
	if err := w.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("catchment: rollback: %w", err)
	}
	return nil
}
