// Package matrixstore defines the sharded persistent store for heatmap
// travel-time matrix rows.
package matrixstore

import (
	"context"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

// Store persists and retrieves heatmap matrix rows, sharded by the origin
// cell's resolution-3 H3 parent the way the upstream schema distributes
// `temporal.heatmap_matrix` across Citus shards by h3_3.
type Store interface {
	// PutRows writes a batch of matrix rows for a single h3_3 shard.
	PutRows(ctx context.Context, h3_3 int64, rows []model.MatrixRow) error

	// GetRow returns the matrix row for a single origin cell, if present.
	GetRow(ctx context.Context, h3_3 int64, origCell string) (model.MatrixRow, bool, error)

	// DeleteShard drops every row belonging to an h3_3 shard, used when a
	// heatmap run is recomputed from scratch.
	DeleteShard(ctx context.Context, h3_3 int64) error

	Close() error
}
