package catchment

import (
	"context"
	"testing"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

func TestH3CellResolverReturnsCentroidsWithinBounds(t *testing.T) {
	bounds := model.BBox{MinX: 13.38, MinY: 52.50, MaxX: 13.43, MaxY: 52.54}
	out, err := H3CellResolver{}.Centroids(context.Background(), bounds, model.ModeWalking)
	if err != nil {
		t.Fatalf("Centroids: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected at least one resolved cell")
	}
	for id, pt := range out {
		if pt.X == 0 && pt.Y == 0 {
			t.Fatalf("cell %s resolved to zero-value point", id)
		}
	}
}
