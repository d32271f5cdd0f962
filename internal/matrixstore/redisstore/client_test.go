package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

func newMini(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestPutRowsAndGetRowRoundTrip(t *testing.T) {
	rc := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rows := []model.MatrixRow{
		{OrigCell: "8a1fb46622dffff", H3_3: 581, DestCells: []string{"a", "b"}, Traveltime: []float32{1.5, 2.5}},
		{OrigCell: "8a1fb46622effff", H3_3: 581, DestCells: []string{"c"}, Traveltime: []float32{3.5}},
	}
	if err := rc.PutRows(ctx, 581, rows); err != nil {
		t.Fatalf("PutRows: %v", err)
	}

	got, ok, err := rc.GetRow(ctx, 581, "8a1fb46622dffff")
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if !ok {
		t.Fatalf("expected row to be found")
	}
	if len(got.DestCells) != 2 || got.Traveltime[1] != 2.5 {
		t.Fatalf("unexpected row contents: %+v", got)
	}

	_, ok, err = rc.GetRow(ctx, 581, "missing")
	if err != nil {
		t.Fatalf("GetRow missing: %v", err)
	}
	if ok {
		t.Fatalf("expected miss for unknown cell")
	}
}

func TestDeleteShardRemovesOnlyMatchingKeys(t *testing.T) {
	rc := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.PutRows(ctx, 581, []model.MatrixRow{{OrigCell: "x", H3_3: 581}}); err != nil {
		t.Fatalf("PutRows shard 581: %v", err)
	}
	if err := rc.PutRows(ctx, 582, []model.MatrixRow{{OrigCell: "y", H3_3: 582}}); err != nil {
		t.Fatalf("PutRows shard 582: %v", err)
	}

	if err := rc.DeleteShard(ctx, 581); err != nil {
		t.Fatalf("DeleteShard: %v", err)
	}

	_, ok, err := rc.GetRow(ctx, 581, "x")
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if ok {
		t.Fatalf("expected shard 581 row to be deleted")
	}

	_, ok, err = rc.GetRow(ctx, 582, "y")
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if !ok {
		t.Fatalf("expected shard 582 row to survive")
	}
}
