package splice

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
)

type fakeSQLSplicer struct {
	calls atomic.Int32
	res   SpliceResult
	err   error
}

func (f *fakeSQLSplicer) SpliceOne(ctx context.Context, origin model.LatLng, allowed map[model.Class]struct{}) (SpliceResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return SpliceResult{}, f.err
	}
	return f.res, nil
}

func connectedResult() SpliceResult {
	return SpliceResult{
		ConnectorNodeID: 9000,
		H3Short:         123,
		H3_3Short:       4,
		ArtificialEdges: []model.ArtificialEdge{
			{Edge: model.Edge{ID: 1, Source: 9000, Target: 55}, PointID: 9000, OldID: 55},
			{Edge: model.Edge{ID: 2, Source: 77, Target: 9000}, PointID: 9000, OldID: 77},
		},
	}
}

func TestSpliceHappyPathReturnsOriginsAndEdges(t *testing.T) {
	fake := &fakeSQLSplicer{res: connectedResult()}
	s, err := New(fake, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	origins, edges, err := s.Splice(context.Background(), []model.LatLng{{Lat: 59.33, Lng: 18.07}}, model.ModeWalking)
	if err != nil {
		t.Fatalf("Splice: %v", err)
	}
	if len(origins) != 1 || !origins[0].HasConnector {
		t.Fatalf("expected 1 connected origin, got %+v", origins)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 artificial edges, got %d", len(edges))
	}
}

func TestSpliceRaisesDisconnectedOriginWhenNoneConnect(t *testing.T) {
	fake := &fakeSQLSplicer{res: SpliceResult{}}
	s, err := New(fake, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _, err = s.Splice(context.Background(), []model.LatLng{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}, model.ModeCar)
	var dis *errs.DisconnectedOrigin
	if !errors.As(err, &dis) {
		t.Fatalf("expected DisconnectedOrigin, got %v", err)
	}
	if dis.NumOrigins != 2 {
		t.Fatalf("DisconnectedOrigin.NumOrigins = %d, want 2", dis.NumOrigins)
	}
}

func TestSpliceMemoizesNearbyOriginsButAssignsFreshIDs(t *testing.T) {
	fake := &fakeSQLSplicer{res: connectedResult()}
	s, err := New(fake, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Two origins within ~1m of each other should hit the memoization cache.
	pts := []model.LatLng{
		{Lat: 59.330000, Lng: 18.070000},
		{Lat: 59.330001, Lng: 18.070001},
	}
	origins, edges, err := s.Splice(context.Background(), pts, model.ModeWalking)
	if err != nil {
		t.Fatalf("Splice: %v", err)
	}
	if got := fake.calls.Load(); got != 1 {
		t.Fatalf("expected SQL splicer called once due to memoization, got %d", got)
	}
	if origins[0].ConnectorNode == origins[1].ConnectorNode {
		t.Fatalf("expected distinct connector node ids for distinct origins, got %d twice", origins[0].ConnectorNode)
	}
	if len(edges) != 4 {
		t.Fatalf("expected 4 artificial edges total (2 origins x 2 edges), got %d", len(edges))
	}
	ids := map[int64]struct{}{}
	for _, e := range edges {
		if _, dup := ids[e.ID]; dup {
			t.Fatalf("duplicate artificial edge id %d across cache-hit origins", e.ID)
		}
		ids[e.ID] = struct{}{}
	}
}

func TestSpliceWrapsSQLErrors(t *testing.T) {
	fake := &fakeSQLSplicer{err: errors.New("boom")}
	s, err := New(fake, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _, err = s.Splice(context.Background(), []model.LatLng{{Lat: 1, Lng: 1}}, model.ModeBicycle)
	if err == nil {
		t.Fatalf("expected error")
	}
}
