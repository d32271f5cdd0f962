package heatmap

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
)

// testParentCell is a confirmed-valid H3 index (resolution 9), used as the
// enumeration root for ChildrenAt in these tests; any resolution below the
// target matrix resolution works, so exact parent resolution isn't load-bearing.
const testParentCell = "8928308280fffff"

type fakeSplicer struct {
	connectorNode int64
	err           error
}

func (f *fakeSplicer) Splice(ctx context.Context, origins []model.LatLng, mode model.RoutingMode) ([]model.Origin, []model.ArtificialEdge, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return []model.Origin{{LatLng: origins[0], ConnectorNode: f.connectorNode, HasConnector: true}},
		[]model.ArtificialEdge{{Edge: model.Edge{ID: 1, Source: f.connectorNode, Target: 2}, OldID: 2}}, nil
}

type fakeAssembler struct {
	cols model.Columns
	err  error
}

func (f *fakeAssembler) Assemble(ctx context.Context, origins []model.LatLng, mode model.RoutingMode, cost model.TravelCost, artificial []model.ArtificialEdge, discard map[int64]struct{}) (model.Columns, error) {
	return f.cols, f.err
}

type fakeDestinations struct {
	centroids map[string]model.Point
	err       error
}

func (f *fakeDestinations) Destinations(ctx context.Context, originCell string, mode model.RoutingMode, bufferMeters float64) (map[string]model.Point, error) {
	return f.centroids, f.err
}

type fakeStore struct {
	mu   sync.Mutex
	rows map[int64][]model.MatrixRow
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[int64][]model.MatrixRow{}} }

func (s *fakeStore) PutRows(ctx context.Context, h3_3 int64, rows []model.MatrixRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[h3_3] = append(s.rows[h3_3], rows...)
	return nil
}
func (s *fakeStore) GetRow(ctx context.Context, h3_3 int64, origCell string) (model.MatrixRow, bool, error) {
	return model.MatrixRow{}, false, nil
}
func (s *fakeStore) DeleteShard(ctx context.Context, h3_3 int64) error { return nil }
func (s *fakeStore) Close() error                                     { return nil }

func sampleNetwork(connector int64) model.Columns {
	var c model.Columns
	c.Append(model.Edge{
		ID: 1, Source: connector, Target: 2, LengthM: 100, Class: model.ClassResidential,
		Cost: 100, ReverseCost: 100,
		Coordinates3857: []model.Point{{X: 0, Y: 0}, {X: 100, Y: 0}},
	})
	return c
}

func TestRunChunkWritesMatrixRowWithOriginAtBucketOne(t *testing.T) {
	store := newFakeStore()
	deps := WorkerDeps{
		Splicer:      &fakeSplicer{connectorNode: 9000},
		Assembler:    &fakeAssembler{cols: sampleNetwork(9000)},
		Destinations: &fakeDestinations{centroids: map[string]model.Point{}},
		Store:        store,
	}
	cfg := Config{Mode: model.ModeWalking, Cost: model.TimeCost{MaxTravelTime: 30, SpeedKPH: 5}, BatchSize: 10}

	if err := RunChunk(context.Background(), deps, cfg, []string{testParentCell}); err != nil {
		t.Fatalf("RunChunk: %v", err)
	}

	var rows []model.MatrixRow
	for _, r := range store.rows {
		rows = append(rows, r...)
	}
	if len(rows) == 0 {
		t.Fatalf("expected at least one matrix row written")
	}
	found := false
	for _, row := range rows {
		for i, cell := range row.DestCells {
			if cell == row.OrigCell && row.Traveltime[i] == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected origin cell present at traveltime=1 in some row")
	}
}

func TestRunChunkSkipsDisconnectedOrigin(t *testing.T) {
	store := newFakeStore()
	deps := WorkerDeps{
		Splicer:      &fakeSplicer{err: &errs.DisconnectedOrigin{NumOrigins: 1}},
		Assembler:    &fakeAssembler{cols: sampleNetwork(9000)},
		Destinations: &fakeDestinations{},
		Store:        store,
	}
	cfg := Config{Mode: model.ModeWalking, Cost: model.TimeCost{MaxTravelTime: 30, SpeedKPH: 5}, BatchSize: 10}

	if err := RunChunk(context.Background(), deps, cfg, []string{testParentCell}); err != nil {
		t.Fatalf("expected DisconnectedOrigin to be skipped, got error: %v", err)
	}
	total := 0
	for _, r := range store.rows {
		total += len(r)
	}
	if total != 0 {
		t.Fatalf("expected no rows written when every origin is disconnected, got %d", total)
	}
}

func TestRunChunkSkipsBufferExceedsNetwork(t *testing.T) {
	store := newFakeStore()
	deps := WorkerDeps{
		Splicer:      &fakeSplicer{connectorNode: 9000},
		Assembler:    &fakeAssembler{err: &errs.BufferExceedsNetwork{H3_3: 1}},
		Destinations: &fakeDestinations{},
		Store:        store,
	}
	cfg := Config{Mode: model.ModeWalking, Cost: model.TimeCost{MaxTravelTime: 30, SpeedKPH: 5}, BatchSize: 10}

	if err := RunChunk(context.Background(), deps, cfg, []string{testParentCell}); err != nil {
		t.Fatalf("expected BufferExceedsNetwork to be skipped, got error: %v", err)
	}
}

func TestRunChunkAbortsOnOtherErrors(t *testing.T) {
	store := newFakeStore()
	deps := WorkerDeps{
		Splicer:      &fakeSplicer{err: errors.New("boom")},
		Assembler:    &fakeAssembler{cols: sampleNetwork(9000)},
		Destinations: &fakeDestinations{},
		Store:        store,
	}
	cfg := Config{Mode: model.ModeWalking, Cost: model.TimeCost{MaxTravelTime: 30, SpeedKPH: 5}, BatchSize: 10}

	if err := RunChunk(context.Background(), deps, cfg, []string{testParentCell}); err == nil {
		t.Fatalf("expected non-taxonomy error to abort the chunk")
	}
}
