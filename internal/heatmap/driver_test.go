package heatmap

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

type fakeGeofence struct {
	cells []string
	err   error
}

func (f *fakeGeofence) H3_6Cells(ctx context.Context) ([]string, error) {
	return f.cells, f.err
}

func TestRoundRobinChunksDistributesRemainder(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	chunks := roundRobinChunks(items, 2)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(items) {
		t.Fatalf("expected every item distributed, got %d of %d", total, len(items))
	}
	if len(chunks[0]) != 3 || len(chunks[1]) != 2 {
		t.Fatalf("expected round-robin split 3/2, got %d/%d", len(chunks[0]), len(chunks[1]))
	}
}

func TestDriverRunInvokesWorkerPerNonEmptyChunk(t *testing.T) {
	geofence := &fakeGeofence{cells: []string{testParentCell, testParentCell}}

	var mu sync.Mutex
	var invoked []int

	driver := &Driver{
		Geofence:   geofence,
		NumThreads: 2,
		BatchSize:  10,
		NewWorker: func(ctx context.Context, workerIndex int) (WorkerDeps, error) {
			mu.Lock()
			invoked = append(invoked, workerIndex)
			mu.Unlock()
			return WorkerDeps{
				Splicer:      &fakeSplicer{connectorNode: 9000},
				Assembler:    &fakeAssembler{cols: sampleNetwork(9000)},
				Destinations: &fakeDestinations{centroids: map[string]model.Point{}},
				Store:        newFakeStore(),
			}, nil
		},
	}

	cost := model.TimeCost{MaxTravelTime: 30, SpeedKPH: 5}
	if err := driver.Run(context.Background(), model.ModeWalking, cost); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(invoked) != 2 {
		t.Fatalf("expected 2 workers invoked, got %d", len(invoked))
	}
}

func TestDriverRunPropagatesFirstWorkerError(t *testing.T) {
	geofence := &fakeGeofence{cells: []string{testParentCell, testParentCell}}

	driver := &Driver{
		Geofence:   geofence,
		NumThreads: 2,
		BatchSize:  10,
		NewWorker: func(ctx context.Context, workerIndex int) (WorkerDeps, error) {
			return WorkerDeps{
				Splicer:      &fakeSplicer{err: errors.New("boom")},
				Assembler:    &fakeAssembler{cols: sampleNetwork(9000)},
				Destinations: &fakeDestinations{},
				Store:        newFakeStore(),
			}, nil
		},
	}

	cost := model.TimeCost{MaxTravelTime: 30, SpeedKPH: 5}
	if err := driver.Run(context.Background(), model.ModeWalking, cost); err == nil {
		t.Fatalf("expected worker error to propagate from Run")
	}
}

func TestDriverRunNoGeofenceCellsIsNoop(t *testing.T) {
	driver := &Driver{
		Geofence:   &fakeGeofence{cells: nil},
		NumThreads: 2,
		BatchSize:  10,
		NewWorker: func(ctx context.Context, workerIndex int) (WorkerDeps, error) {
			t.Fatalf("worker should not be constructed when geofence is empty")
			return WorkerDeps{}, nil
		},
	}
	cost := model.TimeCost{MaxTravelTime: 30, SpeedKPH: 5}
	if err := driver.Run(context.Background(), model.ModeWalking, cost); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDriverRunSurfacesGeofenceError(t *testing.T) {
	driver := &Driver{
		Geofence:   &fakeGeofence{err: errors.New("db down")},
		NumThreads: 2,
		BatchSize:  10,
		NewWorker: func(ctx context.Context, workerIndex int) (WorkerDeps, error) {
			t.Fatalf("worker should not be constructed when geofence lookup fails")
			return WorkerDeps{}, nil
		},
	}
	cost := model.TimeCost{MaxTravelTime: 30, SpeedKPH: 5}
	if err := driver.Run(context.Background(), model.ModeWalking, cost); err == nil {
		t.Fatalf("expected geofence error to propagate")
	}
}
