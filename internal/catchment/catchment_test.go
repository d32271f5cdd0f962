package catchment

import (
	"context"
	"errors"
	"testing"

	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/jsoline"
)

type fakeSplicer struct {
	origins    []model.Origin
	artificial []model.ArtificialEdge
	err        error
}

func (f *fakeSplicer) Splice(ctx context.Context, origins []model.LatLng, mode model.RoutingMode) ([]model.Origin, []model.ArtificialEdge, error) {
	return f.origins, f.artificial, f.err
}

type fakeAssembler struct {
	cols model.Columns
	err  error
}

func (f *fakeAssembler) Assemble(ctx context.Context, origins []model.LatLng, mode model.RoutingMode, cost model.TravelCost, artificial []model.ArtificialEdge, discard map[int64]struct{}) (model.Columns, error) {
	return f.cols, f.err
}

type fakeCells struct{}

func (fakeCells) Centroids(ctx context.Context, bounds model.BBox, mode model.RoutingMode) (map[string]model.Point, error) {
	return map[string]model.Point{"8928308280fffff": {X: 0, Y: 0}}, nil
}

type fakeWriter struct {
	shapes     [][]jsoline.Shape
	features   [][]NetworkFeature
	committed  bool
	rolledBack bool
}

func (w *fakeWriter) InsertShapes(ctx context.Context, layerID string, shapes []jsoline.Shape) error {
	w.shapes = append(w.shapes, shapes)
	return nil
}
func (w *fakeWriter) InsertNetworkFeatures(ctx context.Context, layerID string, features []NetworkFeature) error {
	w.features = append(w.features, features)
	return nil
}
func (w *fakeWriter) Commit(ctx context.Context) error   { w.committed = true; return nil }
func (w *fakeWriter) Rollback(ctx context.Context) error { w.rolledBack = true; return nil }

func connectedSplice() ([]model.Origin, []model.ArtificialEdge) {
	origins := []model.Origin{{LatLng: model.LatLng{Lat: 52.52, Lng: 13.405}, ConnectorNode: 9000, HasConnector: true}}
	edges := []model.ArtificialEdge{
		{Edge: model.Edge{ID: 1, Source: 9000, Target: 55, LengthM: 10, Class: model.ClassResidential}, OldID: 55},
	}
	return origins, edges
}

func sampleAssembledNetwork() model.Columns {
	var c model.Columns
	c.Append(model.Edge{
		ID: 1, Source: 9000, Target: 55, LengthM: 100, Class: model.ClassResidential,
		Cost: 100, ReverseCost: 100,
		Coordinates3857: []model.Point{{X: 0, Y: 0}, {X: 100, Y: 0}},
	})
	return c
}

func TestRunPolygonHappyPathCommits(t *testing.T) {
	origins, artificial := connectedSplice()
	splicer := &fakeSplicer{origins: origins, artificial: artificial}
	assembler := &fakeAssembler{cols: sampleAssembledNetwork()}
	var w fakeWriter
	factory := func(ctx context.Context) (ResultWriter, error) { return &w, nil }

	o := New(splicer, assembler, fakeCells{}, jsoline.HexBandContourer{}, factory)

	req := model.CatchmentRequest{
		Origins:    []model.LatLng{{Lat: 52.52, Lng: 13.405}},
		Mode:       model.ModeWalking,
		Cost:       model.TimeCost{MaxTravelTime: 10, Step: 5, SpeedKPH: 5},
		ReturnType: model.ReturnPolygon,
		Steps:      2,
	}
	if err := o.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !w.committed {
		t.Fatalf("expected writer.Commit to be called")
	}
	if w.rolledBack {
		t.Fatalf("did not expect rollback on happy path")
	}
}

func TestRunDisconnectedOriginRollsBack(t *testing.T) {
	splicer := &fakeSplicer{origins: []model.Origin{{HasConnector: false}}, artificial: nil}
	assembler := &fakeAssembler{cols: sampleAssembledNetwork()}
	var w fakeWriter
	factory := func(ctx context.Context) (ResultWriter, error) { return &w, nil }

	o := New(splicer, assembler, fakeCells{}, jsoline.HexBandContourer{}, factory)
	req := model.CatchmentRequest{
		Origins:    []model.LatLng{{Lat: 0, Lng: 0}},
		Mode:       model.ModeWalking,
		Cost:       model.TimeCost{MaxTravelTime: 10, Step: 5, SpeedKPH: 5},
		ReturnType: model.ReturnPolygon,
		Steps:      2,
	}
	err := o.Run(context.Background(), req)
	var dis *errs.DisconnectedOrigin
	if !errors.As(err, &dis) {
		t.Fatalf("expected DisconnectedOrigin, got %v", err)
	}
	if !w.rolledBack || w.committed {
		t.Fatalf("expected rollback without commit, got rolledBack=%v committed=%v", w.rolledBack, w.committed)
	}
}

func TestRunAssemblerFailureRollsBack(t *testing.T) {
	origins, artificial := connectedSplice()
	splicer := &fakeSplicer{origins: origins, artificial: artificial}
	assembler := &fakeAssembler{err: errors.New("boom")}
	var w fakeWriter
	factory := func(ctx context.Context) (ResultWriter, error) { return &w, nil }

	o := New(splicer, assembler, fakeCells{}, jsoline.HexBandContourer{}, factory)
	req := model.CatchmentRequest{
		Origins:    []model.LatLng{{Lat: 52.52, Lng: 13.405}},
		Mode:       model.ModeWalking,
		Cost:       model.TimeCost{MaxTravelTime: 10, Step: 5, SpeedKPH: 5},
		ReturnType: model.ReturnPolygon,
	}
	if err := o.Run(context.Background(), req); err == nil {
		t.Fatalf("expected error")
	}
	if !w.rolledBack || w.committed {
		t.Fatalf("expected rollback without commit")
	}
}

func TestRunNetworkReturnTypeEmitsFeatures(t *testing.T) {
	origins, artificial := connectedSplice()
	splicer := &fakeSplicer{origins: origins, artificial: artificial}
	assembler := &fakeAssembler{cols: sampleAssembledNetwork()}
	var w fakeWriter
	factory := func(ctx context.Context) (ResultWriter, error) { return &w, nil }

	o := New(splicer, assembler, fakeCells{}, jsoline.HexBandContourer{}, factory)
	req := model.CatchmentRequest{
		Origins:    []model.LatLng{{Lat: 52.52, Lng: 13.405}},
		Mode:       model.ModeWalking,
		Cost:       model.TimeCost{MaxTravelTime: 10, Step: 5, SpeedKPH: 5},
		ReturnType: model.ReturnNetwork,
	}
	if err := o.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !w.committed {
		t.Fatalf("expected commit")
	}
	if len(w.features) == 0 || len(w.features[0]) == 0 {
		t.Fatalf("expected at least one network feature batch")
	}
}
