package ogc

import (
	"strings"
	"testing"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

func TestPointsToPolygonWKTClosesOpenRing(t *testing.T) {
	ring := []model.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	wkt, err := PointsToPolygonWKT([][]model.Point{ring})
	if err != nil {
		t.Fatalf("PointsToPolygonWKT: %v", err)
	}
	if !strings.HasPrefix(wkt, "POLYGON(") {
		t.Fatalf("wkt = %q, want POLYGON(...)", wkt)
	}
	if strings.Count(wkt, "0.00000000 0.00000000") != 2 {
		t.Fatalf("expected the ring to be closed by repeating its first vertex: %q", wkt)
	}
}

func TestPointsToPolygonWKTRejectsShortRing(t *testing.T) {
	_, err := PointsToPolygonWKT([][]model.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}})
	if err == nil {
		t.Fatalf("expected error for a ring with fewer than 3 points")
	}
}

func TestPointsToLineStringWKT(t *testing.T) {
	pts := []model.LatLng{{Lat: 52.52, Lng: 13.40}, {Lat: 52.53, Lng: 13.41}}
	wkt, err := PointsToLineStringWKT(pts)
	if err != nil {
		t.Fatalf("PointsToLineStringWKT: %v", err)
	}
	if !strings.HasPrefix(wkt, "LINESTRING(13.40000000 52.52000000") {
		t.Fatalf("wkt = %q, want lon-lat ordered LINESTRING", wkt)
	}
}

func TestPointsToLineStringWKTRejectsSinglePoint(t *testing.T) {
	_, err := PointsToLineStringWKT([]model.LatLng{{Lat: 1, Lng: 1}})
	if err == nil {
		t.Fatalf("expected error for a linestring with fewer than 2 points")
	}
}
