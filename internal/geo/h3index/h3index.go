// Package h3index wraps the H3 indexing operations the routing engine
// needs: polyfilling a bounding box, walking rings/disks around a cell,
// and converting between full H3 cell strings and the compact per-shard
// short indices the network store persists.
package h3index

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func parseCell(cellStr string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cellStr)); err != nil {
		return 0, fmt.Errorf("parse cell %q: %w", cellStr, err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cellStr)
	}
	return c, nil
}

// CellsForBBox polyfills a WGS84 bounding box at the given resolution,
// returning sorted, deduplicated cell indices.
func CellsForBBox(bb model.BBox, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	outer := h3.GeoLoop{
		{Lat: bb.MinY, Lng: bb.MinX},
		{Lat: bb.MinY, Lng: bb.MaxX},
		{Lat: bb.MaxY, Lng: bb.MaxX},
		{Lat: bb.MaxY, Lng: bb.MinX},
	}
	return polyfillOne(outer, nil, res)
}

func polyfillOne(outer h3.GeoLoop, holes []h3.GeoLoop, res int) (model.Cells, error) {
	if len(outer) < 4 {
		return nil, fmt.Errorf("outer ring has < 4 vertices")
	}
	poly := h3.GeoPolygon{GeoLoop: outer, Holes: holes}

	indexes, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// LatLngToCell returns the H3 cell string index containing pt at res.
func LatLngToCell(pt model.LatLng, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	ll := h3.NewLatLng(pt.Lat, pt.Lng)
	cell := h3.LatLngToCell(ll, res)
	if !cell.IsValid() {
		return "", fmt.Errorf("h3 latlng to cell failed for (%f, %f) at res %d", pt.Lat, pt.Lng, res)
	}
	return cell.String(), nil
}

// CellToParent returns the ancestor cell index at parentRes.
func CellToParent(cellStr string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	c, err := parseCell(cellStr)
	if err != nil {
		return "", err
	}
	if parentRes > c.Resolution() {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, c.Resolution())
	}
	if parentRes == c.Resolution() {
		return cellStr, nil
	}
	parent, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return parent.String(), nil
}

// ChildrenAt returns every descendant of cellStr at childRes, the synthetic
// heatmap origins spec §4.7 step 5a generates per H3-6 parent.
func ChildrenAt(cellStr string, childRes int) ([]string, error) {
	if err := validateRes(childRes); err != nil {
		return nil, err
	}
	c, err := parseCell(cellStr)
	if err != nil {
		return nil, err
	}
	if childRes < c.Resolution() {
		return nil, fmt.Errorf("childRes %d must be >= cell resolution %d", childRes, c.Resolution())
	}
	children, err := c.Children(childRes)
	if err != nil {
		return nil, fmt.Errorf("h3 children: %w", err)
	}
	out := make([]string, len(children))
	for i, ch := range children {
		out[i] = ch.String()
	}
	return out, nil
}

// averageEdgeLengthMeters is the published average H3 hexagon edge length
// per resolution, used to size a destination ring's radius from a budget
// distance without a further SQL round trip.
var averageEdgeLengthMeters = [16]float64{
	1107712.591, 418676.0055, 158244.6558, 59810.85794,
	22606.3794, 8544.408276, 3229.482772, 1220.629759,
	461.354684, 174.375668, 65.907807, 24.910561,
	9.415526, 3.559893, 1.348575, 0.509713,
}

// AverageEdgeLengthMeters returns the average hexagon edge length at res.
func AverageEdgeLengthMeters(res int) float64 {
	if res < 0 || res > 15 {
		return averageEdgeLengthMeters[15]
	}
	return averageEdgeLengthMeters[res]
}

// GridDiskAround returns every cell within k rings of the given cell,
// including the cell itself. This uses the GridDisk family, not the
// "unsafe" grid-ring walk — the ring-walk variant can skip or duplicate
// cells across a pentagon distortion, which silently truncates a buffer
// query.
func GridDiskAround(cellStr string, k int) ([]string, error) {
	origin, err := parseCell(cellStr)
	if err != nil {
		return nil, err
	}
	cells := h3.GridDisk(origin, k)
	out := make([]string, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// ShortIndex extracts the low bits of the H3 cell index that are unique
// within its resolution-3 parent, matching the upstream `h3_short` column
// convention used by temporal.fill_polygon_h3_3 and related SQL surfaces.
func ShortIndex(cellStr string) (int64, error) {
	c, err := parseCell(cellStr)
	if err != nil {
		return 0, err
	}
	return int64(c) & 0xFFFFFFFFFFF, nil
}

// H3_3Of returns the resolution-3 shard key of a cell, as an int64 index
// (not a short index), matching the `h3_3` column type in the shard store.
func H3_3Of(cellStr string) (int64, error) {
	c, err := parseCell(cellStr)
	if err != nil {
		return 0, err
	}
	parent, err := c.Parent(3)
	if err != nil {
		return 0, fmt.Errorf("h3 parent: %w", err)
	}
	return int64(parent), nil
}

// MatrixResolution returns the H3 resolution used for synthetic heatmap
// origins and catchment grid cells per spec §4.7 step 5a: 10 for walking,
// 9 for bicycle/pedelec, 8 for car.
func MatrixResolution(mode model.RoutingMode) int {
	switch mode {
	case model.ModeBicycle, model.ModePedelec:
		return 9
	case model.ModeCar:
		return 8
	default:
		return 10
	}
}

// Centroid returns a cell's WGS84 center point.
func Centroid(cellStr string) (model.LatLng, error) {
	c, err := parseCell(cellStr)
	if err != nil {
		return model.LatLng{}, err
	}
	ll, err := c.LatLng()
	if err != nil {
		return model.LatLng{}, fmt.Errorf("h3 centroid: %w", err)
	}
	return model.LatLng{Lat: ll.Lat, Lng: ll.Lng}, nil
}

// BoundaryLatLng returns the WGS84 polygon boundary of a cell, in
// (lon, lat) point order, for use by the contouring stage.
func BoundaryLatLng(cellStr string) ([]model.Point, error) {
	c, err := parseCell(cellStr)
	if err != nil {
		return nil, err
	}
	boundary, err := c.Boundary()
	if err != nil {
		return nil, fmt.Errorf("h3 boundary: %w", err)
	}
	out := make([]model.Point, 0, len(boundary))
	for _, v := range boundary {
		out = append(out, model.Point{X: v.Lng, Y: v.Lat})
	}
	return out, nil
}
