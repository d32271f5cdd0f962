package graph

import (
	"context"
	"math"
	"testing"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

func buildLinearGraph() model.Columns {
	var c model.Columns
	// 1 -> 2 -> 3 -> 4, each edge cost 10, reverse_cost 20.
	for i, pair := range [][2]int64{{1, 2}, {2, 3}, {3, 4}} {
		c.Append(model.Edge{
			ID:          int64(i + 1),
			Source:      pair[0],
			Target:      pair[1],
			LengthM:     10,
			Class:       model.ClassResidential,
			Cost:        10,
			ReverseCost: 20,
			Coordinates3857: []model.Point{
				{X: float64(pair[0]), Y: float64(pair[0])},
				{X: float64(pair[1]), Y: float64(pair[1])},
			},
		})
	}
	return c
}

func TestBuildCompactsNodeIDs(t *testing.T) {
	g := Build(buildLinearGraph())
	if g.NumNodes() != 4 {
		t.Fatalf("NumNodes = %d, want 4", g.NumNodes())
	}
	for _, raw := range []int64{1, 2, 3, 4} {
		if _, ok := g.NodeID[raw]; !ok {
			t.Fatalf("missing compact id for raw node %d", raw)
		}
	}
}

func TestBuildThreadsRawEdgeIDs(t *testing.T) {
	g := Build(buildLinearGraph())
	want := []int64{1, 2, 3}
	if len(g.EdgeID) != len(want) {
		t.Fatalf("len(EdgeID) = %d, want %d", len(g.EdgeID), len(want))
	}
	for i, id := range want {
		if g.EdgeID[i] != id {
			t.Fatalf("EdgeID[%d] = %d, want %d", i, g.EdgeID[i], id)
		}
	}
}

func TestBuildDropsNegativeAndNonFiniteCosts(t *testing.T) {
	var c model.Columns
	c.Append(model.Edge{ID: 1, Source: 1, Target: 2, Cost: -5, ReverseCost: math.NaN()})
	g := Build(c)
	u := g.NodeID[1]
	if len(g.adj[u]) != 0 {
		t.Fatalf("expected negative-cost edge dropped from forward adjacency, got %d arcs", len(g.adj[u]))
	}
	v := g.NodeID[2]
	if len(g.radj[v]) != 0 {
		t.Fatalf("expected NaN reverse-cost edge dropped from reverse adjacency, got %d arcs", len(g.radj[v]))
	}
}

func TestDijkstraFindsShortestPathAlongChain(t *testing.T) {
	g := Build(buildLinearGraph())
	start := g.NodeID[1]
	dist := g.Dijkstra(context.Background(), start, 1000)

	want := map[int64]float64{1: 0, 2: 10, 3: 20, 4: 30}
	for raw, w := range want {
		got := dist[g.NodeID[raw]]
		if got != w {
			t.Fatalf("dist[%d] = %v, want %v", raw, got, w)
		}
	}
}

func TestDijkstraStopsAtBudget(t *testing.T) {
	g := Build(buildLinearGraph())
	start := g.NodeID[1]
	dist := g.Dijkstra(context.Background(), start, 15)

	if !math.IsInf(dist[g.NodeID[3]], 1) {
		t.Fatalf("node 3 should be unreached within budget 15, got %v", dist[g.NodeID[3]])
	}
	if dist[g.NodeID[2]] != 10 {
		t.Fatalf("node 2 should be reached at cost 10, got %v", dist[g.NodeID[2]])
	}
}

func TestDijkstraRespectsCancelledContext(t *testing.T) {
	g := Build(buildLinearGraph())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dist := g.Dijkstra(ctx, g.NodeID[1], 1000)
	// Cancellation is checked every 1024 iterations; for this tiny graph the
	// search still completes, but the call must not panic or hang.
	if dist[g.NodeID[1]] != 0 {
		t.Fatalf("source distance should still be 0, got %v", dist[g.NodeID[1]])
	}
}

func TestMultiSourceDijkstraReturnsOneRowPerStart(t *testing.T) {
	g := Build(buildLinearGraph())
	starts := []int32{g.NodeID[1], g.NodeID[4]}
	rows := g.MultiSourceDijkstra(context.Background(), model.ModeWalking, starts, 1000)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][g.NodeID[4]] != 30 {
		t.Fatalf("from node 1 to node 4 expected 30, got %v", rows[0][g.NodeID[4]])
	}
}

func TestEdgePointsReturnsPolyline(t *testing.T) {
	g := Build(buildLinearGraph())
	pts := g.EdgePoints(0)
	if len(pts) != 2 {
		t.Fatalf("expected 2 points for edge 0, got %d", len(pts))
	}
	if pts[0].X != 1 || pts[1].X != 2 {
		t.Fatalf("unexpected polyline points: %+v", pts)
	}
}
