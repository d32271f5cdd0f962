// Package graph builds a dense-node-id routing graph from assembled
// network columns and runs multi-source Dijkstra over it.
package graph

import (
	"container/heap"
	"context"
	"math"
	"time"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// GeomAddress locates an edge's polyline inside the flat point arena, for
// later interpolation by the Grid Interpolator.
type GeomAddress struct {
	Offset, Length int
}

// Graph is a compacted, directed adjacency-list view of a Columns batch.
type Graph struct {
	// NodeID maps a raw node id to its dense [0,N) index.
	NodeID map[int64]int32
	// RawID is the inverse of NodeID.
	RawID []int64
	// Coord is the EPSG:3857 (Web Mercator) coordinate of each compact
	// node, lifted from the first edge endpoint that references it.
	Coord []model.Point

	// adj[u] holds (v, cost, edgeIndex) triples for forward traversal.
	adj [][]arc
	// radj[u] holds (v, reverse_cost, edgeIndex) triples for traversing an
	// edge against its direction, from its target u back to its source v.
	// Dijkstra relaxes both adj[u] and radj[u].
	radj [][]arc

	// Points is the flat arena of every edge's polyline points.
	Points []model.Point
	// EdgeGeom maps edge index -> its address in Points.
	EdgeGeom []GeomAddress

	// EdgeU, EdgeV hold each edge's compact endpoint ids, indexed the same
	// as EdgeGeom, for callers that need to walk every edge once (the Grid
	// Interpolator's pixel fill) rather than traverse via adjacency.
	EdgeU, EdgeV []int32
	// EdgeID holds each edge's raw (pre-compaction) id, same indexing as
	// EdgeGeom/EdgeU/EdgeV, for callers that need to report back which
	// network edge was reached rather than just its endpoints.
	EdgeID []int64
}

type arc struct {
	to   int32
	cost float64
	edge int32
}

// Build compacts raw node ids into [0,N) and constructs forward/reverse
// adjacency lists. Edges with non-finite or negative cost are dropped per
// spec §4.4's invariant.
func Build(cols model.Columns) *Graph {
	g := &Graph{NodeID: make(map[int64]int32)}

	compact := func(raw int64) int32 {
		if id, ok := g.NodeID[raw]; ok {
			return id
		}
		id := int32(len(g.RawID))
		g.NodeID[raw] = id
		g.RawID = append(g.RawID, raw)
		g.Coord = append(g.Coord, model.Point{})
		return id
	}

	n := cols.Len()
	g.EdgeGeom = make([]GeomAddress, n)
	g.EdgeU = make([]int32, n)
	g.EdgeV = make([]int32, n)
	g.EdgeID = make([]int64, n)

	for i := 0; i < n; i++ {
		u := compact(cols.Source[i])
		v := compact(cols.Target[i])
		g.EdgeU[i] = u
		g.EdgeV[i] = v
		g.EdgeID[i] = cols.ID[i]

		pts := cols.Coordinates3857[i]
		offset := len(g.Points)
		g.Points = append(g.Points, pts...)
		g.EdgeGeom[i] = GeomAddress{Offset: offset, Length: len(pts)}

		if len(pts) > 0 {
			if isZeroPoint(g.Coord[u]) {
				g.Coord[u] = pts[0]
			}
			if isZeroPoint(g.Coord[v]) {
				g.Coord[v] = pts[len(pts)-1]
			}
		}
	}

	g.adj = make([][]arc, len(g.RawID))
	g.radj = make([][]arc, len(g.RawID))

	for i := 0; i < n; i++ {
		u := g.NodeID[cols.Source[i]]
		v := g.NodeID[cols.Target[i]]

		if c := cols.Cost[i]; validCost(c) {
			g.adj[u] = append(g.adj[u], arc{to: v, cost: c, edge: int32(i)})
		}
		if c := cols.ReverseCost[i]; validCost(c) {
			g.radj[v] = append(g.radj[v], arc{to: u, cost: c, edge: int32(i)})
		}
	}

	return g
}

func isZeroPoint(p model.Point) bool { return p.X == 0 && p.Y == 0 }

func validCost(c float64) bool {
	return !math.IsNaN(c) && !math.IsInf(c, 0) && c >= 0
}

// NumNodes returns the number of compact nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.RawID) }

// NumEdges returns the number of edges the graph was built from.
func (g *Graph) NumEdges() int { return len(g.EdgeGeom) }

// heapItem is a priority-queue entry for Dijkstra.
type heapItem struct {
	node int32
	dist float64
}

type minHeap []heapItem

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Dijkstra runs single-source shortest paths from start, stopping
// exploration at any neighbour whose tentative cost exceeds budget.
// Unreached nodes keep +Inf in the returned slice.
func (g *Graph) Dijkstra(ctx context.Context, start int32, budget float64) []float64 {
	dist := make([]float64, g.NumNodes())
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	if int(start) < 0 || int(start) >= len(dist) {
		return dist
	}
	dist[start] = 0

	pq := &minHeap{{node: start, dist: 0}}
	visited := make([]bool, g.NumNodes())

	iterations := 0
	for pq.Len() > 0 {
		iterations++
		if iterations%1024 == 0 && ctx.Err() != nil {
			return dist
		}

		cur := heap.Pop(pq).(heapItem)
		u := cur.node
		if visited[u] {
			continue
		}
		visited[u] = true

		for _, arcs := range [2][]arc{g.adj[u], g.radj[u]} {
			for _, a := range arcs {
				nd := dist[u] + a.cost
				if nd > budget {
					continue
				}
				if nd < dist[a.to] {
					dist[a.to] = nd
					heap.Push(pq, heapItem{node: a.to, dist: nd})
				}
			}
		}
	}
	return dist
}

// MultiSourceDijkstra runs Dijkstra once per start node, returning one
// dist[] slice per start in input order.
func (g *Graph) MultiSourceDijkstra(ctx context.Context, mode model.RoutingMode, starts []int32, budget float64) [][]float64 {
	start := time.Now()
	out := make([][]float64, len(starts))
	visitedTotal := 0
	for i, s := range starts {
		out[i] = g.Dijkstra(ctx, s, budget)
		for _, d := range out[i] {
			if !math.IsInf(d, 1) {
				visitedTotal++
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	observability.ObserveDijkstra(string(mode), time.Since(start).Seconds(), visitedTotal)
	return out
}

// EdgePoints returns the polyline points of edge i.
func (g *Graph) EdgePoints(edgeIdx int32) []model.Point {
	addr := g.EdgeGeom[edgeIdx]
	return g.Points[addr.Offset : addr.Offset+addr.Length]
}
