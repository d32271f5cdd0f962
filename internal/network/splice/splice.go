// Package splice grafts catchment origins onto the street network by
// delegating the nearest-edge projection to a stored SQL function and
// synthesizing the artificial edges its result implies.
package splice

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// SQLSplicer calls `temporal.get_artificial_segments` (or an equivalent
// stored function) and returns the raw artificial edges it produces for a
// single origin, plus the origin's connector node id and H3 indices.
type SQLSplicer interface {
	SpliceOne(ctx context.Context, origin model.LatLng, allowedClasses map[model.Class]struct{}) (SpliceResult, error)
}

// SpliceResult is the per-origin output of a single splice call.
type SpliceResult struct {
	ArtificialEdges []model.ArtificialEdge
	ConnectorNodeID int64
	H3Short         int64
	H3_3Short       int64
}

func (r SpliceResult) empty() bool {
	return len(r.ArtificialEdges) == 0
}

// roundedKey is the memoization cache key: origins within ~1m of one
// another and routed in the same mode reuse a prior splice result rather
// than re-issuing the SQL call, since the heatmap driver resplices nearby
// H3-10 cells by the thousand.
type roundedKey struct {
	lon, lat float64
	mode     model.RoutingMode
}

func round1m(v float64) float64 {
	// ~1e-5 degrees is about 1.1m at the equator.
	const scale = 1e5
	return float64(int64(v*scale+0.5)) / scale
}

// Splicer is the Origin Splicer component. It wraps a SQLSplicer with a
// bounded memoization cache, since two origins mapping to the same
// rounded point must still get distinct synthetic node identities.
type Splicer struct {
	sql   SQLSplicer
	cache *lru.Cache[roundedKey, SpliceResult]
}

func New(sql SQLSplicer, cacheSize int) (*Splicer, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	c, err := lru.New[roundedKey, SpliceResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("splice: building memoization cache: %w", err)
	}
	return &Splicer{sql: sql, cache: c}, nil
}

// syntheticIDBase offsets the synthetic ids Splice assigns. Each Splice call
// numbers its artificial edges and connector nodes from this base with a
// counter local to that call, so a cache hit never hands two origins of the
// same call the same id; ids repeat across separate calls. The high offset
// matches the spec's "reserved namespace".
const syntheticIDBase = int64(1) << 40

// Splice projects every origin onto the network and returns the combined
// artificial edges plus per-origin metadata, in input order. It raises
// DisconnectedOrigin if not a single origin produced an artificial edge.
func (s *Splicer) Splice(ctx context.Context, origins []model.LatLng, mode model.RoutingMode) ([]model.Origin, []model.ArtificialEdge, error) {
	allowed := model.AllowedClasses(mode)
	results := make([]model.Origin, len(origins))
	var allEdges []model.ArtificialEdge
	var nextID int64
	anyConnected := false

	for i, o := range origins {
		start := time.Now()
		key := roundedKey{lon: round1m(o.Lng), lat: round1m(o.Lat), mode: mode}

		var res SpliceResult
		var err error
		if cached, ok := s.cache.Get(key); ok {
			observability.IncSpliceCacheHit()
			res = rekeyed(cached, &nextID)
		} else {
			observability.IncSpliceCacheMiss()
			res, err = s.sql.SpliceOne(ctx, o, allowed)
			if err != nil {
				observability.ObserveSplice("error", time.Since(start).Seconds())
				return nil, nil, fmt.Errorf("splice origin %d: %w", i, err)
			}
			s.cache.Add(key, res)
			res = rekeyed(res, &nextID)
		}

		if !res.empty() {
			anyConnected = true
		}
		observability.ObserveSplice(outcomeOf(res), time.Since(start).Seconds())

		results[i] = model.Origin{
			LatLng:        o,
			ConnectorNode: res.ConnectorNodeID,
			H3Short:       res.H3Short,
			H3_3Short:     res.H3_3Short,
			HasConnector:  !res.empty(),
		}
		allEdges = append(allEdges, res.ArtificialEdges...)
	}

	if !anyConnected {
		return nil, nil, &errs.DisconnectedOrigin{NumOrigins: len(origins)}
	}
	return results, allEdges, nil
}

func outcomeOf(r SpliceResult) string {
	if r.empty() {
		return "disconnected"
	}
	return "ok"
}

// rekeyed returns a copy of a (possibly cached) splice result with fresh
// synthetic edge ids, so a cache hit never lets two origins share a
// connector node identity.
func rekeyed(r SpliceResult, nextID *int64) SpliceResult {
	if r.empty() {
		return r
	}
	*nextID++
	out := SpliceResult{
		ConnectorNodeID: syntheticIDBase + *nextID,
		H3Short:         r.H3Short,
		H3_3Short:       r.H3_3Short,
	}
	idRemap := map[int64]int64{r.ConnectorNodeID: out.ConnectorNodeID}
	out.ArtificialEdges = make([]model.ArtificialEdge, len(r.ArtificialEdges))
	for i, e := range r.ArtificialEdges {
		*nextID++
		newID := syntheticIDBase + *nextID
		fresh := e
		fresh.ID = newID
		if remapped, ok := idRemap[e.Source]; ok {
			fresh.Source = remapped
		}
		if remapped, ok := idRemap[e.Target]; ok {
			fresh.Target = remapped
		}
		fresh.PointID = out.ConnectorNodeID
		out.ArtificialEdges[i] = fresh
	}
	return out
}
