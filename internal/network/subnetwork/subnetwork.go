// Package subnetwork assembles the bounded slice of the street network a
// single catchment or heatmap-cell request needs: the shards within
// buffering distance of the origins, filtered to the routable classes,
// fused with the origin splicer's artificial edges.
package subnetwork

import (
	"context"
	"fmt"
	"time"

	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// defaultCarBufferSpeedKPH is the speed used to size the buffer distance
// for car catchments, since car's own speed can be absent at buffer time
// (REDESIGN FLAG / Open Question: car buffering never depends on a nil
// per-edge speed).
const defaultCarBufferSpeedKPH = 80.0

const walkingSpeedKPH = 5.0
const bicycleSpeedKPH = 15.0
const pedelecSpeedKPH = 23.0

// EnvelopeFinder resolves the set of resolution-3 and resolution-6 H3
// cells a buffer around a set of origins intersects. Implemented by a SQL
// call against the network schema; split out for testability.
type EnvelopeFinder interface {
	Envelope(ctx context.Context, origins []model.LatLng, bufferMeters float64) (h3_3 []int64, h3_6 map[int64]struct{}, err error)
}

// ShardSource loads a single resolution-3 shard's edges.
type ShardSource interface {
	GetShard(ctx context.Context, h3_3 int64) (model.Columns, error)
}

type Assembler struct {
	envelope EnvelopeFinder
	shards   ShardSource
	geofence GeofenceSource
}

func New(envelope EnvelopeFinder, shards ShardSource, geofence GeofenceSource) *Assembler {
	return &Assembler{envelope: envelope, shards: shards, geofence: geofence}
}

// BufferDistance computes B per spec §4.3 step 1: time-based budgets
// convert the travel-time budget to meters at the request's SpeedKPH, or at
// the mode's default speed when SpeedKPH is not positive; distance-based
// budgets use the distance budget directly.
func BufferDistance(mode model.RoutingMode, cost model.TravelCost) float64 {
	if dist, ok := cost.(model.DistanceCost); ok {
		return dist.MaxDistance
	}
	tc := cost.(model.TimeCost)
	speed := tc.SpeedKPH
	if speed <= 0 {
		speed = bufferSpeedFor(mode)
	}
	return tc.MaxTravelTime * speed * 1000 / 60
}

func bufferSpeedFor(mode model.RoutingMode) float64 {
	switch mode {
	case model.ModeCar:
		return defaultCarBufferSpeedKPH
	case model.ModeBicycle:
		return bicycleSpeedKPH
	case model.ModePedelec:
		return pedelecSpeedKPH
	default:
		return walkingSpeedKPH
	}
}

// Assemble produces the typed column arrays the Graph Kernel consumes:
// the shard network filtered and fused with artificial edges, costed per
// mode.
func (a *Assembler) Assemble(
	ctx context.Context,
	origins []model.LatLng,
	mode model.RoutingMode,
	cost model.TravelCost,
	artificial []model.ArtificialEdge,
	discardIDs map[int64]struct{},
) (model.Columns, error) {
	buffer := BufferDistance(mode, cost)

	h3_3s, h3_6set, err := a.envelope.Envelope(ctx, origins, buffer)
	if err != nil {
		return model.Columns{}, fmt.Errorf("subnetwork: resolve envelope: %w", err)
	}

	geofenceKeys, err := a.geofence.H3_3Keys(ctx)
	if err != nil {
		return model.Columns{}, fmt.Errorf("subnetwork: resolve geofence: %w", err)
	}

	allowed := model.AllowedClasses(mode)

	var out model.Columns
	for _, k := range h3_3s {
		if _, inNetwork := geofenceKeys[k]; !inNetwork {
			return model.Columns{}, &errs.BufferExceedsNetwork{H3_3: k}
		}

		start := time.Now()
		shard, err := a.shards.GetShard(ctx, k)
		if err != nil {
			return model.Columns{}, fmt.Errorf("subnetwork: load shard %d: %w", k, err)
		}
		observability.ObserveDBQuery("subnetwork.get_shard", time.Since(start).Seconds(), nil)

		for i := 0; i < shard.Len(); i++ {
			if _, keep := discardIDs[shard.ID[i]]; keep {
				continue
			}
			if _, ok := allowed[shard.Class[i]]; !ok {
				continue
			}
			if _, ok := h3_6set[shard.H3_6[i]]; !ok {
				continue
			}
			out.Append(toEdgeHelper(shard, i))
		}
	}

	for _, e := range artificial {
		out.Append(e.Edge)
	}

	fillNulls(&out)
	computeCosts(&out, mode, cost)

	return out, nil
}

func fillNulls(cols *model.Columns) {
	for i := range cols.ImpedanceSlope {
		if isNaNLike(cols.ImpedanceSlope[i]) {
			cols.ImpedanceSlope[i] = 0
		}
		if isNaNLike(cols.ImpedanceSlopeRev[i]) {
			cols.ImpedanceSlopeRev[i] = 0
		}
		if isNaNLike(cols.ImpedanceSurface[i]) {
			cols.ImpedanceSurface[i] = 0
		}
	}
}

func isNaNLike(f float64) bool {
	return f != f // NaN is the only float that doesn't equal itself.
}

// computeCosts implements spec §4.3 step 7's exact per-mode formulas.
func computeCosts(cols *model.Columns, mode model.RoutingMode, cost model.TravelCost) {
	if cost.IsDistanceBased() {
		for i := range cols.LengthM {
			cols.Cost[i] = cols.LengthM[i]
			cols.ReverseCost[i] = cols.LengthM[i]
		}
		return
	}

	tc := cost.(model.TimeCost)
	speedMPS := tc.SpeedMPS()

	for i := range cols.LengthM {
		length := cols.LengthM[i]
		switch mode {
		case model.ModeWalking:
			cols.Cost[i] = length / speedMPS
			cols.ReverseCost[i] = length / speedMPS

		case model.ModeBicycle, model.ModePedelec:
			if cols.Class[i] == model.ClassPedestrian {
				cols.Cost[i] = length / speedMPS
				cols.ReverseCost[i] = length / speedMPS
				continue
			}
			slopeFwd := cols.ImpedanceSlope[i]
			slopeRev := cols.ImpedanceSlopeRev[i]
			if mode == model.ModePedelec {
				slopeFwd, slopeRev = 0, 0
			}
			cols.Cost[i] = length * (1 + slopeFwd + cols.ImpedanceSurface[i]) / speedMPS
			cols.ReverseCost[i] = length * (1 + slopeRev + cols.ImpedanceSurface[i]) / speedMPS

		case model.ModeCar:
			cols.Cost[i] = length / speedMPS
			cols.ReverseCost[i] = length / speedMPS
		}
	}
}

// toEdgeHelper reconstructs a single model.Edge view from a Columns row, used
// when re-appending a filtered subset into a fresh Columns.
func toEdgeHelper(c model.Columns, i int) model.Edge {
	return model.Edge{
		ID:                c.ID[i],
		Source:            c.Source[i],
		Target:            c.Target[i],
		LengthM:           c.LengthM[i],
		Class:             c.Class[i],
		ImpedanceSlope:    c.ImpedanceSlope[i],
		ImpedanceSlopeRev: c.ImpedanceSlopeRev[i],
		ImpedanceSurface:  c.ImpedanceSurface[i],
		Coordinates3857:   c.Coordinates3857[i],
		H3_3:              c.H3_3[i],
		H3_6:              c.H3_6[i],
	}
}
