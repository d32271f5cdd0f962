package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/plan4better/catchment-engine/internal/catchment"
	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
)

// catchmentRequestDTO is the wire shape of a /catchment request: the tagged
// travel_cost union is flattened into two optional sibling objects, since
// the HTTP request layer (out of scope for the core per spec.md §7) is
// where duck-typed JSON gets resolved into model.TravelCost.
type catchmentRequestDTO struct {
	Origins    []model.LatLng `json:"origins"`
	Mode       string         `json:"mode"`
	ReturnType string         `json:"return_type"`
	Steps      int            `json:"steps"`
	Difference bool           `json:"difference"`
	ResultTable string        `json:"result_table"`
	TimeCost   *struct {
		MaxTravelTime float64 `json:"max_traveltime"`
		Step          float64 `json:"step"`
		SpeedKPH      float64 `json:"speed"`
	} `json:"time_cost"`
	DistanceCost *struct {
		MaxDistance float64 `json:"max_distance"`
		Step        float64 `json:"step"`
	} `json:"distance_cost"`
}

func (d catchmentRequestDTO) toModel() (model.CatchmentRequest, error) {
	if len(d.Origins) == 0 {
		return model.CatchmentRequest{}, fmt.Errorf("origins must not be empty")
	}
	if d.TimeCost != nil && d.DistanceCost != nil {
		return model.CatchmentRequest{}, fmt.Errorf("exactly one of time_cost or distance_cost is required")
	}
	var cost model.TravelCost
	switch {
	case d.TimeCost != nil:
		cost = model.TimeCost{MaxTravelTime: d.TimeCost.MaxTravelTime, Step: d.TimeCost.Step, SpeedKPH: d.TimeCost.SpeedKPH}
	case d.DistanceCost != nil:
		cost = model.DistanceCost{MaxDistance: d.DistanceCost.MaxDistance, Step: d.DistanceCost.Step}
	default:
		return model.CatchmentRequest{}, fmt.Errorf("exactly one of time_cost or distance_cost is required")
	}

	returnType := model.ReturnType(d.ReturnType)
	switch returnType {
	case model.ReturnPolygon, model.ReturnNetwork, model.ReturnRectangularGrid:
	default:
		return model.CatchmentRequest{}, fmt.Errorf("unsupported return_type %q", d.ReturnType)
	}

	return model.CatchmentRequest{
		Origins:     d.Origins,
		Mode:        model.RoutingMode(d.Mode),
		Cost:        cost,
		ReturnType:  returnType,
		Steps:       d.Steps,
		Difference:  d.Difference,
		LayerID:     uuid.NewString(),
		ResultTable: d.ResultTable,
	}, nil
}

// catchmentHandler exposes the Catchment Orchestrator's "public operation"
// (spec.md §2 row G) as a single JSON endpoint, the minimal request layer
// the core explicitly defers to callers (spec.md §7's "Timeouts ... imposed
// by the request layer").
func catchmentHandler(orch *catchment.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto catchmentRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
			return
		}
		req, err := dto.toModel()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := orch.Run(r.Context(), req); err != nil {
			status := statusForError(err)
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(struct {
			LayerID string `json:"layer_id"`
		}{LayerID: req.LayerID})
	}
}

func statusForError(err error) int {
	if errs.IsDisconnectedOrigin(err) || errs.IsBufferExceedsNetwork(err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
