package jsoline

import (
	"math"
	"testing"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

const testCell = "8928308280fffff"

func sampleGrid() model.Grid {
	return model.Grid{
		CellIDs: []string{testCell, testCell},
		Costs:   []float32{5, 5},
	}
}

func TestContourCumulativeShapesAreNested(t *testing.T) {
	grid := model.Grid{
		CellIDs: []string{testCell},
		Costs:   []float32{5},
	}
	shapes, err := HexBandContourer{}.Contour(grid, 10, 3, false)
	if err != nil {
		t.Fatalf("Contour: %v", err)
	}
	// cost 5 <= threshold 10, 20, 30 so every step should include the cell.
	if len(shapes) != 3 {
		t.Fatalf("expected 3 cumulative shapes, got %d", len(shapes))
	}
	for _, s := range shapes {
		if len(s.Rings) != 1 {
			t.Fatalf("step %d: expected 1 ring, got %d", s.Step, len(s.Rings))
		}
	}
}

func TestContourDiffOnlyEmitsNewCells(t *testing.T) {
	grid := model.Grid{
		CellIDs: []string{testCell},
		Costs:   []float32{5},
	}
	shapes, err := HexBandContourer{}.Contour(grid, 10, 3, true)
	if err != nil {
		t.Fatalf("Contour: %v", err)
	}
	// The cell is already captured at step 1 (cost 5 <= 10); steps 2-3
	// have no newly reached cells left to diff in, so they're skipped.
	if len(shapes) != 1 {
		t.Fatalf("expected 1 diff shape, got %d", len(shapes))
	}
	if shapes[0].Step != 1 {
		t.Fatalf("expected the surviving shape to be step 1, got %d", shapes[0].Step)
	}
}

func TestContourSkipsUnreachedAndNaNCells(t *testing.T) {
	grid := model.Grid{
		CellIDs: []string{testCell, testCell},
		Costs:   []float32{float32(math.Inf(1)), float32(math.NaN())},
	}
	shapes, err := HexBandContourer{}.Contour(grid, 10, 1, false)
	if err != nil {
		t.Fatalf("Contour: %v", err)
	}
	if len(shapes) != 0 {
		t.Fatalf("expected no shapes for an all-unreached grid, got %d", len(shapes))
	}
}

func TestContourRejectsZeroStepSize(t *testing.T) {
	shapes, err := HexBandContourer{}.Contour(sampleGrid(), 0, 3, false)
	if err != nil {
		t.Fatalf("Contour: %v", err)
	}
	if shapes != nil {
		t.Fatalf("expected nil shapes for zero step size, got %v", shapes)
	}
}
