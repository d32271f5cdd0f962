package shardstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/plan4better/catchment-engine/internal/core/model"
)

// edgeRow is the flat, parquet-friendly row shape a Columns batch is
// transposed into on write and transposed back from on read. Coordinates
// are stored as a flattened (x0,y0,x1,y1,...) slice since parquet-go has
// no first-class point type.
type edgeRow struct {
	ID                int64     `parquet:"id"`
	Source            int64     `parquet:"source"`
	Target            int64     `parquet:"target"`
	LengthM           float64   `parquet:"length_m"`
	Class             string    `parquet:"class"`
	ImpedanceSlope    float64   `parquet:"impedance_slope"`
	ImpedanceSlopeRev float64   `parquet:"impedance_slope_reverse"`
	ImpedanceSurface  float64   `parquet:"impedance_surface"`
	CoordsFlat        []float64 `parquet:"coords_flat"`
	H3_3              int64     `parquet:"h3_3"`
	H3_6              int64     `parquet:"h3_6"`
	Cost              float64   `parquet:"cost"`
	ReverseCost       float64   `parquet:"reverse_cost"`
}

func columnsToRows(cols model.Columns) []edgeRow {
	rows := make([]edgeRow, cols.Len())
	for i := range rows {
		flat := make([]float64, 0, len(cols.Coordinates3857[i])*2)
		for _, pt := range cols.Coordinates3857[i] {
			flat = append(flat, pt.X, pt.Y)
		}
		rows[i] = edgeRow{
			ID:                cols.ID[i],
			Source:            cols.Source[i],
			Target:            cols.Target[i],
			LengthM:           cols.LengthM[i],
			Class:             string(cols.Class[i]),
			ImpedanceSlope:    cols.ImpedanceSlope[i],
			ImpedanceSlopeRev: cols.ImpedanceSlopeRev[i],
			ImpedanceSurface:  cols.ImpedanceSurface[i],
			CoordsFlat:        flat,
			H3_3:              cols.H3_3[i],
			H3_6:              cols.H3_6[i],
			Cost:              cols.Cost[i],
			ReverseCost:       cols.ReverseCost[i],
		}
	}
	return rows
}

func rowsToColumns(rows []edgeRow) model.Columns {
	var cols model.Columns
	for _, r := range rows {
		pts := make([]model.Point, 0, len(r.CoordsFlat)/2)
		for i := 0; i+1 < len(r.CoordsFlat); i += 2 {
			pts = append(pts, model.Point{X: r.CoordsFlat[i], Y: r.CoordsFlat[i+1]})
		}
		cols.Append(model.Edge{
			ID:                r.ID,
			Source:            r.Source,
			Target:            r.Target,
			LengthM:           r.LengthM,
			Class:             model.Class(r.Class),
			ImpedanceSlope:    r.ImpedanceSlope,
			ImpedanceSlopeRev: r.ImpedanceSlopeRev,
			ImpedanceSurface:  r.ImpedanceSurface,
			Coordinates3857:   pts,
			H3_3:              r.H3_3,
			H3_6:              r.H3_6,
			Cost:              r.Cost,
			ReverseCost:       r.ReverseCost,
		})
	}
	return cols
}

// Cache is the disk-backed tier of the shard store, one file per
// resolution-3 cell under Dir.
type Cache struct {
	Dir string
}

func NewCache(dir string) *Cache {
	return &Cache{Dir: dir}
}

func (c *Cache) path(h3_3 int64) string {
	return filepath.Join(c.Dir, strconv.FormatInt(h3_3, 10)+".parquet")
}

func (c *Cache) Load(h3_3 int64) (model.Columns, bool, error) {
	p := c.path(h3_3)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return model.Columns{}, false, nil
	}
	rows, err := parquet.ReadFile[edgeRow](p)
	if err != nil {
		return model.Columns{}, false, fmt.Errorf("shardstore disk cache: read %s: %w", p, err)
	}
	return rowsToColumns(rows), true, nil
}

// Save writes the shard to a temp file in the same directory and renames
// it into place, so a reader never observes a partially written file.
func (c *Cache) Save(h3_3 int64, cols model.Columns) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("shardstore disk cache: mkdir %s: %w", c.Dir, err)
	}

	final := c.path(h3_3)
	tmp := final + ".tmp-" + strconv.FormatInt(int64(os.Getpid()), 10)

	rows := columnsToRows(cols)
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("shardstore disk cache: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("shardstore disk cache: rename %s -> %s: %w", tmp, final, err)
	}
	return nil
}
