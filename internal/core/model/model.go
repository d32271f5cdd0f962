// Package model defines core domain types shared across the routing engine.
package model

import "fmt"

// Point is a 2-D coordinate. Ordering is always (X=longitude/easting,
// Y=latitude/northing) regardless of CRS — the documented fix for the
// lat/lng argument-order confusion called out in the design notes.
type Point struct {
	X, Y float64
}

// LatLng is a WGS84 geographic coordinate, kept distinct from Point so a
// caller can never accidentally feed degrees where a projected point is
// expected.
type LatLng struct {
	Lat, Lng float64
}

// Class is a normalized street segment class tag. Use NewClass to
// construct one; it trims and case-folds so upstream data variance (e.g.
// "LivingStreet" vs "livingStreet") never causes a class-filter miss.
type Class string

func NewClass(raw string) Class {
	return Class(normalizeClassToken(raw))
}

func normalizeClassToken(raw string) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out = append(out, c)
	}
	return string(out)
}

const (
	ClassSecondary     Class = "secondary"
	ClassTertiary      Class = "tertiary"
	ClassResidential   Class = "residential"
	ClassLivingStreet  Class = "livingstreet"
	ClassTrunk         Class = "trunk"
	ClassUnclassified  Class = "unclassified"
	ClassParkingAisle  Class = "parkingaisle"
	ClassDriveway      Class = "driveway"
	ClassPedestrian    Class = "pedestrian"
	ClassFootway       Class = "footway"
	ClassSteps         Class = "steps"
	ClassTrack         Class = "track"
	ClassBridleway     Class = "bridleway"
	ClassUnknown       Class = "unknown"
	ClassCycleway      Class = "cycleway"
)

// RoutingMode is the transport mode of a catchment request.
type RoutingMode string

const (
	ModeWalking RoutingMode = "walking"
	ModeBicycle RoutingMode = "bicycle"
	ModePedelec RoutingMode = "pedelec"
	ModeCar     RoutingMode = "car"
)

// AllowedClasses returns the set of segment classes routable in mode.
func AllowedClasses(mode RoutingMode) map[Class]struct{} {
	walking := map[Class]struct{}{
		ClassSecondary: {}, ClassTertiary: {}, ClassResidential: {},
		ClassLivingStreet: {}, ClassTrunk: {}, ClassUnclassified: {},
		ClassParkingAisle: {}, ClassDriveway: {}, ClassPedestrian: {},
		ClassFootway: {}, ClassSteps: {}, ClassTrack: {},
		ClassBridleway: {}, ClassUnknown: {},
	}
	switch mode {
	case ModeWalking:
		return walking
	case ModeBicycle, ModePedelec, ModeCar:
		out := make(map[Class]struct{}, len(walking))
		for c := range walking {
			if c == ClassFootway || c == ClassSteps {
				continue
			}
			out[c] = struct{}{}
		}
		out[ClassCycleway] = struct{}{}
		return out
	default:
		return walking
	}
}

// TravelCost is the tagged-union request budget: either a time budget or
// a distance budget. Downstream code type-switches on it rather than
// branching on a nullable speed field.
type TravelCost interface {
	IsDistanceBased() bool
	StepValue() float64
}

type TimeCost struct {
	MaxTravelTime float64 // minutes
	Step          float64 // minutes
	SpeedKPH      float64
}

func (TimeCost) IsDistanceBased() bool   { return false }
func (c TimeCost) StepValue() float64    { return c.Step }
func (c TimeCost) SpeedMPS() float64     { return c.SpeedKPH / 3.6 }
func (c TimeCost) BudgetSeconds() float64 { return c.MaxTravelTime * 60 }

type DistanceCost struct {
	MaxDistance float64 // metres
	Step        float64 // metres
}

func (DistanceCost) IsDistanceBased() bool { return true }
func (c DistanceCost) StepValue() float64  { return c.Step }

// Origin is an input catchment starting point in WGS84.
type Origin struct {
	LatLng         LatLng
	ConnectorNode  int64
	H3Short        int64 // resolution depends on caller (H3-8/9/10)
	H3_3Short      int64
	HasConnector   bool
}

// Edge is a street network segment, matching the upstream `basic.segment`
// schema (spec §3).
type Edge struct {
	ID               int64
	Source           int64
	Target           int64
	LengthM          float64
	Length3857       float64
	Class            Class
	ImpedanceSlope   float64
	ImpedanceSlopeRev float64
	ImpedanceSurface float64
	Coordinates3857  []Point
	Tags             string
	H3_3             int64
	H3_6             int64

	// Derived at assembly time.
	Cost        float64
	ReverseCost float64
}

// ArtificialEdge is an Edge synthesized by the origin splicer, plus the
// metadata linking it back to the origin and the edge it supersedes.
type ArtificialEdge struct {
	Edge
	PointID int64
	OldID   int64
}

// Cells is an ordered, deduplicated list of H3 cell string indices.
type Cells []string

// BBox is a WGS84 bounding box, X=longitude, Y=latitude.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// ReturnType selects the shape of a catchment response (spec §4.6).
type ReturnType string

const (
	ReturnPolygon        ReturnType = "polygon"
	ReturnNetwork        ReturnType = "network"
	ReturnRectangularGrid ReturnType = "rectangular_grid"
)

// Columns is the struct-of-arrays representation of a routing network, the
// form the Graph Kernel and Grid Interpolator consume. Index i across every
// slice describes the same edge.
type Columns struct {
	ID                 []int64
	Source             []int64
	Target             []int64
	LengthM            []float64
	Class              []Class
	ImpedanceSlope     []float64
	ImpedanceSlopeRev  []float64
	ImpedanceSurface   []float64
	Coordinates3857    [][]Point
	H3_3               []int64
	H3_6               []int64
	Cost               []float64
	ReverseCost        []float64
}

func (c *Columns) Len() int { return len(c.ID) }

// Append adds one edge's worth of columns in lockstep. Callers must keep
// every slice the same length; Append panics if Columns is already
// inconsistent to catch that bug early rather than silently misaligning
// rows.
func (c *Columns) Append(e Edge) {
	n := len(c.ID)
	if len(c.Source) != n || len(c.Target) != n || len(c.LengthM) != n || len(c.Class) != n ||
		len(c.ImpedanceSlope) != n || len(c.ImpedanceSlopeRev) != n || len(c.ImpedanceSurface) != n ||
		len(c.Coordinates3857) != n || len(c.H3_3) != n || len(c.H3_6) != n || len(c.Cost) != n || len(c.ReverseCost) != n {
		panic("model: Columns slices have inconsistent lengths")
	}
	c.ID = append(c.ID, e.ID)
	c.Source = append(c.Source, e.Source)
	c.Target = append(c.Target, e.Target)
	c.LengthM = append(c.LengthM, e.LengthM)
	c.Class = append(c.Class, e.Class)
	c.ImpedanceSlope = append(c.ImpedanceSlope, e.ImpedanceSlope)
	c.ImpedanceSlopeRev = append(c.ImpedanceSlopeRev, e.ImpedanceSlopeRev)
	c.ImpedanceSurface = append(c.ImpedanceSurface, e.ImpedanceSurface)
	c.Coordinates3857 = append(c.Coordinates3857, e.Coordinates3857)
	c.H3_3 = append(c.H3_3, e.H3_3)
	c.H3_6 = append(c.H3_6, e.H3_6)
	c.Cost = append(c.Cost, e.Cost)
	c.ReverseCost = append(c.ReverseCost, e.ReverseCost)
}

// Shard is a resolution-3 H3 partition of the routing network, as loaded
// from the on-disk parquet cache or the database.
type Shard struct {
	H3_3    int64
	Network Columns
}

// Grid is a rasterized cost surface over a pixel extent, produced by the
// Grid Interpolator and consumed by the contouring stage.
type Grid struct {
	Width, Height int
	West, North   int // pixel-space origin offset
	Zoom          int
	Costs         []float32 // one cost per entry of CellIDs; NaN for unreached
	CellIDs       []string  // H3 cells, aligned with Costs by index
}

// MatrixRow is one row of the heatmap travel-time matrix: the travel cost
// from OrigCell to every cell in DestCells, aligned by index.
type MatrixRow struct {
	OrigCell   string
	H3_3       int64
	DestCells  []string
	Traveltime []float32
}

// CatchmentRequest is the core's view of a single catchment computation;
// the HTTP/DTO validation layer (out of scope) is responsible for
// producing one of these from a wire request.
type CatchmentRequest struct {
	Origins    []LatLng
	Mode       RoutingMode
	Cost       TravelCost
	ReturnType ReturnType
	Steps      int
	Difference bool
	LayerID    string
	ResultTable string
}
