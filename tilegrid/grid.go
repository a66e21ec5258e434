// Package tilegrid derives the row/column tile indices that cover a projected extent
// on a power-of-two tile pyramid.
package tilegrid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	// WebMercatorDelta is half the projected width of the world in web-mercator meters.
	WebMercatorDelta = 20037508.342787
	// MaxLevel is the deepest level a range can be computed for. Deeper levels address
	// more tiles per axis than a uint32 tile index holds.
	MaxLevel = 32

	// maxIndex bounds the tile index quotient to integers a float64 represents exactly.
	maxIndex = 1 << 53
)

var (
	// ErrInvalidExtent is returned for an extent whose minimum is not strictly below its maximum.
	ErrInvalidExtent = errors.New("invalid extent")
	// ErrNegativeLevel ...
	ErrNegativeLevel = errors.New("level must not be negative")
	// ErrLevelTooLarge is returned for levels above MaxLevel.
	ErrLevelTooLarge = errors.New("level too large")
	// ErrIndexOutOfRange is returned when an extent edge is too far from the grid origin
	// to be expressed as a tile index.
	ErrIndexOutOfRange = errors.New("tile index out of range")
	// ErrNegativePadding ...
	ErrNegativePadding = errors.New("padding must not be negative")
)

// Extent is a projected bounding box.
type Extent struct {
	bound orb.Bound
}

// NewExtent creates an extent from projected coordinates.
func NewExtent(minX, minY, maxX, maxY float64) (Extent, error) {
	e := Extent{bound: orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}}
	if err := e.Validate(); err != nil {
		return Extent{}, err
	}
	return e, nil
}

// ExtentFromWGS84 projects a longitude/latitude bounding box to web-mercator.
func ExtentFromWGS84(minLon, minLat, maxLon, maxLat float64) (Extent, error) {
	lo := project.WGS84.ToMercator(orb.Point{minLon, minLat})
	hi := project.WGS84.ToMercator(orb.Point{maxLon, maxLat})
	return NewExtent(lo.X(), lo.Y(), hi.X(), hi.Y())
}

// MinX ...
func (e Extent) MinX() float64 { return e.bound.Left() }

// MinY ...
func (e Extent) MinY() float64 { return e.bound.Bottom() }

// MaxX ...
func (e Extent) MaxX() float64 { return e.bound.Right() }

// MaxY ...
func (e Extent) MaxY() float64 { return e.bound.Top() }

// Validate checks that min is strictly below max on both axes.
func (e Extent) Validate() error {
	for _, v := range []float64{e.MinX(), e.MinY(), e.MaxX(), e.MaxY()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidExtent)
		}
	}
	if e.MinX() >= e.MaxX() {
		return fmt.Errorf("%w: minX (%f) must be less than maxX (%f)", ErrInvalidExtent, e.MinX(), e.MaxX())
	}
	if e.MinY() >= e.MaxY() {
		return fmt.Errorf("%w: minY (%f) must be less than maxY (%f)", ErrInvalidExtent, e.MinY(), e.MaxY())
	}
	return nil
}

func (e Extent) String() string {
	return fmt.Sprintf("[%f, %f, %f, %f]", e.MinX(), e.MinY(), e.MaxX(), e.MaxY())
}

// Grid describes the tiling scheme. WorldDelta is half the world extent in projected units;
// the grid origin is (-WorldDelta, +WorldDelta).
type Grid struct {
	WorldDelta float64
}

// WebMercator is the grid used by web-mercator tile caches.
var WebMercator = Grid{WorldDelta: WebMercatorDelta}

// TileSize returns the projected edge length of one tile at the given level.
func (g Grid) TileSize(level int) float64 {
	return g.WorldDelta * math.Pow(2, float64(1-level))
}

// Range is an inclusive block of tile indices at one level.
type Range struct {
	Level       int
	StartRow    int
	EndRow      int
	StartColumn int
	EndColumn   int
}

// Rows ...
func (r Range) Rows() int { return r.EndRow - r.StartRow + 1 }

// Columns ...
func (r Range) Columns() int { return r.EndColumn - r.StartColumn + 1 }

// Count returns the number of candidate coordinates in the range.
func (r Range) Count() int { return r.Rows() * r.Columns() }

func (r Range) String() string {
	return fmt.Sprintf("level %d rows [%d, %d] columns [%d, %d]", r.Level, r.StartRow, r.EndRow, r.StartColumn, r.EndColumn)
}

// ComputeRange returns the tile indices overlapping the extent at the given level,
// widened by paddingTiles on every side. The end bounds always include the tile the
// extent edge falls into. Indices are not clamped to the world grid.
func (g Grid) ComputeRange(extent Extent, level, paddingTiles int) (Range, error) {
	if g.WorldDelta <= 0 || math.IsNaN(g.WorldDelta) || math.IsInf(g.WorldDelta, 0) {
		return Range{}, fmt.Errorf("world delta must be positive, got %f", g.WorldDelta)
	}
	if level < 0 {
		return Range{}, fmt.Errorf("%w: %d", ErrNegativeLevel, level)
	}
	if level > MaxLevel {
		return Range{}, fmt.Errorf("%w: %d, the maximum is %d", ErrLevelTooLarge, level, MaxLevel)
	}
	if paddingTiles < 0 {
		return Range{}, fmt.Errorf("%w: %d", ErrNegativePadding, paddingTiles)
	}
	if err := extent.Validate(); err != nil {
		return Range{}, err
	}

	tileSize := g.TileSize(level)
	d := g.WorldDelta

	var idx [4]int
	for i, q := range [4]float64{
		(d - extent.MaxY()) / tileSize,
		(d - extent.MinY()) / tileSize,
		(extent.MinX() + d) / tileSize,
		(extent.MaxX() + d) / tileSize,
	} {
		q = math.Floor(q)
		if math.IsNaN(q) || math.Abs(q)+float64(paddingTiles)+1 >= maxIndex {
			return Range{}, fmt.Errorf("%w: extent %s at level %d", ErrIndexOutOfRange, extent, level)
		}
		idx[i] = int(q)
	}

	return Range{
		Level:       level,
		StartRow:    idx[0] - paddingTiles,
		EndRow:      idx[1] + 1 + paddingTiles,
		StartColumn: idx[2] - paddingTiles,
		EndColumn:   idx[3] + 1 + paddingTiles,
	}, nil
}

// Coordinate identifies one tile. Row 0 / column 0 is the top-left tile of the level.
type Coordinate struct {
	Level  int
	Row    int
	Column int
}

func (c Coordinate) String() string {
	return fmt.Sprintf("L%d R%d C%d", c.Level, c.Row, c.Column)
}

// Each calls fn for every coordinate in the range in row-major order, stopping at the
// first error fn returns.
func (r Range) Each(fn func(Coordinate) error) error {
	for row := r.StartRow; row <= r.EndRow; row++ {
		for column := r.StartColumn; column <= r.EndColumn; column++ {
			if err := fn(Coordinate{Level: r.Level, Row: row, Column: column}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ComputeRange computes the tile range on the web-mercator grid.
func ComputeRange(extent Extent, level, paddingTiles int) (Range, error) {
	return WebMercator.ComputeRange(extent, level, paddingTiles)
}
