package airspace

import (
	"fmt"
	"math"

	"github.com/yegors/autovector/internal/geo"
	"github.com/yegors/autovector/pkg/logger"
)

// Cell is one distance-ring / heading-wedge partition of the controlled
// airspace. Cells are immutable once built: the grid constructs all of them
// eagerly and hands out pointers for the lifetime of a run.
type Cell struct {
	ID           int       `json:"id"`
	Ring         int       `json:"ring"`            // ring index, 0 innermost
	MinDistance  float64   `json:"min_distance_nm"` // inner radius of the ring
	StartHeading float64   `json:"start_heading"`   // inclusive lower bound of the wedge
	Reference    geo.Point `json:"reference"`       // point at (MinDistance, StartHeading) from the airport
}

func (c *Cell) String() string {
	return fmt.Sprintf("cell %d (ring %.0fnm, wedge %.0f°)", c.ID, c.MinDistance, c.StartHeading)
}

// ringBoundaryEpsNM absorbs the floating-point error of the
// haversine/displacement round trip when classifying a distance into a
// ring. Well below any physically meaningful position difference.
const ringBoundaryEpsNM = 1e-9

// Grid partitions the disk of radius ctrRadius around the airport into
// polar cells and answers position-to-cell and id-to-cell lookups
type Grid struct {
	center       geo.Point
	ctrRadiusNM  float64
	distanceStep float64
	headingStep  float64
	rings        [][]*Cell // rings[ringIdx][wedgeIdx]
	byID         map[int]*Cell
	logger       *logger.Logger
}

// NewGrid builds the full cell set for the given airspace. Configuration
// faults (non-positive steps, a heading step that does not divide 360, a
// radius too small for a single ring) are rejected here rather than left to
// produce a non-tiling state space at runtime.
func NewGrid(center geo.Point, ctrRadiusNM, distanceStepNM, headingStepDeg float64, log *logger.Logger) (*Grid, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("invalid airport reference point: %+v", center)
	}
	if distanceStepNM <= 0 || headingStepDeg <= 0 {
		return nil, fmt.Errorf("steps must be positive: distance %.1f, heading %.1f", distanceStepNM, headingStepDeg)
	}
	if headingStepDeg >= 360 {
		return nil, fmt.Errorf("heading step %.1f must be below 360", headingStepDeg)
	}
	if rem := math.Mod(360.0, headingStepDeg); rem != 0 {
		return nil, fmt.Errorf("heading step %.1f does not divide 360 evenly", headingStepDeg)
	}
	if ctrRadiusNM < distanceStepNM {
		return nil, fmt.Errorf("ctr radius %.1fnm admits no complete ring at step %.1fnm", ctrRadiusNM, distanceStepNM)
	}

	g := &Grid{
		center:       center,
		ctrRadiusNM:  ctrRadiusNM,
		distanceStep: distanceStepNM,
		headingStep:  headingStepDeg,
		byID:         make(map[int]*Cell),
		logger:       log.Named("airspace"),
	}

	wedges := int(360.0 / headingStepDeg)
	id := 0
	for r := 0; float64(r)*distanceStepNM < ctrRadiusNM; r++ {
		// Multiplying by the index keeps ring radii bit-identical to
		// OutermostRing; accumulating the step would drift for
		// fractional step sizes.
		dist := float64(r) * distanceStepNM
		ring := make([]*Cell, 0, wedges)
		for w := 0; w < wedges; w++ {
			hdg := float64(w) * headingStepDeg
			cell := &Cell{
				ID:           id,
				Ring:         r,
				MinDistance:  dist,
				StartHeading: hdg,
				Reference:    geo.Displace(center, hdg, dist),
			}
			ring = append(ring, cell)
			g.byID[id] = cell
			id++
		}
		g.rings = append(g.rings, ring)
	}

	g.logger.Info("Airspace grid built",
		logger.Int("rings", len(g.rings)),
		logger.Int("wedges_per_ring", wedges),
		logger.Int("cells", id),
		logger.Float64("ctr_radius_nm", ctrRadiusNM),
	)

	return g, nil
}

// Locate returns the cell owning the given position, or nil if the position
// is outside the modelled airspace (at or beyond the last complete ring)
func (g *Grid) Locate(p geo.Point) *Cell {
	if !p.Valid() {
		g.logger.Debug("Locate called with invalid position",
			logger.Float64("lat", p.Lat),
			logger.Float64("lon", p.Lon),
		)
		return nil
	}

	dist := geo.DistanceNM(g.center, p)
	ringIdx := int(dist / g.distanceStep)
	// The haversine round trip lands a hair below exact ring multiples,
	// so a position sitting on a ring boundary would otherwise truncate
	// into the ring below it. Boundary positions belong to the outer
	// ring; at the CTR edge that pushes them out of the modelled area.
	if g.distanceStep-(dist-float64(ringIdx)*g.distanceStep) < ringBoundaryEpsNM {
		ringIdx++
	}
	if ringIdx < 0 || ringIdx >= len(g.rings) {
		return nil
	}

	// The ring wedges tile the full circle, so a linear containment scan
	// always terminates with exactly one match.
	bearing := geo.Bearing(g.center, p)
	for _, cell := range g.rings[ringIdx] {
		if geo.IsHeadingBetween(bearing, cell.StartHeading, cell.StartHeading+g.headingStep) {
			return cell
		}
	}

	// Unreachable as long as the wedges tile 360 degrees; treated as a
	// diagnostic rather than a failure.
	g.logger.Warn("No wedge matched bearing",
		logger.Float64("bearing", bearing),
		logger.Int("ring", ringIdx),
	)
	return nil
}

// ByID returns the cell with the given id, or nil if no such cell was built
func (g *Grid) ByID(id int) *Cell {
	return g.byID[id]
}

// Cells returns all cells in construction order
func (g *Grid) Cells() []*Cell {
	cells := make([]*Cell, 0, len(g.byID))
	for _, ring := range g.rings {
		cells = append(cells, ring...)
	}
	return cells
}

// Center returns the airport reference point the grid is built around
func (g *Grid) Center() geo.Point {
	return g.center
}

// RingCount returns the number of rings
func (g *Grid) RingCount() int {
	return len(g.rings)
}

// OutermostRing returns the MinDistance of the last complete ring. Cells in
// that ring carry the movement restriction that keeps agents inside the
// modelled airspace.
func (g *Grid) OutermostRing() float64 {
	return float64(len(g.rings)-1) * g.distanceStep
}

// DistanceStep returns the ring thickness in nautical miles
func (g *Grid) DistanceStep() float64 {
	return g.distanceStep
}

// HeadingStep returns the wedge width in degrees
func (g *Grid) HeadingStep() float64 {
	return g.headingStep
}
