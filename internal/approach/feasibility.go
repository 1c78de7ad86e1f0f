package approach

import (
	"github.com/yegors/autovector/internal/geo"
	"github.com/yegors/autovector/pkg/logger"
)

// Runway describes the active landing runway from the aircraft's side:
// the threshold position, the inbound magnetic heading and the minimum
// altitude at which the glideslope can be intercepted from below
type Runway struct {
	ID                       string    `json:"id"`
	HeadingDeg               float64   `json:"heading_deg"`
	Threshold                geo.Point `json:"threshold"`
	GlideslopeInterceptAltFt float64   `json:"glideslope_intercept_alt_ft"`
}

// Config holds the geometric limits for granting an approach clearance
type Config struct {
	MinInterceptNM   float64 // closer than this risks overshooting the localizer
	MaxInterceptNM   float64 // farther than this the approach is not yet relevant
	InterceptConeDeg float64 // half-angle of the cone in front of the threshold
	MinDivergenceDeg float64 // aircraft must still be turning onto final
}

// Evaluator decides whether an aircraft may be cleared for an instrument
// approach right now. A positive answer is the terminal condition that
// hands the aircraft off and ends learner control.
type Evaluator struct {
	cfg    Config
	logger *logger.Logger
}

// NewEvaluator creates a feasibility evaluator with the given limits
func NewEvaluator(cfg Config, log *logger.Logger) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		logger: log.Named("approach"),
	}
}

// CanIntercept reports whether the aircraft can intercept the glideslope
// for the given runway from its current position, heading and altitude.
// Invalid inputs produce false, never a panic: an unanswerable question
// means "no clearance this tick".
func (e *Evaluator) CanIntercept(pos geo.Point, headingDeg, altitudeFt float64, rwy *Runway) bool {
	if rwy == nil || !rwy.Threshold.Valid() {
		e.logger.Debug("Feasibility check without a usable runway")
		return false
	}
	if !pos.Valid() {
		e.logger.Debug("Feasibility check without a usable position",
			logger.String("runway", rwy.ID),
		)
		return false
	}

	// Below the platform altitude the aircraft would meet the glideslope
	// from above, which is not a stabilized approach.
	if altitudeFt < rwy.GlideslopeInterceptAltFt {
		return false
	}

	// Distance to the threshold must fall inside the interception band.
	dist := geo.DistanceNM(rwy.Threshold, pos)
	if dist < e.cfg.MinInterceptNM || dist > e.cfg.MaxInterceptNM {
		return false
	}

	// The aircraft must sit roughly in front of the runway: the bearing
	// from the threshold out to the aircraft stays within the intercept
	// cone around the reciprocal of the inbound course.
	bearingFromThreshold := geo.Bearing(rwy.Threshold, pos)
	approachAxis := geo.NormalizeHeading(rwy.HeadingDeg + 180)
	if geo.HeadingDifference(bearingFromThreshold, approachAxis) > e.cfg.InterceptConeDeg {
		return false
	}

	// Divergence policy: the aircraft's own heading must still differ from
	// the inbound course by at least the minimum divergence angle. An
	// aircraft already aligned is established on the approach, not
	// intercepting it.
	if geo.HeadingDifference(headingDeg, rwy.HeadingDeg) < e.cfg.MinDivergenceDeg {
		return false
	}

	e.logger.Debug("Glideslope interception feasible",
		logger.String("runway", rwy.ID),
		logger.Float64("distance_nm", dist),
		logger.Float64("altitude_ft", altitudeFt),
	)
	return true
}
