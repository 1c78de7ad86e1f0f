package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/yegors/autovector/internal/approach"
	"github.com/yegors/autovector/internal/controller"
	"github.com/yegors/autovector/internal/geo"
	"github.com/yegors/autovector/pkg/logger"
)

// Aircraft is one simulated arrival. The sim owns the flight dynamics;
// the learning controller only sees snapshots and issues commands.
type Aircraft struct {
	ID            string    `json:"id"`
	Position      geo.Point `json:"position"`
	HeadingDeg    float64   `json:"heading_deg"`
	TargetHeading float64   `json:"target_heading_deg"`
	AltitudeFt    float64   `json:"altitude_ft"`
	SpeedKts      float64   `json:"speed_kts"`
	Category      string    `json:"category"`
}

// Config drives the simulated traffic and the tick cadence
type Config struct {
	TickInterval  time.Duration
	SpawnInterval time.Duration
	MaxAircraft   int
	SpeedKts      float64
	AltitudeFt    float64
	TurnRateDegS  float64
	CTRRadiusNM   float64
}

// Service is the built-in flight-dynamics collaborator: it spawns
// arrivals, integrates their motion, executes control commands, and
// drives the controller's tick loop
type Service struct {
	cfg    Config
	center geo.Point
	runway *approach.Runway
	ctrl   *controller.Controller
	rng    *rand.Rand
	logger *logger.Logger

	mu         sync.RWMutex
	aircraft   map[string]*Aircraft
	lastSpawn  time.Time
	cancelLoop context.CancelFunc
	done       chan struct{}
}

// NewService creates the simulation service. The controller is wired
// afterwards with SetController, since the controller itself needs the
// service as its AircraftProvider and FlightControl.
func NewService(cfg Config, center geo.Point, rwy *approach.Runway, rng *rand.Rand, log *logger.Logger) *Service {
	return &Service{
		cfg:      cfg,
		center:   center,
		runway:   rwy,
		rng:      rng,
		aircraft: make(map[string]*Aircraft),
		logger:   log.Named("sim"),
	}
}

// SetController wires the learning controller the tick loop drives
func (s *Service) SetController(ctrl *controller.Controller) {
	s.ctrl = ctrl
}

// ActiveRunway implements controller.RunwayProvider
func (s *Service) ActiveRunway() *approach.Runway {
	return s.runway
}

// AircraftByID implements controller.AircraftProvider
func (s *Service) AircraftByID(id string) (*controller.AircraftSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ac, ok := s.aircraft[id]
	if !ok {
		return nil, false
	}
	return s.snapshotLocked(ac), true
}

// snapshotLocked builds the controller-facing view of one aircraft.
// Caller holds at least a read lock.
func (s *Service) snapshotLocked(ac *Aircraft) *controller.AircraftSnapshot {
	return &controller.AircraftSnapshot{
		ID:             ac.ID,
		Position:       ac.Position,
		HeadingDeg:     ac.HeadingDeg,
		AltitudeFt:     ac.AltitudeFt,
		Category:       ac.Category,
		InsideAirspace: geo.DistanceNM(s.center, ac.Position) < s.cfg.CTRRadiusNM,
		Controllable:   true,
	}
}

// IssueHeading implements controller.FlightControl: the aircraft starts
// turning toward the commanded heading at its turn rate
func (s *Service) IssueHeading(id string, headingDeg float64) controller.CommandResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.aircraft[id]
	if !ok {
		return controller.CommandResult{Accepted: false, Message: fmt.Sprintf("unknown aircraft %s", id)}
	}
	ac.TargetHeading = geo.NormalizeHeading(headingDeg)
	return controller.CommandResult{Accepted: true, Message: fmt.Sprintf("fly heading %03.0f", ac.TargetHeading)}
}

// IssueApproachClearance implements controller.FlightControl: the
// aircraft is handed to the approach and leaves the simulation
func (s *Service) IssueApproachClearance(id string, rwy *approach.Runway) controller.CommandResult {
	s.mu.Lock()
	_, ok := s.aircraft[id]
	delete(s.aircraft, id)
	s.mu.Unlock()

	if !ok {
		return controller.CommandResult{Accepted: false, Message: fmt.Sprintf("unknown aircraft %s", id)}
	}
	rwyID := ""
	if rwy != nil {
		rwyID = rwy.ID
	}
	s.logger.Info("Aircraft cleared for approach",
		logger.String("aircraft", id),
		logger.String("runway", rwyID),
	)
	return controller.CommandResult{Accepted: true, Message: fmt.Sprintf("cleared ILS runway %s", rwyID)}
}

// Aircraft returns a snapshot of the simulated traffic
func (s *Service) Aircraft() []Aircraft {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Aircraft, 0, len(s.aircraft))
	for _, ac := range s.aircraft {
		out = append(out, *ac)
	}
	return out
}

// Start launches the tick loop. One tick advances the flight dynamics,
// manages spawns and despawns, and then runs one controller step; the
// next tick never starts before the previous one finished.
func (s *Service) Start(ctx context.Context) error {
	if s.ctrl == nil {
		return fmt.Errorf("no controller wired")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelLoop = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()

	s.logger.Info("Simulation started",
		logger.Duration("tick", s.cfg.TickInterval),
		logger.Int("max_aircraft", s.cfg.MaxAircraft),
	)
	return nil
}

// Stop halts the tick loop and waits for the current tick to finish
func (s *Service) Stop() {
	if s.cancelLoop != nil {
		s.cancelLoop()
		<-s.done
	}
	s.logger.Info("Simulation stopped")
}

// tick advances the world by one step
func (s *Service) tick() {
	dt := s.cfg.TickInterval.Seconds()

	s.mu.Lock()
	for _, ac := range s.aircraft {
		s.advanceLocked(ac, dt)
	}
	s.despawnStraysLocked()
	s.maybeSpawnLocked()
	s.mu.Unlock()

	// The controller reads snapshots through AircraftByID, so the world
	// lock must not be held across the learning step.
	s.ctrl.Step()
}

// advanceLocked integrates one aircraft's motion: turn toward the target
// heading at the turn rate, then move along the current heading
func (s *Service) advanceLocked(ac *Aircraft, dt float64) {
	diff := geo.NormalizeHeading(ac.TargetHeading - ac.HeadingDeg)
	maxTurn := s.cfg.TurnRateDegS * dt
	switch {
	case diff == 0:
		// Already on heading.
	case diff <= 180:
		if diff < maxTurn {
			ac.HeadingDeg = ac.TargetHeading
		} else {
			ac.HeadingDeg = geo.NormalizeHeading(ac.HeadingDeg + maxTurn)
		}
	default:
		left := 360 - diff
		if left < maxTurn {
			ac.HeadingDeg = ac.TargetHeading
		} else {
			ac.HeadingDeg = geo.NormalizeHeading(ac.HeadingDeg - maxTurn)
		}
	}

	distNM := ac.SpeedKts * dt / 3600.0
	ac.Position = geo.Displace(ac.Position, ac.HeadingDeg, distNM)
}

// despawnStraysLocked removes aircraft that have flown well past the CTR
// boundary; the controller has already terminated their agents
func (s *Service) despawnStraysLocked() {
	for id, ac := range s.aircraft {
		if geo.DistanceNM(s.center, ac.Position) > s.cfg.CTRRadiusNM+5 {
			delete(s.aircraft, id)
			s.logger.Debug("Stray aircraft despawned", logger.String("aircraft", id))
			s.ctrl.HandleAircraftRemoved(id)
		}
	}
}

// maybeSpawnLocked creates a new arrival when the spawn interval elapsed
// and the traffic cap allows it
func (s *Service) maybeSpawnLocked() {
	if len(s.aircraft) >= s.cfg.MaxAircraft {
		return
	}
	now := time.Now()
	if !s.lastSpawn.IsZero() && now.Sub(s.lastSpawn) < s.cfg.SpawnInterval {
		return
	}
	s.lastSpawn = now

	// Arrivals appear just inside the CTR at a random bearing, pointed
	// roughly at the airport.
	bearing := s.rng.Float64() * 360
	dist := s.cfg.CTRRadiusNM - 2
	pos := geo.Displace(s.center, bearing, dist)
	inbound := geo.NormalizeHeading(bearing + 180 + (s.rng.Float64()-0.5)*60)

	ac := &Aircraft{
		ID:            s.newID(),
		Position:      pos,
		HeadingDeg:    inbound,
		TargetHeading: inbound,
		AltitudeFt:    s.cfg.AltitudeFt,
		SpeedKts:      s.cfg.SpeedKts,
		Category:      "arrival",
	}
	s.aircraft[ac.ID] = ac

	s.logger.Info("Arrival spawned",
		logger.String("aircraft", ac.ID),
		logger.Float64("bearing", bearing),
		logger.Float64("distance_nm", dist),
	)
	s.ctrl.HandleAircraftEntered(s.snapshotLocked(ac))
}

// newID generates a random ICAO-style hex address
func (s *Service) newID() string {
	const hexDigits = "0123456789ABCDEF"
	buf := make([]byte, 6)
	for i := range buf {
		buf[i] = hexDigits[s.rng.Intn(len(hexDigits))]
	}
	return string(buf)
}
