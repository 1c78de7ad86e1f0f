package controller

import (
	"sort"
	"sync"
	"time"

	"github.com/yegors/autovector/internal/airspace"
	"github.com/yegors/autovector/internal/approach"
	"github.com/yegors/autovector/internal/geo"
	"github.com/yegors/autovector/internal/learning"
	"github.com/yegors/autovector/pkg/logger"
)

// Outcome tags the result of one observed state transition. Rewards are
// mapped from outcomes in exactly one place so the shape of the reward
// signal stays auditable.
type Outcome int

const (
	// Ongoing means the agent moved between ordinary cells
	Ongoing Outcome = iota
	// Intercepted means the agent reached glideslope-interception geometry
	Intercepted
	// ExitedAirspace means the agent left the controlled airspace
	ExitedAirspace
)

// Rewards are the fixed terminal reward magnitudes. An ongoing step earns
// nothing: the living cost is carried implicitly by the discount factor.
type Rewards struct {
	Intercept float64
	Exit      float64
}

func (r Rewards) forOutcome(o Outcome) float64 {
	switch o {
	case Intercepted:
		return r.Intercept
	case ExitedAirspace:
		return r.Exit
	default:
		return 0
	}
}

// TerminalGeometry bounds the innermost region in which an agent has no
// legal actions left: close to the airport and aligned with the approach
// axis, it must already have been handed off
type TerminalGeometry struct {
	DistanceNM float64
	AlignDeg   float64
}

// Agent is the learning-controlled counterpart of one aircraft
type Agent struct {
	ID          string         `json:"id"`
	LastCell    *airspace.Cell `json:"last_cell,omitempty"`
	PendingCell *airspace.Cell `json:"-"`
	Terminated  bool           `json:"terminated"`
}

// Controller owns the live agent set and drives one learning step per
// simulation tick per agent: it detects cell transitions, maps them to
// rewarded updates on the learner, and issues the resulting control
// commands to the flight-control collaborator.
type Controller struct {
	grid      *airspace.Grid
	learner   *learning.Learner
	evaluator *approach.Evaluator
	aircraft  AircraftProvider
	control   FlightControl
	runways   RunwayProvider
	rewards   Rewards
	terminal  TerminalGeometry
	events    EventSink
	logger    *logger.Logger

	mu       sync.RWMutex
	agents   map[string]*Agent
	ticks    int64
	handoffs int64
	exits    int64
}

// New creates a controller. The learner and grid are owned by the
// controller for the lifetime of a run; no other caller mutates them.
func New(
	grid *airspace.Grid,
	learner *learning.Learner,
	evaluator *approach.Evaluator,
	aircraft AircraftProvider,
	control FlightControl,
	runways RunwayProvider,
	rewards Rewards,
	terminal TerminalGeometry,
	events EventSink,
	log *logger.Logger,
) *Controller {
	if events == nil {
		events = NopSink{}
	}
	return &Controller{
		grid:      grid,
		learner:   learner,
		evaluator: evaluator,
		aircraft:  aircraft,
		control:   control,
		runways:   runways,
		rewards:   rewards,
		terminal:  terminal,
		events:    events,
		agents:    make(map[string]*Agent),
		logger:    log.Named("controller"),
	}
}

// HandleAircraftEntered registers a new arrival as a learning agent.
// Called from the lifecycle notification of the flight-dynamics
// collaborator when an arrival spawns or enters the airspace.
func (c *Controller) HandleAircraftEntered(snap *AircraftSnapshot) {
	if snap == nil || snap.ID == "" {
		return
	}

	c.mu.Lock()
	if _, exists := c.agents[snap.ID]; exists {
		c.mu.Unlock()
		return
	}
	c.agents[snap.ID] = &Agent{ID: snap.ID}
	c.mu.Unlock()

	c.logger.Info("Agent registered",
		logger.String("aircraft", snap.ID),
		logger.String("category", snap.Category),
	)
	c.events.Publish(Event{Type: EventAgentAdded, AgentID: snap.ID, Timestamp: time.Now().UTC()})
}

// HandleAircraftRemoved drops the agent for an aircraft that left the
// simulation
func (c *Controller) HandleAircraftRemoved(id string) {
	c.mu.Lock()
	_, exists := c.agents[id]
	delete(c.agents, id)
	c.mu.Unlock()

	if exists {
		c.logger.Info("Agent removed", logger.String("aircraft", id))
		c.events.Publish(Event{Type: EventAgentRemoved, AgentID: id, Timestamp: time.Now().UTC()})
	}
}

// Step advances one simulation tick: one learning step per live agent.
// It is the only path that mutates the value table and the agent set, and
// must not run concurrently with itself.
func (c *Controller) Step() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ticks++

	for _, id := range c.sortedAgentIDs() {
		agent := c.agents[id]
		snap, ok := c.aircraft.AircraftByID(id)
		if !ok {
			// Removal notification has not arrived yet; nothing to
			// steer this tick.
			continue
		}
		c.stepAgent(agent, snap)
		if agent.Terminated {
			delete(c.agents, id)
		}
	}
}

// stepAgent runs the per-tick algorithm for one agent. Caller holds the
// controller lock.
func (c *Controller) stepAgent(agent *Agent, snap *AircraftSnapshot) {
	rwy := c.runways.ActiveRunway()
	cell := c.grid.Locate(snap.Position)

	// Leaving controlled airspace is terminal with the exit penalty. The
	// exterior is unmodelled, so the update sees a valueless next state.
	if cell == nil || !snap.InsideAirspace {
		if agent.LastCell != nil {
			action := c.deriveAction(agent.LastCell, snap.Position)
			c.learner.Update(agent.LastCell.ID, action, -1, nil, c.rewards.forOutcome(ExitedAirspace))
		}
		agent.Terminated = true
		c.exits++
		c.logger.Info("Agent left controlled airspace",
			logger.String("aircraft", agent.ID),
		)
		c.events.Publish(Event{Type: EventAirspaceExit, AgentID: agent.ID, Timestamp: time.Now().UTC()})
		return
	}

	feasible := c.evaluator.CanIntercept(snap.Position, snap.HeadingDeg, snap.AltitudeFt, rwy)

	// Record a pending transition when the occupied cell changed,
	// including the very first observation.
	if cell != agent.LastCell {
		agent.PendingCell = cell
	}

	if agent.PendingCell != nil {
		if agent.LastCell != nil {
			action := c.deriveAction(agent.LastCell, agent.PendingCell.Reference)
			outcome := Ongoing
			if feasible {
				outcome = Intercepted
			}
			c.learner.Update(
				agent.LastCell.ID,
				action,
				agent.PendingCell.ID,
				c.LegalActions(agent.PendingCell),
				c.rewards.forOutcome(outcome),
			)
		}
		agent.LastCell = agent.PendingCell
		agent.PendingCell = nil
		c.events.Publish(Event{Type: EventAgentUpdated, AgentID: agent.ID, Cell: agent.LastCell, Timestamp: time.Now().UTC()})
	}

	// Terminal handling: hand the aircraft off as soon as interception is
	// feasible; it is no longer learner-controlled.
	if feasible {
		result := c.control.IssueApproachClearance(agent.ID, rwy)
		if !result.Accepted {
			c.logger.Warn("Approach clearance rejected",
				logger.String("aircraft", agent.ID),
				logger.String("message", result.Message),
			)
		}
		agent.Terminated = true
		c.handoffs++
		rwyID := ""
		if rwy != nil {
			rwyID = rwy.ID
		}
		c.logger.Info("Agent handed off for approach",
			logger.String("aircraft", agent.ID),
			logger.String("runway", rwyID),
		)
		c.events.Publish(Event{Type: EventHandoff, AgentID: agent.ID, Runway: rwyID, Timestamp: time.Now().UTC()})
		return
	}

	// An uncontrollable aircraft keeps its agent but is not steered.
	if !snap.Controllable {
		return
	}

	action := c.learner.SelectAction(agent.LastCell.ID, c.LegalActions(agent.LastCell))
	if action == nil {
		// No legal action means no one steers this aircraft this tick.
		// Degraded but acceptable.
		return
	}

	result := c.control.IssueHeading(agent.ID, action.Heading())
	if !result.Accepted {
		c.logger.Warn("Heading command rejected",
			logger.String("aircraft", agent.ID),
			logger.Float64("heading", action.Heading()),
			logger.String("message", result.Message),
		)
	}
}

// deriveAction reconstructs which cardinal action explains the move from
// the previous cell's reference position to the given point
func (c *Controller) deriveAction(from *airspace.Cell, to geo.Point) learning.Action {
	return learning.ActionFromBearing(geo.Bearing(from.Reference, to))
}

// LegalActions returns the actions available in a cell. The policy is
// geometric and owned here, not by the learner:
//   - the innermost approach-feasible region is terminal and has none;
//   - the outermost ring restricts movement to the two cardinals picked by
//     the cell's half-circle, so agents cannot escape to the unmodelled
//     exterior;
//   - every other cell allows all four.
func (c *Controller) LegalActions(cell *airspace.Cell) []learning.Action {
	if cell == nil {
		return nil
	}
	if c.isTerminalCell(cell) {
		return nil
	}
	if cell.Ring == c.grid.RingCount()-1 {
		actions := make([]learning.Action, 0, 2)
		if cell.StartHeading < 90 || cell.StartHeading >= 270 {
			actions = append(actions, learning.North)
		} else {
			actions = append(actions, learning.South)
		}
		if cell.StartHeading < 180 {
			actions = append(actions, learning.West)
		} else {
			actions = append(actions, learning.East)
		}
		return actions
	}
	return learning.Actions
}

// isTerminalCell reports whether a cell sits inside the terminal approach
// geometry: close to the airport and with its wedge aligned to the
// approach axis of the active runway. An agent there has already been
// handed off, by construction, before this cell is ever queried.
func (c *Controller) isTerminalCell(cell *airspace.Cell) bool {
	if cell.MinDistance >= c.terminal.DistanceNM {
		return false
	}
	rwy := c.runways.ActiveRunway()
	if rwy == nil {
		return false
	}
	approachAxis := geo.NormalizeHeading(rwy.HeadingDeg + 180)
	return geo.HeadingDifference(cell.StartHeading, approachAxis) <= c.terminal.AlignDeg
}

// LoadValueTable replaces the value table wholesale with an externally
// supplied snapshot
func (c *Controller) LoadValueTable(snap learning.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.learner.Restore(snap)
}

// DumpValueTable returns a copy of the value table in the persistence
// shape. Safe between ticks; the copy shares nothing with the live table.
func (c *Controller) DumpValueTable() learning.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.learner.Snapshot()
}

// Agents returns a snapshot of the live agents, sorted by id
func (c *Controller) Agents() []Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Agent, 0, len(c.agents))
	for _, id := range c.sortedAgentIDs() {
		out = append(out, *c.agents[id])
	}
	return out
}

// Stats exposes run counters for the API and run bookkeeping
type Stats struct {
	Ticks    int64 `json:"ticks"`
	Agents   int   `json:"agents"`
	Handoffs int64 `json:"handoffs"`
	Exits    int64 `json:"exits"`
	States   int   `json:"states"`
}

// Stats returns current run counters
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Ticks:    c.ticks,
		Agents:   len(c.agents),
		Handoffs: c.handoffs,
		Exits:    c.exits,
		States:   c.learner.States(),
	}
}

// sortedAgentIDs returns agent ids in stable order. Caller holds at least
// a read lock. Map iteration order would make tick behavior (and tests)
// nondeterministic.
func (c *Controller) sortedAgentIDs() []string {
	ids := make([]string, 0, len(c.agents))
	for id := range c.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
