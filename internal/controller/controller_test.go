package controller

import (
	"math/rand"
	"testing"

	"github.com/yegors/autovector/internal/airspace"
	"github.com/yegors/autovector/internal/approach"
	"github.com/yegors/autovector/internal/geo"
	"github.com/yegors/autovector/internal/learning"
	"github.com/yegors/autovector/pkg/logger"
)

var testCenter = geo.Point{Lat: 43.6777, Lon: -79.6248}

type fakeProvider struct {
	snapshots map[string]*AircraftSnapshot
}

func (f *fakeProvider) AircraftByID(id string) (*AircraftSnapshot, bool) {
	snap, ok := f.snapshots[id]
	return snap, ok
}

type issuedCommand struct {
	aircraftID string
	headingDeg float64
	clearance  bool
}

type fakeControl struct {
	commands []issuedCommand
}

func (f *fakeControl) IssueHeading(id string, headingDeg float64) CommandResult {
	f.commands = append(f.commands, issuedCommand{aircraftID: id, headingDeg: headingDeg})
	return CommandResult{Accepted: true}
}

func (f *fakeControl) IssueApproachClearance(id string, rwy *approach.Runway) CommandResult {
	f.commands = append(f.commands, issuedCommand{aircraftID: id, clearance: true})
	return CommandResult{Accepted: true}
}

type fakeRunways struct {
	rwy *approach.Runway
}

func (f *fakeRunways) ActiveRunway() *approach.Runway { return f.rwy }

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Publish(e Event) { r.events = append(r.events, e) }

type fixture struct {
	ctrl     *Controller
	grid     *airspace.Grid
	learner  *learning.Learner
	provider *fakeProvider
	control  *fakeControl
	sink     *recordingSink
}

// Runway 05 with the approach flown from the southwest: approach axis 230.
func testFixtureRunway() *approach.Runway {
	return &approach.Runway{
		ID:                       "05",
		HeadingDeg:               50,
		Threshold:                testCenter,
		GlideslopeInterceptAltFt: 2500,
	}
}

func newFixture(t *testing.T, epsilon float64) *fixture {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	grid, err := airspace.NewGrid(testCenter, 40, 5, 5, log)
	if err != nil {
		t.Fatalf("failed to build grid: %v", err)
	}

	learner, err := learning.NewLearner(
		learning.Params{Alpha: 1, Gamma: 0.9, Epsilon: epsilon},
		rand.New(rand.NewSource(42)),
		log,
	)
	if err != nil {
		t.Fatalf("failed to create learner: %v", err)
	}

	evaluator := approach.NewEvaluator(approach.Config{
		MinInterceptNM:   5,
		MaxInterceptNM:   15,
		InterceptConeDeg: 30,
		MinDivergenceDeg: 20,
	}, log)

	provider := &fakeProvider{snapshots: make(map[string]*AircraftSnapshot)}
	control := &fakeControl{}
	sink := &recordingSink{}

	ctrl := New(
		grid, learner, evaluator, provider, control,
		&fakeRunways{rwy: testFixtureRunway()},
		Rewards{Intercept: 1000, Exit: -1000},
		TerminalGeometry{DistanceNM: 10, AlignDeg: 45},
		sink, log,
	)

	return &fixture{ctrl: ctrl, grid: grid, learner: learner, provider: provider, control: control, sink: sink}
}

func (f *fixture) addAircraft(id string, bearing, dist, headingDeg, altFt float64) *AircraftSnapshot {
	snap := &AircraftSnapshot{
		ID:             id,
		Position:       geo.Displace(testCenter, bearing, dist),
		HeadingDeg:     headingDeg,
		AltitudeFt:     altFt,
		InsideAirspace: true,
		Controllable:   true,
	}
	f.provider.snapshots[id] = snap
	f.ctrl.HandleAircraftEntered(snap)
	return snap
}

func lastEvent(events []Event, typ string) *Event {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func TestFirstObservationScenario(t *testing.T) {
	// Agent at 38nm bearing 2 degrees: outermost ring, wedge [0,5). First
	// tick must record the cell without an update and issue a heading
	// restricted to {North, West}.
	f := newFixture(t, 0)
	f.addAircraft("C0FFEE", 2, 38, 180, 8000)

	f.ctrl.Step()

	agents := f.ctrl.Agents()
	if len(agents) != 1 {
		t.Fatalf("agent count = %d, expected 1", len(agents))
	}
	if agents[0].LastCell == nil || agents[0].LastCell.MinDistance != 35 || agents[0].LastCell.StartHeading != 0 {
		t.Fatalf("last cell = %v, expected ring 35 wedge 0", agents[0].LastCell)
	}

	// No transition had a previous cell, so the table must still be empty.
	if len(f.ctrl.DumpValueTable()) != 0 {
		t.Error("first observation must not produce an update")
	}

	if len(f.control.commands) != 1 {
		t.Fatalf("issued %d commands, expected 1", len(f.control.commands))
	}
	cmd := f.control.commands[0]
	if cmd.clearance {
		t.Fatal("expected a heading command, not a clearance")
	}
	if cmd.headingDeg != 0 && cmd.headingDeg != 270 {
		t.Errorf("heading = %v, expected 0 (North) or 270 (West)", cmd.headingDeg)
	}
}

func TestOutermostRingRestriction(t *testing.T) {
	f := newFixture(t, 0)
	outer := f.grid.OutermostRing()

	tests := []struct {
		wedge    float64
		expected []learning.Action
	}{
		{0, []learning.Action{learning.North, learning.West}},
		{85, []learning.Action{learning.North, learning.West}},
		{95, []learning.Action{learning.South, learning.West}},
		{175, []learning.Action{learning.South, learning.West}},
		{185, []learning.Action{learning.South, learning.East}},
		{265, []learning.Action{learning.South, learning.East}},
		{275, []learning.Action{learning.North, learning.East}},
		{355, []learning.Action{learning.North, learning.East}},
	}

	for _, tt := range tests {
		cell := f.grid.Locate(geo.Displace(testCenter, tt.wedge+1, outer+2))
		if cell == nil || cell.MinDistance != outer {
			t.Fatalf("expected outermost cell for wedge %v", tt.wedge)
		}
		got := f.ctrl.LegalActions(cell)
		if len(got) != 2 || got[0] != tt.expected[0] || got[1] != tt.expected[1] {
			t.Errorf("wedge %v: legal actions = %v, expected %v", tt.wedge, got, tt.expected)
		}
	}
}

func TestOutermostRestrictionFractionalStep(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	// Ring radii for fractional steps do not land on exact float
	// multiples, which must not disable the boundary restriction.
	grid, err := airspace.NewGrid(testCenter, 0.6, 0.1, 90, log)
	if err != nil {
		t.Fatalf("failed to build grid: %v", err)
	}
	learner, err := learning.NewLearner(
		learning.Params{Alpha: 1, Gamma: 0.9, Epsilon: 0},
		rand.New(rand.NewSource(42)), log,
	)
	if err != nil {
		t.Fatalf("failed to create learner: %v", err)
	}
	evaluator := approach.NewEvaluator(approach.Config{
		MinInterceptNM:   5,
		MaxInterceptNM:   15,
		InterceptConeDeg: 30,
		MinDivergenceDeg: 20,
	}, log)
	ctrl := New(
		grid, learner, evaluator,
		&fakeProvider{snapshots: make(map[string]*AircraftSnapshot)},
		&fakeControl{},
		&fakeRunways{rwy: testFixtureRunway()},
		Rewards{Intercept: 1000, Exit: -1000},
		TerminalGeometry{DistanceNM: 0, AlignDeg: 45},
		nil, log,
	)

	// The last wedge count of cells in construction order form the
	// boundary ring; only they carry the two-action restriction.
	cells := grid.Cells()
	wedges := len(cells) / grid.RingCount()
	for i, cell := range cells {
		want := 4
		if i >= len(cells)-wedges {
			want = 2
		}
		if got := ctrl.LegalActions(cell); len(got) != want {
			t.Errorf("cell %d (ring radius %v): %d legal actions, expected %d",
				cell.ID, cell.MinDistance, len(got), want)
		}
	}
}

func TestInnerRingsAllowAllActions(t *testing.T) {
	f := newFixture(t, 0)

	// Ring 20, wedge 90: neither outermost nor terminal geometry.
	cell := f.grid.Locate(geo.Displace(testCenter, 91, 22))
	if cell == nil {
		t.Fatal("expected a cell")
	}
	if got := f.ctrl.LegalActions(cell); len(got) != 4 {
		t.Errorf("legal actions = %v, expected all four", got)
	}
}

func TestTerminalCellHasNoLegalActions(t *testing.T) {
	f := newFixture(t, 0)

	// Approach axis for runway 05 is 230. A close-in cell aligned with
	// that axis is terminal.
	cell := f.grid.Locate(geo.Displace(testCenter, 231, 7))
	if cell == nil {
		t.Fatal("expected a cell")
	}
	if got := f.ctrl.LegalActions(cell); len(got) != 0 {
		t.Errorf("legal actions = %v, expected none for terminal geometry", got)
	}

	// Same distance but opposite side of the airport: not terminal.
	cell = f.grid.Locate(geo.Displace(testCenter, 51, 7))
	if cell == nil {
		t.Fatal("expected a cell")
	}
	if got := f.ctrl.LegalActions(cell); len(got) != 4 {
		t.Errorf("legal actions = %v, expected all four off-axis", got)
	}
}

func TestTransitionProducesUpdate(t *testing.T) {
	f := newFixture(t, 0)
	snap := f.addAircraft("ABC123", 90, 22, 270, 8000)

	f.ctrl.Step()

	// Move one ring inward along the same bearing: the reconstructed
	// action is West (bearing from the old cell reference is ~270).
	snap.Position = geo.Displace(testCenter, 90, 17)
	f.ctrl.Step()

	table := f.ctrl.DumpValueTable()
	if len(table) != 1 {
		t.Fatalf("table has %d rows, expected 1", len(table))
	}

	prev := f.grid.Locate(geo.Displace(testCenter, 90, 22))
	row, ok := table[prev.ID]
	if !ok {
		t.Fatalf("expected a row for the departed cell %d", prev.ID)
	}
	// Ongoing transition with an all-zero next row: the update writes 0,
	// but the row exists in full.
	if len(row) != 4 {
		t.Errorf("row has %d actions, expected 4", len(row))
	}
}

func TestInterceptionRewardAndHandoff(t *testing.T) {
	f := newFixture(t, 0)

	// Start outside the interception band on the approach axis, flying
	// across the final approach course.
	snap := f.addAircraft("BEEF01", 230, 17, 90, 3000)
	f.ctrl.Step()
	prev := f.grid.Locate(snap.Position)

	// Move inside the band: distance 12 from the threshold, still on the
	// axis, heading 90 diverges from runway heading 50 by 40 degrees.
	snap.Position = geo.Displace(testCenter, 230, 12)
	f.ctrl.Step()

	// The transition must carry the interception reward.
	table := f.ctrl.DumpValueTable()
	row, ok := table[prev.ID]
	if !ok {
		t.Fatal("expected an update for the departed cell")
	}
	derived := learning.ActionFromBearing(geo.Bearing(prev.Reference, f.grid.Locate(snap.Position).Reference))
	if v := row[derived.String()]; v != 1000 {
		t.Errorf("value for derived action = %v, expected the interception reward", v)
	}

	// The agent is handed off and removed.
	if len(f.ctrl.Agents()) != 0 {
		t.Error("agent should be removed after handoff")
	}
	last := f.control.commands[len(f.control.commands)-1]
	if !last.clearance {
		t.Error("expected an approach clearance command")
	}
	if e := lastEvent(f.sink.events, EventHandoff); e == nil || e.AgentID != "BEEF01" {
		t.Error("expected a handoff event")
	}
}

func TestAirspaceExitPenaltyAndRemoval(t *testing.T) {
	f := newFixture(t, 0)
	snap := f.addAircraft("DEAD99", 90, 38, 90, 8000)

	f.ctrl.Step()
	prev := f.grid.Locate(snap.Position)

	// Next observation is beyond the CTR: terminal with the exit penalty.
	snap.Position = geo.Displace(testCenter, 90, 45)
	snap.InsideAirspace = false
	f.ctrl.Step()

	table := f.ctrl.DumpValueTable()
	row, ok := table[prev.ID]
	if !ok {
		t.Fatal("expected an update for the departed cell")
	}
	if v := row[learning.East.String()]; v != -1000 {
		t.Errorf("value for East = %v, expected the exit penalty", v)
	}

	if len(f.ctrl.Agents()) != 0 {
		t.Error("agent should be removed after leaving the airspace")
	}
	if e := lastEvent(f.sink.events, EventAirspaceExit); e == nil || e.AgentID != "DEAD99" {
		t.Error("expected an airspace exit event")
	}
}

func TestUncontrollableAircraftNotSteered(t *testing.T) {
	f := newFixture(t, 0)
	snap := f.addAircraft("FADE55", 90, 22, 270, 8000)
	snap.Controllable = false

	f.ctrl.Step()

	if len(f.control.commands) != 0 {
		t.Errorf("issued %d commands to an uncontrollable aircraft", len(f.control.commands))
	}
	// The agent still tracks its cell.
	if agents := f.ctrl.Agents(); len(agents) != 1 || agents[0].LastCell == nil {
		t.Error("agent should still record its cell")
	}
}

func TestNoCommandWithoutSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	f.addAircraft("F00BAR", 90, 22, 270, 8000)
	delete(f.provider.snapshots, "F00BAR")

	f.ctrl.Step()

	if len(f.control.commands) != 0 {
		t.Error("no commands should be issued without a snapshot")
	}
	if len(f.ctrl.Agents()) != 1 {
		t.Error("agent is kept until the removal notification arrives")
	}
}

func TestLoadDumpValueTable(t *testing.T) {
	f := newFixture(t, 0)

	f.ctrl.LoadValueTable(learning.Snapshot{
		3: {"N": 1, "E": 2, "S": 3, "W": 4},
	})

	dump := f.ctrl.DumpValueTable()
	if len(dump) != 1 || dump[3]["W"] != 4 {
		t.Errorf("round trip failed: %v", dump)
	}
}

func TestLifecycleEvents(t *testing.T) {
	f := newFixture(t, 0)
	f.addAircraft("AAA111", 90, 22, 270, 8000)

	if e := lastEvent(f.sink.events, EventAgentAdded); e == nil || e.AgentID != "AAA111" {
		t.Fatal("expected an agent_added event")
	}

	// Duplicate registration is a no-op.
	before := len(f.sink.events)
	f.ctrl.HandleAircraftEntered(f.provider.snapshots["AAA111"])
	if len(f.sink.events) != before {
		t.Error("duplicate registration should not emit events")
	}

	f.ctrl.HandleAircraftRemoved("AAA111")
	if e := lastEvent(f.sink.events, EventAgentRemoved); e == nil || e.AgentID != "AAA111" {
		t.Fatal("expected an agent_removed event")
	}
	if len(f.ctrl.Agents()) != 0 {
		t.Error("agent should be gone after removal")
	}
}
