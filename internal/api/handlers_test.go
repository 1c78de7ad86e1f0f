package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yegors/autovector/internal/airspace"
	"github.com/yegors/autovector/internal/approach"
	"github.com/yegors/autovector/internal/config"
	"github.com/yegors/autovector/internal/controller"
	"github.com/yegors/autovector/internal/geo"
	"github.com/yegors/autovector/internal/learning"
	"github.com/yegors/autovector/internal/sim"
	"github.com/yegors/autovector/internal/storage/sqlite"
	"github.com/yegors/autovector/internal/websocket"
	"github.com/yegors/autovector/pkg/logger"
)

func testServer(t *testing.T) (*httptest.Server, *controller.Controller) {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	cfg := config.DefaultConfig()
	center := geo.Point{Lat: cfg.Station.Latitude, Lon: cfg.Station.Longitude}
	runway := &approach.Runway{
		ID:                       cfg.Runway.ID,
		HeadingDeg:               cfg.Runway.HeadingDeg,
		Threshold:                geo.Point{Lat: cfg.Runway.ThresholdLat, Lon: cfg.Runway.ThresholdLon},
		GlideslopeInterceptAltFt: cfg.Runway.GlideslopeInterceptAltFt,
	}

	grid, err := airspace.NewGrid(center, cfg.Station.CTRRadiusNM, cfg.Airspace.DistanceStepNM, cfg.Airspace.HeadingStepDeg, log)
	if err != nil {
		t.Fatalf("failed to build grid: %v", err)
	}
	learner, err := learning.NewLearner(learning.Params{Alpha: 0.5, Gamma: 0.95, Epsilon: 0.1},
		rand.New(rand.NewSource(1)), log)
	if err != nil {
		t.Fatalf("failed to create learner: %v", err)
	}
	evaluator := approach.NewEvaluator(approach.Config{
		MinInterceptNM:   cfg.Approach.MinInterceptNM,
		MaxInterceptNM:   cfg.Approach.MaxInterceptNM,
		InterceptConeDeg: cfg.Approach.InterceptConeDeg,
		MinDivergenceDeg: cfg.Approach.MinDivergenceDeg,
	}, log)

	simService := sim.NewService(sim.Config{
		TickInterval: time.Second,
		MaxAircraft:  4,
		SpeedKts:     210,
		CTRRadiusNM:  cfg.Station.CTRRadiusNM,
	}, center, runway, rand.New(rand.NewSource(1)), log)

	wsServer := websocket.NewServer(log)
	go wsServer.Run()
	t.Cleanup(wsServer.Stop)

	ctrl := controller.New(grid, learner, evaluator, simService, simService, simService,
		controller.Rewards{Intercept: 1000, Exit: -1000},
		controller.TerminalGeometry{
			DistanceNM: cfg.Approach.TerminalDistanceNM,
			AlignDeg:   cfg.Approach.TerminalAlignDeg,
		},
		wsServer, log)
	simService.SetController(ctrl)

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	qtables, err := sqlite.NewValueTableStorage(db, log)
	if err != nil {
		t.Fatalf("failed to init value table storage: %v", err)
	}
	runs, err := sqlite.NewRunStorage(db, log)
	if err != nil {
		t.Fatalf("failed to init run storage: %v", err)
	}

	router := NewRouter(simService, ctrl, grid, cfg, log, wsServer, qtables, runs)
	srv := httptest.NewServer(router.Routes())
	t.Cleanup(srv.Close)
	return srv, ctrl
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	var body map[string]interface{}
	if status := getJSON(t, srv.URL+"/api/v1/health", &body); status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}

func TestCellEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	var cells struct {
		Count int `json:"count"`
	}
	if status := getJSON(t, srv.URL+"/api/v1/cells", &cells); status != http.StatusOK {
		t.Fatalf("cells status = %d", status)
	}
	if cells.Count != 576 {
		t.Errorf("cell count = %d, expected 576 for 40nm at 5nm/5deg", cells.Count)
	}

	var cell struct {
		ID           int      `json:"id"`
		LegalActions []string `json:"legal_actions"`
	}
	if status := getJSON(t, srv.URL+"/api/v1/cells/0", &cell); status != http.StatusOK {
		t.Fatalf("cell status = %d", status)
	}
	if len(cell.LegalActions) != 4 {
		t.Errorf("inner off-axis cell legal actions = %v, expected all four", cell.LegalActions)
	}

	if status := getJSON(t, srv.URL+"/api/v1/cells/9999", nil); status != http.StatusNotFound {
		t.Errorf("missing cell status = %d, expected 404", status)
	}
	if status := getJSON(t, srv.URL+"/api/v1/cells/abc", nil); status != http.StatusBadRequest {
		t.Errorf("bad cell id status = %d, expected 400", status)
	}
}

func TestValueTableRoundTrip(t *testing.T) {
	srv, ctrl := testServer(t)

	payload := `{"42": {"N": 1.5, "E": 0, "S": -2, "W": 0}}`
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/qtable", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put qtable status = %d", resp.StatusCode)
	}

	var table learning.Snapshot
	if status := getJSON(t, srv.URL+"/api/v1/qtable", &table); status != http.StatusOK {
		t.Fatalf("get qtable status = %d", status)
	}
	if table[42]["N"] != 1.5 {
		t.Errorf("restored value = %v, expected 1.5", table[42]["N"])
	}
	if got := ctrl.DumpValueTable()[42]["S"]; got != -2 {
		t.Errorf("controller value = %v, expected -2", got)
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	srv, ctrl := testServer(t)

	ctrl.LoadValueTable(learning.Snapshot{
		7: {"N": 3, "E": 0, "S": 0, "W": 0},
	})

	resp, err := http.Post(srv.URL+"/api/v1/qtable/snapshots", "application/json",
		strings.NewReader(`{"name": "checkpoint-1"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save snapshot status = %d", resp.StatusCode)
	}

	var list struct {
		Count     int `json:"count"`
		Snapshots []struct {
			Name   string `json:"name"`
			States int    `json:"states"`
		} `json:"snapshots"`
	}
	if status := getJSON(t, srv.URL+"/api/v1/qtable/snapshots", &list); status != http.StatusOK {
		t.Fatalf("list snapshots status = %d", status)
	}
	if list.Count != 1 || list.Snapshots[0].Name != "checkpoint-1" {
		t.Fatalf("snapshot list = %+v", list)
	}

	// Wipe the live table, then restore from the checkpoint.
	ctrl.LoadValueTable(learning.Snapshot{})
	resp, err = http.Post(srv.URL+"/api/v1/qtable/snapshots/checkpoint-1/load", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load snapshot status = %d", resp.StatusCode)
	}
	if got := ctrl.DumpValueTable()[7]["N"]; got != 3 {
		t.Errorf("restored value = %v, expected 3", got)
	}

	resp, err = http.Post(srv.URL+"/api/v1/qtable/snapshots/nope/load", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing snapshot status = %d, expected 404", resp.StatusCode)
	}
}

func TestPolicyEndpoint(t *testing.T) {
	srv, ctrl := testServer(t)

	ctrl.LoadValueTable(learning.Snapshot{
		12: {"N": 0, "E": 5, "S": 1, "W": 0},
	})

	var policy struct {
		Count   int `json:"count"`
		Entries []struct {
			State  int    `json:"state"`
			Action string `json:"action"`
		} `json:"policy"`
	}
	if status := getJSON(t, srv.URL+"/api/v1/policy", &policy); status != http.StatusOK {
		t.Fatalf("policy status = %d", status)
	}
	if policy.Count != 1 || policy.Entries[0].Action != "E" {
		t.Fatalf("policy = %+v, expected greedy E for state 12", policy)
	}
}
