package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/autovector/internal/airspace"
	"github.com/yegors/autovector/internal/config"
	"github.com/yegors/autovector/internal/controller"
	"github.com/yegors/autovector/internal/learning"
	"github.com/yegors/autovector/internal/sim"
	"github.com/yegors/autovector/internal/storage/sqlite"
	"github.com/yegors/autovector/internal/websocket"
	"github.com/yegors/autovector/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	simService *sim.Service
	ctrl       *controller.Controller
	grid       *airspace.Grid
	config     *config.Config
	wsServer   *websocket.Server
	qtables    *sqlite.ValueTableStorage
	runs       *sqlite.RunStorage
	logger     *logger.Logger
	startedAt  time.Time
}

// NewHandler creates a new API handler
func NewHandler(
	simService *sim.Service,
	ctrl *controller.Controller,
	grid *airspace.Grid,
	cfg *config.Config,
	wsServer *websocket.Server,
	qtables *sqlite.ValueTableStorage,
	runs *sqlite.RunStorage,
	log *logger.Logger,
) *Handler {
	return &Handler{
		simService: simService,
		ctrl:       ctrl,
		grid:       grid,
		config:     cfg,
		wsServer:   wsServer,
		qtables:    qtables,
		runs:       runs,
		logger:     log.Named("api-handler"),
		startedAt:  time.Now(),
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// GetHealth returns server liveness and basic run counters
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.ctrl.Stats()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"uptime_s": int64(time.Since(h.startedAt).Seconds()),
		"ticks":    stats.Ticks,
		"clients":  h.wsServer.ClientCount(),
	})
}

// GetConfig returns the active configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.config)
}

// GetStats returns the controller's run counters
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.ctrl.Stats())
}

// GetAgents returns the live learning agents
func (h *Handler) GetAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.ctrl.Agents()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(agents),
		"agents": agents,
	})
}

// GetAircraft returns the simulated traffic
func (h *Handler) GetAircraft(w http.ResponseWriter, r *http.Request) {
	aircraft := h.simService.Aircraft()
	sort.Slice(aircraft, func(i, j int) bool { return aircraft[i].ID < aircraft[j].ID })
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(aircraft),
		"aircraft": aircraft,
	})
}

type cellResponse struct {
	*airspace.Cell
	LegalActions []string `json:"legal_actions"`
}

func (h *Handler) cellResponse(cell *airspace.Cell) cellResponse {
	legal := h.ctrl.LegalActions(cell)
	names := make([]string, 0, len(legal))
	for _, a := range legal {
		names = append(names, a.String())
	}
	return cellResponse{Cell: cell, LegalActions: names}
}

// GetCells returns every state-space cell with its legal actions
func (h *Handler) GetCells(w http.ResponseWriter, r *http.Request) {
	cells := h.grid.Cells()
	out := make([]cellResponse, 0, len(cells))
	for _, cell := range cells {
		out = append(out, h.cellResponse(cell))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(out),
		"cells": out,
	})
}

// GetCellByID returns one cell
func (h *Handler) GetCellByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid cell id")
		return
	}
	cell := h.grid.ByID(id)
	if cell == nil {
		h.respondError(w, http.StatusNotFound, "cell not found")
		return
	}
	h.respondJSON(w, http.StatusOK, h.cellResponse(cell))
}

type policyEntry struct {
	State  int                `json:"state"`
	Action string             `json:"action"`
	Values map[string]float64 `json:"values"`
}

// GetPolicy returns the greedy action for every state the learner has
// visited
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	snap := h.ctrl.DumpValueTable()

	states := make([]int, 0, len(snap))
	for state := range snap {
		states = append(states, state)
	}
	sort.Ints(states)

	entries := make([]policyEntry, 0, len(states))
	for _, state := range states {
		cell := h.grid.ByID(state)
		if cell == nil {
			continue
		}
		row := snap[state]
		best := ""
		bestValue := 0.0
		for _, a := range h.ctrl.LegalActions(cell) {
			if v := row[a.String()]; best == "" || v > bestValue {
				best = a.String()
				bestValue = v
			}
		}
		if best == "" {
			// Terminal cell, nothing to steer.
			continue
		}
		entries = append(entries, policyEntry{State: state, Action: best, Values: row})
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(entries),
		"policy": entries,
	})
}

// GetValueTable dumps the live value table
func (h *Handler) GetValueTable(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.ctrl.DumpValueTable())
}

// PutValueTable replaces the live value table with the request body
func (h *Handler) PutValueTable(w http.ResponseWriter, r *http.Request) {
	var snap learning.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid value table payload")
		return
	}
	h.ctrl.LoadValueTable(snap)
	h.logger.Info("Value table replaced via API", logger.Int("states", len(snap)))
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "loaded",
		"states": len(snap),
	})
}

// SaveSnapshot persists the live value table under a name
func (h *Handler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "snapshot name required")
		return
	}

	snap := h.ctrl.DumpValueTable()
	id, err := h.qtables.SaveSnapshot(req.Name, snap)
	if err != nil {
		h.logger.Error("Failed to save snapshot", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"name":   req.Name,
		"states": len(snap),
	})
}

// LoadSnapshot restores a named snapshot into the live value table
func (h *Handler) LoadSnapshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, err := h.qtables.LoadSnapshot(name)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	h.ctrl.LoadValueTable(snap)
	h.logger.Info("Snapshot restored",
		logger.String("name", name),
		logger.Int("states", len(snap)),
	)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "loaded",
		"name":   name,
		"states": len(snap),
	})
}

// ListSnapshots returns stored snapshots, newest first
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	snapshots, err := h.qtables.ListSnapshots(limit)
	if err != nil {
		h.logger.Error("Failed to list snapshots", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

// GetRuns returns recent training runs
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.RecentRuns(50)
	if err != nil {
		h.logger.Error("Failed to list runs", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}

// HandleWebSocket upgrades the connection and streams controller events
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}
