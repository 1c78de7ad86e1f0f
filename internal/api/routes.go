package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/autovector/internal/airspace"
	"github.com/yegors/autovector/internal/config"
	"github.com/yegors/autovector/internal/controller"
	"github.com/yegors/autovector/internal/sim"
	"github.com/yegors/autovector/internal/storage/sqlite"
	"github.com/yegors/autovector/internal/websocket"
	"github.com/yegors/autovector/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(simService *sim.Service, ctrl *controller.Controller, grid *airspace.Grid, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server, qtables *sqlite.ValueTableStorage, runs *sqlite.RunStorage) *Router {
	return &Router{
		handler:    NewHandler(simService, ctrl, grid, cfg, wsServer, qtables, runs, log),
		middleware: NewMiddleware(log),
		config:     cfg,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Health check
		router.Get("/health", r.handler.GetHealth)

		// Configuration
		router.Get("/config", r.handler.GetConfig)

		// Run counters and live agents
		router.Get("/stats", r.handler.GetStats)
		router.Get("/agents", r.handler.GetAgents)

		// Simulated traffic
		router.Get("/aircraft", r.handler.GetAircraft)

		// State space
		router.Get("/cells", r.handler.GetCells)
		router.Get("/cells/{id}", r.handler.GetCellByID)
		router.Get("/policy", r.handler.GetPolicy)

		// Value table routes
		router.Get("/qtable", r.handler.GetValueTable)
		router.Put("/qtable", r.handler.PutValueTable)
		router.Get("/qtable/snapshots", r.handler.ListSnapshots)
		router.Post("/qtable/snapshots", r.handler.SaveSnapshot)
		router.Post("/qtable/snapshots/{name}/load", r.handler.LoadSnapshot)

		// Training run history
		router.Get("/runs", r.handler.GetRuns)

		// WebSocket route
		router.Get("/ws", r.handler.HandleWebSocket)
	})

	return router
}
