package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/autovector/internal/airspace"
	"github.com/yegors/autovector/internal/api"
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

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "autovector: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting autovector",
		logger.String("airport", cfg.Station.AirportCode),
		logger.String("runway", cfg.Runway.ID),
		logger.Float64("ctr_radius_nm", cfg.Station.CTRRadiusNM),
	)

	// Storage
	db, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	qtables, err := sqlite.NewValueTableStorage(db, log)
	if err != nil {
		return fmt.Errorf("failed to init value table storage: %w", err)
	}
	runStorage, err := sqlite.NewRunStorage(db, log)
	if err != nil {
		return fmt.Errorf("failed to init run storage: %w", err)
	}

	// Core components
	center := geo.Point{Lat: cfg.Station.Latitude, Lon: cfg.Station.Longitude}
	grid, err := airspace.NewGrid(center, cfg.Station.CTRRadiusNM, cfg.Airspace.DistanceStepNM, cfg.Airspace.HeadingStepDeg, log)
	if err != nil {
		return fmt.Errorf("failed to build airspace grid: %w", err)
	}

	learner, err := learning.NewLearner(learning.Params{
		Alpha:   cfg.Learning.Alpha,
		Gamma:   cfg.Learning.Gamma,
		Epsilon: cfg.Learning.Epsilon,
	}, rand.New(rand.NewSource(time.Now().UnixNano())), log)
	if err != nil {
		return fmt.Errorf("failed to create learner: %w", err)
	}

	evaluator := approach.NewEvaluator(approach.Config{
		MinInterceptNM:   cfg.Approach.MinInterceptNM,
		MaxInterceptNM:   cfg.Approach.MaxInterceptNM,
		InterceptConeDeg: cfg.Approach.InterceptConeDeg,
		MinDivergenceDeg: cfg.Approach.MinDivergenceDeg,
	}, log)

	runway := &approach.Runway{
		ID:                       cfg.Runway.ID,
		HeadingDeg:               cfg.Runway.HeadingDeg,
		Threshold:                geo.Point{Lat: cfg.Runway.ThresholdLat, Lon: cfg.Runway.ThresholdLon},
		GlideslopeInterceptAltFt: cfg.Runway.GlideslopeInterceptAltFt,
	}

	// WebSocket event fan-out
	wsServer := websocket.NewServer(log)
	go wsServer.Run()
	defer wsServer.Stop()

	// Simulation and controller wire into each other: the sim provides
	// aircraft state and accepts commands, the controller drives one
	// learning step per tick.
	simService := sim.NewService(sim.Config{
		TickInterval:  time.Duration(cfg.Sim.TickMillis) * time.Millisecond,
		SpawnInterval: time.Duration(cfg.Sim.SpawnIntervalSec) * time.Second,
		MaxAircraft:   cfg.Sim.MaxAircraft,
		SpeedKts:      cfg.Sim.SpeedKts,
		AltitudeFt:    cfg.Sim.AltitudeFt,
		TurnRateDegS:  cfg.Sim.TurnRateDegSec,
		CTRRadiusNM:   cfg.Station.CTRRadiusNM,
	}, center, runway, rand.New(rand.NewSource(time.Now().UnixNano())), log)

	ctrl := controller.New(
		grid, learner, evaluator,
		simService, simService, simService,
		controller.Rewards{
			Intercept: cfg.Learning.RewardIntercept,
			Exit:      cfg.Learning.RewardExit,
		},
		controller.TerminalGeometry{
			DistanceNM: cfg.Approach.TerminalDistanceNM,
			AlignDeg:   cfg.Approach.TerminalAlignDeg,
		},
		wsServer, log,
	)
	simService.SetController(ctrl)

	// Resume the most recent value table, if any
	if snap, err := qtables.LoadLatest(); err == nil {
		ctrl.LoadValueTable(snap)
		log.Info("Resumed value table", logger.Int("states", len(snap)))
	} else {
		log.Info("Starting with an empty value table")
	}

	runID, err := runStorage.StartRun()
	if err != nil {
		return fmt.Errorf("failed to record training run: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := simService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start simulation: %w", err)
	}

	// HTTP API
	router := api.NewRouter(simService, ctrl, grid, cfg, log, wsServer, qtables, runStorage)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router.Routes(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", logger.Error(err))
	}

	simService.Stop()

	// Persist the final value table and close out the run record
	stats := ctrl.Stats()
	if _, err := qtables.SaveSnapshot("autosave", ctrl.DumpValueTable()); err != nil {
		log.Error("Failed to save final value table", logger.Error(err))
	}
	if err := runStorage.FinishRun(runID, stats.Ticks, stats.Handoffs, stats.Exits); err != nil {
		log.Error("Failed to finish run record", logger.Error(err))
	}

	log.Info("Shutdown complete",
		logger.Int64("ticks", stats.Ticks),
		logger.Int64("handoffs", stats.Handoffs),
		logger.Int64("exits", stats.Exits),
	)
	return nil
}
