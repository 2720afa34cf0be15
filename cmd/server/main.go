package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/airfield-ops/internal/api"
	"github.com/yegors/airfield-ops/internal/config"
	"github.com/yegors/airfield-ops/internal/flight"
	"github.com/yegors/airfield-ops/internal/globalstate"
	"github.com/yegors/airfield-ops/internal/storage/memory"
	"github.com/yegors/airfield-ops/internal/storage/sqlite"
	"github.com/yegors/airfield-ops/internal/websocket"
	"github.com/yegors/airfield-ops/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting airfield ops server",
		logger.String("version", Version),
		logger.String("airfield", cfg.Airfield.Name),
		logger.String("config_path", *configPath),
	)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("Server fully stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flightStore, stateStore, closeStorage, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	state := globalstate.NewService(stateStore, globalstate.Defaults{
		Runway: cfg.Airfield.DefaultRunway,
		VOR: globalstate.VOR{
			Name:      cfg.VOR.Name,
			Lat:       cfg.VOR.Latitude,
			Lon:       cfg.VOR.Longitude,
			Frequency: cfg.VOR.Frequency,
		},
	}, time.Duration(cfg.Storage.StateCacheSeconds)*time.Second, log)

	g, ctx := errgroup.WithContext(ctx)

	// Create WebSocket server
	var (
		wsServer  *websocket.Server
		publisher flight.Publisher = discard{}
	)
	if cfg.Feed.Enabled {
		wsServer = websocket.NewServer(log, cfg.Feed.SendBuffer, cfg.Server.CORSAllowedOrigins)
		publisher = websocket.NewFlightFeed(wsServer)
		g.Go(func() error {
			wsServer.Run(ctx)
			return nil
		})
	} else {
		log.Info("Change feed disabled in configuration")
	}

	flights := flight.NewService(flightStore, state, publisher, log,
		flight.WithDefaultRunway(cfg.Airfield.DefaultRunway))

	if wsServer != nil {
		wsServer.SetMessageHandler(websocket.NewFlightHandler(flights, cfg.Airfield.ArchiveLimit, log))
	}

	// Create API router
	handler := api.NewHandler(flights, state, wsServer, api.Options{
		ArchiveLimit:    cfg.Airfield.ArchiveLimit,
		MagneticRadials: cfg.VOR.MagneticRadials,
		Version:         Version,
	}, log)
	router := api.NewRouter(handler, wsServer, api.RouterConfig{
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		StaticDir:      cfg.Server.StaticFilesDir,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
	}, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	g.Go(func() error {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error on %s: %w", server.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		log.Info("HTTP server shutdown complete")
		return nil
	})

	return g.Wait()
}

func openStorage(cfg *config.Config, log *logger.Logger) (flight.Store, globalstate.Store, func(), error) {
	if cfg.Storage.Type == config.StorageMemory {
		log.Info("Using in-memory storage, flights are lost on restart")
		return memory.NewFlightStore(), memory.NewStateStore(), func() {}, nil
	}

	// Ensure the directory exists
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	flights, err := sqlite.NewFlightStorage(cfg.Storage.SQLitePath, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create SQLite storage: %w", err)
	}
	log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

	state := sqlite.NewGlobalStateStorage(flights.GetDB(), log)
	return flights, state, func() {
		if err := flights.Close(); err != nil {
			log.Error("Failed to close SQLite storage", logger.Error(err))
		}
	}, nil
}

// discard drops changes when the feed is disabled
type discard struct{}

func (discard) Publish(flight.Change) {}
