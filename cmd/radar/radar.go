// Command radar streams targets from an RD-03D mmWave radar, keeps the latest
// reading in sqlite, and serves it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rd03d/internal/api"
	"github.com/banshee-data/rd03d/internal/config"
	"github.com/banshee-data/rd03d/internal/db"
	"github.com/banshee-data/rd03d/internal/monitoring"
	"github.com/banshee-data/rd03d/internal/radar"
	"github.com/banshee-data/rd03d/internal/rd03d"
	"github.com/banshee-data/rd03d/internal/simulator"
	"github.com/banshee-data/rd03d/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to a JSON config file (see "+config.DefaultConfigPath+")")
	port         = flag.String("port", config.DefaultPortPath, "Serial port to use (ignored in dev mode)")
	baud         = flag.Int("baud", 256000, "Serial baud rate")
	listen       = flag.String("listen", config.DefaultListen, "Listen address")
	dbPath       = flag.String("db", config.DefaultDBPath, "Path to the sqlite database")
	devMode      = flag.Bool("dev", false, "Use a simulated sensor instead of the serial port")
	single       = flag.Bool("single", false, "Track a single target instead of up to three")
	speedUnits   = flag.String("units", config.DefaultSpeedUnits, "Speed units for the API (mps, mph, kmph, kph, cmps)")
	pollInterval = flag.Duration("poll-interval", time.Second, "Time between polls of the sensor")
	debugLog     = flag.Bool("debug", false, "Enable debug logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// applyFlagOverrides copies flags given on the command line over cfg. Flags
// left at their defaults do not override values from the config file.
func applyFlagOverrides(fs *flag.FlagSet, cfg *config.RadarConfig) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.PortPath = port
		case "baud":
			cfg.BaudRate = baud
		case "listen":
			cfg.Listen = listen
		case "db":
			cfg.DBPath = dbPath
		case "single":
			multi := !*single
			cfg.MultiTarget = &multi
		case "units":
			cfg.SpeedUnits = speedUnits
		case "poll-interval":
			s := pollInterval.String()
			cfg.PollInterval = &s
		}
	})
}

func loadConfig(fs *flag.FlagSet) (*config.RadarConfig, error) {
	cfg := &config.RadarConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadRadarConfig(*configPath); err != nil {
			return nil, err
		}
	}
	applyFlagOverrides(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func openSession(cfg *config.RadarConfig) (*rd03d.Session, error) {
	sessionCfg := cfg.SessionConfig()
	if *devMode {
		sessionCfg.Factory = simulator.Factory(simulator.Config{
			ReadTimeout:  cfg.GetReadTimeout(),
			GarbageEvery: 7,
		})
	}
	return rd03d.Open(cfg.GetPortPath(), cfg.PortOptions(), sessionCfg)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger, err := monitoring.NewZapLogger(*debugLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	monitoring.UseZap(logger)
	log := logger.Sugar()

	cfg, err := loadConfig(flag.CommandLine)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	session, err := openSession(cfg)
	if err != nil {
		log.Fatalf("failed to open radar on %s: %v", cfg.GetPortPath(), err)
	}
	log.Infow("radar ready", "port", cfg.GetPortPath(), "mode", session.Mode().String(), "dev", *devMode)

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		session.Close()
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	monitor := radar.NewMonitor(session, radar.Config{
		PollInterval: cfg.GetPollInterval(),
		Recorder:     database,
	})
	defer monitor.Close()

	// Create a wait group for the HTTP server and poll routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("poll loop failed: %v", err)
		}
		log.Info("poll routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(monitor, database, cfg.GetSpeedUnits())
		mux := apiServer.ServeMux()
		apiServer.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Errorf("database admin routes disabled: %v", err)
		}

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Infow("serving API", "listen", cfg.GetListen(), "units", cfg.GetSpeedUnits())

		<-ctx.Done()
		log.Info("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Errorf("HTTP server force close error: %v", err)
			}
		}

		log.Info("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Info("graceful shutdown complete")
}
