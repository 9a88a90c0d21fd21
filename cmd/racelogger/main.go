package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/racelogger/internal/config"
	"github.com/banshee-data/racelogger/internal/db"
	"github.com/banshee-data/racelogger/internal/recorder"
	"github.com/banshee-data/racelogger/internal/timeutil"
	"github.com/banshee-data/racelogger/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON config file (defaults built in)")
	dbPathFlag  = flag.String("db-path", "", "Database path (overrides config)")
	listen      = flag.String("listen", "", "Debug HTTP listen address (overrides config, \"off\" disables)")
	gpsPort     = flag.String("gps-port", "", "GPS serial device (overrides config)")
	gpsReplay   = flag.String("gps-replay", "", "Replay NMEA lines from this file instead of a GPS device")
	imuPort     = flag.String("imu-port", "", "IMU serial device (overrides config)")
	imuReplay   = flag.String("imu-replay", "", "Replay x,y,z lines from this file instead of an IMU device")
	canIface    = flag.String("can-iface", "", "SocketCAN interface (overrides config)")
	canReplay   = flag.String("can-replay", "", "Replay a SocketCAN pcap instead of reading the bus")
	rcPort      = flag.String("racecapture-port", "", "Serial device for the RaceCapture feed (overrides config)")
	dl1Channel  = flag.Int("dl1-channel", 0, "RFCOMM channel for the DL1 feed (overrides config)")
	dl1TCP      = flag.String("dl1-tcp", "", "Serve the DL1 feed over TCP on this address instead of RFCOMM")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], cfg.GetDBPath()); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			return
		case "help":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
			printUsage()
			os.Exit(1)
		}
	}

	log.Printf("Starting %s", version.String())
	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("racelogger: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `racelogger - in-car telemetry logger

Usage: racelogger [flags] [command]

Commands:
  migrate <up|down|status|force|help>   Manage the database schema
  help                                  Show this message

Flags:
`)
	flag.PrintDefaults()
}

func loadConfig(path string) (*config.LoggerConfig, error) {
	if path == "" {
		return config.DefaultLoggerConfig(), nil
	}
	return config.LoadLoggerConfig(path)
}

// applyFlags overlays command-line overrides on the loaded config.
func applyFlags(cfg *config.LoggerConfig) {
	if *dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	if *listen != "" {
		cfg.DebugListen = listen
	}

	if *gpsPort != "" || *gpsReplay != "" {
		if cfg.GPS == nil {
			cfg.GPS = &config.SerialSource{}
		}
		if *gpsPort != "" {
			cfg.GPS.Port = *gpsPort
		}
		cfg.GPS.ReplayFile = *gpsReplay
	}
	if *imuPort != "" || *imuReplay != "" {
		if cfg.IMU == nil {
			cfg.IMU = &config.SerialSource{}
		}
		if *imuPort != "" {
			cfg.IMU.Port = *imuPort
		}
		cfg.IMU.ReplayFile = *imuReplay
	}
	if *canIface != "" || *canReplay != "" {
		if cfg.CAN == nil {
			cfg.CAN = &config.CANSource{}
		}
		if *canIface != "" {
			cfg.CAN.Interface = *canIface
		}
		cfg.CAN.ReplayFile = *canReplay
	}

	if *rcPort != "" {
		if cfg.RaceCapture == nil {
			cfg.RaceCapture = &config.RaceCaptureOutput{}
		}
		cfg.RaceCapture.Port = *rcPort
	}
	if *dl1Channel != 0 || *dl1TCP != "" {
		if cfg.DL1 == nil {
			cfg.DL1 = &config.DL1Output{}
		}
		if *dl1Channel != 0 {
			cfg.DL1.RFCOMMChannel = dl1Channel
		}
		if *dl1TCP != "" {
			cfg.DL1.TCPListen = *dl1TCP
			cfg.DL1.RFCOMMChannel = nil
		}
	}
}

func run(cfg *config.LoggerConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}

	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	// Producers and the DL1 listener stop when ctx is cancelled; the
	// recorder stopping for any reason cancels it too.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()

	producers, err := startSources(ctx, &wg, cfg, clock, mux)
	if err != nil {
		return err
	}

	feeds, err := startFeeds(ctx, &wg, cfg)
	if err != nil {
		return err
	}
	defer feeds.Close()

	logger, err := recorder.New(store, recorder.Options{
		ActivateThreshold: cfg.GetActivateThreshold(),
		MovementThreshold: cfg.GetMovementThreshold(),
		Retention:         cfg.GetRetention(),
		PollInterval:      cfg.GetPollInterval(),
		Clock:             clock,
		Feeds:             feeds.Feeds,
		Display: &recorder.LogDisplay{
			StaleAfter: cfg.GetDisplayStaleSecs(),
			Now:        func() float64 { return timeutil.Seconds(clock.Now()) },
		},
	})
	if err != nil {
		return err
	}

	logger.AttachAdminRoutes(mux)
	if err := store.AttachAdminRoutes(mux, cfg.GetDisplayUnits()); err != nil {
		return err
	}
	if addr := cfg.GetDebugListen(); addr != "" && addr != "off" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(ctx, addr, mux)
		}()
	}

	err = logger.Run(ctx, producers)
	cancel()
	if errors.Is(err, recorder.ErrInvalidState) {
		return err
	}
	return nil
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server failed: %v", err)
		}
	}()
	log.Printf("Debug routes on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
