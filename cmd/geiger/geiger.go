package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/interval.report/internal/acquisition"
	"github.com/banshee-data/interval.report/internal/api"
	"github.com/banshee-data/interval.report/internal/config"
	"github.com/banshee-data/interval.report/internal/db"
	"github.com/banshee-data/interval.report/internal/fsutil"
	"github.com/banshee-data/interval.report/internal/pipeline"
	"github.com/banshee-data/interval.report/internal/serialio"
	"github.com/banshee-data/interval.report/internal/simulator"
	"github.com/banshee-data/interval.report/internal/stats"
	"github.com/banshee-data/interval.report/internal/version"
)

var (
	listen        = flag.String("listen", "", "HTTP listen address (default :8080)")
	dataPort      = flag.String("port", "", "Serial port for the binary interval stream (default /dev/ttyUSB0)")
	commandPort   = flag.String("command-port", "", "Serial port for the ASCII command channel (empty: disabled)")
	baudRate      = flag.Int("baud", 0, "Serial baud rate (default 115200)")
	dbFile        = flag.String("db", "", "Path to the SQLite database file (default geiger.db)")
	configFile    = flag.String("config", "", "Path to a JSON config file")
	captureDir    = flag.String("capture-dir", "", "Directory for raw byte captures (empty: disabled)")
	displayUnits  = flag.String("units", "", "Default interval units for API responses (us, ms, s)")
	devMode       = flag.Bool("dev", false, "Run against a simulated detector instead of real hardware")
	disableDevice = flag.Bool("disable-device", false, "Serve the API without opening any serial port")
	simRate       = flag.Float64("sim-rate", 0, "Simulated pulse rate in pulses per second (dev mode)")
	simNoise      = flag.Float64("sim-noise", 0, "Per-byte corruption probability on the simulated stream (dev mode)")
)

// loadConfig merges the optional config file with explicit flag overrides.
func loadConfig() *config.AcquisitionConfig {
	var cfg *config.AcquisitionConfig
	if *configFile != "" {
		var err error
		cfg, err = config.LoadAcquisitionConfig(fsutil.OSFileSystem{}, *configFile)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configFile, err)
		}
	} else {
		cfg = config.EmptyAcquisitionConfig()
	}

	if *listen != "" {
		cfg.ListenAddr = listen
	}
	if *dataPort != "" {
		cfg.DataPort = dataPort
	}
	if *commandPort != "" {
		cfg.CommandPort = commandPort
	}
	if *baudRate != 0 {
		cfg.BaudRate = baudRate
	}
	if *dbFile != "" {
		cfg.DBPath = dbFile
	}
	if *captureDir != "" {
		cfg.CaptureDir = captureDir
	}
	if *displayUnits != "" {
		cfg.Units = displayUnits
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// Main
func main() {
	// The migrate subcommand manages the schema and exits without
	// starting the daemon.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		migrateFlags := flag.NewFlagSet("migrate", flag.ExitOnError)
		migrateDB := migrateFlags.String("db", "geiger.db", "Path to database file")
		migrateFlags.Parse(os.Args[2:])
		db.RunMigrateCommand(migrateFlags.Args(), *migrateDB)
		return
	}

	flag.Parse()
	cfg := loadConfig()

	log.Printf("geiger %s", version.String())

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	queue := pipeline.NewQueue(cfg.GetQueueCapacity())
	collector := stats.NewCollector(0, nil)

	// The command channel stays disabled unless dev mode supplies the
	// simulated port or a real one is configured.
	var sim *simulator.Simulator
	var commander serialio.Muxer = serialio.NewDisabledMux()
	var apiCommander serialio.Muxer
	var dataFactory serialio.PortFactory

	switch {
	case *devMode:
		sim, err = simulator.New(simulator.Config{
			MeanRate:  *simRate,
			Debounce:  cfg.GetDebounceMicros(),
			NoiseProb: *simNoise,
		})
		if err != nil {
			log.Fatalf("Failed to create simulator: %v", err)
		}
		dataFactory = serialio.PortOpener(func(string, serialio.PortOptions) (serialio.SerialPorter, error) {
			return sim.DataPort(), nil
		})
		commander = serialio.NewLineMux(sim.CommandPort())
		apiCommander = commander
		rate := *simRate
		if rate == 0 {
			rate = simulator.DefaultMeanRate
		}
		log.Printf("Running against a simulated detector (rate %.1f pulses/sec)", rate)
	case *disableDevice:
		log.Print("Device disabled, serving API only")
	default:
		dataFactory = serialio.NewRealPortFactory()
		if cmdPath := cfg.GetCommandPort(); cmdPath != "" {
			port, err := dataFactory.Open(cmdPath, serialio.PortOptions{BaudRate: cfg.GetBaudRate()})
			if err != nil {
				log.Fatalf("Failed to open command port %s: %v", cmdPath, err)
			}
			commander = serialio.NewLineMux(port)
			apiCommander = commander
		}
	}
	defer commander.Close()

	// The acquisition manager owns the data port; nil when the device
	// is disabled so the API still serves diagnostics-free endpoints.
	var manager *acquisition.Manager
	if dataFactory != nil {
		manager, err = acquisition.New(acquisition.Config{
			PortPath:       cfg.GetDataPort(),
			PortOptions:    serialio.PortOptions{BaudRate: cfg.GetBaudRate()},
			Factory:        dataFactory,
			Queue:          queue,
			ReadTimeout:    cfg.GetReadTimeout(),
			SilenceTimeout: cfg.GetSilenceTimeout(),
			BackoffBase:    cfg.GetBackoffBase(),
			BackoffCap:     cfg.GetBackoffCap(),
			MaxAttempts:    cfg.GetMaxConnectAttempts(),
			CaptureDir:     cfg.GetCaptureDir(),
		})
		if err != nil {
			log.Fatalf("Failed to create acquisition manager: %v", err)
		}
	}

	// Each dispatched batch feeds the live statistics and, when a
	// session is running, the interval store.
	dispatcher := pipeline.NewDispatcher(queue, cfg.GetDispatchInterval(), nil, func(batch []pipeline.Item) {
		collector.OnBatch(batch)
		if manager != nil {
			if err := database.RecordBatch(manager.SessionID(), batch); err != nil {
				log.Printf("failed to record interval batch: %v", err)
			}
		}
	})

	// Create a wait group for the HTTP server, acquisition, dispatch,
	// and command monitor routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the simulated detector when dev mode asked for one
	if sim != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sim.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("simulator error: %v", err)
			}
			log.Print("simulator routine terminated")
		}()
	}

	// run the monitor routine to manage IO on the command channel
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := commander.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor command channel: %v", err)
		}
		log.Print("command monitor routine terminated")
	}()

	// drive the dispatch ticks; the final drain happens on shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("dispatcher error: %v", err)
		}
		log.Print("dispatch routine terminated")
	}()

	// run the acquisition session and bracket it in the session store
	if manager != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := manager.Start(); err != nil {
				log.Printf("failed to start acquisition: %v", err)
				return
			}
			log.Printf("acquisition session %s started on %s", manager.SessionID(), cfg.GetDataPort())
			if err := database.StartSession(manager.SessionID(), cfg.GetDataPort(),
				cfg.GetDebounceMicros(), cfg.GetDispatchInterval()); err != nil {
				log.Printf("failed to record session start: %v", err)
			}

			<-ctx.Done()
			manager.Stop()
			if err := database.EndSession(manager.SessionID()); err != nil {
				log.Printf("failed to record session end: %v", err)
			}
			log.Print("acquisition routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create a new API server instance over the pipeline components
		// and mount the API handlers
		mux := api.NewServer(api.Config{
			Manager:    manager,
			Dispatcher: dispatcher,
			Stats:      collector,
			DB:         database,
			Commander:  apiCommander,
			CaptureDir: cfg.GetCaptureDir(),
			Units:      cfg.GetUnits(),
		}).ServeMux()

		// mount the admin debugging routes (tsweb limits them to local or tailnet clients)
		database.AttachAdminRoutes(mux)
		commander.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.GetListenAddr(),
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", cfg.GetListenAddr())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
