package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/api"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/client"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/discovery"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/fleet"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/storage"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

func main() {
	defaults := utils.DefaultConfig().Controller

	// Parse command-line flags
	flagSet := pflag.NewFlagSet("controller", pflag.ExitOnError)
	var (
		configPath        = flagSet.String("config", "", "YAML configuration file")
		logLevel          = flagSet.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
		dbPath            = flagSet.String("db", defaults.DatabasePath, "Database file path")
		importPath        = flagSet.String("import-accounts", "", "Legacy accounts.json to import at startup")
		host              = flagSet.String("host", defaults.ListenHost, "API server host")
		port              = flagSet.Int("port", defaults.Port, "API server port")
		advertiseHost     = flagSet.String("advertise-host", "", "Address announced to workers (default: outbound IPv4)")
		multicastGroup    = flagSet.String("multicast-group", defaults.MulticastGroup, "Discovery multicast group")
		multicastPort     = flagSet.Int("multicast-port", defaults.MulticastPort, "Discovery multicast port")
		broadcastInterval = flagSet.Duration("broadcast-interval", defaults.BroadcastInterval, "Announcement interval")
		livenessInterval  = flagSet.Duration("liveness-interval", defaults.LivenessInterval, "Worker liveness probe interval")
		probeTimeout      = flagSet.Duration("probe-timeout", defaults.ProbeTimeout, "Worker liveness probe timeout")
		failureThreshold  = flagSet.Int("failure-threshold", defaults.FailureThreshold, "Consecutive failed probes before eviction")
		dispatchTimeout   = flagSet.Duration("dispatch-timeout", defaults.DispatchTimeout, "Dispatch request timeout")
	)
	flagSet.Parse(os.Args[1:])

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		utils.Fatal("Failed to load configuration: %v", err)
	}

	// Explicit flags win over the file and the environment.
	cfg := &config.Controller
	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "log-level":
			config.LogLevel = *logLevel
		case "db":
			cfg.DatabasePath = *dbPath
		case "import-accounts":
			cfg.AccountsImportPath = *importPath
		case "host":
			cfg.ListenHost = *host
		case "port":
			cfg.Port = *port
		case "advertise-host":
			cfg.AdvertiseHost = *advertiseHost
		case "multicast-group":
			cfg.MulticastGroup = *multicastGroup
		case "multicast-port":
			cfg.MulticastPort = *multicastPort
		case "broadcast-interval":
			cfg.BroadcastInterval = *broadcastInterval
		case "liveness-interval":
			cfg.LivenessInterval = *livenessInterval
		case "probe-timeout":
			cfg.ProbeTimeout = *probeTimeout
		case "failure-threshold":
			cfg.FailureThreshold = *failureThreshold
		case "dispatch-timeout":
			cfg.DispatchTimeout = *dispatchTimeout
		}
	})

	utils.SetDefaultLogLevel(config.GetLogLevel())
	defer utils.Sync()

	if err := cfg.Validate(); err != nil {
		utils.Fatal("Invalid configuration: %v", err)
	}

	if cfg.AdvertiseHost == "" {
		if cfg.AdvertiseHost, err = discovery.OutboundIPv4(); err != nil {
			utils.Fatal("Failed to resolve advertise address: %v", err)
		}
	}

	utils.Info("Starting fleet controller")
	utils.Info("Database: %s", cfg.DatabasePath)
	utils.Info("API Server: %s:%d (advertised as %s)", cfg.ListenHost, cfg.Port, cfg.AdvertiseHost)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		utils.Fatal("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	utils.Info("Database initialized successfully")

	broadcaster, err := discovery.NewBroadcaster(discovery.BroadcasterConfig{
		Group:    cfg.MulticastGroup,
		Port:     cfg.MulticastPort,
		Address:  models.ControllerAddress{Host: cfg.AdvertiseHost, Port: cfg.Port},
		Interval: cfg.BroadcastInterval,
	})
	if err != nil {
		utils.Fatal("Failed to start discovery broadcaster: %v", err)
	}

	controller := fleet.NewController(fleet.Config{
		Storage:            store,
		Prober:             client.New(cfg.ProbeTimeout),
		Launcher:           client.New(cfg.DispatchTimeout),
		Broadcaster:        broadcaster,
		LivenessInterval:   cfg.LivenessInterval,
		ProbeTimeout:       cfg.ProbeTimeout,
		FailureThreshold:   cfg.FailureThreshold,
		DispatchTimeout:    cfg.DispatchTimeout,
		AccountsImportPath: cfg.AccountsImportPath,
	})

	// Bind before announcing so workers never find a closed port.
	apiServer := api.NewServer(store, controller, config.GetControllerAddress())
	listener, err := apiServer.Listen()
	if err != nil {
		utils.Fatal("Failed to start API server: %v", err)
	}

	if err := controller.Start(); err != nil {
		utils.Fatal("Failed to start controller: %v", err)
	}

	go func() {
		if err := apiServer.Serve(listener); err != nil {
			utils.Error("API server error: %v", err)
		}
	}()

	utils.Info("Controller started successfully")

	<-ctx.Done()
	utils.Info("Received shutdown signal")
	utils.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		utils.Error("API server shutdown error: %v", err)
	}

	controller.Stop()

	utils.Info("Shutdown complete")
}
