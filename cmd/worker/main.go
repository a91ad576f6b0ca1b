package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/worker"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

func main() {
	defaults := utils.DefaultConfig().Worker

	// Parse command-line flags
	flagSet := pflag.NewFlagSet("worker", pflag.ExitOnError)
	var (
		configPath     = flagSet.String("config", "", "YAML configuration file")
		logLevel       = flagSet.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
		nickname       = flagSet.String("nickname", "", "Worker nickname (default: host name)")
		host           = flagSet.String("host", defaults.ListenHost, "Worker endpoint host")
		advertiseHost  = flagSet.String("advertise-host", "", "Address registered with the controller (default: outbound IPv4)")
		port           = flagSet.Int("port", 0, "Worker endpoint port (default: first free port from --base-port)")
		basePort       = flagSet.Int("base-port", defaults.BasePort, "First port tried when --port is unset")
		multicastGroup = flagSet.String("multicast-group", defaults.MulticastGroup, "Discovery multicast group")
		multicastPort  = flagSet.Int("multicast-port", defaults.MulticastPort, "Discovery multicast port")
		probeInterval  = flagSet.Duration("probe-interval", defaults.ControllerProbeInterval, "Controller liveness probe interval")
		requestTimeout = flagSet.Duration("request-timeout", defaults.RequestTimeout, "Timeout for requests to the controller")
		installPath    = flagSet.String("runelite", "", "RuneLite install directory")
		javaPath       = flagSet.String("java", "", "Java binary (default: the install's bundled JRE)")
	)
	flagSet.Parse(os.Args[1:])

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		utils.Fatal("Failed to load configuration: %v", err)
	}

	// Explicit flags win over the file and the environment.
	cfg := &config.Worker
	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "log-level":
			config.LogLevel = *logLevel
		case "nickname":
			cfg.Nickname = *nickname
		case "host":
			cfg.ListenHost = *host
		case "advertise-host":
			cfg.AdvertiseHost = *advertiseHost
		case "port":
			cfg.Port = *port
		case "base-port":
			cfg.BasePort = *basePort
		case "multicast-group":
			cfg.MulticastGroup = *multicastGroup
		case "multicast-port":
			cfg.MulticastPort = *multicastPort
		case "probe-interval":
			cfg.ControllerProbeInterval = *probeInterval
		case "request-timeout":
			cfg.RequestTimeout = *requestTimeout
		case "runelite":
			cfg.RuneLiteInstallPath = *installPath
		}
	})

	utils.SetDefaultLogLevel(config.GetLogLevel())
	defer utils.Sync()

	if err := cfg.Validate(); err != nil {
		utils.Fatal("Invalid configuration: %v", err)
	}

	if cfg.RuneLiteInstallPath == "" {
		cfg.RuneLiteInstallPath = defaultInstallPath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := worker.NewWorker(worker.Config{
		Nickname:       cfg.Nickname,
		ListenHost:     cfg.ListenHost,
		AdvertiseHost:  cfg.AdvertiseHost,
		Port:           cfg.Port,
		BasePort:       cfg.BasePort,
		MulticastGroup: cfg.MulticastGroup,
		MulticastPort:  cfg.MulticastPort,
		ProbeInterval:  cfg.ControllerProbeInterval,
		RequestTimeout: cfg.RequestTimeout,
		Launcher: worker.NewRuneLiteLauncher(worker.LauncherConfig{
			InstallPath: cfg.RuneLiteInstallPath,
			JavaPath:    *javaPath,
		}),
	})

	if err := w.Start(); err != nil {
		utils.Fatal("Worker failed to start: %v", err)
	}

	utils.Info("Worker %s started at %s", w.Nickname(), w.Address())
	utils.Info("RuneLite install: %s", cfg.RuneLiteInstallPath)
	utils.Info("Listening for controller on %s:%d", cfg.MulticastGroup, cfg.MulticastPort)

	<-ctx.Done()
	utils.Info("Received shutdown signal")

	w.Stop()
	utils.Info("Shutdown complete")
}

// defaultInstallPath is RuneLite's per-user install directory. On Windows
// the user cache dir is %LOCALAPPDATA%.
func defaultInstallPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "RuneLite"
	}
	return filepath.Join(dir, "RuneLite")
}
