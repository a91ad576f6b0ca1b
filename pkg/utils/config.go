package utils

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	Controller ControllerConfig `yaml:"controller"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ControllerConfig holds the controller process settings
type ControllerConfig struct {
	DatabasePath       string `yaml:"database_path"`
	AccountsImportPath string `yaml:"accounts_import_path"`

	// HTTP API
	ListenHost    string `yaml:"listen_host"`
	Port          int    `yaml:"port"`
	AdvertiseHost string `yaml:"advertise_host"`

	// Discovery announcements
	MulticastGroup    string        `yaml:"multicast_group"`
	MulticastPort     int           `yaml:"multicast_port"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// Liveness
	LivenessInterval time.Duration `yaml:"liveness_interval"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`

	// Dispatch
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

// WorkerConfig holds the worker process settings
type WorkerConfig struct {
	Nickname      string `yaml:"nickname"`
	ListenHost    string `yaml:"listen_host"`
	AdvertiseHost string `yaml:"advertise_host"`
	// Port 0 searches for a free port starting at BasePort
	Port     int `yaml:"port"`
	BasePort int `yaml:"base_port"`

	MulticastGroup string `yaml:"multicast_group"`
	MulticastPort  int    `yaml:"multicast_port"`

	ControllerProbeInterval time.Duration `yaml:"controller_probe_interval"`
	RequestTimeout          time.Duration `yaml:"request_timeout"`

	RuneLiteInstallPath string `yaml:"runelite_install_path"`
}

// Default configuration values
const (
	DefaultControllerPort   = 5000
	DefaultWorkerBasePort   = 5001
	DefaultMulticastGroup   = "224.1.1.1"
	DefaultMulticastPort    = 6000
	DefaultInterval         = 5 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultDispatchTimeout  = 30 * time.Second
	DefaultFailureThreshold = 1
	DefaultDatabasePath     = "controller.db"
	DefaultListenHost       = "0.0.0.0"
	DefaultRequestTimeout   = 5 * time.Second
)

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "INFO",
		Controller: ControllerConfig{
			DatabasePath:      DefaultDatabasePath,
			ListenHost:        DefaultListenHost,
			Port:              DefaultControllerPort,
			MulticastGroup:    DefaultMulticastGroup,
			MulticastPort:     DefaultMulticastPort,
			BroadcastInterval: DefaultInterval,
			LivenessInterval:  DefaultInterval,
			ProbeTimeout:      DefaultProbeTimeout,
			FailureThreshold:  DefaultFailureThreshold,
			DispatchTimeout:   DefaultDispatchTimeout,
		},
		Worker: WorkerConfig{
			ListenHost:              DefaultListenHost,
			BasePort:                DefaultWorkerBasePort,
			MulticastGroup:          DefaultMulticastGroup,
			MulticastPort:           DefaultMulticastPort,
			ControllerProbeInterval: DefaultInterval,
			RequestTimeout:          DefaultRequestTimeout,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file,
// and environment variables, in that order of precedence.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnv()
	return config, nil
}

// applyEnv overrides configuration values from environment variables
func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	// Controller
	c.Controller.DatabasePath = getEnv("DB_PATH", c.Controller.DatabasePath)
	c.Controller.AccountsImportPath = getEnv("ACCOUNTS_IMPORT_PATH", c.Controller.AccountsImportPath)
	c.Controller.ListenHost = getEnv("CONTROLLER_HOST", c.Controller.ListenHost)
	c.Controller.Port = getEnvAsInt("CONTROLLER_PORT", c.Controller.Port)
	c.Controller.AdvertiseHost = getEnv("CONTROLLER_ADVERTISE_HOST", c.Controller.AdvertiseHost)
	c.Controller.MulticastGroup = getEnv("MULTICAST_GROUP", c.Controller.MulticastGroup)
	c.Controller.MulticastPort = getEnvAsInt("MULTICAST_PORT", c.Controller.MulticastPort)
	c.Controller.BroadcastInterval = getEnvAsDuration("BROADCAST_INTERVAL", c.Controller.BroadcastInterval)
	c.Controller.LivenessInterval = getEnvAsDuration("LIVENESS_INTERVAL", c.Controller.LivenessInterval)
	c.Controller.ProbeTimeout = getEnvAsDuration("PROBE_TIMEOUT", c.Controller.ProbeTimeout)
	c.Controller.FailureThreshold = getEnvAsInt("FAILURE_THRESHOLD", c.Controller.FailureThreshold)
	c.Controller.DispatchTimeout = getEnvAsDuration("DISPATCH_TIMEOUT", c.Controller.DispatchTimeout)

	// Worker
	c.Worker.Nickname = getEnv("WORKER_NICKNAME", c.Worker.Nickname)
	c.Worker.ListenHost = getEnv("WORKER_HOST", c.Worker.ListenHost)
	c.Worker.AdvertiseHost = getEnv("WORKER_ADVERTISE_HOST", c.Worker.AdvertiseHost)
	c.Worker.Port = getEnvAsInt("WORKER_PORT", c.Worker.Port)
	c.Worker.MulticastGroup = getEnv("MULTICAST_GROUP", c.Worker.MulticastGroup)
	c.Worker.MulticastPort = getEnvAsInt("MULTICAST_PORT", c.Worker.MulticastPort)
	c.Worker.ControllerProbeInterval = getEnvAsDuration("CONTROLLER_PROBE_INTERVAL", c.Worker.ControllerProbeInterval)
	c.Worker.RequestTimeout = getEnvAsDuration("WORKER_REQUEST_TIMEOUT", c.Worker.RequestTimeout)
	c.Worker.RuneLiteInstallPath = getEnv("RUNELITE_INSTALL_PATH", c.Worker.RuneLiteInstallPath)
}

// Validate checks the controller section
func (c *ControllerConfig) Validate() error {
	var errs []error
	if !validPort(c.Port) {
		errs = append(errs, fmt.Errorf("controller port %d out of range", c.Port))
	}
	if !validPort(c.MulticastPort) {
		errs = append(errs, fmt.Errorf("multicast port %d out of range", c.MulticastPort))
	}
	if ip := net.ParseIP(c.MulticastGroup); ip == nil || !ip.IsMulticast() {
		errs = append(errs, fmt.Errorf("multicast group %q is not a multicast address", c.MulticastGroup))
	}
	if c.BroadcastInterval <= 0 || c.LivenessInterval <= 0 {
		errs = append(errs, errors.New("broadcast and liveness intervals must be positive"))
	}
	if c.ProbeTimeout <= 0 || c.DispatchTimeout <= 0 {
		errs = append(errs, errors.New("probe and dispatch timeouts must be positive"))
	}
	if c.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("failure threshold must be at least 1, got %d", c.FailureThreshold))
	}
	return errors.Join(errs...)
}

// Validate checks the worker section
func (c *WorkerConfig) Validate() error {
	var errs []error
	if c.Port != 0 && !validPort(c.Port) {
		errs = append(errs, fmt.Errorf("worker port %d out of range", c.Port))
	}
	if c.Port == 0 && !validPort(c.BasePort) {
		errs = append(errs, fmt.Errorf("worker base port %d out of range", c.BasePort))
	}
	if !validPort(c.MulticastPort) {
		errs = append(errs, fmt.Errorf("multicast port %d out of range", c.MulticastPort))
	}
	if ip := net.ParseIP(c.MulticastGroup); ip == nil || !ip.IsMulticast() {
		errs = append(errs, fmt.Errorf("multicast group %q is not a multicast address", c.MulticastGroup))
	}
	if c.ControllerProbeInterval <= 0 || c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("controller probe interval and request timeout must be positive"))
	}
	return errors.Join(errs...)
}

func validPort(port int) bool {
	return port > 0 && port < 65536
}

// GetControllerAddress returns the controller listen address
func (c *Config) GetControllerAddress() string {
	return net.JoinHostPort(c.Controller.ListenHost, strconv.Itoa(c.Controller.Port))
}

// GetLogLevel converts the log level string to LogLevel type
func (c *Config) GetLogLevel() LogLevel {
	return ParseLogLevel(c.LogLevel)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
