package fleet

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/storage"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// Runner is a background loop that stops when its context is cancelled
type Runner interface {
	Run(ctx context.Context) error
}

// Config holds controller configuration
type Config struct {
	Storage storage.Storage
	// Prober and Launcher may be separate clients with their own timeouts
	Prober   Prober
	Launcher Launcher
	// Broadcaster announces the controller on the local network. Optional.
	Broadcaster        Runner
	LivenessInterval   time.Duration
	ProbeTimeout       time.Duration
	FailureThreshold   int
	DispatchTimeout    time.Duration
	AccountsImportPath string
}

// Controller owns the fleet registry and runs the controller-side loops
type Controller struct {
	storage     storage.Storage
	registry    *Registry
	monitor     *Monitor
	dispatcher  *Dispatcher
	broadcaster Runner
	importPath  string
	logger      *utils.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startedAt   time.Time
}

// NewController creates a new controller instance
func NewController(config Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	logger := utils.NewLogger("controller")
	registry := NewRegistry(logger.WithComponent("registry"))

	return &Controller{
		storage:  config.Storage,
		registry: registry,
		monitor: NewMonitor(registry, config.Prober, MonitorConfig{
			Interval:         config.LivenessInterval,
			ProbeTimeout:     config.ProbeTimeout,
			FailureThreshold: config.FailureThreshold,
		}),
		dispatcher: NewDispatcher(DispatcherConfig{
			Registry: registry,
			Launcher: config.Launcher,
			Accounts: config.Storage,
			History:  config.Storage,
			Timeout:  config.DispatchTimeout,
		}),
		broadcaster: config.Broadcaster,
		importPath:  config.AccountsImportPath,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start imports legacy accounts and starts the background loops
func (c *Controller) Start() error {
	c.logger.Info("Starting controller")

	if c.importPath != "" {
		if err := c.importAccounts(c.ctx, c.importPath); err != nil {
			return err
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.monitor.Run(c.ctx)
	}()

	if c.broadcaster != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.broadcaster.Run(c.ctx); err != nil {
				c.logger.Error("Broadcaster stopped: %v", err)
			}
		}()
	}

	c.startedAt = time.Now()
	c.logger.Info("Controller started successfully")
	return nil
}

// Stop cancels every loop and waits for them to exit
func (c *Controller) Stop() {
	c.logger.Info("Stopping controller")
	c.cancel()
	c.wg.Wait()
	c.logger.Info("Controller stopped")
}

// importAccounts seeds the account store from a legacy accounts.json.
// A missing file is not an error.
func (c *Controller) importAccounts(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c.logger.Debug("No accounts file at %s, skipping import", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read accounts file: %w", err)
	}

	accounts, err := models.ParseLegacyAccounts(data)
	if err != nil {
		return err
	}

	imported, err := c.storage.ImportAccounts(ctx, accounts)
	if err != nil {
		return fmt.Errorf("failed to import accounts: %w", err)
	}

	c.logger.Info("Imported %d of %d accounts from %s", imported, len(accounts), path)
	return nil
}

// GetRegistry returns the fleet registry
func (c *Controller) GetRegistry() *Registry {
	return c.registry
}

// GetDispatcher returns the dispatcher
func (c *Controller) GetDispatcher() *Dispatcher {
	return c.dispatcher
}

// GetMonitor returns the liveness monitor
func (c *Controller) GetMonitor() *Monitor {
	return c.monitor
}

// GetStats returns current controller statistics, including whether the
// account store answers
func (c *Controller) GetStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"registered_workers": c.registry.Len(),
		"liveness_interval":  c.monitor.interval.String(),
		"failure_threshold":  c.monitor.threshold,
		"storage":            "ok",
	}
	if err := c.storage.Ping(ctx); err != nil {
		c.logger.Warn("Storage ping failed: %v", err)
		stats["storage"] = "unavailable"
	}
	if !c.startedAt.IsZero() {
		stats["uptime"] = time.Since(c.startedAt).Truncate(time.Second).String()
	}
	return stats
}
