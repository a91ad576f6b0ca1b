package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// State is the agent's position in its discovery cycle
type State int32

// Agent states
const (
	StateSearching State = iota
	StateRegistering
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "SEARCHING"
	case StateRegistering:
		return "REGISTERING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// PacketSource yields raw announcement datagrams
type PacketSource interface {
	Receive(ctx context.Context) ([]byte, error)
}

// Drainer is a PacketSource that can drop datagrams queued while nobody
// was reading
type Drainer interface {
	Drain() (int, error)
}

// ControllerClient is the controller RPC surface the agent calls
type ControllerClient interface {
	Register(ctx context.Context, addr models.Address, req models.RegisterWorkerRequest) error
	Heartbeat(ctx context.Context, addr models.Address) error
}

// AgentConfig holds discovery agent configuration
type AgentConfig struct {
	Nickname string
	// Address is where the controller can reach this worker
	Address        models.Address
	Source         PacketSource
	Client         ControllerClient
	ProbeInterval  time.Duration
	RequestTimeout time.Duration
}

// Agent finds the controller, registers with it, and keeps probing it.
// Losing the controller sends the agent back to searching for a fresh
// announcement. It runs for the worker's lifetime.
type Agent struct {
	nickname       string
	self           models.Address
	source         PacketSource
	client         ControllerClient
	probeInterval  time.Duration
	requestTimeout time.Duration
	logger         *utils.Logger

	state      atomic.Int32
	mu         sync.RWMutex
	controller *models.ControllerAddress
}

// NewAgent creates a discovery agent in the searching state
func NewAgent(config AgentConfig) *Agent {
	return &Agent{
		nickname:       config.Nickname,
		self:           config.Address,
		source:         config.Source,
		client:         config.Client,
		probeInterval:  config.ProbeInterval,
		requestTimeout: config.RequestTimeout,
		logger:         utils.NewLogger("discovery-agent").With("nickname", config.Nickname),
	}
}

// State returns the current state
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Controller returns the controller the agent is connected to, if any
func (a *Agent) Controller() (models.ControllerAddress, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.controller == nil {
		return models.ControllerAddress{}, false
	}
	return *a.controller, true
}

func (a *Agent) transition(state State, controller *models.ControllerAddress) {
	a.mu.Lock()
	a.controller = controller
	a.mu.Unlock()

	previous := State(a.state.Swap(int32(state)))
	if previous != state {
		a.logger.Debug("%s -> %s", previous, state)
	}
}

// Run drives the state machine until ctx is cancelled
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Discovery agent started, advertising %s", a.self)

	for ctx.Err() == nil {
		a.transition(StateSearching, nil)

		controller, ok := a.search(ctx)
		if !ok {
			continue
		}

		a.transition(StateRegistering, nil)
		if err := a.register(ctx, controller); err != nil {
			incRegistrationAttempts("failure")
			a.logger.Warn("Registration with %s failed: %v", controller, err)
			continue
		}
		incRegistrationAttempts("success")
		a.logger.Info("Registered with controller at %s", controller)

		a.transition(StateConnected, &controller)
		a.watch(ctx, controller)
		if ctx.Err() == nil {
			// Announcements queued while connected predate the loss.
			a.dropBacklog()
		}
	}

	a.transition(StateSearching, nil)
	a.logger.Debug("Discovery agent stopped")
	return nil
}

// search waits for one well-formed announcement
func (a *Agent) search(ctx context.Context) (models.ControllerAddress, bool) {
	for {
		data, err := a.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return models.ControllerAddress{}, false
			}
			a.logger.Error("Announcement receive failed: %v", err)
			select {
			case <-ctx.Done():
				return models.ControllerAddress{}, false
			case <-time.After(a.probeInterval):
			}
			continue
		}

		controller, err := DecodeAnnouncement(data)
		if err != nil {
			incAnnouncementsReceived("malformed", 1)
			a.logger.Debug("Discarding datagram: %v", err)
			continue
		}
		incAnnouncementsReceived("valid", 1)
		return controller, true
	}
}

func (a *Agent) dropBacklog() {
	drainer, ok := a.source.(Drainer)
	if !ok {
		return
	}
	n, err := drainer.Drain()
	if err != nil {
		a.logger.Warn("Failed to drop queued announcements: %v", err)
	}
	if n > 0 {
		incAnnouncementsReceived("stale", n)
		a.logger.Debug("Dropped %d announcements queued before the controller was lost", n)
	}
}

func (a *Agent) register(ctx context.Context, controller models.ControllerAddress) error {
	reqCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	return a.client.Register(reqCtx, controller, models.RegisterWorkerRequest{
		Nickname:  a.nickname,
		IPAddress: a.self.Host,
		Port:      a.self.Port,
	})
}

// watch probes the controller every interval and returns on the first
// failure or when ctx is cancelled.
func (a *Agent) watch(ctx context.Context, controller models.ControllerAddress) {
	ticker := time.NewTicker(a.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
			err := a.client.Heartbeat(probeCtx, controller)
			cancel()

			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			incControllerLost(1)
			a.logger.Warn("Lost controller at %s: %v", controller, err)
			return
		}
	}
}
