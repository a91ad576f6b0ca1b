package worker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/client"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/discovery"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// Worker runs the worker endpoint and the discovery agent
type Worker struct {
	config   Config
	nickname string
	address  models.Address
	listener net.Listener
	source   discovery.PacketSource
	server   *Server
	agent    *discovery.Agent
	logger   *utils.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Config holds worker configuration
type Config struct {
	Nickname      string
	ListenHost    string
	AdvertiseHost string
	// Port 0 searches for a free port from BasePort
	Port           int
	BasePort       int
	MulticastGroup string
	MulticastPort  int
	ProbeInterval  time.Duration
	RequestTimeout time.Duration
	Launcher       Launcher
	// Source replaces the multicast listener. Optional.
	Source discovery.PacketSource
}

// NewWorker creates a new worker instance
func NewWorker(config Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		config: config,
		server: NewServer(config.Launcher),
		logger: utils.NewLogger("worker"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start resolves the worker's identity, binds its sockets and starts the
// endpoint and discovery loops. Errors are startup failures.
func (w *Worker) Start() error {
	if err := w.resolveIdentity(); err != nil {
		return err
	}

	if err := w.bind(); err != nil {
		return err
	}

	w.agent = discovery.NewAgent(discovery.AgentConfig{
		Nickname:       w.nickname,
		Address:        w.address,
		Source:         w.source,
		Client:         client.New(w.config.RequestTimeout),
		ProbeInterval:  w.config.ProbeInterval,
		RequestTimeout: w.config.RequestTimeout,
	})

	w.logger.Info("Starting worker %s at %s", w.nickname, w.address)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.server.Serve(w.listener); err != nil {
			w.logger.Error("Worker endpoint error: %v", err)
		}
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.agent.Run(w.ctx); err != nil {
			w.logger.Error("Discovery agent error: %v", err)
		}
	}()

	return nil
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker %s", w.nickname)
	w.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Error("Worker endpoint shutdown error: %v", err)
	}

	w.wg.Wait()
	if closer, ok := w.source.(interface{ Close() error }); ok {
		closer.Close()
	}
	w.logger.Info("Worker %s stopped", w.nickname)
}

// Nickname returns the resolved nickname
func (w *Worker) Nickname() string {
	return w.nickname
}

// Address returns the address advertised to the controller
func (w *Worker) Address() models.Address {
	return w.address
}

// Agent returns the discovery agent, available after Start
func (w *Worker) Agent() *discovery.Agent {
	return w.agent
}

func (w *Worker) resolveIdentity() error {
	w.nickname = w.config.Nickname
	if w.nickname == "" {
		name, err := Hostname()
		if err != nil {
			return err
		}
		w.nickname = name
	}

	w.address.Host = w.config.AdvertiseHost
	if w.address.Host == "" {
		host, err := discovery.OutboundIPv4()
		if err != nil {
			return err
		}
		w.address.Host = host
	}
	return nil
}

func (w *Worker) bind() error {
	var err error
	if w.config.Port > 0 {
		w.listener, err = net.Listen("tcp", net.JoinHostPort(w.config.ListenHost, strconv.Itoa(w.config.Port)))
	} else {
		w.listener, err = ListenFrom(w.config.ListenHost, w.config.BasePort)
	}
	if err != nil {
		return fmt.Errorf("failed to bind worker endpoint: %w", err)
	}
	w.address.Port = w.listener.Addr().(*net.TCPAddr).Port

	w.source = w.config.Source
	if w.source == nil {
		listener, err := discovery.Listen(w.ctx, w.config.MulticastGroup, w.config.MulticastPort)
		if err != nil {
			w.listener.Close()
			return err
		}
		w.source = listener
	}
	return nil
}
