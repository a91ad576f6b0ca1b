package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// Prober checks whether a peer is alive
type Prober interface {
	Heartbeat(ctx context.Context, addr models.Address) error
}

// MonitorConfig holds liveness monitor configuration
type MonitorConfig struct {
	Interval         time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int
}

// Monitor periodically probes every registered worker and evicts the
// ones that stop answering.
type Monitor struct {
	registry  *Registry
	prober    Prober
	logger    *utils.Logger
	interval  time.Duration
	timeout   time.Duration
	threshold int

	// failures is only touched by Sweep, which never runs concurrently
	// with itself.
	sweepMu  sync.Mutex
	failures map[string]int
}

// NewMonitor creates a liveness monitor over registry
func NewMonitor(registry *Registry, prober Prober, config MonitorConfig) *Monitor {
	threshold := config.FailureThreshold
	if threshold < 1 {
		threshold = 1
	}

	return &Monitor{
		registry:  registry,
		prober:    prober,
		logger:    utils.NewLogger("liveness-monitor"),
		interval:  config.Interval,
		timeout:   config.ProbeTimeout,
		threshold: threshold,
		failures:  make(map[string]int),
	}
}

// Run sweeps the registry every interval until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Liveness monitor started (interval: %v, timeout: %v)", m.interval, m.timeout)

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Liveness monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

type probeOutcome struct {
	record models.WorkerRecord
	err    error
}

// Sweep runs one liveness round: snapshot, probe every worker without
// holding the registry lock, then apply evictions in one batch. It
// returns the nicknames that were evicted.
func (m *Monitor) Sweep(ctx context.Context) []string {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	snapshot := m.registry.Snapshot()
	if len(snapshot) == 0 {
		m.failures = make(map[string]int)
		return nil
	}

	outcomes := make([]probeOutcome, len(snapshot))
	var wg sync.WaitGroup
	for i, record := range snapshot {
		wg.Add(1)
		go func(i int, record models.WorkerRecord) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			outcomes[i] = probeOutcome{record: record, err: m.prober.Heartbeat(probeCtx, record.Address)}
		}(i, record)
	}
	wg.Wait()

	if ctx.Err() != nil {
		// Shutting down; a cancelled probe says nothing about the worker.
		return nil
	}

	var stale []models.WorkerRecord
	seen := make(map[string]bool, len(outcomes))
	for _, outcome := range outcomes {
		nickname := outcome.record.Nickname
		seen[nickname] = true

		if outcome.err == nil {
			incProbes("success")
			delete(m.failures, nickname)
			continue
		}

		incProbes("failure")
		m.failures[nickname]++
		m.logger.Warn("Worker %s at %s failed liveness probe (%d/%d): %v",
			nickname, outcome.record.Address, m.failures[nickname], m.threshold, outcome.err)
		if m.failures[nickname] >= m.threshold {
			stale = append(stale, outcome.record)
		}
	}

	// Drop counters for workers that left the registry some other way.
	for nickname := range m.failures {
		if !seen[nickname] {
			delete(m.failures, nickname)
		}
	}

	// A record refreshed since the snapshot survives and starts counting again.
	for _, record := range stale {
		delete(m.failures, record.Nickname)
	}
	evicted := m.registry.RemoveStale(stale)
	for _, nickname := range evicted {
		m.logger.Warn("Evicted unresponsive worker %s", nickname)
	}
	incEvictions(len(evicted))

	return evicted
}
