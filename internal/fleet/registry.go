package fleet

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// Registry is the concurrency-safe set of known workers keyed by nickname.
// Records are only handed out as copies; no caller ever holds a reference
// into the map.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]models.WorkerRecord
	logger  *utils.Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(logger *utils.Logger) *Registry {
	return &Registry{
		workers: make(map[string]models.WorkerRecord),
		logger:  logger,
		now:     time.Now,
	}
}

// Upsert registers a worker or refreshes the address of an existing one.
// Re-registering a nickname replaces its record.
func (r *Registry) Upsert(nickname string, addr models.Address) (models.WorkerRecord, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return models.WorkerRecord{}, fmt.Errorf("%w: nickname is required", models.ErrValidation)
	}
	if err := addr.Validate(); err != nil {
		return models.WorkerRecord{}, err
	}

	record := models.WorkerRecord{
		Nickname:     nickname,
		Address:      addr,
		RegisteredAt: r.now(),
	}

	r.mu.Lock()
	previous, existed := r.workers[nickname]
	r.workers[nickname] = record
	size := len(r.workers)
	r.mu.Unlock()

	setRegisteredWorkers(size)
	incRegistrations(1)
	if existed && previous.Address != addr {
		r.logger.Info("Worker %s re-registered: %s -> %s", nickname, previous.Address, addr)
	} else if existed {
		r.logger.Debug("Worker %s refreshed at %s", nickname, addr)
	} else {
		r.logger.Info("Registered worker %s at %s", nickname, addr)
	}
	return record, nil
}

// Remove deletes a worker by nickname. It reports whether a record was removed.
func (r *Registry) Remove(nickname string) bool {
	r.mu.Lock()
	_, existed := r.workers[nickname]
	delete(r.workers, nickname)
	size := len(r.workers)
	r.mu.Unlock()

	if existed {
		setRegisteredWorkers(size)
		r.logger.Info("Removed worker %s", nickname)
	}
	return existed
}

// RemoveStale deletes every given record that is still current, meaning
// the stored record has the same address and registration time as the
// snapshot. Records refreshed since the snapshot are kept. All removals
// happen under one lock acquisition. Returns the removed nicknames.
func (r *Registry) RemoveStale(stale []models.WorkerRecord) []string {
	if len(stale) == 0 {
		return nil
	}

	var removed []string

	r.mu.Lock()
	for _, record := range stale {
		current, ok := r.workers[record.Nickname]
		if !ok {
			continue
		}
		if current.Address != record.Address || !current.RegisteredAt.Equal(record.RegisteredAt) {
			continue
		}
		delete(r.workers, record.Nickname)
		removed = append(removed, record.Nickname)
	}
	size := len(r.workers)
	r.mu.Unlock()

	if len(removed) > 0 {
		setRegisteredWorkers(size)
	}
	return removed
}

// Lookup returns a copy of the record for nickname
func (r *Registry) Lookup(nickname string) (models.WorkerRecord, error) {
	r.mu.RLock()
	record, ok := r.workers[nickname]
	r.mu.RUnlock()

	if !ok {
		return models.WorkerRecord{}, fmt.Errorf("%w: worker %q", models.ErrNotFound, nickname)
	}
	return record, nil
}

// Snapshot returns a copy of every record, sorted by nickname
func (r *Registry) Snapshot() []models.WorkerRecord {
	r.mu.RLock()
	records := make([]models.WorkerRecord, 0, len(r.workers))
	for _, record := range r.workers {
		records = append(records, record)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Nickname < records[j].Nickname
	})
	return records
}

// Len returns the number of registered workers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.workers)
}
