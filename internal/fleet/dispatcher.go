package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/client"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// Launcher forwards a work item to a worker
type Launcher interface {
	Launch(ctx context.Context, addr models.Address, item models.WorkItem) (*client.Response, error)
}

// AccountLookup resolves an account id to its stored credentials
type AccountLookup interface {
	GetAccount(ctx context.Context, nickname string) (*models.Account, error)
}

// DispatchRecorder stores the outcome of a dispatch attempt
type DispatchRecorder interface {
	RecordDispatch(ctx context.Context, record *models.DispatchRecord) error
}

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	Registry *Registry
	Launcher Launcher
	Accounts AccountLookup
	// History is optional
	History DispatchRecorder
	Timeout time.Duration
}

// Dispatcher routes work items to workers by nickname. It never changes
// the registry; eviction belongs to the liveness monitor.
type Dispatcher struct {
	registry *Registry
	launcher Launcher
	accounts AccountLookup
	history  DispatchRecorder
	timeout  time.Duration
	logger   *utils.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		registry: config.Registry,
		launcher: config.Launcher,
		accounts: config.Accounts,
		history:  config.History,
		timeout:  config.Timeout,
		logger:   utils.NewLogger("dispatcher"),
	}
}

// Dispatch forwards item to the worker registered as nickname. An unknown
// nickname fails with models.ErrNotFound before any network call; a
// transport failure fails with models.ErrUnreachable. Any HTTP answer from
// the worker, success or not, is relayed in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, nickname string, item models.WorkItem) (*models.DispatchResult, error) {
	record, err := d.registry.Lookup(nickname)
	if err != nil {
		return nil, err
	}

	launchCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.launcher.Launch(launchCtx, record.Address, item)
	if err != nil {
		return nil, fmt.Errorf("dispatch to %s: %w", nickname, err)
	}

	return &models.DispatchResult{
		ID:         uuid.NewString(),
		Success:    resp.OK(),
		StatusCode: resp.StatusCode,
		Payload:    resp.Body,
	}, nil
}

// DispatchAccount resolves req's account and dispatches it to req's
// worker. Every attempt for a known account is written to the history.
func (d *Dispatcher) DispatchAccount(ctx context.Context, req models.DispatchRequest) (*models.DispatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	account, err := d.accounts.GetAccount(ctx, req.AccountID)
	if err != nil {
		incDispatches(models.DispatchStatusNotFound)
		return nil, err
	}

	d.logger.Info("Dispatching account %s to worker %s", req.AccountID, req.WorkerNickname)

	result, err := d.Dispatch(ctx, req.WorkerNickname, account.WorkItem)

	entry := &models.DispatchRecord{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		Worker:    req.WorkerNickname,
		CreatedAt: time.Now(),
	}
	switch {
	case err == nil:
		entry.ID = result.ID
		entry.StatusCode = result.StatusCode
		entry.Message = result.Message()
		entry.Status = models.DispatchStatusFailed
		if result.Success {
			entry.Status = models.DispatchStatusSuccess
		} else {
			d.logger.Warn("Worker %s rejected account %s with status %d", req.WorkerNickname, req.AccountID, result.StatusCode)
		}
	case errors.Is(err, models.ErrNotFound):
		entry.Status = models.DispatchStatusNotFound
		entry.Message = err.Error()
	case errors.Is(err, models.ErrUnreachable):
		entry.Status = models.DispatchStatusUnreachable
		entry.Message = err.Error()
		d.logger.Error("Worker %s unreachable: %v", req.WorkerNickname, err)
	default:
		entry.Status = models.DispatchStatusFailed
		entry.Message = err.Error()
	}

	incDispatches(entry.Status)
	d.record(ctx, entry)

	return result, err
}

func (d *Dispatcher) record(ctx context.Context, entry *models.DispatchRecord) {
	if d.history == nil {
		return
	}
	// The caller's context may already be done after a slow worker.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := d.history.RecordDispatch(recordCtx, entry); err != nil {
		d.logger.Error("Failed to record dispatch %s: %v", entry.ID, err)
	}
}
