package fleet

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/client"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
)

type memoryAccounts map[string]*models.Account

func (m memoryAccounts) GetAccount(ctx context.Context, nickname string) (*models.Account, error) {
	account, ok := m[nickname]
	if !ok {
		return nil, fmt.Errorf("%w: account %q", models.ErrNotFound, nickname)
	}
	return account, nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []*models.DispatchRecord
}

func (h *memoryHistory) RecordDispatch(ctx context.Context, record *models.DispatchRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

// mockWorker is a worker endpoint that counts launch calls
type mockWorker struct {
	server *httptest.Server
	calls  atomic.Int32
}

func newMockWorker(t *testing.T, status int, body string) *mockWorker {
	t.Helper()
	worker := &mockWorker{}
	worker.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		worker.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(worker.server.Close)
	return worker
}

func (w *mockWorker) address(t *testing.T) models.Address {
	t.Helper()
	host, portStr, err := net.SplitHostPort(w.server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return models.Address{Host: host, Port: port}
}

func testWorkItem() models.WorkItem {
	return models.WorkItem{CharacterID: "c1", SessionID: "s1", DisplayName: "Player One"}
}

func newTestDispatcher(registry *Registry, history *memoryHistory) *Dispatcher {
	config := DispatcherConfig{
		Registry: registry,
		Launcher: client.New(time.Second),
		Accounts: memoryAccounts{
			"acc1": {Nickname: "acc1", WorkItem: testWorkItem()},
		},
		Timeout: time.Second,
	}
	if history != nil {
		config.History = history
	}
	return NewDispatcher(config)
}

func TestDispatchRelaysSuccess(t *testing.T) {
	worker := newMockWorker(t, http.StatusOK, `{"status":"success","message":"Account launched"}`)
	registry := newTestRegistry()
	_, err := registry.Upsert("pc1", worker.address(t))
	require.NoError(t, err)

	result, err := newTestDispatcher(registry, nil).Dispatch(context.Background(), "pc1", testWorkItem())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.JSONEq(t, `{"status":"success","message":"Account launched"}`, string(result.Payload))
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, int32(1), worker.calls.Load())
}

func TestDispatchRelaysWorkerError(t *testing.T) {
	worker := newMockWorker(t, http.StatusBadRequest, `{"status":"error","message":"Incomplete account data"}`)
	registry := newTestRegistry()
	_, err := registry.Upsert("pc1", worker.address(t))
	require.NoError(t, err)

	result, err := newTestDispatcher(registry, nil).Dispatch(context.Background(), "pc1", models.WorkItem{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	assert.Equal(t, "Incomplete account data", result.Message())
}

func TestDispatchUnknownWorkerMakesNoCall(t *testing.T) {
	worker := newMockWorker(t, http.StatusOK, `{"status":"success"}`)
	registry := newTestRegistry()
	_, err := registry.Upsert("pc1", worker.address(t))
	require.NoError(t, err)

	_, err = newTestDispatcher(registry, nil).Dispatch(context.Background(), "pc2", testWorkItem())
	require.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, int32(0), worker.calls.Load())
}

func TestDispatchUnreachableKeepsWorker(t *testing.T) {
	worker := newMockWorker(t, http.StatusOK, `{"status":"success"}`)
	workerAddr := worker.address(t)
	worker.server.Close()

	registry := newTestRegistry()
	_, err := registry.Upsert("pc1", workerAddr)
	require.NoError(t, err)

	_, err = newTestDispatcher(registry, nil).Dispatch(context.Background(), "pc1", testWorkItem())
	require.ErrorIs(t, err, models.ErrUnreachable)

	// Only the liveness monitor evicts
	_, err = registry.Lookup("pc1")
	require.NoError(t, err)

	monitor := newTestMonitor(registry, client.New(time.Second), 1)
	assert.Equal(t, []string{"pc1"}, monitor.Sweep(context.Background()))
}

func TestDispatchAccountRecordsHistory(t *testing.T) {
	worker := newMockWorker(t, http.StatusOK, `{"status":"success","message":"Account launched"}`)
	registry := newTestRegistry()
	_, err := registry.Upsert("pc1", worker.address(t))
	require.NoError(t, err)

	history := &memoryHistory{}
	dispatcher := newTestDispatcher(registry, history)

	result, err := dispatcher.DispatchAccount(context.Background(), models.DispatchRequest{AccountID: "acc1", WorkerNickname: "pc1"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, err = dispatcher.DispatchAccount(context.Background(), models.DispatchRequest{AccountID: "acc1", WorkerNickname: "ghost"})
	require.ErrorIs(t, err, models.ErrNotFound)

	require.Len(t, history.records, 2)
	assert.Equal(t, result.ID, history.records[0].ID)
	assert.Equal(t, models.DispatchStatusSuccess, history.records[0].Status)
	assert.Equal(t, "Account launched", history.records[0].Message)
	assert.Equal(t, models.DispatchStatusNotFound, history.records[1].Status)
	assert.Equal(t, "ghost", history.records[1].Worker)
}

func TestDispatchAccountUnknownAccount(t *testing.T) {
	worker := newMockWorker(t, http.StatusOK, `{"status":"success"}`)
	registry := newTestRegistry()
	_, err := registry.Upsert("pc1", worker.address(t))
	require.NoError(t, err)

	history := &memoryHistory{}
	_, err = newTestDispatcher(registry, history).DispatchAccount(context.Background(), models.DispatchRequest{AccountID: "nobody", WorkerNickname: "pc1"})
	require.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, int32(0), worker.calls.Load())
	assert.Empty(t, history.records)
}

func TestDispatchAccountValidation(t *testing.T) {
	_, err := newTestDispatcher(newTestRegistry(), nil).DispatchAccount(context.Background(), models.DispatchRequest{AccountID: "acc1"})
	require.ErrorIs(t, err, models.ErrValidation)
}
