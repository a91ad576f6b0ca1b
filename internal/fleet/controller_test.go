package fleet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/client"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/storage"
)

type countingRunner struct {
	started atomic.Bool
	stopped atomic.Bool
}

func (r *countingRunner) Run(ctx context.Context) error {
	r.started.Store(true)
	<-ctx.Done()
	r.stopped.Store(true)
	return nil
}

func newTestController(t *testing.T, importPath string, broadcaster Runner) (*Controller, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "controller.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	controller := NewController(Config{
		Storage:            store,
		Prober:             client.New(time.Second),
		Launcher:           client.New(time.Second),
		Broadcaster:        broadcaster,
		LivenessInterval:   time.Hour,
		ProbeTimeout:       time.Second,
		FailureThreshold:   1,
		DispatchTimeout:    time.Second,
		AccountsImportPath: importPath,
	})
	return controller, store
}

func TestControllerImportsLegacyAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	legacy := `{
		"acc1": {"JX_CHARACTER_ID": "c1", "JX_SESSION_ID": "s1", "JX_DISPLAY_NAME": "One"},
		"acc2": {"JX_CHARACTER_ID": "c2", "JX_SESSION_ID": "s2", "JX_DISPLAY_NAME": "Two", "JX_ACCESS_TOKEN": "tok"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	controller, store := newTestController(t, path, nil)
	require.NoError(t, controller.Start())
	controller.Stop()

	accounts, err := store.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acc1", accounts[0].Nickname)
	assert.Equal(t, "tok", accounts[1].AccessToken)
}

func TestControllerMissingImportFile(t *testing.T) {
	controller, _ := newTestController(t, filepath.Join(t.TempDir(), "missing.json"), nil)
	require.NoError(t, controller.Start())
	controller.Stop()
}

func TestControllerInvalidImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	controller, _ := newTestController(t, path, nil)
	require.Error(t, controller.Start())
}

func TestControllerRunsBroadcaster(t *testing.T) {
	broadcaster := &countingRunner{}
	controller, _ := newTestController(t, "", broadcaster)

	require.NoError(t, controller.Start())
	assert.Eventually(t, broadcaster.started.Load, time.Second, 10*time.Millisecond)

	controller.Stop()
	assert.True(t, broadcaster.stopped.Load())

	stats := controller.GetStats(context.Background())
	assert.Equal(t, 0, stats["registered_workers"])
	assert.Equal(t, 1, stats["failure_threshold"])
	assert.Equal(t, "ok", stats["storage"])
}

func TestControllerStatsReportsUnavailableStorage(t *testing.T) {
	controller, store := newTestController(t, "", nil)
	require.NoError(t, store.Close())

	stats := controller.GetStats(context.Background())
	assert.Equal(t, "unavailable", stats["storage"])
}

func TestControllerDispatchTimeoutIsIndependentOfProbeTimeout(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "controller.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Slower than a probe may take, faster than a dispatch may take.
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","message":"Account launched"}`))
	}))
	t.Cleanup(slow.Close)
	worker := &mockWorker{server: slow}

	controller := NewController(Config{
		Storage:          store,
		Prober:           client.New(100 * time.Millisecond),
		Launcher:         client.New(5 * time.Second),
		LivenessInterval: time.Hour,
		ProbeTimeout:     100 * time.Millisecond,
		FailureThreshold: 1,
		DispatchTimeout:  5 * time.Second,
	})

	ctx := context.Background()
	require.NoError(t, store.AddAccount(ctx, &models.Account{Nickname: "acc1", WorkItem: testWorkItem()}))
	_, err = controller.GetRegistry().Upsert("pc1", worker.address(t))
	require.NoError(t, err)

	result, err := controller.GetDispatcher().DispatchAccount(ctx, models.DispatchRequest{AccountID: "acc1", WorkerNickname: "pc1"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)

	// The same worker is too slow for a liveness probe.
	assert.Equal(t, []string{"pc1"}, controller.GetMonitor().Sweep(ctx))
}
