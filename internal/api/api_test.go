package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/client"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/discovery"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/discovery/discoverytest"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/fleet"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/storage"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/worker"
)

type testEnv struct {
	store      *storage.SQLiteStorage
	controller *fleet.Controller
	server     *httptest.Server
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "controller.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	controller := fleet.NewController(fleet.Config{
		Storage:          store,
		Prober:           client.New(time.Second),
		Launcher:         client.New(2 * time.Second),
		LivenessInterval: time.Hour,
		ProbeTimeout:     time.Second,
		FailureThreshold: 1,
		DispatchTimeout:  2 * time.Second,
	})
	require.NoError(t, controller.Start())
	t.Cleanup(controller.Stop)

	server := httptest.NewServer(NewServer(store, controller, "").Handler())
	t.Cleanup(server.Close)

	return &testEnv{store: store, controller: controller, server: server}
}

func (e *testEnv) address(t *testing.T) models.Address {
	return addressOf(t, e.server)
}

func addressOf(t *testing.T, server *httptest.Server) models.Address {
	t.Helper()
	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return models.Address{Host: host, Port: port}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

type recordingLauncher struct {
	mu       sync.Mutex
	launched []models.WorkItem
}

func (l *recordingLauncher) Launch(ctx context.Context, item models.WorkItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, item)
	return nil
}

func startWorkerEndpoint(t *testing.T, launcher worker.Launcher) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(worker.NewServer(launcher).Handler())
	t.Cleanup(server.Close)
	return server
}

func testAccount(nickname string) models.Account {
	return models.Account{
		Nickname: nickname,
		WorkItem: models.WorkItem{CharacterID: "c-" + nickname, SessionID: "s-" + nickname, DisplayName: "Display " + nickname},
	}
}

func TestEndToEndDiscoveryAndDispatch(t *testing.T) {
	env := setupTestEnv(t)
	launcher := &recordingLauncher{}
	workerEndpoint := startWorkerEndpoint(t, launcher)
	workerAddr := addressOf(t, workerEndpoint)

	// Worker hears the controller's announcement and registers.
	source := discoverytest.NewSource()
	agent := discovery.NewAgent(discovery.AgentConfig{
		Nickname:       "pc1",
		Address:        workerAddr,
		Source:         source,
		Client:         client.New(time.Second),
		ProbeInterval:  20 * time.Millisecond,
		RequestTimeout: time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	source.Announce(t, discovery.EncodeAnnouncement(env.address(t)))
	require.Eventually(t, func() bool { return agent.State() == discovery.StateConnected }, 2*time.Second, 5*time.Millisecond)

	status, body := env.do(t, http.MethodGet, "/get_daemons", nil)
	require.Equal(t, http.StatusOK, status)
	var daemons []models.WorkerView
	require.NoError(t, json.Unmarshal(body, &daemons))
	require.Len(t, daemons, 1)
	assert.Equal(t, "pc1", daemons[0].Nickname)
	assert.Equal(t, workerAddr.Port, daemons[0].Port)

	// Liveness keeps a healthy worker.
	assert.Empty(t, env.controller.GetMonitor().Sweep(context.Background()))

	status, _ = env.do(t, http.MethodPost, "/add_account", testAccount("acc1"))
	require.Equal(t, http.StatusCreated, status)

	status, body = env.do(t, http.MethodPost, "/launch_account", models.DispatchRequest{AccountID: "acc1", WorkerNickname: "pc1"})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"success","message":"Account launched"}`, string(body))

	launcher.mu.Lock()
	require.Len(t, launcher.launched, 1)
	assert.Equal(t, testAccount("acc1").WorkItem, launcher.launched[0])
	launcher.mu.Unlock()

	status, body = env.do(t, http.MethodGet, "/dispatches?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	var records []models.DispatchRecord
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, models.DispatchStatusSuccess, records[0].Status)
	assert.Equal(t, "pc1", records[0].Worker)
}

func TestRegisterDaemon(t *testing.T) {
	env := setupTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/register_daemon", models.RegisterWorkerRequest{Nickname: "pc1", IPAddress: "10.0.0.7", Port: 5001})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"success","message":"Daemon pc1 registered"}`, string(body))

	// Re-registration moves the worker instead of adding another.
	status, _ = env.do(t, http.MethodPost, "/register_daemon", models.RegisterWorkerRequest{Nickname: "pc1", IPAddress: "10.0.0.8", Port: 5002})
	require.Equal(t, http.StatusOK, status)

	snapshot := env.controller.GetRegistry().Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, models.Address{Host: "10.0.0.8", Port: 5002}, snapshot[0].Address)
}

func TestRegisterDaemonValidation(t *testing.T) {
	env := setupTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/register_daemon", map[string]interface{}{"nickname": "pc1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), `"status":"error"`)

	status, _ = env.do(t, http.MethodPost, "/register_daemon", "not an object")
	assert.Equal(t, http.StatusBadRequest, status)

	assert.Equal(t, 0, env.controller.GetRegistry().Len())
}

func TestControllerHeartbeat(t *testing.T) {
	env := setupTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/heartbeat", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"success","message":"Server is alive"}`, string(body))
}

func TestLaunchUnknownWorkerOrAccount(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.store.ImportAccounts(context.Background(), []models.Account{testAccount("acc1")})
	require.NoError(t, err)

	status, _ := env.do(t, http.MethodPost, "/launch_account", models.DispatchRequest{AccountID: "acc1", WorkerNickname: "ghost"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/launch_account", models.DispatchRequest{AccountID: "nobody", WorkerNickname: "ghost"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/launch_account", map[string]string{"account_id": "acc1"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLaunchUnreachableWorker(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.store.ImportAccounts(context.Background(), []models.Account{testAccount("acc1")})
	require.NoError(t, err)

	endpoint := startWorkerEndpoint(t, &recordingLauncher{})
	addr := addressOf(t, endpoint)
	endpoint.Close()

	_, err = env.controller.GetRegistry().Upsert("pc1", addr)
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/launch_account", models.DispatchRequest{AccountID: "acc1", WorkerNickname: "pc1"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, string(body), "unreachable")

	// Dispatch leaves eviction to the liveness monitor.
	assert.Equal(t, 1, env.controller.GetRegistry().Len())
	assert.Equal(t, []string{"pc1"}, env.controller.GetMonitor().Sweep(context.Background()))
}

func TestLaunchRelaysWorkerRejection(t *testing.T) {
	env := setupTestEnv(t)
	account := testAccount("acc1")
	account.SessionID = ""
	_, err := env.store.ImportAccounts(context.Background(), []models.Account{account})
	require.NoError(t, err)

	endpoint := startWorkerEndpoint(t, &recordingLauncher{})
	_, err = env.controller.GetRegistry().Upsert("pc1", addressOf(t, endpoint))
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/launch_account", models.DispatchRequest{AccountID: "acc1", WorkerNickname: "pc1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "Incomplete account data")

	records, err := env.store.ListDispatches(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.DispatchStatusFailed, records[0].Status)
	assert.Equal(t, http.StatusBadRequest, records[0].StatusCode)
}

func TestAccountEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/add_account", testAccount("acc1"))
	require.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodPost, "/add_account", testAccount("acc1"))
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/add_account", testAccount(""))
	assert.Equal(t, http.StatusBadRequest, status)

	update := models.UpdateAccountRequest{OriginalNickname: "acc1", Account: testAccount("main")}
	status, _ = env.do(t, http.MethodPut, "/update_account", update)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPut, "/update_account", update)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := env.do(t, http.MethodGet, "/get_accounts", nil)
	require.Equal(t, http.StatusOK, status)
	var accounts models.LegacyAccounts
	require.NoError(t, json.Unmarshal(body, &accounts))
	require.Contains(t, accounts, "main")
	assert.Equal(t, "c-main", accounts["main"].CharacterID)

	status, _ = env.do(t, http.MethodPost, "/delete_account", models.DeleteAccountRequest{Nickname: "main"})
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/delete_account", models.DeleteAccountRequest{Nickname: "main"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDispatchesEmptyList(t *testing.T) {
	env := setupTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/dispatches?limit=abc", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestMetricsAndStats(t *testing.T) {
	env := setupTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "fleet_controller_registered_workers")

	status, body = env.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, status)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, float64(0), stats["registered_workers"])
	assert.Equal(t, "ok", stats["storage"])
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestEnv(t)

	status, _ := env.do(t, http.MethodOptions, "/add_account", nil)
	assert.Equal(t, http.StatusOK, status)
}
