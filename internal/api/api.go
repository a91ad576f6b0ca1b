package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/fleet"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/internal/storage"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

const (
	defaultDispatchLimit = 50
	maxDispatchLimit     = 1000
)

// DispatchIDHeader carries the dispatch id on relayed worker responses
const DispatchIDHeader = "X-Dispatch-Id"

// Server represents the controller API server
type Server struct {
	storage    storage.Storage
	controller *fleet.Controller
	logger     *utils.Logger
	server     *http.Server
}

// NewServer creates a new API server instance
func NewServer(storage storage.Storage, controller *fleet.Controller, addr string) *Server {
	s := &Server{
		storage:    storage,
		controller: controller,
		logger:     utils.NewLogger("api"),
	}

	router := httprouter.New()

	// Fleet endpoints
	router.POST(models.RegisterPath, s.loggingMiddleware(s.handleRegister))
	router.GET(models.HeartbeatPath, s.handleHeartbeat)
	router.GET("/get_daemons", s.loggingMiddleware(s.handleGetDaemons))
	router.POST(models.LaunchPath, s.loggingMiddleware(s.handleLaunch))
	router.GET("/dispatches", s.loggingMiddleware(s.handleListDispatches))
	router.GET("/stats", s.loggingMiddleware(s.handleStats))

	// Account endpoints
	router.GET("/get_accounts", s.loggingMiddleware(s.handleGetAccounts))
	router.POST("/add_account", s.loggingMiddleware(s.handleAddAccount))
	router.PUT("/update_account", s.loggingMiddleware(s.handleUpdateAccount))
	router.POST("/delete_account", s.loggingMiddleware(s.handleDeleteAccount))

	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.corsMiddleware(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen binds the server address. Failing here is a startup error.
func (s *Server) Listen() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return listener, nil
}

// Serve accepts connections on listener until Shutdown
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("Starting API server on %s", listener.Addr())
	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.server.Shutdown(ctx)
}

// Middleware: CORS
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Middleware: Logging
func (s *Server) loggingMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		start := time.Now()
		s.logger.Debug("%s %s", r.Method, r.URL.Path)

		next(w, r, p)

		s.logger.Debug("Completed %s %s in %v", r.Method, r.URL.Path, time.Since(start))
	}
}

// Helper: JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response: %v", err)
	}
}

// Helper: Success response
func (s *Server) successResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, models.StatusResponse{Status: models.StatusSuccess, Message: message})
}

// Helper: Error response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, models.StatusResponse{Status: models.StatusError, Message: message})
}

// Helper: Error response with the status derived from the error kind
func (s *Server) errorFrom(w http.ResponseWriter, err error) {
	s.errorResponse(w, models.HTTPStatus(err), err.Error())
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", models.ErrValidation, err)
	}
	return nil
}

// Handler: Register worker (POST /register_daemon)
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req models.RegisterWorkerRequest
	if err := decode(r, &req); err != nil {
		s.errorFrom(w, err)
		return
	}

	if err := req.Validate(); err != nil {
		s.errorFrom(w, err)
		return
	}

	record, err := s.controller.GetRegistry().Upsert(req.Nickname, req.Address())
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	s.successResponse(w, http.StatusOK, fmt.Sprintf("Daemon %s registered", record.Nickname))
}

// Handler: Heartbeat (GET /heartbeat)
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.successResponse(w, http.StatusOK, "Server is alive")
}

// Handler: List workers (GET /get_daemons)
func (s *Server) handleGetDaemons(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	records := s.controller.GetRegistry().Snapshot()

	views := make([]models.WorkerView, 0, len(records))
	for _, record := range records {
		views = append(views, record.View())
	}

	s.jsonResponse(w, http.StatusOK, views)
}

// Handler: Dispatch an account (POST /launch_account)
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req models.DispatchRequest
	if err := decode(r, &req); err != nil {
		s.errorFrom(w, err)
		return
	}

	result, err := s.controller.GetDispatcher().DispatchAccount(r.Context(), req)
	if err != nil {
		s.logger.Error("Failed to launch account %s on %s: %v", req.AccountID, req.WorkerNickname, err)
		s.errorFrom(w, err)
		return
	}

	// Relay the worker's answer unchanged.
	w.Header().Set(DispatchIDHeader, result.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	if _, err := w.Write(result.Payload); err != nil {
		s.logger.Error("Failed to relay dispatch %s: %v", result.ID, err)
	}
}

// Handler: Dispatch history (GET /dispatches?limit=N)
func (s *Server) handleListDispatches(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := defaultDispatchLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, maxDispatchLimit)
		}
	}

	records, err := s.storage.ListDispatches(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list dispatches: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list dispatches")
		return
	}
	if records == nil {
		records = []*models.DispatchRecord{}
	}

	s.jsonResponse(w, http.StatusOK, records)
}

// Handler: Controller statistics (GET /stats)
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.jsonResponse(w, http.StatusOK, s.controller.GetStats(r.Context()))
}

// Handler: List accounts (GET /get_accounts), keyed by nickname
func (s *Server) handleGetAccounts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	accounts, err := s.storage.ListAccounts(r.Context())
	if err != nil {
		s.logger.Error("Failed to list accounts: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	response := make(models.LegacyAccounts, len(accounts))
	for _, account := range accounts {
		response[account.Nickname] = account.WorkItem
	}

	s.jsonResponse(w, http.StatusOK, response)
}

// Handler: Add account (POST /add_account)
func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var account models.Account
	if err := decode(r, &account); err != nil {
		s.errorFrom(w, err)
		return
	}

	if err := s.storage.AddAccount(r.Context(), &account); err != nil {
		s.logger.Warn("Failed to add account %s: %v", account.Nickname, err)
		s.errorFrom(w, err)
		return
	}

	s.logger.Info("Added account %s", account.Nickname)
	s.successResponse(w, http.StatusCreated, "Account added successfully.")
}

// Handler: Update account (PUT /update_account)
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req models.UpdateAccountRequest
	if err := decode(r, &req); err != nil {
		s.errorFrom(w, err)
		return
	}

	if err := req.Validate(); err != nil {
		s.errorFrom(w, err)
		return
	}

	if err := s.storage.UpdateAccount(r.Context(), req.OriginalNickname, &req.Account); err != nil {
		s.logger.Warn("Failed to update account %s: %v", req.OriginalNickname, err)
		s.errorFrom(w, err)
		return
	}

	s.logger.Info("Updated account %s", req.OriginalNickname)
	s.successResponse(w, http.StatusOK, "Account updated successfully.")
}

// Handler: Delete account (POST /delete_account)
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req models.DeleteAccountRequest
	if err := decode(r, &req); err != nil {
		s.errorFrom(w, err)
		return
	}

	if err := s.storage.DeleteAccount(r.Context(), req.Nickname); err != nil {
		s.logger.Warn("Failed to delete account %s: %v", req.Nickname, err)
		s.errorFrom(w, err)
		return
	}

	s.logger.Info("Deleted account %s", req.Nickname)
	s.successResponse(w, http.StatusOK, "Account deleted successfully.")
}
