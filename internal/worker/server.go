package worker

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// Server is the worker's HTTP endpoint: liveness and launch
type Server struct {
	launcher Launcher
	logger   *utils.Logger
	server   *http.Server
}

// NewServer creates the worker endpoint
func NewServer(launcher Launcher) *Server {
	s := &Server{
		launcher: launcher,
		logger:   utils.NewLogger("worker-api"),
	}

	router := httprouter.New()
	router.GET(models.HeartbeatPath, s.handleHeartbeat)
	router.POST(models.LaunchPath, s.loggingMiddleware(s.handleLaunch))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	s.server = &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Serve accepts connections on listener until Shutdown
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("Worker endpoint listening on %s", listener.Addr())
	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down worker endpoint...")
	return s.server.Shutdown(ctx)
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

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, models.StatusResponse{Status: models.StatusError, Message: message})
}

// Handler: Heartbeat (GET /heartbeat)
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.jsonResponse(w, http.StatusOK, models.StatusResponse{Status: models.StatusSuccess, Message: "Daemon is alive"})
}

// Handler: Launch account (POST /launch_account)
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var item models.WorkItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if missing := item.MissingFields(); len(missing) > 0 {
		s.logger.Warn("Rejected launch request missing %v", missing)
		s.errorResponse(w, http.StatusBadRequest, "Incomplete account data, missing "+strings.Join(missing, ", "))
		return
	}

	if err := s.launcher.Launch(r.Context(), item); err != nil {
		s.logger.Error("Failed to launch account %s: %v", item.DisplayName, err)
		s.errorResponse(w, models.HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, models.StatusResponse{Status: models.StatusSuccess, Message: "Account launched"})
}
