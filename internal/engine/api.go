package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tradesync/internal/database"
	"tradesync/internal/models"
	"tradesync/internal/positionsync"

	"go.uber.org/zap"
)

// APIServer provides a read-mostly HTTP interface to the engine.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// NewAPIServer creates a server listening on the configured port.
func NewAPIServer(engine *Engine, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", engine.cfg.Server.Port),
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routes served by the API.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("GET /api/positions", s.positionsHandler)
	mux.HandleFunc("GET /api/positions/{id}", s.positionHandler)
	mux.HandleFunc("POST /api/positions/{id}/sync", s.syncHandler)
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	status := models.PositionStatus(r.URL.Query().Get("status"))
	positions, err := s.engine.store.ListPositions(r.Context(), status)
	if err != nil {
		s.logger.Error("Failed to list positions", zap.Error(err))
		http.Error(w, "Failed to list positions", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

type positionDetail struct {
	Position   *models.Position      `json:"position"`
	Notes      []models.PositionNote `json:"notes"`
	Executions []models.Execution    `json:"executions"`
}

func (s *APIServer) positionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	pos, err := s.engine.store.GetPosition(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	notes, err := s.engine.store.Notes(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	execs, err := s.engine.store.Executions(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positionDetail{Position: pos, Notes: notes, Executions: execs})
}

func (s *APIServer) syncHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.syncer.SyncPositionNow(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	pos, err := s.engine.store.GetPosition(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, database.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, positionsync.ErrSyncInProgress):
		code = http.StatusConflict
	case errors.Is(err, positionsync.ErrNotSyncable):
		code = http.StatusUnprocessableEntity
	default:
		s.logger.Error("Request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), code)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}
