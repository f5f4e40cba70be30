package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notesmith/internal/config"
	"notesmith/internal/logging"
	"notesmith/internal/task"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux.HandleFunc("/api/tasks", srv.handleTasks)
	mux.HandleFunc("/api/tasks/text", srv.handleTextTask)
	mux.HandleFunc("/api/tasks/", srv.handleTask)
	mux.HandleFunc("/api/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleTasks serves POST /api/tasks (multipart upload) and GET /api/tasks.
func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateUpload(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []task.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := task.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	tasks, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payloads := make([]taskPayload, 0, len(tasks))
	for _, t := range tasks {
		payloads = append(payloads, payloadFromTask(t))
	}
	s.writeJSON(w, http.StatusOK, taskListResponse{Tasks: payloads})
}

type textTaskRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// handleTextTask serves POST /api/tasks/text for pasted content.
func (s *apiServer) handleTextTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req textTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	created, err := s.daemon.store.NewTextTask(r.Context(), strings.TrimSpace(req.Title), req.Text)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.daemon.orchestrator.Enqueue(created.ID)
	s.writeJSON(w, http.StatusCreated, taskResponse{Task: payloadFromTask(created)})
}

// handleTask routes /api/tasks/{id} and its note/retry/export sub-resources.
func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.handleGet(w, r, id)
		case http.MethodPatch:
			s.handleUpdate(w, r, id)
		case http.MethodDelete:
			s.handleDelete(w, r, id)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "note":
		s.handleNote(w, r, id)
	case "retry":
		s.handleRetry(w, r, id)
	case "export":
		s.handleExport(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "task resource not found")
	}
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request, id int64) {
	t, ok := s.fetchTask(w, r, id)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, taskResponse{Task: payloadFromTask(t)})
}

type taskUpdateRequest struct {
	Title        *string `json:"title"`
	RawText      *string `json:"raw_text"`
	PolishedText *string `json:"polished_text"`
	FinalNote    *string `json:"final_note"`
}

func (s *apiServer) handleUpdate(w http.ResponseWriter, r *http.Request, id int64) {
	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, ok := s.fetchTask(w, r, id)
	if !ok {
		return
	}
	if t.IsProcessing() {
		s.writeError(w, http.StatusConflict, "task is being processed")
		return
	}

	ctx := r.Context()
	store := s.daemon.store
	var err error
	switch {
	case req.Title != nil:
		err = store.SetTitle(ctx, id, strings.TrimSpace(*req.Title))
	}
	if err == nil && req.RawText != nil {
		err = store.SetRawText(ctx, id, *req.RawText)
	}
	if err == nil && req.PolishedText != nil {
		err = store.SetPolishedText(ctx, id, *req.PolishedText)
	}
	if err == nil && req.FinalNote != nil {
		err = store.SetFinalNote(ctx, id, *req.FinalNote)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated, ok := s.fetchTask(w, r, id)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, taskResponse{Task: payloadFromTask(updated)})
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request, id int64) {
	t, ok := s.fetchTask(w, r, id)
	if !ok {
		return
	}
	if t.IsProcessing() {
		s.writeError(w, http.StatusConflict, "task is being processed")
		return
	}

	removed, err := s.daemon.store.Remove(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.daemon.removeOwnedFiles(t)
	s.writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

type noteRequest struct {
	TemplateID int64 `json:"template_id"`
}

func (s *apiServer) handleNote(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req noteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	note, err := s.daemon.orchestrator.GenerateNote(r.Context(), id, req.TemplateID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, notePayload{TaskID: id, Note: note})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, ok := s.fetchTask(w, r, id)
	if !ok {
		return
	}
	if !s.daemon.orchestrator.Enqueue(t.ID) {
		s.writeError(w, http.StatusConflict, "task is being processed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": true, "id": id})
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, ok := s.fetchTask(w, r, id)
	if !ok {
		return
	}
	path, err := s.daemon.exportNote(t)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exportPayload{TaskID: id, Path: path})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, payloadFromStatus(status))
}

func (s *apiServer) fetchTask(w http.ResponseWriter, r *http.Request, id int64) (*task.Task, bool) {
	t, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if t == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return nil, false
	}
	return t, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
