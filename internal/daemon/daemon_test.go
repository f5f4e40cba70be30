package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"notesmith/internal/task"
	"notesmith/internal/testsupport"
	"notesmith/internal/workflow"
)

type stubExtractor struct{}

func (stubExtractor) ExtractAudio(_ context.Context, _, outDir string) (string, error) {
	dest := filepath.Join(outDir, "audio.wav")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, []byte("wav"), 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string) (string, error) {
	return "transcript", nil
}

type stubNotes struct{}

func (stubNotes) PolishText(_ context.Context, transcript string) (string, error) {
	return "polished: " + transcript, nil
}

func (stubNotes) PolishDocument(_ context.Context, markdown string) (string, error) {
	return "document: " + markdown, nil
}

func (stubNotes) FuseNotes(_ context.Context, document, transcript string) (string, error) {
	return "fused: " + document + " + " + transcript, nil
}

func (stubNotes) GenerateNote(_ context.Context, _, material string) (string, error) {
	return "note: " + material, nil
}

type stubParser struct{}

func (stubParser) Parse(context.Context, string, func(string)) (string, error) {
	return "# Extracted", nil
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	orchestrator := workflow.New(cfg, store, nil, workflow.Providers{
		Extractor:   stubExtractor{},
		Transcriber: stubTranscriber{},
		Notes:       stubNotes{},
		Parser:      stubParser{},
	})
	t.Cleanup(orchestrator.Shutdown)

	d, err := New(cfg, store, nil, orchestrator)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func waitForStatus(t *testing.T, d *Daemon, id int64, want task.Status) *task.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := d.store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got != nil && got.Status == want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %d never reached status %s", id, want)
	return nil
}

func TestHandleTextTaskCreatesAndProcesses(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}

	body := strings.NewReader(`{"title": "Meeting", "text": "hello world"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/text", body)
	w := httptest.NewRecorder()
	srv.handleTextTask(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 Created, got %d: %s", w.Code, w.Body.String())
	}
	var resp taskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Task.SourceType != string(task.SourceText) {
		t.Fatalf("unexpected source type %q", resp.Task.SourceType)
	}

	done := waitForStatus(t, d, resp.Task.ID, task.StatusCompleted)
	if done.FinalNote != "polished: hello world" {
		t.Fatalf("unexpected final note %q", done.FinalNote)
	}
}

func TestHandleTextTaskRequiresText(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/text", strings.NewReader(`{"title": "empty"}`))
	w := httptest.NewRecorder()
	srv.handleTextTask(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func multipartUpload(t *testing.T, sourceType, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("source_type", sourceType); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestHandleCreateUploadDocument(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}

	body, contentType := multipartUpload(t, "document", "report.pdf", "%PDF-1.4 payload")
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleTasks(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 Created, got %d: %s", w.Code, w.Body.String())
	}
	var resp taskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.Task.OriginalFilePath, d.cfg.Paths.UploadDir) {
		t.Fatalf("upload not stored under upload dir: %q", resp.Task.OriginalFilePath)
	}
	if !strings.HasSuffix(resp.Task.OriginalFilePath, "_report.pdf") {
		t.Fatalf("upload name not preserved: %q", resp.Task.OriginalFilePath)
	}
	if resp.Task.AttachmentStatus != string(task.AttachmentPending) {
		t.Fatalf("expected pending attachment, got %q", resp.Task.AttachmentStatus)
	}

	done := waitForStatus(t, d, resp.Task.ID, task.StatusCompleted)
	if done.FinalNote != "document: # Extracted" {
		t.Fatalf("unexpected final note %q", done.FinalNote)
	}
	if done.AttachmentStatus != task.AttachmentDone {
		t.Fatalf("expected attachment done, got %q", done.AttachmentStatus)
	}
}

func TestHandleCreateUploadRejectsTextType(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}

	body, contentType := multipartUpload(t, "text", "note.txt", "content")
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleTasks(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleListFiltersByStatus(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}
	ctx := context.Background()

	pending, err := d.store.NewTextTask(ctx, "pending", "raw")
	if err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}
	failed, err := d.store.NewTextTask(ctx, "failed", "raw")
	if err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}
	if err := d.store.MarkFailed(ctx, failed.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks?status=pending", nil)
	w := httptest.NewRecorder()
	srv.handleTasks(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp taskListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != pending.ID {
		t.Fatalf("unexpected list result: %+v", resp.Tasks)
	}
}

func TestHandleGetMissingTask(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/42", nil)
	w := httptest.NewRecorder()
	srv.handleTask(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleUpdateTitle(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}
	ctx := context.Background()

	created, err := d.store.NewTextTask(ctx, "before", "raw")
	if err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}

	body := strings.NewReader(`{"title": "after"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/1", body)
	w := httptest.NewRecorder()
	srv.handleTask(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got, err := d.store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "after" {
		t.Fatalf("title not updated: %q", got.Title)
	}
}

func TestHandleUpdateRejectsProcessingTask(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}
	ctx := context.Background()

	created, err := d.store.NewTextTask(ctx, "busy", "raw")
	if err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}
	if err := d.store.SetStatus(ctx, created.ID, task.StatusPolishing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/1", strings.NewReader(`{"title": "nope"}`))
	w := httptest.NewRecorder()
	srv.handleTask(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestHandleDeleteRemovesOwnedFiles(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}
	ctx := context.Background()

	uploaded := filepath.Join(d.cfg.Paths.UploadDir, "doc.pdf")
	testsupport.WriteFile(t, uploaded, 64)
	created, err := d.store.NewDocumentTask(ctx, "doc", uploaded)
	if err != nil {
		t.Fatalf("NewDocumentTask: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/tasks/1", nil)
	w := httptest.NewRecorder()
	srv.handleTask(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got, err := d.store.GetByID(ctx, created.ID); err != nil || got != nil {
		t.Fatalf("task still present after delete: %v %v", got, err)
	}
	if _, err := os.Stat(uploaded); !os.IsNotExist(err) {
		t.Fatalf("uploaded file not removed: %v", err)
	}
}

func TestHandleNoteGeneratesFromTemplate(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}
	ctx := context.Background()

	if err := d.store.SeedDefaultTemplate(ctx); err != nil {
		t.Fatalf("SeedDefaultTemplate: %v", err)
	}
	created, err := d.store.NewTextTask(ctx, "note source", "raw material")
	if err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/1/note", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.handleTask(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp notePayload
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Note != "note: raw material" {
		t.Fatalf("unexpected note %q", resp.Note)
	}
	got, err := d.store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FinalNote != resp.Note {
		t.Fatalf("final note not persisted: %q", got.FinalNote)
	}
}

func TestHandleRetryEnqueuesTask(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}
	ctx := context.Background()

	created, err := d.store.NewTextTask(ctx, "retry", "try again")
	if err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}
	if err := d.store.MarkFailed(ctx, created.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/1/retry", nil)
	w := httptest.NewRecorder()
	srv.handleTask(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	done := waitForStatus(t, d, created.ID, task.StatusCompleted)
	if done.ErrorMessage != "" {
		t.Fatalf("error message not cleared: %q", done.ErrorMessage)
	}
}

func TestHandleExportWritesVaultFile(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}
	ctx := context.Background()

	created, err := d.store.NewTextTask(ctx, "Weekly: Sync/Notes", "raw")
	if err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}
	if err := d.store.CompleteWithNote(ctx, created.ID, "# Final"); err != nil {
		t.Fatalf("CompleteWithNote: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/1/export", nil)
	w := httptest.NewRecorder()
	srv.handleTask(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp exportPayload
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if filepath.Base(resp.Path) != "Weekly- Sync-Notes.md" {
		t.Fatalf("unexpected export name %q", resp.Path)
	}
	content, err := os.ReadFile(resp.Path)
	if err != nil {
		t.Fatalf("read exported note: %v", err)
	}
	if strings.TrimSpace(string(content)) != "# Final" {
		t.Fatalf("unexpected export content %q", content)
	}
}

func TestHandleExportRequiresFinalNote(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}

	if _, err := d.store.NewTextTask(context.Background(), "incomplete", "raw"); err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/1/export", nil)
	w := httptest.NewRecorder()
	srv.handleTask(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleHealthReportsStats(t *testing.T) {
	d := newTestDaemon(t)
	srv := &apiServer{daemon: d}

	if _, err := d.store.NewTextTask(context.Background(), "stats", "raw"); err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp healthPayload
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || resp.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", resp)
	}
}

func TestDaemonSecondInstanceBlocked(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	second, err := New(d.cfg, d.store, nil, d.orchestrator)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestDaemonStartReconcilesInterruptedTasks(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	created, err := d.store.NewTextTask(ctx, "stranded", "raw")
	if err != nil {
		t.Fatalf("NewTextTask: %v", err)
	}
	if err := d.store.SetStatus(ctx, created.ID, task.StatusPolishing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	got, err := d.store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed after reconcile, got %s", got.Status)
	}
	if got.ErrorMessage != task.InterruptedMessage {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
	if d.APIAddr() == "" {
		t.Fatal("expected api server to be listening")
	}
}
