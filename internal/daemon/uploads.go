package daemon

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"notesmith/internal/logging"
	"notesmith/internal/task"
	"notesmith/internal/textutil"
)

// maxUploadBytes bounds the multipart form kept in memory; larger file parts
// spill to temporary files.
const maxUploadBytes = 64 << 20

// handleCreateUpload serves POST /api/tasks: a multipart form with a
// source_type field, a file part, and an optional attachment part for media
// tasks.
func (s *apiServer) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	sourceType, ok := task.ParseSourceType(r.FormValue("source_type"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "source_type must be video, audio, or document")
		return
	}
	if sourceType == task.SourceText {
		s.writeError(w, http.StatusBadRequest, "use /api/tasks/text for text tasks")
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	savedPath, err := s.daemon.saveUpload(file, header.Filename)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var created *task.Task
	switch sourceType {
	case task.SourceDocument:
		created, err = s.daemon.store.NewDocumentTask(r.Context(), title, savedPath)
	default:
		attachmentPath := ""
		if attachment, attachmentHeader, attachErr := r.FormFile("attachment"); attachErr == nil {
			defer attachment.Close()
			attachmentPath, err = s.daemon.saveUpload(attachment, attachmentHeader.Filename)
			if err != nil {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		created, err = s.daemon.store.NewMediaTask(r.Context(), sourceType, title, savedPath, attachmentPath)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.daemon.orchestrator.Enqueue(created.ID)
	s.writeJSON(w, http.StatusCreated, taskResponse{Task: payloadFromTask(created)})
}

// saveUpload streams an uploaded part into the upload directory under a
// collision-proof name.
func (d *Daemon) saveUpload(src multipart.File, originalName string) (string, error) {
	name := textutil.SanitizeFileName(filepath.Base(originalName))
	if name == "" {
		name = "upload"
	}
	dest := filepath.Join(d.cfg.Paths.UploadDir, uuid.NewString()+"_"+name)

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return dest, nil
}

// removeOwnedFiles deletes files the daemon created for a task. Only paths
// under the daemon's own directories are touched.
func (d *Daemon) removeOwnedFiles(t *task.Task) {
	owned := []string{d.cfg.Paths.UploadDir, d.cfg.Paths.DataDir}
	for _, path := range []string{t.OriginalFilePath, t.AttachmentPath, t.AudioFilePath} {
		if path == "" || !underAny(path, owned) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			d.logger.Warn("failed to remove task file", logging.String("path", path), logging.Error(err))
		}
	}
}

func underAny(path string, dirs []string) bool {
	cleaned := filepath.Clean(path)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		rel, err := filepath.Rel(filepath.Clean(dir), cleaned)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
