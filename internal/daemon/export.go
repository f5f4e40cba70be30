package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"notesmith/internal/logging"
	"notesmith/internal/services"
	"notesmith/internal/task"
	"notesmith/internal/textutil"
)

// exportNote writes a task's final note into the configured vault directory
// and returns the written path.
func (d *Daemon) exportNote(t *task.Task) (string, error) {
	vault := strings.TrimSpace(d.cfg.Export.VaultDir)
	if vault == "" {
		return "", services.Wrap(services.ErrConfiguration, "export", "", "vault directory is not configured", nil)
	}
	note := strings.TrimSpace(t.FinalNote)
	if note == "" {
		return "", services.Wrap(services.ErrValidation, "export", "", fmt.Sprintf("task %d has no final note", t.ID), nil)
	}

	if err := os.MkdirAll(vault, 0o755); err != nil {
		return "", fmt.Errorf("create vault directory: %w", err)
	}

	name := textutil.SanitizeFileName(t.Title)
	if name == "" {
		name = fmt.Sprintf("Task %d", t.ID)
	}
	dest := filepath.Join(vault, name+".md")
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(vault, fmt.Sprintf("%s (%d).md", name, t.ID))
	}

	if err := os.WriteFile(dest, []byte(note+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write note: %w", err)
	}
	d.logger.Info("note exported",
		logging.Int64(logging.FieldTaskID, t.ID),
		logging.String("path", dest))
	return dest, nil
}
