package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// NewMediaTask inserts a pending task for an uploaded video or audio file,
// with an optional document attachment.
func (s *Store) NewMediaTask(ctx context.Context, sourceType SourceType, title, originalPath, attachmentPath string) (*Task, error) {
	if sourceType != SourceVideo && sourceType != SourceAudio {
		return nil, fmt.Errorf("source type %q is not a media type", sourceType)
	}
	attachmentStatus := AttachmentNone
	if attachmentPath != "" {
		attachmentStatus = AttachmentPending
	}
	return s.insertTask(ctx, sourceType, title, originalPath, attachmentPath, attachmentStatus, "")
}

// NewTextTask inserts a pending task carrying pasted or imported text.
func (s *Store) NewTextTask(ctx context.Context, title, rawText string) (*Task, error) {
	return s.insertTask(ctx, SourceText, title, "", "", AttachmentNone, rawText)
}

// NewDocumentTask inserts a pending task whose uploaded file is itself the
// attachment to parse.
func (s *Store) NewDocumentTask(ctx context.Context, title, originalPath string) (*Task, error) {
	return s.insertTask(ctx, SourceDocument, title, originalPath, originalPath, AttachmentPending, "")
}

func (s *Store) insertTask(ctx context.Context, sourceType SourceType, title, originalPath, attachmentPath string, attachmentStatus AttachmentStatus, rawText string) (*Task, error) {
	if title == "" && originalPath != "" {
		title = inferTitleFromPath(originalPath)
	}
	timestamp := nowStamp()

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            title, source_type, status, original_file_path, attachment_path,
            attachment_status, raw_text, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(title),
		string(sourceType),
		StatusPending,
		nullableString(originalPath),
		nullableString(attachmentPath),
		string(attachmentStatus),
		nullableString(rawText),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a task by identifier. A missing row returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at DESC, id DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns task counts grouped into key lifecycle states.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		switch status {
		case StatusPending:
			stats.Pending += count
		case StatusCompleted:
			stats.Completed += count
		case StatusFailed:
			stats.Failed += count
		default:
			stats.Processing += count
		}
	}
	return stats, rows.Err()
}

func inferTitleFromPath(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "Untitled"
	}
	return base
}
