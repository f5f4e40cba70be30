package task

import (
	"context"
	"fmt"
)

// The workflow mutates tasks through narrowly scoped single-statement writes.
// Each helper updates one field group keyed by id and stamps updated_at, so
// concurrent sub-pipelines never clobber each other's columns and no handle
// is held across a blocking call.

// SetStatus moves the primary state machine.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("unknown status %q", status)
	}
	return s.scopedUpdate(ctx, id, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`, string(status))
}

// ClearError resets the error message before a fresh run.
func (s *Store) ClearError(ctx context.Context, id int64) error {
	return s.scopedUpdate(ctx, id, `UPDATE tasks SET error_message = NULL, updated_at = ? WHERE id = ?`)
}

// SetAudioFilePath records the extracted audio location.
func (s *Store) SetAudioFilePath(ctx context.Context, id int64, path string) error {
	return s.scopedUpdate(ctx, id, `UPDATE tasks SET audio_file_path = ?, updated_at = ? WHERE id = ?`, nullableString(path))
}

// SetRawText records the transcription result.
func (s *Store) SetRawText(ctx context.Context, id int64, text string) error {
	return s.scopedUpdate(ctx, id, `UPDATE tasks SET raw_text = ?, updated_at = ? WHERE id = ?`, nullableString(text))
}

// SetPolishedText records the polished transcript or document text.
func (s *Store) SetPolishedText(ctx context.Context, id int64, text string) error {
	return s.scopedUpdate(ctx, id, `UPDATE tasks SET polished_text = ?, updated_at = ? WHERE id = ?`, nullableString(text))
}

// SetFinalNote records the final note without changing status.
func (s *Store) SetFinalNote(ctx context.Context, id int64, note string) error {
	return s.scopedUpdate(ctx, id, `UPDATE tasks SET final_note = ?, updated_at = ? WHERE id = ?`, nullableString(note))
}

// SetTitle renames a task.
func (s *Store) SetTitle(ctx context.Context, id int64, title string) error {
	return s.scopedUpdate(ctx, id, `UPDATE tasks SET title = ?, updated_at = ? WHERE id = ?`, nullableString(title))
}

// CompleteWithNote stores the final note and marks the task completed in one
// statement, replacing any existing note. Fusion and degradation use this;
// plain completion goes through CompleteWithDefaultNote.
func (s *Store) CompleteWithNote(ctx context.Context, id int64, note string) error {
	return s.scopedUpdate(ctx, id,
		`UPDATE tasks SET final_note = ?, status = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
		nullableString(note), string(StatusCompleted))
}

// CompleteWithDefaultNote marks the task completed and stores note as the
// final note only when none is set yet, so a rerun never clobbers an edit.
func (s *Store) CompleteWithDefaultNote(ctx context.Context, id int64, note string) error {
	return s.scopedUpdate(ctx, id,
		`UPDATE tasks SET final_note = COALESCE(final_note, ?), status = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
		nullableString(note), string(StatusCompleted))
}

// SetAttachmentState moves the attachment state machine.
func (s *Store) SetAttachmentState(ctx context.Context, id int64, status AttachmentStatus) error {
	return s.scopedUpdate(ctx, id, `UPDATE tasks SET attachment_status = ?, updated_at = ? WHERE id = ?`, string(status))
}

// SetAttachmentResult stores parsed attachment markdown and marks the
// attachment done.
func (s *Store) SetAttachmentResult(ctx context.Context, id int64, content string) error {
	return s.scopedUpdate(ctx, id,
		`UPDATE tasks SET attachment_content = ?, attachment_status = ?, attachment_error = NULL, updated_at = ? WHERE id = ?`,
		nullableString(content), string(AttachmentDone))
}

// MarkAttachmentFailed records the attachment failure reason.
func (s *Store) MarkAttachmentFailed(ctx context.Context, id int64, reason string) error {
	return s.scopedUpdate(ctx, id,
		`UPDATE tasks SET attachment_status = ?, attachment_error = ?, updated_at = ? WHERE id = ?`,
		string(AttachmentFailed), nullableString(reason))
}

// MarkFailed moves a task to the failed terminal state with a reason.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.scopedUpdate(ctx, id,
		`UPDATE tasks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), nullableString(reason))
}

// FailInterrupted forces every task stranded in a non-terminal status,
// pending included, to failed. Run once at startup before new work is
// accepted; returns the number of tasks reset.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET status = ?, error_message = ?,
             attachment_status = CASE attachment_status
                 WHEN ? THEN ?
                 WHEN ? THEN ?
                 WHEN ? THEN ?
                 ELSE attachment_status
             END,
             updated_at = ?
         WHERE status NOT IN (?, ?)`,
		string(StatusFailed),
		InterruptedMessage,
		string(AttachmentPending), string(AttachmentFailed),
		string(AttachmentUploading), string(AttachmentFailed),
		string(AttachmentProcessing), string(AttachmentFailed),
		nowStamp(),
		string(StatusCompleted), string(StatusFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted tasks: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) scopedUpdate(ctx context.Context, id int64, query string, args ...any) error {
	args = append(args, nowStamp(), id)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d not found", id)
	}
	return nil
}
