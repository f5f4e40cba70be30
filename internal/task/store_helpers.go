package task

import (
	"database/sql"
	"errors"
	"time"
)

const taskColumns = "id, title, source_type, status, original_file_path, audio_file_path, attachment_path, attachment_status, attachment_content, attachment_error, raw_text, polished_text, final_note, error_message, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id                int64
		title             sql.NullString
		sourceType        string
		statusStr         string
		originalFilePath  sql.NullString
		audioFilePath     sql.NullString
		attachmentPath    sql.NullString
		attachmentStatus  sql.NullString
		attachmentContent sql.NullString
		attachmentError   sql.NullString
		rawText           sql.NullString
		polishedText      sql.NullString
		finalNote         sql.NullString
		errorMessage      sql.NullString
		createdRaw        sql.NullString
		updatedRaw        sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&sourceType,
		&statusStr,
		&originalFilePath,
		&audioFilePath,
		&attachmentPath,
		&attachmentStatus,
		&attachmentContent,
		&attachmentError,
		&rawText,
		&polishedText,
		&finalNote,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	t := &Task{
		ID:                id,
		Title:             title.String,
		SourceType:        SourceType(sourceType),
		Status:            Status(statusStr),
		OriginalFilePath:  originalFilePath.String,
		AudioFilePath:     audioFilePath.String,
		AttachmentPath:    attachmentPath.String,
		AttachmentStatus:  AttachmentNone,
		AttachmentContent: attachmentContent.String,
		AttachmentError:   attachmentError.String,
		RawText:           rawText.String,
		PolishedText:      polishedText.String,
		FinalNote:         finalNote.String,
		ErrorMessage:      errorMessage.String,
	}
	if attachmentStatus.Valid && attachmentStatus.String != "" {
		t.AttachmentStatus = AttachmentStatus(attachmentStatus.String)
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		t.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		t.UpdatedAt = updated
	}
	return t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
