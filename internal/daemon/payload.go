package daemon

import (
	"time"

	"notesmith/internal/task"
)

// taskPayload is the JSON view of a task returned by the API.
type taskPayload struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	SourceType       string `json:"source_type"`
	Status           string `json:"status"`
	OriginalFilePath string `json:"original_file_path,omitempty"`
	AudioFilePath    string `json:"audio_file_path,omitempty"`

	AttachmentPath    string `json:"attachment_path,omitempty"`
	AttachmentStatus  string `json:"attachment_status"`
	AttachmentContent string `json:"attachment_content,omitempty"`
	AttachmentError   string `json:"attachment_error,omitempty"`

	RawText      string `json:"raw_text,omitempty"`
	PolishedText string `json:"polished_text,omitempty"`
	FinalNote    string `json:"final_note,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type taskListResponse struct {
	Tasks []taskPayload `json:"tasks"`
}

type taskResponse struct {
	Task taskPayload `json:"task"`
}

type notePayload struct {
	TaskID int64  `json:"task_id"`
	Note   string `json:"note"`
}

type exportPayload struct {
	TaskID int64  `json:"task_id"`
	Path   string `json:"path"`
}

type healthPayload struct {
	Running      bool   `json:"running"`
	DBPath       string `json:"db_path"`
	LockFilePath string `json:"lock_file_path"`
	Total        int    `json:"total"`
	Pending      int    `json:"pending"`
	Processing   int    `json:"processing"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
}

func payloadFromTask(t *task.Task) taskPayload {
	return taskPayload{
		ID:                t.ID,
		Title:             t.Title,
		SourceType:        string(t.SourceType),
		Status:            string(t.Status),
		OriginalFilePath:  t.OriginalFilePath,
		AudioFilePath:     t.AudioFilePath,
		AttachmentPath:    t.AttachmentPath,
		AttachmentStatus:  string(t.AttachmentStatus),
		AttachmentContent: t.AttachmentContent,
		AttachmentError:   t.AttachmentError,
		RawText:           t.RawText,
		PolishedText:      t.PolishedText,
		FinalNote:         t.FinalNote,
		ErrorMessage:      t.ErrorMessage,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func payloadFromStatus(status Status) healthPayload {
	return healthPayload{
		Running:      status.Running,
		DBPath:       status.DBPath,
		LockFilePath: status.LockFilePath,
		Total:        status.Tasks.Total,
		Pending:      status.Tasks.Pending,
		Processing:   status.Tasks.Processing,
		Completed:    status.Tasks.Completed,
		Failed:       status.Tasks.Failed,
	}
}
