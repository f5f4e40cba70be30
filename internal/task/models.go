package task

import (
	"strings"
	"time"
)

// Status represents the primary lifecycle of a task.
type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessingAudio   Status = "processing_audio"
	StatusTranscribing      Status = "transcribing"
	StatusAttachmentParsing Status = "attachment_parsing"
	StatusPolishing         Status = "polishing"
	StatusFusion            Status = "fusion"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// InterruptedMessage is the error message stamped on tasks found mid-flight
// after a service restart.
const InterruptedMessage = "Processing interrupted by service restart; retry the task manually."

var allStatuses = []Status{
	StatusPending,
	StatusProcessingAudio,
	StatusTranscribing,
	StatusAttachmentParsing,
	StatusPolishing,
	StatusFusion,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// SourceType identifies what kind of input produced a task.
type SourceType string

const (
	SourceVideo    SourceType = "video"
	SourceAudio    SourceType = "audio"
	SourceText     SourceType = "text"
	SourceDocument SourceType = "document"
)

var sourceTypeSet = map[SourceType]struct{}{
	SourceVideo:    {},
	SourceAudio:    {},
	SourceText:     {},
	SourceDocument: {},
}

// AttachmentStatus tracks the attachment sub-pipeline independently of the
// primary status.
type AttachmentStatus string

const (
	AttachmentNone       AttachmentStatus = "NONE"
	AttachmentPending    AttachmentStatus = "PENDING"
	AttachmentUploading  AttachmentStatus = "UPLOADING"
	AttachmentProcessing AttachmentStatus = "PROCESSING"
	AttachmentDone       AttachmentStatus = "DONE"
	AttachmentFailed     AttachmentStatus = "FAILED"
)

// Task represents a note-processing task persisted in SQLite.
type Task struct {
	ID               int64
	Title            string
	SourceType       SourceType
	Status           Status
	OriginalFilePath string
	AudioFilePath    string

	AttachmentPath    string
	AttachmentStatus  AttachmentStatus
	AttachmentContent string
	AttachmentError   string

	RawText      string
	PolishedText string
	FinalNote    string
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats aggregates task counts per key lifecycle states.
type Stats struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// NoteTemplate is a stored prompt used for on-demand note generation.
type NoteTemplate struct {
	ID            int64
	Name          string
	PromptContent string
	IsDefault     bool
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseSourceType converts a string into a known SourceType.
func ParseSourceType(value string) (SourceType, bool) {
	normalized := SourceType(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := sourceTypeSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the workflow.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsProcessing reports whether the task is mid-flight.
func (t Task) IsProcessing() bool {
	return !t.Status.IsTerminal() && t.Status != StatusPending
}

// HasAudio reports whether the task's source carries an audio track.
func (t Task) HasAudio() bool {
	return t.SourceType == SourceVideo || t.SourceType == SourceAudio
}

// HasAttachment reports whether a document attachment needs parsing.
func (t Task) HasAttachment() bool {
	return t.AttachmentPath != "" && t.AttachmentStatus != AttachmentNone
}
