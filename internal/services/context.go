package services

import "context"

type contextKey string

const (
	taskIDKey    contextKey = "task_id"
	stageKey     contextKey = "stage"
	branchKey    contextKey = "branch"
	requestIDKey contextKey = "request_id"
)

// WithTaskID attaches a task identifier to the context for logging and tracing.
func WithTaskID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext returns the task identifier stored in the context, if any.
func TaskIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(taskIDKey).(int64)
	return id, ok
}

// WithStage records the current workflow stage on the context. Blank stages
// are ignored.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the workflow stage stored in the context, if any.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageKey).(string)
	return stage, ok
}

// WithBranch records the sub-pipeline branch (audio or attachment) on the
// context. Blank branches are ignored.
func WithBranch(ctx context.Context, branch string) context.Context {
	if branch == "" {
		return ctx
	}
	return context.WithValue(ctx, branchKey, branch)
}

// BranchFromContext returns the sub-pipeline branch stored in the context, if any.
func BranchFromContext(ctx context.Context) (string, bool) {
	branch, ok := ctx.Value(branchKey).(string)
	return branch, ok
}

// WithRequestID attaches a correlation identifier for outbound service calls.
// Blank identifiers are ignored.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation identifier stored in the context, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
