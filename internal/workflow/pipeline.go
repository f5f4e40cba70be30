package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"notesmith/internal/logging"
	"notesmith/internal/services"
	"notesmith/internal/services/docparse"
	"notesmith/internal/task"
)

func (o *Orchestrator) process(ctx context.Context, id int64) error {
	ctx = requestContext(ctx, id)
	logger := logging.WithContext(ctx, o.logger)

	snapshot, err := o.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "", fmt.Sprintf("task %d", id), nil)
	}
	if err := o.store.ClearError(ctx, id); err != nil {
		return err
	}

	logger.Info("task processing started",
		logging.String(logging.FieldEventType, "task_start"),
		logging.String("source_type", string(snapshot.SourceType)),
		logging.String("title", strings.TrimSpace(snapshot.Title)))

	switch snapshot.SourceType {
	case task.SourceText:
		err = o.processText(ctx, logger, snapshot)
	case task.SourceDocument:
		err = o.processDocument(ctx, logger, snapshot)
	case task.SourceVideo, task.SourceAudio:
		err = o.processMedia(ctx, logger, snapshot)
	default:
		err = services.Wrap(services.ErrValidation, "workflow", "",
			fmt.Sprintf("unknown source type %q", snapshot.SourceType), nil)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("task processing interrupted by shutdown")
			return err
		}
		logger.Error("task failed",
			logging.String(logging.FieldEventType, "task_failure"),
			logging.Error(err))
		if markErr := o.store.MarkFailed(ctx, id, err.Error()); markErr != nil {
			logger.Error("failed to persist task failure", logging.Error(markErr))
		}
		return err
	}

	logger.Info("task completed", logging.String(logging.FieldEventType, "task_complete"))
	return nil
}

// processText polishes pasted text straight into the final note. Empty input
// short-circuits to an empty result and still completes.
func (o *Orchestrator) processText(ctx context.Context, logger *slog.Logger, t *task.Task) error {
	if strings.TrimSpace(t.RawText) == "" {
		return o.store.CompleteWithDefaultNote(ctx, t.ID, "")
	}
	if err := o.enterStage(ctx, logger, t.ID, task.StatusPolishing); err != nil {
		return err
	}
	polished, err := o.withAPIGate(ctx, func(ctx context.Context) (string, error) {
		return o.providers.Notes.PolishText(ctx, t.RawText)
	})
	if err != nil {
		return err
	}
	if err := o.store.SetPolishedText(ctx, t.ID, polished); err != nil {
		return err
	}
	return o.store.CompleteWithDefaultNote(ctx, t.ID, polished)
}

// processDocument parses the uploaded document and polishes the extracted
// Markdown. The attachment state machine drives the primary status in
// lockstep, and any attachment failure is fatal.
func (o *Orchestrator) processDocument(ctx context.Context, logger *slog.Logger, t *task.Task) error {
	if err := o.enterStage(ctx, logger, t.ID, task.StatusAttachmentParsing); err != nil {
		return err
	}
	content, err := o.parseAttachment(ctx, logger, t)
	if err != nil {
		return err
	}

	if err := o.enterStage(ctx, logger, t.ID, task.StatusPolishing); err != nil {
		return err
	}
	polished, err := o.withAPIGate(ctx, func(ctx context.Context) (string, error) {
		return o.providers.Notes.PolishDocument(ctx, content)
	})
	if err != nil {
		return err
	}
	if err := o.store.SetPolishedText(ctx, t.ID, polished); err != nil {
		return err
	}
	return o.store.CompleteWithDefaultNote(ctx, t.ID, polished)
}

// processMedia runs the audio and attachment sub-pipelines concurrently. An
// audio failure is fatal; an attachment failure degrades the final note.
func (o *Orchestrator) processMedia(ctx context.Context, logger *slog.Logger, t *task.Task) error {
	hasAttachment := t.HasAttachment()

	var (
		wg         sync.WaitGroup
		polished   string
		raw        string
		audioErr   error
		attContent string
		attErr     error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		polished, raw, audioErr = o.processAudio(services.WithBranch(ctx, "audio"), logger, t)
	}()

	if hasAttachment {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attCtx := services.WithBranch(ctx, "attachment")
			attContent, attErr = o.parseAttachment(attCtx, logger, t)
		}()
	}
	wg.Wait()

	if audioErr != nil {
		return audioErr
	}

	switch {
	case hasAttachment && attErr != nil:
		if errors.Is(attErr, context.Canceled) {
			return attErr
		}
		logger.Warn("attachment degraded the note",
			logging.String(logging.FieldEventType, "attachment_degraded"),
			logging.Error(attErr))
		base := firstNonEmpty(t.FinalNote, polished, raw)
		return o.store.CompleteWithNote(ctx, t.ID, degradeNote(base, attErr))
	case hasAttachment && strings.TrimSpace(attContent) != "":
		if err := o.enterStage(ctx, logger, t.ID, task.StatusFusion); err != nil {
			return err
		}
		fused, err := o.withAPIGate(ctx, func(ctx context.Context) (string, error) {
			return o.providers.Notes.FuseNotes(ctx, attContent, polished)
		})
		if err != nil {
			return err
		}
		return o.store.CompleteWithNote(ctx, t.ID, fused)
	default:
		return o.store.CompleteWithDefaultNote(ctx, t.ID, polished)
	}
}

// processAudio runs transcribe and polish, moving the primary status through
// each stage. VIDEO sources transcode first; AUDIO sources feed the original
// file to transcription directly and never enter the transcode stage.
func (o *Orchestrator) processAudio(ctx context.Context, logger *slog.Logger, t *task.Task) (polished, raw string, err error) {
	audioPath := t.OriginalFilePath
	if t.SourceType == task.SourceVideo {
		if err := o.enterStage(ctx, logger, t.ID, task.StatusProcessingAudio); err != nil {
			return "", "", err
		}
		audioDir := filepath.Join(o.cfg.Paths.DataDir, "audio")
		release, err := o.transcodeGate.Acquire(ctx)
		if err != nil {
			return "", "", err
		}
		audioPath, err = o.providers.Extractor.ExtractAudio(ctx, t.OriginalFilePath, audioDir)
		release()
		if err != nil {
			return "", "", err
		}
	}
	if err := o.store.SetAudioFilePath(ctx, t.ID, audioPath); err != nil {
		return "", "", err
	}

	if err := o.enterStage(ctx, logger, t.ID, task.StatusTranscribing); err != nil {
		return "", "", err
	}
	raw, err = o.withAPIGate(ctx, func(ctx context.Context) (string, error) {
		return o.providers.Transcriber.Transcribe(ctx, audioPath)
	})
	if err != nil {
		return "", "", err
	}
	if err := o.store.SetRawText(ctx, t.ID, raw); err != nil {
		return "", "", err
	}

	if err := o.enterStage(ctx, logger, t.ID, task.StatusPolishing); err != nil {
		return "", "", err
	}
	polished, err = o.withAPIGate(ctx, func(ctx context.Context) (string, error) {
		return o.providers.Notes.PolishText(ctx, raw)
	})
	if err != nil {
		return "", "", err
	}
	if err := o.store.SetPolishedText(ctx, t.ID, polished); err != nil {
		return "", "", err
	}
	return polished, raw, nil
}

// parseAttachment drives the attachment state machine around the parser
// call. The returned error reflects the parse failure; the attachment row is
// already marked failed when it fires.
func (o *Orchestrator) parseAttachment(ctx context.Context, logger *slog.Logger, t *task.Task) (string, error) {
	ctx = services.WithStage(ctx, string(task.StatusAttachmentParsing))
	attLogger := logging.WithContext(ctx, logger)
	attLogger.Info("attachment parsing started", logging.String(logging.FieldEventType, "stage_start"))

	onPhase := func(phase string) {
		var state task.AttachmentStatus
		switch phase {
		case docparse.PhaseUploading:
			state = task.AttachmentUploading
		case docparse.PhaseProcessing:
			state = task.AttachmentProcessing
		default:
			return
		}
		if err := o.store.SetAttachmentState(ctx, t.ID, state); err != nil {
			attLogger.Error("failed to persist attachment state", logging.Error(err))
		}
	}

	content, err := func() (string, error) {
		release, acquireErr := o.apiGate.Acquire(ctx)
		if acquireErr != nil {
			return "", acquireErr
		}
		defer release()
		return o.providers.Parser.Parse(ctx, t.AttachmentPath, onPhase)
	}()
	if err != nil {
		if markErr := o.store.MarkAttachmentFailed(ctx, t.ID, err.Error()); markErr != nil && !errors.Is(err, context.Canceled) {
			attLogger.Error("failed to persist attachment failure", logging.Error(markErr))
		}
		return "", err
	}

	if err := o.store.SetAttachmentResult(ctx, t.ID, content); err != nil {
		return "", err
	}
	attLogger.Info("attachment parsing finished", logging.String(logging.FieldEventType, "stage_complete"))
	return content, nil
}

func (o *Orchestrator) enterStage(ctx context.Context, logger *slog.Logger, id int64, status task.Status) error {
	if err := o.store.SetStatus(ctx, id, status); err != nil {
		return err
	}
	logging.WithContext(services.WithStage(ctx, string(status)), logger).Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"))
	return nil
}

func (o *Orchestrator) withAPIGate(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	release, err := o.apiGate.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	return fn(ctx)
}

// degradeNote appends the attachment failure to the best text the task still
// has. Callers pick base via firstNonEmpty so a raw transcript survives even
// when polish produced nothing.
func degradeNote(base string, attErr error) string {
	warning := "> ⚠️ Attachment processing failed: " + strings.TrimSpace(attErr.Error())
	if strings.TrimSpace(base) == "" {
		return warning
	}
	return base + "\n\n" + warning
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}
