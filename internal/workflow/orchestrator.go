package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"notesmith/internal/config"
	"notesmith/internal/logging"
	"notesmith/internal/services"
	"notesmith/internal/task"
)

// AudioExtractor strips a transcription-ready audio track from a media file.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, source, outDir string) (string, error)
}

// Transcriber converts extracted audio into raw text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// NoteWriter performs the LLM-backed text operations.
type NoteWriter interface {
	PolishText(ctx context.Context, transcript string) (string, error)
	PolishDocument(ctx context.Context, markdown string) (string, error)
	FuseNotes(ctx context.Context, document, transcript string) (string, error)
	GenerateNote(ctx context.Context, templatePrompt, material string) (string, error)
}

// DocumentParser extracts Markdown from a document attachment, reporting
// protocol phases through onPhase.
type DocumentParser interface {
	Parse(ctx context.Context, path string, onPhase func(phase string)) (string, error)
}

// Providers bundles the capability implementations the orchestrator drives.
type Providers struct {
	Extractor   AudioExtractor
	Transcriber Transcriber
	Notes       NoteWriter
	Parser      DocumentParser
}

// ErrTaskBusy is returned when a task already has a run in flight.
var ErrTaskBusy = errors.New("task already being processed")

// Orchestrator executes the note-processing workflow for individual tasks.
// All cross-task coordination state lives here; there are no package globals.
type Orchestrator struct {
	cfg       *config.Config
	store     *task.Store
	logger    *slog.Logger
	providers Providers

	transcodeGate *Gate
	apiGate       *Gate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// New constructs an orchestrator with gates sized from configuration.
func New(cfg *config.Config, store *task.Store, logger *slog.Logger, providers Providers) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:           cfg,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		providers:     providers,
		transcodeGate: NewGate(cfg.Workflow.MaxTranscodeWorkers),
		apiGate:       NewGate(cfg.Workflow.MaxAPIWorkers),
		ctx:           ctx,
		cancel:        cancel,
		inFlight:      make(map[int64]struct{}),
	}
}

// Enqueue starts processing a task in the background. It returns false when a
// run for the same task is already in flight.
func (o *Orchestrator) Enqueue(id int64) bool {
	if !o.begin(id) {
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.end(id)
		if err := o.process(o.ctx, id); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("task processing failed",
				logging.Int64(logging.FieldTaskID, id),
				logging.Error(err))
		}
	}()
	return true
}

// Process runs the workflow for a task synchronously.
func (o *Orchestrator) Process(ctx context.Context, id int64) error {
	if !o.begin(id) {
		return fmt.Errorf("task %d: %w", id, ErrTaskBusy)
	}
	defer o.end(id)
	return o.process(ctx, id)
}

// Shutdown stops accepting background work and waits for in-flight runs.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.wg.Wait()
}

// Reconcile fails every task stranded mid-flight by a previous run of the
// service. Call once at startup before accepting new work.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	reset, err := o.store.FailInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("reconcile interrupted tasks: %w", err)
	}
	if reset > 0 {
		o.logger.Warn("failed interrupted tasks from previous run", logging.Int64("count", reset))
	}
	return nil
}

// GenerateNote renders a task's material through a stored template and saves
// the result as the final note.
func (o *Orchestrator) GenerateNote(ctx context.Context, id, templateID int64) (string, error) {
	t, err := o.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", services.Wrap(services.ErrNotFound, "note", "", fmt.Sprintf("task %d", id), nil)
	}

	var tmpl *task.NoteTemplate
	if templateID > 0 {
		tmpl, err = o.store.GetTemplate(ctx, templateID)
	} else {
		tmpl, err = o.store.DefaultTemplate(ctx)
	}
	if err != nil {
		return "", err
	}
	if tmpl == nil {
		return "", services.Wrap(services.ErrNotFound, "note", "", "note template", nil)
	}

	material := strings.TrimSpace(t.PolishedText)
	if material == "" {
		material = strings.TrimSpace(t.RawText)
	}
	if content := strings.TrimSpace(t.AttachmentContent); content != "" {
		if material == "" {
			material = content
		} else {
			material = material + "\n\n## Attachment\n\n" + content
		}
	}
	if material == "" {
		return "", services.Wrap(services.ErrValidation, "note", "", "task has no material to summarize", nil)
	}

	release, err := o.apiGate.Acquire(ctx)
	if err != nil {
		return "", err
	}
	note, err := o.providers.Notes.GenerateNote(ctx, tmpl.PromptContent, material)
	release()
	if err != nil {
		return "", err
	}
	if err := o.store.SetFinalNote(ctx, id, note); err != nil {
		return "", err
	}
	return note, nil
}

func (o *Orchestrator) begin(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inFlight[id]; running {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) end(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, id)
}

func requestContext(ctx context.Context, id int64) context.Context {
	ctx = services.WithTaskID(ctx, id)
	return services.WithRequestID(ctx, uuid.NewString())
}
