package task_test

import (
	"context"
	"fmt"
	"testing"

	"notesmith/internal/task"
	"notesmith/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created, err := store.NewMediaTask(ctx, task.SourceVideo, "Lecture 1", "/tmp/lecture1.mp4", "")
	if err != nil {
		t.Fatalf("NewMediaTask failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected task ID to be assigned")
	}
	if created.Status != task.StatusPending {
		t.Fatalf("expected pending status, got %s", created.Status)
	}
	if created.AttachmentStatus != task.AttachmentNone {
		t.Fatalf("expected no attachment, got %s", created.AttachmentStatus)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Title != "Lecture 1" {
		t.Fatalf("unexpected fetched task: %#v", fetched)
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	fetched, err := store.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched != nil {
		t.Fatalf("expected nil for missing task, got %#v", fetched)
	}
}

func TestNewMediaTaskWithAttachment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	created, err := store.NewMediaTask(context.Background(), task.SourceVideo, "", "/tmp/talk.mkv", "/tmp/slides.pdf")
	if err != nil {
		t.Fatalf("NewMediaTask failed: %v", err)
	}
	if created.Title != "talk" {
		t.Fatalf("expected title inferred from path, got %q", created.Title)
	}
	if created.AttachmentStatus != task.AttachmentPending {
		t.Fatalf("expected attachment pending, got %s", created.AttachmentStatus)
	}
	if created.AttachmentPath != "/tmp/slides.pdf" {
		t.Fatalf("unexpected attachment path %q", created.AttachmentPath)
	}
}

func TestNewMediaTaskRejectsNonMediaType(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.NewMediaTask(context.Background(), task.SourceText, "t", "/tmp/x", ""); err == nil {
		t.Fatal("expected error for text source type")
	}
}

func TestNewDocumentTaskSetsAttachmentToOriginal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	created, err := store.NewDocumentTask(context.Background(), "Paper", "/tmp/paper.pdf")
	if err != nil {
		t.Fatalf("NewDocumentTask failed: %v", err)
	}
	if created.AttachmentPath != created.OriginalFilePath {
		t.Fatalf("expected attachment path to mirror original, got %q vs %q",
			created.AttachmentPath, created.OriginalFilePath)
	}
	if created.AttachmentStatus != task.AttachmentPending {
		t.Fatalf("expected attachment pending, got %s", created.AttachmentStatus)
	}
}

func TestScopedWritesAreIndependent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.NewMediaTask(t, store, task.SourceVideo, "Scoped", "/tmp/scoped.mp4")

	if err := store.SetStatus(ctx, created.ID, task.StatusTranscribing); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := store.SetRawText(ctx, created.ID, "hello world"); err != nil {
		t.Fatalf("SetRawText failed: %v", err)
	}
	if err := store.SetAttachmentState(ctx, created.ID, task.AttachmentProcessing); err != nil {
		t.Fatalf("SetAttachmentState failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusTranscribing {
		t.Fatalf("expected transcribing, got %s", fetched.Status)
	}
	if fetched.RawText != "hello world" {
		t.Fatalf("expected raw text preserved, got %q", fetched.RawText)
	}
	if fetched.AttachmentStatus != task.AttachmentProcessing {
		t.Fatalf("expected attachment processing, got %s", fetched.AttachmentStatus)
	}
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	created := testsupport.NewTextTask(t, store, "T", "text")
	if err := store.SetStatus(context.Background(), created.ID, task.Status("bogus")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestScopedWriteMissingTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if err := store.SetStatus(context.Background(), 4242, task.StatusPolishing); err == nil {
		t.Fatal("expected error updating missing task")
	}
}

func TestCompleteWithNoteClearsError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.NewTextTask(t, store, "Done", "raw")
	if err := store.MarkFailed(ctx, created.ID, "previous failure"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if err := store.CompleteWithNote(ctx, created.ID, "# Note"); err != nil {
		t.Fatalf("CompleteWithNote failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %s", fetched.Status)
	}
	if fetched.FinalNote != "# Note" {
		t.Fatalf("unexpected final note %q", fetched.FinalNote)
	}
	if fetched.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", fetched.ErrorMessage)
	}
}

func TestCompleteWithDefaultNotePreservesExisting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.NewTextTask(t, store, "Edited", "raw")
	if err := store.SetFinalNote(ctx, created.ID, "# User edit"); err != nil {
		t.Fatalf("SetFinalNote failed: %v", err)
	}
	if err := store.CompleteWithDefaultNote(ctx, created.ID, "# Generated"); err != nil {
		t.Fatalf("CompleteWithDefaultNote failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %s", fetched.Status)
	}
	if fetched.FinalNote != "# User edit" {
		t.Fatalf("existing final note must survive completion, got %q", fetched.FinalNote)
	}

	fresh := testsupport.NewTextTask(t, store, "Fresh", "raw")
	if err := store.CompleteWithDefaultNote(ctx, fresh.ID, "# Generated"); err != nil {
		t.Fatalf("CompleteWithDefaultNote failed: %v", err)
	}
	fetched, err = store.GetByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.FinalNote != "# Generated" {
		t.Fatalf("expected note stored when none existed, got %q", fetched.FinalNote)
	}
}

func TestAttachmentFailureKeepsPrimaryState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created, err := store.NewMediaTask(ctx, task.SourceVideo, "Mixed", "/tmp/a.mp4", "/tmp/b.pdf")
	if err != nil {
		t.Fatalf("NewMediaTask failed: %v", err)
	}
	if err := store.SetStatus(ctx, created.ID, task.StatusPolishing); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := store.MarkAttachmentFailed(ctx, created.ID, "parse timeout"); err != nil {
		t.Fatalf("MarkAttachmentFailed failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusPolishing {
		t.Fatalf("attachment failure should not move primary status, got %s", fetched.Status)
	}
	if fetched.AttachmentStatus != task.AttachmentFailed {
		t.Fatalf("expected attachment failed, got %s", fetched.AttachmentStatus)
	}
	if fetched.AttachmentError != "parse timeout" {
		t.Fatalf("unexpected attachment error %q", fetched.AttachmentError)
	}
}

func TestFailInterruptedResetsInFlightTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	inFlight := []task.Status{
		task.StatusProcessingAudio,
		task.StatusTranscribing,
		task.StatusAttachmentParsing,
		task.StatusPolishing,
		task.StatusFusion,
	}
	var inFlightIDs []int64
	for i, status := range inFlight {
		created, err := store.NewMediaTask(ctx, task.SourceVideo, fmt.Sprintf("Stuck-%d", i), "/tmp/s.mp4", "/tmp/s.pdf")
		if err != nil {
			t.Fatalf("NewMediaTask failed: %v", err)
		}
		if err := store.SetStatus(ctx, created.ID, status); err != nil {
			t.Fatalf("SetStatus failed: %v", err)
		}
		if err := store.SetAttachmentState(ctx, created.ID, task.AttachmentProcessing); err != nil {
			t.Fatalf("SetAttachmentState failed: %v", err)
		}
		inFlightIDs = append(inFlightIDs, created.ID)
	}

	pending := testsupport.NewTextTask(t, store, "Pending", "raw")
	completed := testsupport.NewTextTask(t, store, "Completed", "raw")
	if err := store.CompleteWithNote(ctx, completed.ID, "# Done"); err != nil {
		t.Fatalf("CompleteWithNote failed: %v", err)
	}

	reset, err := store.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if reset != int64(len(inFlight))+1 {
		t.Fatalf("expected %d tasks reset, got %d", len(inFlight)+1, reset)
	}

	for _, id := range inFlightIDs {
		fetched, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if fetched.Status != task.StatusFailed {
			t.Fatalf("expected failed, got %s", fetched.Status)
		}
		if fetched.ErrorMessage != task.InterruptedMessage {
			t.Fatalf("unexpected error message %q", fetched.ErrorMessage)
		}
		if fetched.AttachmentStatus != task.AttachmentFailed {
			t.Fatalf("expected attachment failed, got %s", fetched.AttachmentStatus)
		}
	}

	fetchedPending, err := store.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetchedPending.Status != task.StatusFailed {
		t.Fatalf("pending task should also be failed, got %s", fetchedPending.Status)
	}
	if fetchedPending.ErrorMessage != task.InterruptedMessage {
		t.Fatalf("unexpected error message %q", fetchedPending.ErrorMessage)
	}
	fetchedCompleted, err := store.GetByID(ctx, completed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetchedCompleted.Status != task.StatusCompleted {
		t.Fatalf("completed task should be untouched, got %s", fetchedCompleted.Status)
	}
}

func TestFailInterruptedIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.NewTextTask(t, store, "Once", "raw")
	if err := store.SetStatus(ctx, created.ID, task.StatusPolishing); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	first, err := store.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected 1 reset, got %d", first)
	}
	second, err := store.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if second != 0 {
		t.Fatalf("expected second run to reset nothing, got %d", second)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewTextTask(t, store, "A", "a")
	second := testsupport.NewTextTask(t, store, "B", "b")
	if err := store.MarkFailed(ctx, first.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}

	failed, err := store.List(ctx, task.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != first.ID {
		t.Fatalf("unexpected failed list: %#v", failed)
	}
	_ = second
}

func TestRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.NewTextTask(t, store, "Gone", "raw")
	removed, err := store.Remove(ctx, created.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	removed, err = store.Remove(ctx, created.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed {
		t.Fatal("expected second removal to be a no-op")
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewTextTask(t, store, "A", "a")
	b := testsupport.NewTextTask(t, store, "B", "b")
	testsupport.NewTextTask(t, store, "C", "c")
	if err := store.SetStatus(ctx, a.ID, task.StatusFusion); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := store.CompleteWithNote(ctx, b.ID, "# B"); err != nil {
		t.Fatalf("CompleteWithNote failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Processing != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, ok, err := store.GetSetting(ctx, "llm_api_key"); err != nil || ok {
		t.Fatalf("expected missing setting, ok=%v err=%v", ok, err)
	}
	if err := store.SetSetting(ctx, "llm_api_key", "override"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	value, ok, err := store.GetSetting(ctx, "llm_api_key")
	if err != nil || !ok || value != "override" {
		t.Fatalf("unexpected setting: %q ok=%v err=%v", value, ok, err)
	}
	if err := store.SetSetting(ctx, "llm_api_key", "replaced"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	value, _, err = store.GetSetting(ctx, "llm_api_key")
	if err != nil || value != "replaced" {
		t.Fatalf("expected replacement, got %q err=%v", value, err)
	}
	if err := store.DeleteSetting(ctx, "llm_api_key"); err != nil {
		t.Fatalf("DeleteSetting failed: %v", err)
	}
	if _, ok, _ := store.GetSetting(ctx, "llm_api_key"); ok {
		t.Fatal("expected setting deleted")
	}
}

func TestSeedDefaultTemplate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.SeedDefaultTemplate(ctx); err != nil {
		t.Fatalf("SeedDefaultTemplate failed: %v", err)
	}
	if err := store.SeedDefaultTemplate(ctx); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}

	templates, err := store.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(templates) != 1 {
		t.Fatalf("expected a single seeded template, got %d", len(templates))
	}

	def, err := store.DefaultTemplate(ctx)
	if err != nil {
		t.Fatalf("DefaultTemplate failed: %v", err)
	}
	if def == nil || !def.IsDefault || def.Name != task.DefaultTemplateName {
		t.Fatalf("unexpected default template: %#v", def)
	}

	byID, err := store.GetTemplate(ctx, def.ID)
	if err != nil || byID == nil || byID.ID != def.ID {
		t.Fatalf("GetTemplate mismatch: %#v err=%v", byID, err)
	}
}

func TestParseHelpers(t *testing.T) {
	if status, ok := task.ParseStatus(" Polishing "); !ok || status != task.StatusPolishing {
		t.Fatalf("unexpected parse result: %v %v", status, ok)
	}
	if _, ok := task.ParseStatus("unknown"); ok {
		t.Fatal("expected unknown status to fail")
	}
	if st, ok := task.ParseSourceType("VIDEO"); !ok || st != task.SourceVideo {
		t.Fatalf("unexpected source type parse: %v %v", st, ok)
	}
	if !task.StatusCompleted.IsTerminal() || task.StatusFusion.IsTerminal() {
		t.Fatal("terminal classification incorrect")
	}
}
