package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"notesmith/internal/task"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect processing tasks",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *task.Store) error {
				var statuses []task.Status
				if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
					status, ok := task.ParseStatus(trimmed)
					if !ok {
						return fmt.Errorf("unknown status %q", trimmed)
					}
					statuses = append(statuses, status)
				}

				tasks, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks found")
					return nil
				}

				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(tasks))
				for _, t := range tasks {
					rows = append(rows, []string{
						strconv.FormatInt(t.ID, 10),
						t.Title,
						string(t.SourceType),
						colorStatus(t.Status, colorize),
						string(t.AttachmentStatus),
						t.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTaskTable(
					[]string{"ID", "Title", "Source", "Status", "Attachment", "Created"},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show tasks with this status")
	return cmd
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	var showNote bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			return ctx.withStore(func(store *task.Store) error {
				t, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if t == nil {
					return fmt.Errorf("task %d not found", id)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				printField(out, "ID", strconv.FormatInt(t.ID, 10))
				printField(out, "Title", t.Title)
				printField(out, "Source", string(t.SourceType))
				printField(out, "Status", colorStatus(t.Status, colorize))
				printField(out, "Created", t.CreatedAt.Local().Format(time.DateTime))
				printField(out, "Updated", t.UpdatedAt.Local().Format(time.DateTime))
				if t.OriginalFilePath != "" {
					printField(out, "File", t.OriginalFilePath)
				}
				if t.HasAttachment() {
					printField(out, "Attachment", t.AttachmentPath)
					printField(out, "Attachment status", string(t.AttachmentStatus))
					if t.AttachmentError != "" {
						printField(out, "Attachment error", t.AttachmentError)
					}
				}
				if t.ErrorMessage != "" {
					printField(out, "Error", t.ErrorMessage)
				}
				if showNote && strings.TrimSpace(t.FinalNote) != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, t.FinalNote)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showNote, "note", false, "Print the final note body")
	return cmd
}

func (c *commandContext) withStore(fn func(*task.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := task.Open(cfg)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func printField(out io.Writer, label, value string) {
	fmt.Fprintf(out, "  %-18s %s\n", label+":", value)
}

func colorStatus(status task.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	switch status {
	case task.StatusCompleted:
		return ansiGreen + string(status) + ansiReset
	case task.StatusFailed:
		return ansiRed + string(status) + ansiReset
	case task.StatusPending:
		return string(status)
	default:
		return ansiYellow + string(status) + ansiReset
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
