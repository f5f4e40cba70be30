package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultTemplateName identifies the seeded note template.
const DefaultTemplateName = "Structured summary"

const defaultTemplatePrompt = `You are an expert note-taker. Rewrite the provided material into a well-structured
Markdown note: open with a one-paragraph summary, follow with the key points as
a bulleted outline, and close with any action items or open questions. Preserve
every substantive fact; do not invent content.`

// GetSetting returns a runtime override value by key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores or replaces a runtime override value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("setting key is empty")
	}
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO system_config (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a runtime override, restoring the static fallback.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM system_config WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	return nil
}

// SeedDefaultTemplate inserts the built-in note template when none exists.
func (s *Store) SeedDefaultTemplate(ctx context.Context) error {
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO note_templates (name, prompt_content, is_default)
         SELECT ?, ?, 1
         WHERE NOT EXISTS (SELECT 1 FROM note_templates WHERE is_default = 1)`,
		DefaultTemplateName, defaultTemplatePrompt,
	); err != nil {
		return fmt.Errorf("seed default template: %w", err)
	}
	return nil
}

// GetTemplate fetches a note template by identifier. A missing row returns
// (nil, nil).
func (s *Store) GetTemplate(ctx context.Context, id int64) (*NoteTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, prompt_content, is_default FROM note_templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// DefaultTemplate fetches the default note template. A missing row returns
// (nil, nil).
func (s *Store) DefaultTemplate(ctx context.Context) (*NoteTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, prompt_content, is_default FROM note_templates WHERE is_default = 1 ORDER BY id LIMIT 1`)
	return scanTemplate(row)
}

// ListTemplates returns all note templates ordered by identifier.
func (s *Store) ListTemplates(ctx context.Context) ([]*NoteTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, prompt_content, is_default FROM note_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*NoteTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

func scanTemplate(scanner interface{ Scan(dest ...any) error }) (*NoteTemplate, error) {
	var (
		id        int64
		name      string
		prompt    string
		isDefault int
	)
	if err := scanner.Scan(&id, &name, &prompt, &isDefault); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &NoteTemplate{ID: id, Name: name, PromptContent: prompt, IsDefault: isDefault != 0}, nil
}
