package services

import (
	"context"
	"fmt"
	"strings"
)

// Setting keys recognized by the credential resolver. Values stored under
// these keys take precedence over the static configuration file.
const (
	SettingTranscriptionAPIKey = "transcription_api_key"
	SettingLLMAPIKey           = "llm_api_key"
	SettingDocParseToken       = "docparse_token"
)

// SettingsReader exposes runtime overrides persisted alongside task state.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// CredentialResolver chooses between a persisted runtime override and the
// static configuration value for a given credential.
type CredentialResolver struct {
	settings SettingsReader
}

// NewCredentialResolver builds a resolver. A nil settings reader means only
// static fallbacks are consulted.
func NewCredentialResolver(settings SettingsReader) *CredentialResolver {
	return &CredentialResolver{settings: settings}
}

// Resolve returns the effective credential for key: the stored override when
// present and non-empty, otherwise the static fallback. An empty result is a
// configuration error.
func (r *CredentialResolver) Resolve(ctx context.Context, key, fallback string) (string, error) {
	if r != nil && r.settings != nil {
		value, ok, err := r.settings.GetSetting(ctx, key)
		if err != nil {
			return "", Wrap(ErrTransient, "credentials", key, "read runtime override", err)
		}
		if ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, nil
			}
		}
	}
	if trimmed := strings.TrimSpace(fallback); trimmed != "" {
		return trimmed, nil
	}
	return "", Wrap(ErrConfiguration, "credentials", key, fmt.Sprintf("no value configured for %s", key), nil)
}
