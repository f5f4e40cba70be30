package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"notesmith/internal/services"
)

func TestWrapIncludesDetailAndMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "audio", "extract", "ffmpeg exited", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatal("expected marker to survive wrapping")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected cause to survive wrapping")
	}
	for _, fragment := range []string{"audio", "extract", "ffmpeg exited", "boom"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("error %q missing %q", err.Error(), fragment)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "stage", "", "", errors.New("x"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected nil marker to default to transient")
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{services.Wrap(services.ErrValidation, "s", "", "", nil), false},
		{services.Wrap(services.ErrConfiguration, "s", "", "", nil), false},
		{services.Wrap(services.ErrNotFound, "s", "", "", nil), false},
		{services.Wrap(services.ErrTimeout, "s", "", "", nil), true},
		{services.Wrap(services.ErrTransient, "s", "", "", nil), true},
		{errors.New("plain"), true},
		{nil, false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestRetryPolicyRetriesTransient(t *testing.T) {
	policy := services.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		Sleeper:     func(time.Duration) {},
	}

	calls := 0
	err := policy.Do(context.Background(), "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrTransient, "s", "", "", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicyStopsOnPermanent(t *testing.T) {
	policy := services.RetryPolicy{MaxAttempts: 5, Sleeper: func(time.Duration) {}}

	calls := 0
	err := policy.Do(context.Background(), "invalid", func(context.Context) error {
		calls++
		return services.Wrap(services.ErrValidation, "s", "", "bad input", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	policy := services.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		Sleeper:     func(time.Duration) {},
	}

	calls := 0
	err := policy.Do(context.Background(), "always-down", func(context.Context) error {
		calls++
		return services.Wrap(services.ErrTimeout, "s", "", "", nil)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if !strings.Contains(err.Error(), "failed after 2 attempts") {
		t.Fatalf("expected attempt count in error, got %q", err.Error())
	}
}

func TestRetryPolicyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := services.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Sleeper:     func(time.Duration) { cancel() },
	}

	err := policy.Do(ctx, "cancelled", func(context.Context) error {
		return services.Wrap(services.ErrTransient, "s", "", "", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeSettings struct {
	values map[string]string
	err    error
}

func (f *fakeSettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	value, ok := f.values[key]
	return value, ok, nil
}

func TestCredentialResolverPrefersOverride(t *testing.T) {
	resolver := services.NewCredentialResolver(&fakeSettings{
		values: map[string]string{services.SettingLLMAPIKey: "override"},
	})

	got, err := resolver.Resolve(context.Background(), services.SettingLLMAPIKey, "static")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != "override" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestCredentialResolverFallsBack(t *testing.T) {
	resolver := services.NewCredentialResolver(&fakeSettings{
		values: map[string]string{services.SettingLLMAPIKey: "  "},
	})

	got, err := resolver.Resolve(context.Background(), services.SettingLLMAPIKey, "static")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != "static" {
		t.Fatalf("expected static fallback, got %q", got)
	}
}

func TestCredentialResolverMissingEverything(t *testing.T) {
	resolver := services.NewCredentialResolver(nil)
	_, err := resolver.Resolve(context.Background(), services.SettingDocParseToken, "")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
