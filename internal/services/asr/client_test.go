package asr_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"notesmith/internal/services"
	"notesmith/internal/services/asr"
	"notesmith/internal/testsupport"
)

func staticCredential(token string) asr.CredentialFunc {
	return func(context.Context) (string, error) { return token, nil }
}

func fastRetry(attempts int) services.RetryPolicy {
	return services.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Sleeper:     func(time.Duration) {},
	}
}

func TestTranscribeSendsMultipartRequest(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "speech.wav")
	testsupport.WriteFile(t, audio, 128)

	var gotAuth, gotModel, gotFilename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		if file, header, err := r.FormFile("file"); err == nil {
			gotFilename = header.Filename
			file.Close()
		} else {
			t.Errorf("missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  hello from audio  "}`))
	}))
	defer server.Close()

	client := asr.NewClient(
		asr.Config{BaseURL: server.URL, Model: "sense-voice"},
		staticCredential("secret"),
		asr.WithRetryPolicy(fastRetry(1)),
	)

	text, err := client.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello from audio" {
		t.Fatalf("unexpected transcript %q", text)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotModel != "sense-voice" {
		t.Fatalf("unexpected model %q", gotModel)
	}
	if gotFilename != "speech.wav" {
		t.Fatalf("unexpected filename %q", gotFilename)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "speech.wav")
	testsupport.WriteFile(t, audio, 32)

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"text": "recovered"}`))
	}))
	defer server.Close()

	client := asr.NewClient(
		asr.Config{BaseURL: server.URL, Model: "m"},
		staticCredential("k"),
		asr.WithRetryPolicy(fastRetry(3)),
	)

	text, err := client.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "recovered" || calls != 3 {
		t.Fatalf("expected recovery on third call, got %q after %d calls", text, calls)
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "speech.wav")
	testsupport.WriteFile(t, audio, 32)

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := asr.NewClient(
		asr.Config{BaseURL: server.URL, Model: "m"},
		staticCredential("bad"),
		asr.WithRetryPolicy(fastRetry(5)),
	)

	_, err := client.Transcribe(context.Background(), audio)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestTranscribeMissingAudio(t *testing.T) {
	client := asr.NewClient(
		asr.Config{BaseURL: "http://127.0.0.1:0", Model: "m"},
		staticCredential("k"),
		asr.WithRetryPolicy(fastRetry(1)),
	)
	_, err := client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "absent.wav"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
