package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"notesmith/internal/services"
)

// Extractor converts uploaded media into mono 16kHz WAV audio suitable for
// transcription.
type Extractor struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewExtractor creates an audio extractor backed by the given ffmpeg binary.
func NewExtractor(binary string) *Extractor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Extractor{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *Extractor) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	e.commandRunner = runner
}

// ExtractAudio strips the audio track from source into outDir, returning the
// path of the generated WAV file.
func (e *Extractor) ExtractAudio(ctx context.Context, source, outDir string) (string, error) {
	if source == "" {
		return "", services.Wrap(services.ErrValidation, "audio", "extract", "source path required", nil)
	}
	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrNotFound, "audio", "extract", fmt.Sprintf("source file %s missing", source), nil)
		}
		return "", services.Wrap(services.ErrTransient, "audio", "extract", "stat source", err)
	}
	if outDir == "" {
		outDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "audio", "extract", "ensure output dir", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	dest := filepath.Join(outDir, baseName+".wav")

	args := buildExtractArgs(source, dest)
	if err := e.run(ctx, e.binary, args...); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "audio", "extract", "ffmpeg failed", err)
	}
	return dest, nil
}

func buildExtractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

func (e *Extractor) run(ctx context.Context, name string, args ...string) error {
	if e.commandRunner != nil {
		return e.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
