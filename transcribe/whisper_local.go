package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"videodocs/core"
	"videodocs/media"
)

// WhisperLocal shells out to a locally installed whisper CLI. Used as a
// fallback when no API key is configured.
type WhisperLocal struct {
	runner media.CommandRunner
	model  string
	binary string
}

func NewWhisperLocal(runner media.CommandRunner, model string) *WhisperLocal {
	if model == "" {
		model = "base"
	}
	return &WhisperLocal{runner: runner, model: model, binary: "whisper"}
}

func (w *WhisperLocal) Name() string { return "whisper-local" }

func (w *WhisperLocal) Available() bool {
	_, err := exec.LookPath(w.binary)
	return err == nil
}

func (w *WhisperLocal) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	outDir := filepath.Dir(audioPath)
	out, err := w.runner.Run(ctx, w.binary,
		audioPath,
		"--model", w.model,
		"--output_format", "json",
		"--output_dir", outDir)
	if err != nil {
		return nil, &core.TranscriptionError{Provider: w.Name(), Err: fmt.Errorf("%w: %s", err, string(out))}
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outDir, base+".json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, &core.TranscriptionError{Provider: w.Name(), Err: fmt.Errorf("reading whisper output: %w", err)}
	}

	var parsed struct {
		Text     string `json:"text"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &core.TranscriptionError{Provider: w.Name(), Err: fmt.Errorf("decoding whisper output: %w", err)}
	}

	segments := make([]core.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, core.TranscriptSegment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return &Result{Text: strings.TrimSpace(parsed.Text), Segments: segments}, nil
}
