package transcribe

import (
	"context"
	"fmt"

	"videodocs/core"
)

// Mock produces a placeholder transcript sized to the audio duration.
// It keeps the pipeline runnable on machines with no speech backend.
type Mock struct {
	// DurationOf reports the audio duration; injectable for tests.
	DurationOf func(ctx context.Context, audioPath string) (float64, error)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Available() bool { return true }

func (m *Mock) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	duration := 30.0
	if m.DurationOf != nil {
		if d, err := m.DurationOf(ctx, audioPath); err == nil && d > 0 {
			duration = d
		}
	}

	var segments []core.TranscriptSegment
	var text string
	for start := 0.0; start < duration; start += 10 {
		end := start + 10
		if end > duration {
			end = duration
		}
		line := fmt.Sprintf("[placeholder transcript %.0fs-%.0fs]", start, end)
		segments = append(segments, core.TranscriptSegment{Start: start, End: end, Text: line})
		if text != "" {
			text += " "
		}
		text += line
	}
	return &Result{Text: text, Segments: segments}, nil
}
