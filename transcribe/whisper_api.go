package transcribe

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"videodocs/core"
)

// WhisperAPI transcribes through the hosted Whisper endpoint using the
// verbose JSON format so segment timings come back with the text.
type WhisperAPI struct {
	client *openai.Client
	model  string
}

func NewWhisperAPI(client *openai.Client, model string) *WhisperAPI {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperAPI{client: client, model: model}
}

func (w *WhisperAPI) Name() string { return "whisper-api" }

func (w *WhisperAPI) Available() bool { return w.client != nil }

func (w *WhisperAPI) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, &core.TranscriptionError{Provider: w.Name(), Err: err}
	}
	segments := make([]core.TranscriptSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, core.TranscriptSegment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}
	return &Result{Text: resp.Text, Segments: segments}, nil
}
