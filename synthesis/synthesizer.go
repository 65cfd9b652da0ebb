package synthesis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"videodocs/core"
	"videodocs/media"
)

// Input bundles everything the synthesizer needs for one generation.
type Input struct {
	Prompt     string
	Transcript string
	Frames     []core.Frame
}

// Synthesizer turns frames plus transcript into documentation through a
// vision-capable chat model. Transient API failures are retried with
// exponential backoff; an empty completion is an error, not a result.
type Synthesizer struct {
	client       *openai.Client
	docModel     string
	segmentModel string
	maxRetries   uint64
}

func NewSynthesizer(client *openai.Client, docModel, segmentModel string) *Synthesizer {
	if segmentModel == "" {
		segmentModel = docModel
	}
	return &Synthesizer{
		client:       client,
		docModel:     docModel,
		segmentModel: segmentModel,
		maxRetries:   3,
	}
}

// GenerateDoc produces the full documentation for a run.
func (s *Synthesizer) GenerateDoc(ctx context.Context, in Input) (string, error) {
	return s.generate(ctx, s.docModel, in)
}

// GenerateSegmentFragment produces the fragment for one segment window,
// typically with a cheaper model than the final document.
func (s *Synthesizer) GenerateSegmentFragment(ctx context.Context, seg core.SegmentDescriptor, in Input) (core.SegmentFragment, error) {
	doc, err := s.generate(ctx, s.segmentModel, in)
	if err != nil {
		return core.SegmentFragment{}, err
	}
	return core.SegmentFragment{Index: seg.Index, Start: seg.Start, End: seg.End, Doc: doc}, nil
}

func (s *Synthesizer) generate(ctx context.Context, model string, in Input) (string, error) {
	if s.client == nil {
		return "", &core.SynthesisError{Err: fmt.Errorf("no API client configured")}
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: in.Prompt,
	}}
	if in.Transcript != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "Transcript:\n" + in.Transcript,
		})
	}
	for _, f := range in.Frames {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			log.Printf("synthesis: skipping unreadable frame %s: %v", f.Path, err)
			continue
		}
		parts = append(parts,
			openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("Frame at %.1fs:", f.TimestampSec),
			},
			openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		MaxTokens: 4000,
	}

	var content string
	operation := func() error {
		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("completion had no choices"))
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
		backoff.WithMaxInterval(10*time.Second),
	), s.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", &core.SynthesisError{Err: err}
	}
	if content == "" {
		return "", &core.SynthesisError{Err: fmt.Errorf("model returned empty documentation")}
	}
	return content, nil
}

// ParseClipPlan decodes a clip-plan completion into cut specs,
// tolerating markdown fences and dropping malformed entries.
func ParseClipPlan(raw string) ([]media.ClipSpec, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	var parsed struct {
		Clips []media.ClipSpec `json:"clips"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("decoding clip plan: %w", err)
	}
	clips := parsed.Clips[:0]
	for _, c := range parsed.Clips {
		if c.End <= c.Start || c.Start < 0 {
			log.Printf("synthesis: dropping malformed clip [%v, %v]", c.Start, c.End)
			continue
		}
		clips = append(clips, c)
	}
	return clips, nil
}
