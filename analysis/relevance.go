package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videodocs/core"
)

// RelevanceAnalyzer inspects cheap proxy frames and decides which spans
// of the original video deserve high-resolution extraction. Its failures
// never abort a run; callers fall back to uniform sampling.
type RelevanceAnalyzer struct {
	client    *openai.Client
	model     string
	maxFrames int
}

func NewRelevanceAnalyzer(client *openai.Client, model string, maxFrames int) *RelevanceAnalyzer {
	if maxFrames <= 0 {
		maxFrames = 20
	}
	return &RelevanceAnalyzer{client: client, model: model, maxFrames: maxFrames}
}

const relevancePrompt = `You are reviewing low-resolution preview frames sampled from a screen recording.
Each frame is labeled with its timestamp in seconds. Identify the spans of the video
that are relevant to the task below and the exact moments worth capturing in detail.

Task context: %s

Respond with ONLY a JSON object of this shape:
{"relevant_segments": [{"start_time": 12.0, "end_time": 45.0, "reason": "short explanation", "key_timestamps": [15.0, 30.0]}]}

Rules:
- start_time < end_time, both within the video.
- key_timestamps must fall within their segment.
- Skip idle spans, loading screens and repeated content.
- If nothing is relevant, return {"relevant_segments": []}.`

// Analyze sends a capped subset of the proxy frames to the vision model
// and returns the relevant spans it reports.
func (a *RelevanceAnalyzer) Analyze(ctx context.Context, frames []core.Frame, taskContext string) ([]core.RelevantSegment, error) {
	if a.client == nil {
		return nil, &core.AnalysisError{Err: fmt.Errorf("no API client configured")}
	}
	if len(frames) == 0 {
		return nil, &core.AnalysisError{Err: fmt.Errorf("no proxy frames to analyze")}
	}

	picked := capFrames(frames, a.maxFrames)
	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: fmt.Sprintf(relevancePrompt, taskContext),
	}}
	for _, f := range picked {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			log.Printf("analysis: skipping unreadable frame %s: %v", f.Path, err)
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
					Detail: openai.ImageURLDetailLow,
				},
			})
	}
	if len(parts) == 1 {
		return nil, &core.AnalysisError{Err: fmt.Errorf("no readable proxy frames")}
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		MaxTokens: 2000,
	})
	if err != nil {
		return nil, &core.AnalysisError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &core.AnalysisError{Err: fmt.Errorf("empty completion")}
	}

	segs, err := ParseSegments(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, &core.AnalysisError{Err: err}
	}
	return segs, nil
}

// ParseSegments decodes the model's segment JSON, tolerating markdown
// code fences and dropping malformed entries instead of failing.
func ParseSegments(raw string) ([]core.RelevantSegment, error) {
	cleaned := stripFences(raw)
	var parsed struct {
		RelevantSegments []core.RelevantSegment `json:"relevant_segments"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("decoding segment response: %w", err)
	}
	segs := make([]core.RelevantSegment, 0, len(parsed.RelevantSegments))
	for _, s := range parsed.RelevantSegments {
		if s.End <= s.Start || s.Start < 0 {
			log.Printf("analysis: dropping malformed segment [%v, %v]", s.Start, s.End)
			continue
		}
		kept := s.KeyTimestamps[:0]
		for _, ts := range s.KeyTimestamps {
			if ts >= s.Start && ts <= s.End {
				kept = append(kept, ts)
			}
		}
		s.KeyTimestamps = kept
		segs = append(segs, s)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	return segs, nil
}

// DeriveTimestamps turns relevant segments into the concrete moments to
// capture: explicit key timestamps when given, otherwise start, end and
// a midpoint for spans longer than 5 seconds. Output is deduplicated
// and ascending.
func DeriveTimestamps(segs []core.RelevantSegment) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	add := func(ts float64) {
		if _, ok := seen[ts]; ok {
			return
		}
		seen[ts] = struct{}{}
		out = append(out, ts)
	}
	for _, s := range segs {
		if len(s.KeyTimestamps) > 0 {
			for _, ts := range s.KeyTimestamps {
				add(ts)
			}
			continue
		}
		add(s.Start)
		if s.End-s.Start > 5 {
			add(s.Start + (s.End-s.Start)/2)
		}
		add(s.End)
	}
	sort.Float64s(out)
	return out
}

func capFrames(frames []core.Frame, max int) []core.Frame {
	if len(frames) <= max {
		return frames
	}
	// Spread the cap evenly over the whole video instead of truncating.
	picked := make([]core.Frame, 0, max)
	step := float64(len(frames)) / float64(max)
	for i := 0; i < max; i++ {
		picked = append(picked, frames[int(float64(i)*step)])
	}
	return picked
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
