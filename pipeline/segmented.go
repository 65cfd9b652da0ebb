package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"videodocs/core"
	"videodocs/prompt"
	"videodocs/synthesis"
	"videodocs/transcribe"
)

// RunSegmented executes the chunked variant: fixed windows, one short
// fragment per window from the cheaper model, placeholders for failed
// windows, then a deterministic index-ordered merge. Progress for the
// per-segment work fills the 10-85 band proportionally.
func (o *Orchestrator) RunSegmented(ctx context.Context, req Request, segmentSeconds float64) (*core.PipelineResult, error) {
	if segmentSeconds <= 0 {
		segmentSeconds = o.opts.SegmentSeconds
	}
	dir := o.sessionDir(req.SessionID)

	duration, err := o.media.ProbeDuration(ctx, req.VideoPath)
	if err != nil {
		return nil, fatal("probe", err)
	}
	if o.opts.MaxVideoLength > 0 && duration > o.opts.MaxVideoLength {
		return nil, fatal("validate", &core.ValidationError{
			Message: fmt.Sprintf("video is %.0fs, longer than the %.0fs limit", duration, o.opts.MaxVideoLength),
		})
	}
	req.report(5, "validated")
	if req.cancelled() {
		return nil, ErrCancelled
	}

	segs, err := o.media.SplitSegments(ctx, req.VideoPath, segmentSeconds)
	if err != nil {
		return nil, fatal("split", err)
	}
	if len(segs) == 0 {
		return nil, fatal("split", &core.MediaError{
			Op: "split segments", Err: fmt.Errorf("no segments for %0.fs video", duration),
		})
	}

	// Transcription reuses the standard best-effort path but reports
	// inside the segment band, not at the standard checkpoints.
	var transcript *transcribe.Result
	if !o.opts.SkipTranscription {
		silent := req
		silent.Progress = nil
		transcript = o.transcribeBestEffort(ctx, silent, dir)
	}
	req.report(10, "segmenting")

	basePrompt := prompt.Render(req.Mode, map[string]string{
		"title":    req.Title,
		"project":  req.ProjectName,
		"keywords": strings.Join(req.Keywords, ", "),
	})

	fragments := make([]core.SegmentFragment, 0, len(segs))
	framesTotal := 0
	for _, seg := range segs {
		if req.cancelled() {
			return nil, ErrCancelled
		}
		frag, n := o.segmentFragment(ctx, req, dir, basePrompt, seg, transcript)
		fragments = append(fragments, frag)
		framesTotal += n
		// Fill the 10-85 band evenly by completed segment count.
		progress := 10 + int(75*float64(seg.Index+1)/float64(len(segs)))
		req.report(progress, fmt.Sprintf("segment_%d_of_%d", seg.Index+1, len(segs)))
	}

	doc, err := synthesis.MergeFragments(req.Title, fragments)
	if err != nil {
		return nil, fatal("merge", err)
	}
	req.report(85, "merged")

	return o.finish(req, doc, transcript, framesTotal)
}

// segmentFragment produces one window's fragment. Failures become a
// placeholder so the merge stays complete.
func (o *Orchestrator) segmentFragment(ctx context.Context, req Request, dir, basePrompt string, seg core.SegmentDescriptor, transcript *transcribe.Result) (core.SegmentFragment, int) {
	placeholder := core.SegmentFragment{
		Index: seg.Index, Start: seg.Start, End: seg.End,
		Doc: synthesis.FailedFragmentDoc,
	}

	frames, err := o.media.ExtractSegmentFrames(ctx, req.VideoPath, seg, filepath.Join(dir, "frames"), o.opts.FrameInterval)
	if err != nil || len(frames) == 0 {
		log.Printf("pipeline %s: segment %d frame extraction failed: %v", req.SessionID, seg.Index, err)
		return placeholder, 0
	}

	in := synthesis.Input{
		Prompt: fmt.Sprintf("%s\n\nDescribe only what happens between %.0fs and %.0fs.", basePrompt, seg.Start, seg.End),
		Frames: frames,
	}
	if transcript != nil {
		in.Transcript = windowTranscript(transcript.Segments, seg)
	}
	frag, err := o.synth.GenerateSegmentFragment(ctx, seg, in)
	if err != nil {
		log.Printf("pipeline %s: segment %d synthesis failed: %v", req.SessionID, seg.Index, err)
		return placeholder, len(frames)
	}
	return frag, len(frames)
}

// windowTranscript keeps only the transcript lines overlapping the
// segment window.
func windowTranscript(segments []core.TranscriptSegment, seg core.SegmentDescriptor) string {
	var lines []string
	for _, ts := range segments {
		if ts.End <= seg.Start || ts.Start >= seg.End {
			continue
		}
		lines = append(lines, ts.Text)
	}
	return strings.Join(lines, " ")
}
