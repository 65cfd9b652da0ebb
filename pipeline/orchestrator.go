package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"videodocs/analysis"
	"videodocs/core"
	"videodocs/media"
	"videodocs/prompt"
	"videodocs/session"
	"videodocs/synthesis"
	"videodocs/transcribe"
)

// ErrCancelled is returned when a run observes an advisory cancel
// between steps. The session is already in its terminal state; callers
// must not overwrite it with a failure.
var ErrCancelled = errors.New("run cancelled")

// ProgressFunc receives milestone updates. Optional.
type ProgressFunc func(progress int, stage string)

// MediaExtractor is the slice of media operations the orchestrator
// needs. media.Extractor satisfies it.
type MediaExtractor interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	MakeProxy(ctx context.Context, videoPath, outDir string, fps int) (string, error)
	ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error)
	ExtractFramesAtInterval(ctx context.Context, videoPath, framesDir string, intervalSec int) ([]core.Frame, error)
	ExtractFramesAtTimestamps(ctx context.Context, videoPath, framesDir string, timestamps []float64) ([]core.Frame, error)
	SplitSegments(ctx context.Context, videoPath string, windowSec float64) ([]core.SegmentDescriptor, error)
	ExtractSegmentFrames(ctx context.Context, videoPath string, seg core.SegmentDescriptor, framesDir string, intervalSec int) ([]core.Frame, error)
	CutClip(ctx context.Context, videoPath, outDir string, index int, spec media.ClipSpec) (string, error)
}

// Analyzer finds the relevant spans of a proxy rendition.
type Analyzer interface {
	Analyze(ctx context.Context, frames []core.Frame, taskContext string) ([]core.RelevantSegment, error)
}

// Transcriber produces a transcript from an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcribe.Result, error)
}

// Synthesizer generates documentation from frames and transcript.
type Synthesizer interface {
	GenerateDoc(ctx context.Context, in synthesis.Input) (string, error)
	GenerateSegmentFragment(ctx context.Context, seg core.SegmentDescriptor, in synthesis.Input) (core.SegmentFragment, error)
}

// Options carries the tunables the orchestrator reads from config.
type Options struct {
	MaxVideoLength float64
	FrameInterval  int
	ProxyFPS       int
	SegmentSeconds float64
	WorkDir        string
	// SkipTranscription drops the audio/STT step for modes that do not
	// require a transcript. Subtitle modes transcribe regardless.
	SkipTranscription bool
}

// Orchestrator runs the end-to-end pipeline: duration gate, proxy-guided
// sampling with uniform fallback, transcription, synthesis and
// persistence. Only duration validation, final extraction yielding zero
// frames, and synthesis are fatal.
type Orchestrator struct {
	media   MediaExtractor
	analyze Analyzer
	stt     Transcriber
	synth   Synthesizer
	store   session.Store
	opts    Options
}

func NewOrchestrator(m MediaExtractor, a Analyzer, t Transcriber, s Synthesizer, store session.Store, opts Options) *Orchestrator {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 5
	}
	if opts.ProxyFPS <= 0 {
		opts.ProxyFPS = 1
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 30
	}
	return &Orchestrator{media: m, analyze: a, stt: t, synth: s, store: store, opts: opts}
}

// Request describes one pipeline run.
type Request struct {
	VideoPath   string
	SessionID   string
	Title       string
	ProjectName string
	Keywords    []string
	Mode        prompt.Mode
	Progress    ProgressFunc
	// Cancelled is polled between steps; a true result stops the run.
	Cancelled func() bool
}

func (r Request) report(progress int, stage string) {
	if r.Progress != nil {
		r.Progress(progress, stage)
	}
}

func (r Request) cancelled() bool {
	return r.Cancelled != nil && r.Cancelled()
}

func (o *Orchestrator) sessionDir(sessionID string) string {
	return filepath.Join(o.opts.WorkDir, sessionID)
}

func fatal(step string, err error) error {
	return &core.PipelineError{Step: step, Kind: core.ClassifyError(err), Err: err}
}

// Run executes the standard dual-stream flow.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*core.PipelineResult, error) {
	dir := o.sessionDir(req.SessionID)
	def := prompt.Lookup(req.Mode)

	// 1. Hard precondition: duration gate. No partial processing past
	// an over-long video.
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

	// 2+3. Best-effort proxy and relevance analysis. Any failure here
	// degrades to uniform sampling.
	var segments []core.RelevantSegment
	proxyPath, err := o.media.MakeProxy(ctx, req.VideoPath, dir, o.opts.ProxyFPS)
	if err != nil {
		log.Printf("pipeline %s: proxy failed, uniform sampling: %v", req.SessionID, err)
	}
	req.report(10, "proxy_ready")
	if proxyPath != "" {
		proxyFrames, err := o.media.ExtractFramesAtInterval(ctx, proxyPath, filepath.Join(dir, "proxy_frames"), o.opts.FrameInterval)
		if err != nil {
			log.Printf("pipeline %s: proxy frame extraction failed: %v", req.SessionID, err)
		} else if len(proxyFrames) > 0 {
			taskCtx := prompt.TaskContext(req.Mode, req.Title)
			if len(req.Keywords) > 0 {
				taskCtx += " Keywords: " + strings.Join(req.Keywords, ", ")
			}
			segments, err = o.analyze.Analyze(ctx, proxyFrames, taskCtx)
			if err != nil {
				log.Printf("pipeline %s: relevance analysis failed, uniform sampling: %v", req.SessionID, err)
				segments = nil
			}
		}
	}
	req.report(20, "analyzed")
	if req.cancelled() {
		return nil, ErrCancelled
	}

	// 4. Best-effort transcription. Subtitle modes always need it;
	// everything else honors the config switch.
	var transcript *transcribe.Result
	if !o.opts.SkipTranscription || def.SubtitleOnly {
		transcript = o.transcribeBestEffort(ctx, req, dir)
	}
	req.report(50, "transcribed")
	if req.cancelled() {
		return nil, ErrCancelled
	}

	// Subtitle-only modes short-circuit before any visual work when a
	// transcript came through; without one they fall through to the
	// standard synthesis path.
	if def.SubtitleOnly {
		if transcript != nil && len(transcript.Segments) > 0 {
			srt := transcribe.FormatSRT(transcript.Segments)
			return o.finish(req, srt, transcript, 0)
		}
		log.Printf("pipeline %s: no transcript for subtitle mode, synthesizing from frames", req.SessionID)
	}

	// 5. Frame sampling: targeted when analysis produced segments,
	// uniform otherwise.
	frames, err := o.sampleFrames(ctx, req, dir, segments)
	if err != nil {
		return nil, err
	}
	req.report(70, "frames_extracted")
	if req.cancelled() {
		return nil, ErrCancelled
	}

	// 6. Synthesis. Fatal on error or empty output.
	in := synthesis.Input{
		Prompt: prompt.Render(req.Mode, map[string]string{
			"title":    req.Title,
			"project":  req.ProjectName,
			"keywords": strings.Join(req.Keywords, ", "),
		}),
		Frames: frames,
	}
	if transcript != nil {
		in.Transcript = transcript.Text
	}
	doc, err := o.synth.GenerateDoc(ctx, in)
	if err != nil {
		return nil, fatal("synthesize", err)
	}
	req.report(85, "synthesized")

	// 7. Mode-gated post-processing.
	if def.ProducesClips {
		doc = o.cutClips(ctx, req, dir, doc)
	}

	return o.finish(req, doc, transcript, len(frames))
}

// transcribeBestEffort extracts the audio track and runs the provider
// chain. Every failure is logged and swallowed.
func (o *Orchestrator) transcribeBestEffort(ctx context.Context, req Request, dir string) *transcribe.Result {
	req.report(30, "extracting_audio")
	audioPath, err := o.media.ExtractAudio(ctx, req.VideoPath, dir)
	if err != nil {
		log.Printf("pipeline %s: audio extraction failed, continuing without transcript: %v", req.SessionID, err)
		return nil
	}
	req.report(40, "transcribing")
	res, err := o.stt.Transcribe(ctx, audioPath)
	if err != nil {
		log.Printf("pipeline %s: transcription failed, continuing without transcript: %v", req.SessionID, err)
		return nil
	}
	return res
}

// sampleFrames runs the second, expensive pass against the original
// video. Zero frames out of the final extraction is fatal.
func (o *Orchestrator) sampleFrames(ctx context.Context, req Request, dir string, segments []core.RelevantSegment) ([]core.Frame, error) {
	framesDir := filepath.Join(dir, "frames")
	var frames []core.Frame
	var err error
	if len(segments) > 0 {
		timestamps := analysis.DeriveTimestamps(segments)
		frames, err = o.media.ExtractFramesAtTimestamps(ctx, req.VideoPath, framesDir, timestamps)
	} else {
		frames, err = o.media.ExtractFramesAtInterval(ctx, req.VideoPath, framesDir, o.opts.FrameInterval)
	}
	if err != nil {
		return nil, fatal("extract_frames", err)
	}
	if len(frames) == 0 {
		return nil, fatal("extract_frames", &core.MediaError{
			Op: "extract frames", Err: fmt.Errorf("no frames could be extracted"),
		})
	}
	return frames, nil
}

// cutClips parses the synthesized clip plan and cuts each entry.
// A malformed plan or failed cut degrades to a note in the output.
func (o *Orchestrator) cutClips(ctx context.Context, req Request, dir, doc string) string {
	clips, err := synthesis.ParseClipPlan(doc)
	if err != nil {
		log.Printf("pipeline %s: clip plan unparsable, keeping raw output: %v", req.SessionID, err)
		return doc
	}
	var b strings.Builder
	b.WriteString(doc)
	b.WriteString("\n\n## Rendered clips\n")
	for i, clip := range clips {
		path, err := o.media.CutClip(ctx, req.VideoPath, filepath.Join(dir, "clips"), i, clip)
		if err != nil {
			log.Printf("pipeline %s: cutting clip %d failed: %v", req.SessionID, i, err)
			fmt.Fprintf(&b, "- %s: FAILED (%v)\n", clip.Title, err)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", clip.Title, path)
	}
	return b.String()
}

// finish persists the documentation and assembles the result.
func (o *Orchestrator) finish(req Request, doc string, transcript *transcribe.Result, framesCount int) (*core.PipelineResult, error) {
	req.report(90, "persisting")
	resultPath, err := o.store.SaveDocumentation(req.SessionID, doc)
	if err != nil {
		return nil, fatal("persist", err)
	}
	req.report(100, "completed")

	def := prompt.Lookup(req.Mode)
	result := &core.PipelineResult{
		SessionID:     req.SessionID,
		Documentation: doc,
		Status:        core.StatusCompleted,
		Mode:          string(req.Mode),
		ModeName:      def.Name,
		ProjectName:   req.ProjectName,
		FramesCount:   framesCount,
		ResultPath:    resultPath,
	}
	if transcript != nil {
		result.STTProvider = transcript.Provider
		result.Transcript = transcript.Text
		result.TranscriptSegments = transcript.Segments
	}
	return result, nil
}
