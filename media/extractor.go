package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"videodocs/core"
)

// CommandRunner executes external commands. Abstracted so tests can run
// the extractor without ffmpeg installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Extractor drives ffmpeg/ffprobe for all media operations: duration
// probing, audio extraction, proxy rendition, frame sampling, segment
// windows and clip cutting.
type Extractor struct {
	runner  CommandRunner
	verbose bool
}

func NewExtractor(runner CommandRunner, verbose bool) *Extractor {
	return &Extractor{runner: runner, verbose: verbose}
}

func (e *Extractor) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if e.verbose {
		log.Printf("media: %s %s", name, strings.Join(args, " "))
	}
	return e.runner.Run(ctx, name, args...)
}

// ProbeDuration returns the duration of a media file in seconds.
func (e *Extractor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := e.run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, &core.MediaError{Op: "probe duration", Err: fmt.Errorf("%w: %s", err, string(out))}
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, &core.MediaError{Op: "probe duration", Err: fmt.Errorf("parsing ffprobe output: %w", err)}
	}
	return dur, nil
}

// ExtractAudio writes a mono 16kHz WAV next to the frames under outDir
// and returns its path. 16kHz mono is what speech models expect.
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", &core.MediaError{Op: "extract audio", Err: err}
	}
	audioPath := filepath.Join(outDir, "audio.wav")
	out, err := e.run(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioPath)
	if err != nil {
		return "", &core.MediaError{Op: "extract audio", Err: fmt.Errorf("%w: %s", err, string(out))}
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", &core.MediaError{Op: "extract audio", Err: fmt.Errorf("audio file was not created")}
	}
	return audioPath, nil
}

// MakeProxy produces a low-FPS, low-resolution rendition of the video
// used only to guide relevance analysis. Never shown to the user.
func (e *Extractor) MakeProxy(ctx context.Context, videoPath, outDir string, fps int) (string, error) {
	if fps <= 0 {
		fps = 1
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", &core.MediaError{Op: "make proxy", Err: err}
	}
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	proxyPath := filepath.Join(outDir, fmt.Sprintf("%s_proxy_%dfps.mp4", base, fps))
	out, err := e.run(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-filter:v", fmt.Sprintf("fps=%d,scale=640:-2", fps),
		"-c:v", "libx264",
		"-crf", "28",
		"-preset", "veryfast",
		"-an",
		proxyPath)
	if err != nil {
		return "", &core.MediaError{Op: "make proxy", Err: fmt.Errorf("%w: %s", err, string(out))}
	}
	if _, err := os.Stat(proxyPath); err != nil {
		return "", &core.MediaError{Op: "make proxy", Err: fmt.Errorf("proxy was not created")}
	}
	return proxyPath, nil
}

// ExtractFramesAtInterval samples one frame every intervalSec seconds
// into framesDir and returns the frames ordered by timestamp. Frame N
// of the fps filter corresponds to t = (N-1)*interval.
func (e *Extractor) ExtractFramesAtInterval(ctx context.Context, videoPath, framesDir string, intervalSec int) ([]core.Frame, error) {
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, &core.MediaError{Op: "extract frames", Err: err}
	}
	pattern := filepath.Join(framesDir, "frame_%04d.jpg")
	out, err := e.run(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", intervalSec),
		pattern)
	if err != nil {
		return nil, &core.MediaError{Op: "extract frames", Err: fmt.Errorf("%w: %s", err, string(out))}
	}
	frames, err := enumerateIntervalFrames(framesDir, intervalSec)
	if err != nil {
		return nil, &core.MediaError{Op: "extract frames", Err: err}
	}
	return frames, nil
}

// ExtractFramesAtTimestamps grabs exactly one frame per timestamp from
// the original video. Timestamps are deduplicated and sorted before
// extraction; individual seek failures are logged and skipped.
func (e *Extractor) ExtractFramesAtTimestamps(ctx context.Context, videoPath, framesDir string, timestamps []float64) ([]core.Frame, error) {
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, &core.MediaError{Op: "extract frames", Err: err}
	}
	ordered := dedupeSorted(timestamps)
	frames := make([]core.Frame, 0, len(ordered))
	for i, ts := range ordered {
		framePath := filepath.Join(framesDir, fmt.Sprintf("frame_%04d_t%.1fs.jpg", i, ts))
		out, err := e.run(ctx, "ffmpeg",
			"-y",
			"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
			"-i", videoPath,
			"-frames:v", "1",
			"-q:v", "2",
			framePath)
		if err != nil {
			log.Printf("media: frame at %.2fs failed, skipping: %v (%s)", ts, err, string(out))
			continue
		}
		if _, err := os.Stat(framePath); err != nil {
			log.Printf("media: frame at %.2fs was not written, skipping", ts)
			continue
		}
		frames = append(frames, core.Frame{TimestampSec: ts, Path: framePath})
	}
	return frames, nil
}

// SplitSegments divides the full duration into consecutive fixed-size
// windows. The last window may be shorter than windowSec.
func (e *Extractor) SplitSegments(ctx context.Context, videoPath string, windowSec float64) ([]core.SegmentDescriptor, error) {
	if windowSec <= 0 {
		return nil, &core.MediaError{Op: "split segments", Err: fmt.Errorf("window must be positive, got %v", windowSec)}
	}
	duration, err := e.ProbeDuration(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	var segs []core.SegmentDescriptor
	index := 0
	for start := 0.0; start < duration; start += windowSec {
		end := start + windowSec
		if end > duration {
			end = duration
		}
		segs = append(segs, core.SegmentDescriptor{Index: index, Start: start, End: end})
		index++
	}
	return segs, nil
}

// ExtractSegmentFrames samples frames at intervalSec within one segment
// window, from the original video.
func (e *Extractor) ExtractSegmentFrames(ctx context.Context, videoPath string, seg core.SegmentDescriptor, framesDir string, intervalSec int) ([]core.Frame, error) {
	var timestamps []float64
	for ts := seg.Start; ts < seg.End; ts += float64(intervalSec) {
		timestamps = append(timestamps, ts)
	}
	if len(timestamps) == 0 {
		timestamps = []float64{seg.Start}
	}
	segDir := filepath.Join(framesDir, fmt.Sprintf("seg_%02d", seg.Index))
	return e.ExtractFramesAtTimestamps(ctx, videoPath, segDir, timestamps)
}

func enumerateIntervalFrames(framesDir string, intervalSec int) ([]core.Frame, error) {
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return nil, err
	}
	frames := make([]core.Frame, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		idxPart := strings.TrimSuffix(strings.TrimPrefix(name, "frame_"), ".jpg")
		i, err := strconv.Atoi(idxPart)
		if err != nil {
			continue
		}
		ts := float64((i - 1) * intervalSec)
		frames = append(frames, core.Frame{TimestampSec: ts, Path: filepath.Join(framesDir, name)})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].TimestampSec < frames[j].TimestampSec })
	return frames, nil
}

func dedupeSorted(timestamps []float64) []float64 {
	seen := make(map[float64]struct{}, len(timestamps))
	out := make([]float64, 0, len(timestamps))
	for _, ts := range timestamps {
		if _, ok := seen[ts]; ok {
			continue
		}
		seen[ts] = struct{}{}
		out = append(out, ts)
	}
	sort.Float64s(out)
	return out
}

// FramePaths flattens frames to their file paths, preserving order.
func FramePaths(frames []core.Frame) []string {
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.Path
	}
	return paths
}
