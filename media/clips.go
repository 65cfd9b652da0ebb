package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"videodocs/core"
)

// ClipSpec describes one clip to cut out of the source video.
type ClipSpec struct {
	Start       float64 `json:"start_time"`
	End         float64 `json:"end_time"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Format      string  `json:"format,omitempty"` // vertical, square or horizontal
}

// CutClip renders one clip into outDir and returns its path. The crop
// filter re-frames the source for the requested aspect ratio.
func (e *Extractor) CutClip(ctx context.Context, videoPath, outDir string, index int, spec ClipSpec) (string, error) {
	if spec.End <= spec.Start {
		return "", &core.MediaError{Op: "cut clip", Err: fmt.Errorf("invalid clip range [%v, %v]", spec.Start, spec.End)}
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", &core.MediaError{Op: "cut clip", Err: err}
	}
	clipPath := filepath.Join(outDir, fmt.Sprintf("clip_%02d.mp4", index))

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", spec.Start),
		"-i", videoPath,
		"-t", fmt.Sprintf("%.3f", spec.End-spec.Start),
	}
	if filter := cropFilter(spec.Format); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "fast",
		"-c:a", "aac",
		clipPath)

	out, err := e.run(ctx, "ffmpeg", args...)
	if err != nil {
		return "", &core.MediaError{Op: "cut clip", Err: fmt.Errorf("%w: %s", err, string(out))}
	}
	if _, err := os.Stat(clipPath); err != nil {
		return "", &core.MediaError{Op: "cut clip", Err: fmt.Errorf("clip was not created")}
	}
	return clipPath, nil
}

func cropFilter(format string) string {
	switch format {
	case "vertical":
		return "crop=ih*9/16:ih,scale=1080:1920"
	case "square":
		return "crop=ih:ih,scale=1080:1080"
	case "horizontal", "":
		return ""
	default:
		return ""
	}
}
