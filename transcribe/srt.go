package transcribe

import (
	"fmt"
	"strings"

	"videodocs/core"
)

// FormatSRT renders timed segments as a SubRip subtitle file.
func FormatSRT(segments []core.TranscriptSegment) string {
	var b strings.Builder
	for i, s := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(s.Start), srtTimestamp(s.End), strings.TrimSpace(s.Text))
	}
	return b.String()
}

func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	totalMillis := int64(sec*1000 + 0.5)
	h := totalMillis / 3600000
	m := (totalMillis % 3600000) / 60000
	s := (totalMillis % 60000) / 1000
	ms := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
