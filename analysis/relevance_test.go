package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videodocs/core"
)

func TestParseSegmentsPlainJSON(t *testing.T) {
	raw := `{"relevant_segments": [
		{"start_time": 10, "end_time": 20, "reason": "terminal output", "key_timestamps": [12, 18]},
		{"start_time": 100, "end_time": 140, "reason": "editor work"}
	]}`

	segs, err := ParseSegments(raw)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 10.0, segs[0].Start)
	assert.Equal(t, []float64{12, 18}, segs[0].KeyTimestamps)
	assert.Empty(t, segs[1].KeyTimestamps)
}

func TestParseSegmentsStripsFences(t *testing.T) {
	raw := "```json\n{\"relevant_segments\": [{\"start_time\": 1, \"end_time\": 4, \"reason\": \"x\"}]}\n```"

	segs, err := ParseSegments(raw)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 4.0, segs[0].End)
}

func TestParseSegmentsDropsMalformed(t *testing.T) {
	raw := `{"relevant_segments": [
		{"start_time": 20, "end_time": 10, "reason": "inverted"},
		{"start_time": -5, "end_time": 3, "reason": "negative"},
		{"start_time": 5, "end_time": 9, "reason": "ok", "key_timestamps": [6, 99]}
	]}`

	segs, err := ParseSegments(raw)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	// Out-of-range key timestamps are discarded, in-range kept.
	assert.Equal(t, []float64{6}, segs[0].KeyTimestamps)
}

func TestParseSegmentsInvalidJSON(t *testing.T) {
	_, err := ParseSegments("the video looks fine to me")
	require.Error(t, err)
}

func TestParseSegmentsSortsByStart(t *testing.T) {
	raw := `{"relevant_segments": [
		{"start_time": 50, "end_time": 60, "reason": "b"},
		{"start_time": 5, "end_time": 15, "reason": "a"}
	]}`

	segs, err := ParseSegments(raw)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 5.0, segs[0].Start)
}

func TestDeriveTimestamps(t *testing.T) {
	segs := []core.RelevantSegment{
		{Start: 10, End: 20, KeyTimestamps: []float64{12, 18}},
		{Start: 100, End: 140},
	}

	// Key timestamps win for the first segment; the second gets
	// start, midpoint and end because it spans more than 5s.
	got := DeriveTimestamps(segs)
	assert.Equal(t, []float64{12, 18, 100, 120, 140}, got)
}

func TestDeriveTimestampsShortSpanSkipsMidpoint(t *testing.T) {
	got := DeriveTimestamps([]core.RelevantSegment{{Start: 3, End: 7}})
	assert.Equal(t, []float64{3, 7}, got)
}

func TestDeriveTimestampsDedupes(t *testing.T) {
	segs := []core.RelevantSegment{
		{Start: 0, End: 4},
		{Start: 4, End: 8},
	}
	got := DeriveTimestamps(segs)
	assert.Equal(t, []float64{0, 4, 8}, got)
}

func TestCapFramesSpreadsEvenly(t *testing.T) {
	frames := make([]core.Frame, 100)
	for i := range frames {
		frames[i] = core.Frame{TimestampSec: float64(i)}
	}

	picked := capFrames(frames, 10)
	require.Len(t, picked, 10)
	assert.Equal(t, 0.0, picked[0].TimestampSec)
	assert.Equal(t, 90.0, picked[9].TimestampSec)
}
