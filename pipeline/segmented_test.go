package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videodocs/core"
	"videodocs/synthesis"
	"videodocs/transcribe"
)

func TestRunSegmentedMergesInIndexOrder(t *testing.T) {
	fm := &fakeMedia{duration: 95}
	fs := &fakeSynth{}
	o, _ := newTestOrchestrator(t, fm, &fakeAnalyzer{}, &fakeTranscriber{}, fs)

	res, err := o.RunSegmented(context.Background(), baseRequest(), 30)
	require.NoError(t, err)

	// 95s at 30s windows: four segments, short tail included.
	for i := 0; i < 4; i++ {
		assert.Contains(t, res.Documentation, fmt.Sprintf("fragment %d", i))
	}
	prev := -1
	for i := 0; i < 4; i++ {
		idx := strings.Index(res.Documentation, fmt.Sprintf("fragment %d", i))
		assert.Greater(t, idx, prev)
		prev = idx
	}
}

func TestRunSegmentedFailuresBecomePlaceholders(t *testing.T) {
	fm := &fakeMedia{duration: 90, segFrameErr: map[int]error{1: fmt.Errorf("decode error")}}
	fs := &fakeSynth{fragErr: map[int]error{2: &core.SynthesisError{Err: fmt.Errorf("timeout")}}}
	o, _ := newTestOrchestrator(t, fm, &fakeAnalyzer{}, &fakeTranscriber{}, fs)

	res, err := o.RunSegmented(context.Background(), baseRequest(), 30)
	require.NoError(t, err)

	assert.Contains(t, res.Documentation, "fragment 0")
	assert.Equal(t, 2, strings.Count(res.Documentation, synthesis.FailedFragmentDoc))
}

func TestRunSegmentedProgressBand(t *testing.T) {
	fm := &fakeMedia{duration: 90}
	var checkpoints []int
	req := baseRequest()
	req.Progress = func(p int, _ string) { checkpoints = append(checkpoints, p) }

	o, _ := newTestOrchestrator(t, fm, &fakeAnalyzer{}, &fakeTranscriber{result: &transcribe.Result{Text: "x"}}, &fakeSynth{})
	_, err := o.RunSegmented(context.Background(), req, 30)
	require.NoError(t, err)

	// Three segments fill the 10-85 band evenly: 35, 60, 85.
	assert.Equal(t, []int{5, 10, 35, 60, 85, 85, 90, 100}, checkpoints)
}

func TestRunSegmentedWindowTranscript(t *testing.T) {
	fm := &fakeMedia{duration: 60}
	ft := &fakeTranscriber{result: &transcribe.Result{
		Text: "a b",
		Segments: []core.TranscriptSegment{
			{Start: 5, End: 10, Text: "first window speech"},
			{Start: 40, End: 45, Text: "second window speech"},
		},
	}}
	fs := &fakeSynth{}
	o, _ := newTestOrchestrator(t, fm, &fakeAnalyzer{}, ft, fs)

	_, err := o.RunSegmented(context.Background(), baseRequest(), 30)
	require.NoError(t, err)
	require.Len(t, fs.fragPrompts, 2)
	assert.Contains(t, fs.fragPrompts[0], "between 0s and 30s")
	assert.Contains(t, fs.fragPrompts[1], "between 30s and 60s")
}

func TestRunSegmentedTooLongFails(t *testing.T) {
	fm := &fakeMedia{duration: 5000}
	o, _ := newTestOrchestrator(t, fm, &fakeAnalyzer{}, &fakeTranscriber{}, &fakeSynth{})

	_, err := o.RunSegmented(context.Background(), baseRequest(), 30)
	require.Error(t, err)
	var perr *core.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, core.KindValidation, perr.Kind)
}

func TestRunSegmentedAllFailedIsMergeError(t *testing.T) {
	fm := &fakeMedia{duration: 60, segFrameErr: map[int]error{
		0: fmt.Errorf("bad"), 1: fmt.Errorf("bad"),
	}}
	o, _ := newTestOrchestrator(t, fm, &fakeAnalyzer{}, &fakeTranscriber{}, &fakeSynth{})

	_, err := o.RunSegmented(context.Background(), baseRequest(), 30)
	require.Error(t, err)
	var perr *core.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, core.KindSegmentMerge, perr.Kind)
}
