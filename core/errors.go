package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure so callers can branch on one
// field instead of a zoo of concrete types.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindMedia         ErrorKind = "media"
	KindAnalysis      ErrorKind = "analysis"
	KindTranscription ErrorKind = "transcription"
	KindSynthesis     ErrorKind = "synthesis"
	KindSegmentMerge  ErrorKind = "segment_merge"
)

// ValidationError means the input itself is unusable (too long, unreadable).
// Always fatal and surfaced verbatim to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// MediaError wraps an extraction or transcoding failure.
type MediaError struct {
	Op  string
	Err error
}

func (e *MediaError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *MediaError) Unwrap() error { return e.Err }

// AnalysisError wraps a relevance-analysis failure. The orchestrator
// must catch it and degrade to uniform sampling, never propagate it.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string { return fmt.Sprintf("relevance analysis: %v", e.Err) }
func (e *AnalysisError) Unwrap() error { return e.Err }

// TranscriptionError wraps a speech-to-text failure. Never fatal.
type TranscriptionError struct {
	Provider string
	Err      error
}

func (e *TranscriptionError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("transcription (%s): %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("transcription: %v", e.Err)
}
func (e *TranscriptionError) Unwrap() error { return e.Err }

// SynthesisError wraps a generation failure. Fatal: synthesis produces
// the user-visible artifact and has no fallback.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("synthesis: %v", e.Err) }
func (e *SynthesisError) Unwrap() error { return e.Err }

// SegmentMergeError means the segmented flow produced no usable output.
type SegmentMergeError struct {
	Err error
}

func (e *SegmentMergeError) Error() string { return fmt.Sprintf("segment merge: %v", e.Err) }
func (e *SegmentMergeError) Unwrap() error { return e.Err }

// PipelineError is the single error kind that leaves the orchestrator.
// It carries the originating step's message plus a coarse category.
type PipelineError struct {
	Step string
	Kind ErrorKind
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline step %q failed (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ClassifyError maps a leaf error onto its taxonomy kind. Unrecognized
// errors are treated as media failures, the broadest fatal category.
func ClassifyError(err error) ErrorKind {
	var (
		ve *ValidationError
		me *MediaError
		ae *AnalysisError
		te *TranscriptionError
		se *SynthesisError
		ge *SegmentMergeError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ae):
		return KindAnalysis
	case errors.As(err, &te):
		return KindTranscription
	case errors.As(err, &se):
		return KindSynthesis
	case errors.As(err, &ge):
		return KindSegmentMerge
	case errors.As(err, &me):
		return KindMedia
	default:
		return KindMedia
	}
}
