package core

import "time"

// SessionStatus is the lifecycle state of a processing session.
type SessionStatus string

const (
	StatusDraft       SessionStatus = "draft"
	StatusReady       SessionStatus = "ready_for_upload"
	StatusDownloading SessionStatus = "downloading"
	StatusProcessing  SessionStatus = "processing"
	StatusCompleted   SessionStatus = "completed"
	StatusFailed      SessionStatus = "failed"
	StatusCancelled   SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Active reports whether the session is currently doing work.
func (s SessionStatus) Active() bool {
	return s == StatusProcessing || s == StatusDownloading
}

// Session is one user-visible unit of work tracked by the session manager.
type Session struct {
	ID          string                 `json:"session_id"`
	Status      SessionStatus          `json:"status"`
	Progress    int                    `json:"progress"`
	Stage       string                 `json:"stage"`
	Title       string                 `json:"title"`
	Mode        string                 `json:"mode,omitempty"`
	ModeName    string                 `json:"mode_name,omitempty"`
	Error       string                 `json:"error,omitempty"`
	ResultPath  string                 `json:"result_path,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	LastUpdated time.Time              `json:"last_updated"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Frame is a single still image extracted from a video.
type Frame struct {
	TimestampSec float64 `json:"timestamp_sec"`
	Path         string  `json:"path"`
}

// RelevantSegment is a span of the video worth examining closely,
// as identified by the relevance analyzer. KeyTimestamps, when present,
// point at the exact moments to screenshot within [Start, End].
type RelevantSegment struct {
	Start         float64   `json:"start_time"`
	End           float64   `json:"end_time"`
	Reason        string    `json:"reason,omitempty"`
	KeyTimestamps []float64 `json:"key_timestamps,omitempty"`
}

// TranscriptSegment is a time-aligned piece of transcribed speech.
type TranscriptSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// SegmentDescriptor is one fixed-size window of the segmented pipeline.
// The final window of a video may be shorter than the nominal size.
type SegmentDescriptor struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SegmentFragment is the documentation produced for one segment window.
type SegmentFragment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Doc   string  `json:"doc"`
}

// PipelineResult is the single object the orchestrator hands back to its
// caller on success. It is never mutated after construction.
type PipelineResult struct {
	SessionID          string              `json:"session_id"`
	Documentation      string              `json:"documentation"`
	Status             SessionStatus       `json:"status"`
	Mode               string              `json:"mode"`
	ModeName           string              `json:"mode_name"`
	ProjectName        string              `json:"project_name"`
	STTProvider        string              `json:"stt_provider,omitempty"`
	Transcript         string              `json:"transcript,omitempty"`
	TranscriptSegments []TranscriptSegment `json:"transcript_segments,omitempty"`
	FramesCount        int                 `json:"frames_count"`
	ResultPath         string              `json:"result_path,omitempty"`
}
