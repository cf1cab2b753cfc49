package types

import "time"

// Status is the lifecycle state of a tracked video.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state for a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// VideoFile is one entry returned by the remote file store listing.
// The id is the filename with its extension stripped.
type VideoFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// VideoMeta is optional descriptive metadata for a video, resolved
// separately from the listing.
type VideoMeta struct {
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	UploadTime  time.Time `json:"upload_time"`
	IsProduct   bool      `json:"is_product"`
}

// Segment is one timestamped span of recognized speech.
type Segment struct {
	Start      float64 `json:"start_time"`
	End        float64 `json:"end_time"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the structured speech-to-text output for one video.
type Transcript struct {
	VideoID       string    `json:"video_id"`
	Text          string    `json:"text"`
	Segments      []Segment `json:"segments"`
	Confidence    float64   `json:"confidence"`
	AudioDuration float64   `json:"audio_duration"`
}

// StatusRecord is the persisted lifecycle record for one video.
// Error is set only when the video failed; it carries the verbatim
// message of the step that failed.
type StatusRecord struct {
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// ProcessResult is the outcome of one pipeline invocation. It is a pure
// return value; all side effects already happened against the status
// store and the persisted transcript.
type ProcessResult struct {
	VideoID    string
	Success    bool
	Transcript *Transcript
	Error      string
	Elapsed    time.Duration
}

// BatchSummary aggregates one full pass over all known videos.
type BatchSummary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}
