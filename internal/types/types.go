package types

import "time"

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// SourceKind selects the orchestrator used for a source file
type SourceKind string

// Source kind constants
const (
	SourceVideo        SourceKind = "video"
	SourceAudio        SourceKind = "audio"
	SourcePresentation SourceKind = "presentation"
)

// Valid reports whether k names a known source kind
func (k SourceKind) Valid() bool {
	switch k {
	case SourceVideo, SourceAudio, SourcePresentation:
		return true
	}
	return false
}

// Window is a contiguous [Start, End) range of the source timeline, in seconds
type Window struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the length of the window in seconds
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// ChunkArtifact is one exported audio file covering a Window
type ChunkArtifact struct {
	Window Window `json:"window"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}

// Utterance is a recognized segment with an offset local to the submitted artifact
type Utterance struct {
	Start float64 `json:"start"`
	End   float64 `json:"end,omitempty"`
	Text  string  `json:"text"`
}

// Section is one unit of merge input: a chunk (continuous media) or a slide (presentation).
// Duration is the measured playback length of the section's own audio and is only
// consulted in slide mode.
type Section struct {
	Index      int         `json:"index"`
	Window     Window      `json:"window"`
	Duration   float64     `json:"duration"`
	Utterances []Utterance `json:"utterances"`
}

// TranscriptLine is an utterance rebased onto the source timeline
type TranscriptLine struct {
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
}

// RunRecord is the persisted summary of one pipeline run
type RunRecord struct {
	RunID      string     `json:"run_id"`
	Kind       SourceKind `json:"kind"`
	SourcePath string     `json:"source"`
	OutputPath string     `json:"output"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Sections   int        `json:"sections"`
	Duration   float64    `json:"duration_seconds"`
	WordCount  int        `json:"word_count"`
	DriveURL   string     `json:"gdrive_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt time.Time  `json:"finished_at"`
}
