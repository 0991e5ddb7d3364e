// internal/models/transcript.go
package models

// TimedSegment is a transcriber output span in seconds.
type TimedSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the assembled output of a transcription run.
type Transcript struct {
	Text     string         `json:"text"`
	Segments []TimedSegment `json:"segments"`
	Duration float64        `json:"duration"`
}
