// internal/models/segments.go
package models

import (
	"encoding/json"
	"time"
)

// Segment is one contiguous chunk of a transcript. Indices run 0..n-1.
type Segment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// LearningOutcome is an outcome statement with a positional id (LO1, LO2, ...).
type LearningOutcome struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// LoLink ties a segment to an outcome with a confidence in [0,1].
type LoLink struct {
	LoID       string  `json:"lo_id"`
	LoTitle    string  `json:"lo_title"`
	Confidence float64 `json:"confidence"`
}

// AlignedSegment is a Segment together with the outcomes it covers.
type AlignedSegment struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	LoLinks []LoLink `json:"lo_links"`
}

// MarshalJSON always writes lo_links as a list.
func (s AlignedSegment) MarshalJSON() ([]byte, error) {
	type alias AlignedSegment
	out := alias(s)
	if out.LoLinks == nil {
		out.LoLinks = []LoLink{}
	}
	return json.Marshal(out)
}

// AlignmentResult is the reconciled alignment of a lesson. Segments has the
// same length and order as the segmented transcript it was built from.
type AlignmentResult struct {
	Segments  []AlignedSegment  `json:"segments"`
	Outcomes  []LearningOutcome `json:"outcomes,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Model     string            `json:"model,omitempty"`
	Truncated bool              `json:"truncated,omitempty"` // the model did not see the whole transcript
	CreatedAt time.Time         `json:"created_at"`
}

// LinkedCount returns how many segments carry at least one link.
func (r *AlignmentResult) LinkedCount() int {
	n := 0
	for _, s := range r.Segments {
		if len(s.LoLinks) > 0 {
			n++
		}
	}
	return n
}
