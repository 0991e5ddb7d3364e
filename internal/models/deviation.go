// internal/models/deviation.go
package models

import "time"

// DeviationStatus classifies how a transcript segment relates to the slides.
type DeviationStatus string

const (
	DeviationOnSlide  DeviationStatus = "on_slide"
	DeviationExpanded DeviationStatus = "expanded"
	DeviationOffSlide DeviationStatus = "off_slide"
	DeviationBanter   DeviationStatus = "banter"
)

// SegmentDeviation is the analysis of one transcript segment.
type SegmentDeviation struct {
	Index          int             `json:"index"`
	Text           string          `json:"text"`
	Start          float64         `json:"start,omitempty"`
	End            float64         `json:"end,omitempty"`
	Status         DeviationStatus `json:"status"`
	Confidence     float64         `json:"confidence"`
	Reason         string          `json:"reason"`
	SlideCoverage  float64         `json:"slide_coverage"`
	TopicRelevance float64         `json:"topic_relevance"`
	BanterScore    float64         `json:"banter_score"`
}

// DeviationSummary aggregates segment statuses.
type DeviationSummary struct {
	Total          int                     `json:"total"`
	Counts         map[DeviationStatus]int `json:"counts"`
	Percents       map[DeviationStatus]int `json:"percents"`
	OverallScore   int                     `json:"overall_score"`
	MissedTopics   []string                `json:"missed_topics"`
	ExtraTopics    []string                `json:"extra_topics"`
	Interpretation string                  `json:"interpretation"`
}

// DeviationReport compares what was said with what the slides cover.
type DeviationReport struct {
	Segments  []SegmentDeviation `json:"segments"`
	Summary   DeviationSummary   `json:"summary"`
	CreatedAt time.Time          `json:"created_at"`
}
