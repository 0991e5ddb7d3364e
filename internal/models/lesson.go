// internal/models/lesson.go
package models

import (
	"encoding/json"
	"time"
)

// ArtifactKind names a generated study artifact.
type ArtifactKind string

const (
	ArtifactStudyPlan  ArtifactKind = "study_plan"
	ArtifactQuiz       ArtifactKind = "quiz"
	ArtifactMindMap    ArtifactKind = "mind_map"
	ArtifactCheatSheet ArtifactKind = "cheat_sheet"
	ArtifactSummary    ArtifactKind = "summary"
)

// ArtifactKinds lists every kind in display order.
var ArtifactKinds = []ArtifactKind{
	ArtifactStudyPlan,
	ArtifactQuiz,
	ArtifactMindMap,
	ArtifactCheatSheet,
	ArtifactSummary,
}

// Valid reports whether k is a known kind.
func (k ArtifactKind) Valid() bool {
	for _, known := range ArtifactKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Lesson is the aggregate persisted as lessons/<id>/lesson.json.
type Lesson struct {
	ID            string                           `json:"id"`
	Title         string                           `json:"title"`
	Transcript    string                           `json:"transcript"`
	TimedSegments []TimedSegment                   `json:"timed_segments,omitempty"`
	SlideText     string                           `json:"slide_text,omitempty"`
	Outcomes      []string                         `json:"outcomes,omitempty"`
	Alignment     *AlignmentResult                 `json:"alignment,omitempty"`
	Deviation     *DeviationReport                 `json:"deviation,omitempty"`
	Artifacts     map[ArtifactKind]json.RawMessage `json:"artifacts,omitempty"`
	CreatedAt     time.Time                        `json:"created_at"`
	UpdatedAt     time.Time                        `json:"updated_at"`
}

// LessonSummary is the list view of a lesson.
type LessonSummary struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	HasTranscript bool           `json:"has_transcript"`
	HasSlides     bool           `json:"has_slides"`
	HasAlignment  bool           `json:"has_alignment"`
	Artifacts     []ArtifactKind `json:"artifacts"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Summary builds the list view.
func (l *Lesson) Summary() LessonSummary {
	s := LessonSummary{
		ID:            l.ID,
		Title:         l.Title,
		HasTranscript: l.Transcript != "",
		HasSlides:     l.SlideText != "",
		HasAlignment:  l.Alignment != nil,
		Artifacts:     []ArtifactKind{},
		UpdatedAt:     l.UpdatedAt,
	}
	for _, k := range ArtifactKinds {
		if _, ok := l.Artifacts[k]; ok {
			s.Artifacts = append(s.Artifacts, k)
		}
	}
	return s
}

// LessonPatch carries optional updates; nil fields are left unchanged.
type LessonPatch struct {
	Title      *string   `json:"title,omitempty"`
	Transcript *string   `json:"transcript,omitempty"`
	SlideText  *string   `json:"slide_text,omitempty"`
	Outcomes   *[]string `json:"outcomes,omitempty"`
}
