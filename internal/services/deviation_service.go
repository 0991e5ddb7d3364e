// internal/services/deviation_service.go
package services

import (
	"context"
	"strings"

	"github.com/Corphon/LectureCompanion/internal/alignment"
	"github.com/Corphon/LectureCompanion/internal/deviation"
	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/transcript"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

// DeviationService compares what a lecture said with its slides.
type DeviationService struct {
	lessons *LessonService
}

// NewDeviationService creates a deviation service.
func NewDeviationService(lessons *LessonService) *DeviationService {
	return &DeviationService{lessons: lessons}
}

// AnalyzeLesson builds a deviation report for the lesson and stores it.
// Timed segments from transcription are preferred, then timestamped lines
// in the transcript, then paragraphs.
func (s *DeviationService) AnalyzeLesson(ctx context.Context, lessonID string) (*models.DeviationReport, error) {
	lesson, err := s.lessons.Get(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(lesson.Transcript) == "" && len(lesson.TimedSegments) == 0 {
		return nil, apperrors.EmptyTranscriptError()
	}
	if strings.TrimSpace(lesson.SlideText) == "" {
		return nil, apperrors.NewValidationError("lesson has no slide text", nil)
	}

	report := deviation.Analyze(deviationSegments(lesson), lesson.SlideText, lesson.Title)

	if err := s.lessons.SaveDeviation(ctx, lessonID, report); err != nil {
		return nil, err
	}

	utils.GetLogger().Info("deviation report stored", map[string]interface{}{
		"lesson_id": lessonID,
		"segments":  report.Summary.Total,
		"score":     report.Summary.OverallScore,
	})
	return report, nil
}

func deviationSegments(lesson *models.Lesson) []models.TimedSegment {
	if len(lesson.TimedSegments) > 0 {
		return lesson.TimedSegments
	}
	if timed := transcript.Parse(lesson.Transcript); len(timed) > 0 {
		return timed
	}
	paragraphs := alignment.Segment(lesson.Transcript)
	out := make([]models.TimedSegment, len(paragraphs))
	for i, p := range paragraphs {
		out[i] = models.TimedSegment{Text: p.Text}
	}
	return out
}
