// internal/services/alignment_service.go
package services

import (
	"context"
	"strings"

	"github.com/Corphon/LectureCompanion/internal/alignment"
	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/llm"
	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/prompts"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

// AlignRequest overrides lesson data for one alignment run. Nil fields fall
// back to what the lesson stores.
type AlignRequest struct {
	Outcomes  []string `json:"outcomes,omitempty"`
	SlideHint *string  `json:"slide_hint,omitempty"`
	Model     string   `json:"model,omitempty"`
}

// AlignTextRequest is a stateless alignment input.
type AlignTextRequest struct {
	Transcript string   `json:"transcript"`
	Outcomes   []string `json:"outcomes"`
	SlideHint  string   `json:"slide_hint,omitempty"`
	Model      string   `json:"model,omitempty"`
}

// AlignmentService aligns lesson transcripts to learning outcomes.
type AlignmentService struct {
	completer llm.Completer
	lessons   *LessonService
	prompts   *prompts.Catalogue
	metrics   *utils.MetricsCollector
}

// NewAlignmentService creates an alignment service.
func NewAlignmentService(completer llm.Completer, lessons *LessonService, catalogue *prompts.Catalogue, metrics *utils.MetricsCollector) *AlignmentService {
	return &AlignmentService{
		completer: completer,
		lessons:   lessons,
		prompts:   catalogue,
		metrics:   metrics,
	}
}

// AlignLesson aligns the stored transcript and replaces the lesson's
// alignment. Nothing is written when the run fails or ctx is cancelled.
func (s *AlignmentService) AlignLesson(ctx context.Context, lessonID string, req AlignRequest) (*models.AlignmentResult, error) {
	lesson, err := s.lessons.Get(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	outcomes := lesson.Outcomes
	if req.Outcomes != nil {
		outcomes = req.Outcomes
	}
	slideHint := lesson.SlideText
	if req.SlideHint != nil {
		slideHint = *req.SlideHint
	}

	result, err := s.align(ctx, lesson.Transcript, outcomes, slideHint, req.Model)
	if err != nil {
		return nil, err
	}

	_, err = s.lessons.Mutate(ctx, lessonID, func(l *models.Lesson) error {
		l.Alignment = result
		if req.Outcomes != nil {
			l.Outcomes = req.Outcomes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.GetLogger().Info("alignment stored", map[string]interface{}{
		"lesson_id": lessonID,
		"segments":  len(result.Segments),
		"linked":    result.LinkedCount(),
		"truncated": result.Truncated,
	})
	return result, nil
}

// AlignText aligns a submitted transcript without touching any lesson.
func (s *AlignmentService) AlignText(ctx context.Context, req AlignTextRequest) (*models.AlignmentResult, error) {
	return s.align(ctx, req.Transcript, req.Outcomes, req.SlideHint, req.Model)
}

// GetAlignment returns the lesson's last alignment.
func (s *AlignmentService) GetAlignment(ctx context.Context, lessonID string) (*models.AlignmentResult, error) {
	lesson, err := s.lessons.Get(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Alignment == nil {
		return nil, apperrors.NewNotFoundError("lesson has no alignment yet", nil)
	}
	return lesson.Alignment, nil
}

func (s *AlignmentService) align(ctx context.Context, transcript string, outcomes []string, slideHint, model string) (*models.AlignmentResult, error) {
	prompt, err := s.prompts.Get("alignment")
	if err != nil {
		return nil, apperrors.NewProcessingError("alignment prompt missing", err)
	}

	requester := alignment.NewRequester(s.completer, prompt, strings.TrimSpace(model))
	result, err := requester.Align(ctx, transcript, outcomes, slideHint)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordAlignment("success", len(result.Segments), alignment.Unmatched(result.Segments))
	}
	return result, nil
}

func (s *AlignmentService) recordFailure(err error) {
	outcome := "error"
	switch {
	case apperrors.Is(err, apperrors.ErrEmptyOutcomes), apperrors.Is(err, apperrors.ErrEmptyTranscript):
		outcome = "invalid_input"
	case apperrors.Is(err, apperrors.ErrResponseParse):
		outcome = "parse_error"
	case apperrors.Is(err, apperrors.ErrResponseSchema):
		outcome = "schema_error"
	case apperrors.IsType(err, apperrors.ErrorTypeCancelled):
		outcome = "cancelled"
	case apperrors.IsUpstreamError(err):
		outcome = "upstream_error"
	}
	if s.metrics != nil {
		s.metrics.RecordAlignment(outcome, 0, 0)
		s.metrics.RecordError(outcome, "alignment")
	}
	utils.GetLogger().Warn("alignment failed", map[string]interface{}{
		"outcome": outcome,
		"error":   err.Error(),
	})
}
