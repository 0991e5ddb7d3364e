// internal/services/study_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/llm"
	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/prompts"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

const (
	maxArtifactTranscriptChars = 24000
	maxArtifactSlideChars      = 8000
)

// artifactPromptData feeds the study artifact templates.
type artifactPromptData struct {
	Title      string
	Transcript string
	SlideText  string
	Outcomes   []string
}

// StudyService generates study artifacts from a lesson through the LLM.
type StudyService struct {
	completer llm.Completer
	lessons   *LessonService
	prompts   *prompts.Catalogue
	metrics   *utils.MetricsCollector
}

// NewStudyService creates a study service.
func NewStudyService(completer llm.Completer, lessons *LessonService, catalogue *prompts.Catalogue, metrics *utils.MetricsCollector) *StudyService {
	return &StudyService{
		completer: completer,
		lessons:   lessons,
		prompts:   catalogue,
		metrics:   metrics,
	}
}

// Generate builds one artifact, stores it on the lesson and returns it.
func (s *StudyService) Generate(ctx context.Context, lessonID string, kind models.ArtifactKind) (json.RawMessage, error) {
	if !kind.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown artifact kind %q", kind), nil)
	}

	lesson, err := s.lessons.Get(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(lesson.Transcript) == "" {
		return nil, apperrors.EmptyTranscriptError()
	}

	prompt, err := s.prompts.Get(string(kind))
	if err != nil {
		return nil, apperrors.NewProcessingError("artifact prompt missing", err)
	}

	outcomes := make([]string, 0, len(lesson.Outcomes))
	for _, o := range lesson.Outcomes {
		if t := strings.TrimSpace(o); t != "" {
			outcomes = append(outcomes, t)
		}
	}
	req, err := prompt.Request(artifactPromptData{
		Title:      lesson.Title,
		Transcript: clipRunes(lesson.Transcript, maxArtifactTranscriptChars),
		SlideText:  clipRunes(lesson.SlideText, maxArtifactSlideChars),
		Outcomes:   outcomes,
	})
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to render prompt", err)
	}

	resp, err := s.completer.CompleteText(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewAppError(apperrors.ErrorTypeCancelled, "artifact generation cancelled", err)
		}
		return nil, apperrors.WrapError(err, "artifact generation failed", apperrors.ErrorTypeUpstream)
	}

	body, err := DecodeArtifact(resp.Text)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("parse_error", "study")
		}
		return nil, err
	}

	if err := s.lessons.SaveArtifact(ctx, lessonID, kind, body); err != nil {
		return nil, err
	}

	utils.GetLogger().Info("artifact generated", map[string]interface{}{
		"lesson_id": lessonID,
		"kind":      string(kind),
		"bytes":     len(body),
	})
	return body, nil
}

// Get returns a stored artifact.
func (s *StudyService) Get(ctx context.Context, lessonID string, kind models.ArtifactKind) (json.RawMessage, error) {
	if !kind.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown artifact kind %q", kind), nil)
	}
	lesson, err := s.lessons.Get(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	body, ok := lesson.Artifacts[kind]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("lesson has no %s yet", kind), nil)
	}
	return body, nil
}

// DecodeArtifact extracts the JSON document from model output and
// re-encodes it compactly. Only objects and arrays are accepted.
func DecodeArtifact(text string) (json.RawMessage, error) {
	cleaned := llm.CleanJSON(text)
	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, apperrors.ResponseParseError(err)
	}
	switch v.(type) {
	case map[string]any, []any:
	default:
		return nil, apperrors.ResponseSchemaError("artifact is not a JSON object or array")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to encode artifact", err)
	}
	return out, nil
}

func clipRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
