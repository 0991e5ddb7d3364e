// internal/services/lesson_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/storage"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

const (
	lessonsDir     = "lessons"
	lessonFileName = "lesson.json"
	uploadsDir     = "uploads"
)

// CreateLessonRequest is the input of LessonService.Create.
type CreateLessonRequest struct {
	Title      string   `json:"title"`
	Transcript string   `json:"transcript"`
	SlideText  string   `json:"slide_text"`
	Outcomes   []string `json:"outcomes"`
}

// LessonService persists lessons as lessons/<id>/lesson.json. Every write
// holds the lesson's lock and goes through an atomic file replace.
type LessonService struct {
	storage *storage.FileStorage
	locks   *LockManager
}

// NewLessonService creates a lesson service.
func NewLessonService(fs *storage.FileStorage, locks *LockManager) *LessonService {
	if locks == nil {
		locks = NewLockManager()
	}
	return &LessonService{storage: fs, locks: locks}
}

// Create stores a new lesson.
func (s *LessonService) Create(ctx context.Context, req CreateLessonRequest) (*models.Lesson, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}

	now := time.Now().UTC()
	lesson := &models.Lesson{
		ID:         uuid.NewString(),
		Title:      title,
		Transcript: req.Transcript,
		SlideText:  req.SlideText,
		Outcomes:   req.Outcomes,
		Artifacts:  map[models.ArtifactKind]json.RawMessage{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.locks.WithLessonLock(lesson.ID, func() error {
		return s.save(lesson)
	})
	if err != nil {
		return nil, err
	}

	utils.GetLogger().Info("lesson created", map[string]interface{}{
		"lesson_id": lesson.ID,
		"title":     lesson.Title,
	})
	return lesson, nil
}

// Get loads a lesson.
func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	if err := validateLessonID(id); err != nil {
		return nil, err
	}
	var lesson *models.Lesson
	err := s.locks.WithLessonReadLock(id, func() error {
		var err error
		lesson, err = s.load(id)
		return err
	})
	return lesson, err
}

// List returns lesson summaries, most recently updated first. Unreadable
// lesson directories are skipped.
func (s *LessonService) List(ctx context.Context) ([]models.LessonSummary, error) {
	ids, err := s.storage.ListDirs(lessonsDir)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to list lessons", err)
	}

	summaries := make([]models.LessonSummary, 0, len(ids))
	for _, id := range ids {
		if validateLessonID(id) != nil {
			continue
		}
		lesson, err := s.load(id)
		if err != nil {
			utils.GetLogger().Warn("skipping unreadable lesson", map[string]interface{}{
				"lesson_id": id,
				"error":     err.Error(),
			})
			continue
		}
		summaries = append(summaries, lesson.Summary())
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Update applies a patch. Changing the transcript drops the stale alignment
// and deviation report.
func (s *LessonService) Update(ctx context.Context, id string, patch models.LessonPatch) (*models.Lesson, error) {
	return s.Mutate(ctx, id, func(l *models.Lesson) error {
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return apperrors.NewValidationError("title cannot be empty", nil)
			}
			l.Title = title
		}
		if patch.Transcript != nil && *patch.Transcript != l.Transcript {
			l.Transcript = *patch.Transcript
			l.TimedSegments = nil
			l.Alignment = nil
			l.Deviation = nil
		}
		if patch.SlideText != nil && *patch.SlideText != l.SlideText {
			l.SlideText = *patch.SlideText
			l.Deviation = nil
		}
		if patch.Outcomes != nil {
			l.Outcomes = *patch.Outcomes
		}
		return nil
	})
}

// Delete removes a lesson and its uploads.
func (s *LessonService) Delete(ctx context.Context, id string) error {
	if err := validateLessonID(id); err != nil {
		return err
	}
	return s.locks.WithLessonLock(id, func() error {
		if err := s.storage.DeleteDir(path.Join(lessonsDir, id)); err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				return apperrors.NewNotFoundError(fmt.Sprintf("lesson %s not found", id), err)
			}
			return apperrors.NewProcessingError("failed to delete lesson", err)
		}
		utils.GetLogger().Info("lesson deleted", map[string]interface{}{"lesson_id": id})
		return nil
	})
}

// Mutate loads a lesson, applies fn and saves it under the lesson lock.
// Nothing is written if fn fails or ctx is already done.
func (s *LessonService) Mutate(ctx context.Context, id string, fn func(*models.Lesson) error) (*models.Lesson, error) {
	if err := validateLessonID(id); err != nil {
		return nil, err
	}
	var lesson *models.Lesson
	err := s.locks.WithLessonLock(id, func() error {
		l, err := s.load(id)
		if err != nil {
			return err
		}
		if err := fn(l); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return apperrors.NewAppError(apperrors.ErrorTypeCancelled, "request cancelled", err)
		}
		l.UpdatedAt = time.Now().UTC()
		if err := s.save(l); err != nil {
			return err
		}
		lesson = l
		return nil
	})
	return lesson, err
}

// SaveAlignment replaces the lesson's alignment result.
func (s *LessonService) SaveAlignment(ctx context.Context, id string, result *models.AlignmentResult) error {
	_, err := s.Mutate(ctx, id, func(l *models.Lesson) error {
		l.Alignment = result
		return nil
	})
	return err
}

// SaveDeviation replaces the lesson's deviation report.
func (s *LessonService) SaveDeviation(ctx context.Context, id string, report *models.DeviationReport) error {
	_, err := s.Mutate(ctx, id, func(l *models.Lesson) error {
		l.Deviation = report
		return nil
	})
	return err
}

// SaveArtifact stores one generated artifact, replacing any earlier one of that kind.
func (s *LessonService) SaveArtifact(ctx context.Context, id string, kind models.ArtifactKind, body json.RawMessage) error {
	_, err := s.Mutate(ctx, id, func(l *models.Lesson) error {
		if l.Artifacts == nil {
			l.Artifacts = map[models.ArtifactKind]json.RawMessage{}
		}
		l.Artifacts[kind] = body
		return nil
	})
	return err
}

// SetTranscript stores a transcription result, dropping the stale alignment.
func (s *LessonService) SetTranscript(ctx context.Context, id string, transcript *models.Transcript) error {
	_, err := s.Mutate(ctx, id, func(l *models.Lesson) error {
		l.Transcript = transcript.Text
		l.TimedSegments = transcript.Segments
		l.Alignment = nil
		l.Deviation = nil
		return nil
	})
	return err
}

// SetSlideText stores extracted slide text.
func (s *LessonService) SetSlideText(ctx context.Context, id, text string) error {
	_, err := s.Mutate(ctx, id, func(l *models.Lesson) error {
		l.SlideText = text
		l.Deviation = nil
		return nil
	})
	return err
}

// SaveUpload streams an uploaded file into the lesson's uploads directory
// and returns its absolute path. The name is reduced to its base element.
func (s *LessonService) SaveUpload(ctx context.Context, id, filename string, r io.Reader, limit int64) (string, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return "", err
	}
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || name == "" {
		return "", apperrors.NewValidationError("invalid upload file name", nil)
	}
	name = uuid.NewString()[:8] + "-" + name

	dir := path.Join(lessonsDir, id, uploadsDir)
	if _, err := s.storage.SaveStream(dir, name, r, limit); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return "", apperrors.NewValidationError("upload exceeds size limit", err)
		}
		return "", apperrors.NewProcessingError("failed to store upload", err)
	}
	return s.storage.Path(dir, name)
}

func (s *LessonService) load(id string) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := s.storage.LoadJSONFile(path.Join(lessonsDir, id), lessonFileName, &lesson); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("lesson %s not found", id), err)
		}
		return nil, apperrors.NewProcessingError("failed to load lesson", err)
	}
	return &lesson, nil
}

func (s *LessonService) save(lesson *models.Lesson) error {
	if err := s.storage.SaveJSONFile(path.Join(lessonsDir, lesson.ID), lessonFileName, lesson); err != nil {
		return apperrors.NewProcessingError("failed to save lesson", err)
	}
	return nil
}

func validateLessonID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("lesson %s not found", id), err)
	}
	return nil
}
