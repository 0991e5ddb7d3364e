// internal/services/ingest_service.go
package services

import (
	"context"
	"fmt"
	"os"

	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

// IngestService turns uploaded media and slides into lesson text through
// background jobs.
type IngestService struct {
	lessons     *LessonService
	jobs        *JobService
	transcriber TranscribeService
	ocr         OcrService
}

// NewIngestService creates an ingest service.
func NewIngestService(lessons *LessonService, jobs *JobService, transcriber TranscribeService, ocr OcrService) *IngestService {
	return &IngestService{
		lessons:     lessons,
		jobs:        jobs,
		transcriber: transcriber,
		ocr:         ocr,
	}
}

// StartTranscription queues a job that transcribes mediaPath and stores the
// transcript on the lesson. The media file is removed when the job ends.
func (s *IngestService) StartTranscription(ctx context.Context, lessonID, mediaPath string) (*models.Job, error) {
	job, err := s.jobs.Create(ctx, models.JobTranscribe, lessonID)
	if err != nil {
		return nil, err
	}

	s.jobs.Start(job, func(ctx context.Context, report func(int, string)) (string, error) {
		defer removeQuietly(mediaPath)

		result, err := s.transcriber.Transcribe(ctx, mediaPath, report)
		if err != nil {
			return "", err
		}
		if err := s.lessons.SetTranscript(ctx, lessonID, result); err != nil {
			return "", err
		}
		return fmt.Sprintf("transcribed %d segments", len(result.Segments)), nil
	})

	utils.GetLogger().Info("transcription queued", map[string]interface{}{
		"lesson_id": lessonID,
		"job_id":    job.ID,
	})
	return job, nil
}

// StartOCR queues a job that extracts slide text from path and stores it on
// the lesson. The uploaded file is removed when the job ends.
func (s *IngestService) StartOCR(ctx context.Context, lessonID, path string) (*models.Job, error) {
	job, err := s.jobs.Create(ctx, models.JobOCR, lessonID)
	if err != nil {
		return nil, err
	}

	s.jobs.Start(job, func(ctx context.Context, report func(int, string)) (string, error) {
		defer removeQuietly(path)

		report(10, "extracting slide text")
		text, err := s.ocr.ExtractText(ctx, path)
		if err != nil {
			return "", err
		}
		report(90, "saving slide text")
		if err := s.lessons.SetSlideText(ctx, lessonID, text); err != nil {
			return "", err
		}
		return fmt.Sprintf("extracted %d characters", len(text)), nil
	})

	utils.GetLogger().Info("ocr queued", map[string]interface{}{
		"lesson_id": lessonID,
		"job_id":    job.ID,
	})
	return job, nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		utils.GetLogger().Warn("failed to remove upload", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}
