package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Corphon/LectureCompanion/internal/models"
)

type fakeTranscriber struct {
	result *models.Transcript
	err    error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, mediaPath string, onProgress ProgressFunc) (*models.Transcript, error) {
	onProgress(50, "transcribing")
	return f.result, f.err
}

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ExtractText(ctx context.Context, path string) (string, error) {
	return f.text, f.err
}

func writeTempUpload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.bin")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStartTranscriptionStoresTranscript(t *testing.T) {
	lessons := newTestLessons(t)
	jobs := newTestJobs(t)
	segments := []models.TimedSegment{{Start: 0, End: 3, Text: "hello"}}
	svc := NewIngestService(lessons, jobs, &fakeTranscriber{result: &models.Transcript{
		Text:     "[00:00:00 – 00:00:03] hello",
		Segments: segments,
	}}, nil)
	ctx := context.Background()

	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T"})
	_ = lessons.SaveAlignment(ctx, l.ID, &models.AlignmentResult{})
	upload := writeTempUpload(t)

	job, err := svc.StartTranscription(ctx, l.ID, upload)
	if err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	final := waitForJob(t, jobs, job.ID)
	if final.Status != models.JobCompleted || final.Kind != models.JobTranscribe {
		t.Fatalf("final = %+v", final)
	}

	got, _ := lessons.Get(ctx, l.ID)
	if got.Transcript != "[00:00:00 – 00:00:03] hello" || len(got.TimedSegments) != 1 {
		t.Errorf("lesson = %+v", got)
	}
	if got.Alignment != nil {
		t.Error("stale alignment kept after new transcript")
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Error("upload not removed")
	}
}

func TestStartOCRFailureLeavesLesson(t *testing.T) {
	lessons := newTestLessons(t)
	jobs := newTestJobs(t)
	svc := NewIngestService(lessons, jobs, nil, &fakeOCR{err: errors.New("bad pdf")})
	ctx := context.Background()

	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T", SlideText: "old slides"})
	job, err := svc.StartOCR(ctx, l.ID, writeTempUpload(t))
	if err != nil {
		t.Fatalf("StartOCR: %v", err)
	}
	final := waitForJob(t, jobs, job.ID)
	if final.Status != models.JobFailed || final.Error != "bad pdf" {
		t.Errorf("final = %+v", final)
	}
	got, _ := lessons.Get(ctx, l.ID)
	if got.SlideText != "old slides" {
		t.Errorf("slide text = %q", got.SlideText)
	}
}

func TestStartOCRStoresText(t *testing.T) {
	lessons := newTestLessons(t)
	jobs := newTestJobs(t)
	svc := NewIngestService(lessons, jobs, nil, &fakeOCR{text: "Paging\n• TLB"})
	ctx := context.Background()

	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T"})
	job, _ := svc.StartOCR(ctx, l.ID, writeTempUpload(t))
	if final := waitForJob(t, jobs, job.ID); final.Status != models.JobCompleted {
		t.Fatalf("final = %+v", final)
	}
	got, _ := lessons.Get(ctx, l.ID)
	if got.SlideText != "Paging\n• TLB" {
		t.Errorf("slide text = %q", got.SlideText)
	}
}
