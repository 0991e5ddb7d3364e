package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Corphon/LectureCompanion/internal/config"
	"github.com/Corphon/LectureCompanion/internal/llm"
	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/services"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

func TestMain(m *testing.M) {
	utils.SetLogger(utils.NewNopLogger())
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:     t.TempDir(),
		RateLimit:   60,
		MaxUploadMB: 10,
		JobTTL:      time.Hour,
		LLMProvider: "openai",
	}
}

func TestNewWiresServices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	c, err := New(ctx, cfg, Options{Registry: llm.NewRegistry(), Metrics: utils.NewMetricsCollector(false)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(context.Background())

	if c.Lessons == nil || c.Alignment == nil || c.Study == nil || c.Deviation == nil || c.Jobs == nil || c.Ingest == nil {
		t.Fatalf("container = %+v", c)
	}
	if c.LLM.IsReady() {
		t.Error("llm ready without an api key")
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "config.json")); err != nil {
		t.Errorf("settings not persisted: %v", err)
	}

	lesson, err := c.Lessons.Create(ctx, services.CreateLessonRequest{Title: "Paging", Transcript: "text"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = c.Alignment.AlignLesson(ctx, lesson.ID, services.AlignRequest{Outcomes: []string{"Explain paging"}})
	if !apperrors.IsType(err, apperrors.ErrorTypeUnavailable) {
		t.Errorf("align without provider err = %v, want unavailable", err)
	}
}

func TestNewUsesCommandCapabilities(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := New(ctx, testConfig(t), Options{Registry: llm.NewRegistry(), Metrics: utils.NewMetricsCollector(false)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(context.Background())

	lesson, _ := c.Lessons.Create(ctx, services.CreateLessonRequest{Title: "T"})
	job, err := c.Ingest.StartOCR(ctx, lesson.ID, filepath.Join(t.TempDir(), "deck.pdf"))
	if err != nil {
		t.Fatalf("StartOCR: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := c.Jobs.Get(ctx, job.ID)
		if got.Status.Terminal() {
			if got.Error == "" {
				t.Errorf("job = %+v, want failure without an OCR command", got)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish")
}

func TestNewRejectsBrokenPromptFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.PromptsFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(context.Background(), cfg, Options{Registry: llm.NewRegistry(), Metrics: utils.NewMetricsCollector(false)}); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}

func TestNewRejectsMalformedCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.TranscribeCmd = `"/opt/My Tools/whisper --lang en`
	_, err := New(context.Background(), cfg, Options{Registry: llm.NewRegistry(), Metrics: utils.NewMetricsCollector(false)})
	if !apperrors.IsValidationError(err) {
		t.Fatalf("err = %v, want validation error for unclosed quote", err)
	}
}
