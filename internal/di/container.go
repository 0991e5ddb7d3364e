// internal/di/container.go
package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Corphon/LectureCompanion/internal/config"
	"github.com/Corphon/LectureCompanion/internal/llm"
	"github.com/Corphon/LectureCompanion/internal/prompts"
	"github.com/Corphon/LectureCompanion/internal/services"
	"github.com/Corphon/LectureCompanion/internal/storage"
	"github.com/Corphon/LectureCompanion/internal/utils"

	// Provider packages register themselves with llm.DefaultRegistry.
	_ "github.com/Corphon/LectureCompanion/internal/llm/providers/anthropic"
	_ "github.com/Corphon/LectureCompanion/internal/llm/providers/openai"
)

// Container holds every service the HTTP layer needs. It is built once in
// main and passed down explicitly.
type Container struct {
	Config   *config.Config
	Settings *config.Store
	Metrics  *utils.MetricsCollector
	Storage  *storage.FileStorage
	JobStore storage.KVStore
	Prompts  *prompts.Catalogue

	Locks     *services.LockManager
	LLM       *services.LLMService
	Lessons   *services.LessonService
	Alignment *services.AlignmentService
	Study     *services.StudyService
	Deviation *services.DeviationService
	Jobs      *services.JobService
	Ingest    *services.IngestService

	watcher *storage.CacheWatcher
}

// Options overrides parts of the container, mainly for tests.
type Options struct {
	Registry    *llm.Registry
	Completer   llm.Completer // replaces the LLM service for alignment and study
	Transcriber services.TranscribeService
	OCR         services.OcrService
	Metrics     *utils.MetricsCollector
}

// New wires the services for cfg. Background loops started here stop when
// ctx is done; Close releases the rest.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{Config: cfg}

	catalogue, err := loadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	c.Prompts = catalogue

	transcriber, ocr, err := capabilities(cfg, opts)
	if err != nil {
		return nil, err
	}

	c.Metrics = opts.Metrics
	if c.Metrics == nil {
		c.Metrics = utils.GetMetricsCollector()
	}

	settings, err := config.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	c.Settings = settings

	fs, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	c.Storage = fs
	fs.StartCacheCleanup(ctx)

	if w, err := storage.NewCacheWatcher(fs, "lessons"); err != nil {
		utils.GetLogger().Warn("cache watcher disabled", map[string]interface{}{"error": err.Error()})
	} else {
		c.watcher = w
		go w.Run(ctx)
	}

	if cfg.RedisAddr != "" {
		kv, err := storage.NewRedisKV(ctx, cfg.RedisAddr, "lecture-companion")
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("connect job store: %w", err)
		}
		c.JobStore = kv
	} else {
		c.JobStore = storage.NewMemoryKV(time.Minute)
	}

	registry := opts.Registry
	if registry == nil {
		registry = llm.DefaultRegistry
	}
	c.LLM = services.NewLLMService(settings, registry, c.Metrics)

	var completer llm.Completer = c.LLM
	if opts.Completer != nil {
		completer = opts.Completer
	}

	c.Locks = services.NewLockManager()
	c.Locks.StartCleanup(ctx, 5*time.Minute)

	c.Lessons = services.NewLessonService(fs, c.Locks)
	c.Alignment = services.NewAlignmentService(completer, c.Lessons, catalogue, c.Metrics)
	c.Study = services.NewStudyService(completer, c.Lessons, catalogue, c.Metrics)
	c.Deviation = services.NewDeviationService(c.Lessons)
	c.Jobs = services.NewJobService(c.JobStore, cfg.JobTTL, c.Metrics)

	c.Ingest = services.NewIngestService(c.Lessons, c.Jobs, transcriber, ocr)

	return c, nil
}

// capabilities returns the injected transcriber and OCR, or command-backed
// ones built from cfg.
func capabilities(cfg *config.Config, opts Options) (services.TranscribeService, services.OcrService, error) {
	transcriber, ocr := opts.Transcriber, opts.OCR
	if transcriber == nil {
		t, err := services.NewCommandTranscriber(cfg.TranscribeCmd)
		if err != nil {
			return nil, nil, err
		}
		transcriber = t
	}
	if ocr == nil {
		o, err := services.NewCommandOCR(cfg.OCRCmd)
		if err != nil {
			return nil, nil, err
		}
		ocr = o
	}
	return transcriber, ocr, nil
}

// Close stops running jobs and releases stores.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Jobs != nil {
		if err := c.Jobs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop jobs: %w", err))
		}
	}
	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", err))
		}
	}
	if c.JobStore != nil {
		if err := c.JobStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close job store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func loadPrompts(path string) (*prompts.Catalogue, error) {
	if path == "" {
		return prompts.Load()
	}
	return prompts.LoadFile(path)
}
