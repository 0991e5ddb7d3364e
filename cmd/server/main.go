// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/LectureCompanion/internal/api"
	"github.com/Corphon/LectureCompanion/internal/config"
	"github.com/Corphon/LectureCompanion/internal/di"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := utils.NewLogger(utils.LoggerOptions{
		Debug:   cfg.DebugMode,
		LogFile: filepath.Join(cfg.LogDir, "server.log"),
	})
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	utils.SetLogger(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.New(ctx, cfg, di.Options{})
	if err != nil {
		logger.Fatal("failed to initialise services", map[string]interface{}{"error": err.Error()})
	}

	status := container.LLM.Status()
	logger.Info("services ready", map[string]interface{}{
		"data_dir":     cfg.DataDir,
		"llm_provider": status.Provider,
		"llm_state":    status.State,
		"job_store":    jobStoreName(cfg),
		"transcriber":  cfg.TranscribeCmd != "",
		"ocr":          cfg.OCRCmd != "",
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.SetupRouter(container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", map[string]interface{}{"error": err.Error()})
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Error("service shutdown", map[string]interface{}{"error": err.Error()})
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete", nil)
}

func jobStoreName(cfg *config.Config) string {
	if cfg.RedisAddr != "" {
		return "redis"
	}
	return "memory"
}
