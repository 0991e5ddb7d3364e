// internal/services/llm_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/LectureCompanion/internal/config"
	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/llm"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

var ErrLLMNotReady = errors.New("llm service not ready")

var providerDefaultModels = map[string]string{
	"openai":       "gpt-4.1",
	"anthropic":    "claude-haiku-4-5",
	"deepseek":     "deepseek-chat",
	"glm":          "glm-4.5-air",
	"google":       "gemini-2.0-flash",
	"qwen":         "qwen3-max",
	"githubmodels": "gpt-4.1-mini",
	"grok":         "grok-4-fast",
	"openrouter":   "openai/gpt-4.1-mini",
}

// LLMStatus describes the active provider.
type LLMStatus struct {
	Ready        bool     `json:"ready"`
	State        string   `json:"state"`
	Provider     string   `json:"provider"`
	DefaultModel string   `json:"default_model"`
	Providers    []string `json:"providers"`
}

// LLMService routes completions to the configured provider. It implements
// llm.Completer and never retries.
type LLMService struct {
	providerMutex      sync.RWMutex
	provider           llm.Provider
	providerName       string
	isReady            bool
	readyState         string
	activeDefaultModel string

	registry *llm.Registry
	store    *config.Store
	metrics  *utils.MetricsCollector
}

// NewLLMService builds the service from the persisted settings. A missing key
// or a provider that fails to initialise leaves the service not ready rather
// than failing startup.
func NewLLMService(store *config.Store, registry *llm.Registry, metrics *utils.MetricsCollector) *LLMService {
	if registry == nil {
		registry = llm.DefaultRegistry
	}
	s := &LLMService{
		registry:   registry,
		store:      store,
		metrics:    metrics,
		readyState: "Uninitialized",
	}
	if store == nil {
		s.readyState = "Configuration unavailable"
		return s
	}

	cfg := store.Current()
	if cfg.LLMProvider == "" || cfg.LLMConfig["api_key"] == "" {
		s.providerName = cfg.LLMProvider
		s.readyState = "API key not configured"
		return s
	}

	if err := s.activate(cfg.LLMProvider, cfg.LLMConfig); err != nil {
		utils.GetLogger().Warn("llm provider not initialised", map[string]interface{}{
			"provider": cfg.LLMProvider,
			"error":    err.Error(),
		})
	}
	return s
}

func (s *LLMService) activate(providerName string, settings map[string]string) error {
	provider, err := s.registry.GetProvider(providerName, settings)

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	if err != nil {
		s.isReady = false
		s.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return err
	}
	s.provider = provider
	s.providerName = providerName
	s.activeDefaultModel = strings.TrimSpace(settings["default_model"])
	s.isReady = true
	s.readyState = "Ready"
	return nil
}

// IsReady reports whether a provider is configured.
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady && s.provider != nil
}

// Status returns a snapshot of the provider state.
func (s *LLMService) Status() LLMStatus {
	s.providerMutex.RLock()
	status := LLMStatus{
		Ready:    s.isReady && s.provider != nil,
		State:    s.readyState,
		Provider: s.providerName,
	}
	s.providerMutex.RUnlock()

	status.DefaultModel = s.resolveModel("")
	status.Providers = s.registry.ListProviders()
	return status
}

// UpdateProvider switches provider, persisting the settings only if the
// provider initialises. An omitted api_key reuses the stored one.
func (s *LLMService) UpdateProvider(providerName string, settings map[string]string) error {
	providerName = strings.TrimSpace(providerName)
	if providerName == "" {
		return apperrors.NewValidationError("provider is required", nil)
	}

	merged := make(map[string]string, len(settings)+1)
	for k, v := range settings {
		merged[k] = strings.TrimSpace(v)
	}
	if merged["api_key"] == "" && s.store != nil {
		if cur := s.store.Current(); cur.LLMProvider == providerName {
			merged["api_key"] = cur.LLMConfig["api_key"]
		}
	}

	if err := s.activate(providerName, merged); err != nil {
		if errors.Is(err, llm.ErrUnknownProvider) {
			return apperrors.NewValidationError(fmt.Sprintf("unknown provider %q", providerName), err)
		}
		return apperrors.NewValidationError("provider configuration rejected", err)
	}

	if s.store != nil {
		if err := s.store.UpdateLLMConfig(providerName, merged); err != nil {
			return apperrors.NewProcessingError("failed to persist llm settings", err)
		}
	}

	utils.GetLogger().Info("llm provider updated", map[string]interface{}{
		"provider":      providerName,
		"default_model": merged["default_model"],
	})
	return nil
}

// CompleteText sends exactly one request to the active provider.
func (s *LLMService) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.providerMutex.RLock()
	provider := s.provider
	providerName := s.providerName
	ready := s.isReady
	state := s.readyState
	s.providerMutex.RUnlock()

	if !ready || provider == nil {
		return nil, apperrors.NewUnavailableError(state, ErrLLMNotReady)
	}

	req.Model = s.resolveModel(req.Model)
	start := time.Now()
	resp, err := provider.CompleteText(ctx, req)
	duration := time.Since(start)

	tokens := 0
	if resp != nil {
		tokens = resp.TokensUsed
	}
	if s.metrics != nil {
		s.metrics.RecordLLMRequest(providerName, req.Model, tokens, duration, err)
	}

	fields := map[string]interface{}{
		"provider":    providerName,
		"model":       req.Model,
		"duration_ms": duration.Milliseconds(),
		"tokens":      tokens,
	}
	if err != nil {
		fields["error"] = err.Error()
		utils.GetLogger().Warn("llm completion failed", fields)
		return nil, err
	}
	utils.GetLogger().Debug("llm completion", fields)

	if resp.ProviderName == "" {
		resp.ProviderName = providerName
	}
	if resp.ModelName == "" {
		resp.ModelName = req.Model
	}
	return resp, nil
}

// ListModels returns the provider's models, querying the vendor when fetch is set.
func (s *LLMService) ListModels(ctx context.Context, fetch bool) ([]string, error) {
	s.providerMutex.RLock()
	provider := s.provider
	s.providerMutex.RUnlock()

	if provider == nil {
		return nil, apperrors.NewUnavailableError("llm provider not configured", ErrLLMNotReady)
	}
	if !fetch {
		return provider.GetSupportedModels(), nil
	}
	if err := provider.FetchAvailableModels(ctx); err != nil {
		return nil, apperrors.NewUpstreamError("failed to list models", err)
	}
	return provider.GetSupportedModels(), nil
}

// GetProviderName returns the active provider name.
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// GetDefaultModel returns the model used when a request names none.
func (s *LLMService) GetDefaultModel() string {
	return s.resolveModel("")
}

func (s *LLMService) resolveModel(requestedModel string) string {
	if trimmed := strings.TrimSpace(requestedModel); trimmed != "" {
		return trimmed
	}

	s.providerMutex.RLock()
	provider := s.provider
	providerName := s.providerName
	activeDefault := s.activeDefaultModel
	s.providerMutex.RUnlock()

	if activeDefault != "" {
		return activeDefault
	}
	if provider != nil {
		if models := provider.GetSupportedModels(); len(models) > 0 {
			if model := strings.TrimSpace(models[0]); model != "" {
				return model
			}
		}
	}
	if model, ok := providerDefaultModels[providerName]; ok {
		return model
	}
	return "gpt-4.1"
}
