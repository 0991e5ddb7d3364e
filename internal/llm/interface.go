// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned for names nobody registered.
var ErrUnknownProvider = errors.New("unknown llm provider")

// CompletionRequest is the provider-neutral request shape.
type CompletionRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	TopP         float64  `json:"top_p,omitempty"`
	Model        string   `json:"model,omitempty"`
	StopWords    []string `json:"stop_words,omitempty"`
	JSONMode     bool     `json:"json_mode,omitempty"` // ask for a JSON object when the backend supports it
}

// CompletionResponse is the provider-neutral response shape.
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Completer is the single capability the alignment core needs.
type Completer interface {
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Provider is implemented by every LLM backend.
type Provider interface {
	Completer

	// Initialize configures the provider. Recognised keys: api_key,
	// default_model, base_url, custom_models (JSON list).
	Initialize(config map[string]string) error

	GetName() string

	GetSupportedModels() []string

	// FetchAvailableModels asks the backend for the account's model list.
	FetchAvailableModels(ctx context.Context) error

	SetCustomModels(models []string)
}

// ProviderFactory builds an uninitialised provider.
type ProviderFactory func() Provider

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// DefaultRegistry is filled by provider packages in their init functions.
var DefaultRegistry = NewRegistry()

// Register adds or replaces a factory.
func (r *Registry) Register(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// GetProvider builds and initialises the named provider.
func (r *Registry) GetProvider(name string, config map[string]string) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", name, err)
	}
	return provider, nil
}

// ListProviders returns registered names in sorted order.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportedModels returns the recommended models of a provider without initialising it.
func (r *Registry) SupportedModels(name string) []string {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return []string{}
	}
	return factory().GetSupportedModels()
}

// Register adds a factory to DefaultRegistry.
func Register(name string, factory ProviderFactory) {
	DefaultRegistry.Register(name, factory)
}
