// internal/llm/providers/openai/openai.go
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/Corphon/LectureCompanion/internal/llm"
)

// preset describes an OpenAI-compatible backend.
type preset struct {
	name         string
	displayName  string
	baseURL      string
	defaultModel string
	models       []string
	jsonMode     bool // backend accepts response_format=json_object
}

var presets = []preset{
	{
		name: "openai", displayName: "OpenAI",
		defaultModel: "gpt-4o-mini",
		models:       []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini", "gpt-4.1"},
		jsonMode:     true,
	},
	{
		name: "openrouter", displayName: "OpenRouter",
		baseURL:      "https://openrouter.ai/api/v1",
		defaultModel: "openai/gpt-4o-mini",
		models:       []string{"openai/gpt-4o-mini", "anthropic/claude-3.5-sonnet", "google/gemini-2.0-flash-001", "meta-llama/llama-3.3-70b-instruct"},
	},
	{
		name: "deepseek", displayName: "DeepSeek",
		baseURL:      "https://api.deepseek.com/v1",
		defaultModel: "deepseek-chat",
		models:       []string{"deepseek-chat", "deepseek-reasoner"},
		jsonMode:     true,
	},
	{
		name: "grok", displayName: "xAI Grok",
		baseURL:      "https://api.x.ai/v1",
		defaultModel: "grok-2-latest",
		models:       []string{"grok-2-latest", "grok-3-mini"},
	},
	{
		name: "githubmodels", displayName: "GitHub Models",
		baseURL:      "https://models.inference.ai.azure.com",
		defaultModel: "gpt-4o-mini",
		models:       []string{"gpt-4o-mini", "gpt-4o", "Meta-Llama-3.1-70B-Instruct"},
	},
	{
		name: "qwen", displayName: "Qwen (DashScope)",
		baseURL:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
		defaultModel: "qwen-plus",
		models:       []string{"qwen-plus", "qwen-max", "qwen-turbo"},
		jsonMode:     true,
	},
	{
		name: "google", displayName: "Google Gemini",
		baseURL:      "https://generativelanguage.googleapis.com/v1beta/openai/",
		defaultModel: "gemini-2.0-flash",
		models:       []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"},
		jsonMode:     true,
	},
	{
		name: "glm", displayName: "Zhipu GLM",
		baseURL:      "https://open.bigmodel.cn/api/paas/v4",
		defaultModel: "glm-4-flash",
		models:       []string{"glm-4-flash", "glm-4-plus", "glm-4-air"},
	},
}

func init() {
	for _, p := range presets {
		p := p
		llm.Register(p.name, func() llm.Provider { return &Provider{preset: p} })
	}
}

// New returns an uninitialised provider for a registered preset name.
func New(name string) (*Provider, error) {
	for _, p := range presets {
		if p.name == name {
			return &Provider{preset: p}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", llm.ErrUnknownProvider, name)
}

// Provider talks to any OpenAI-compatible chat completions endpoint.
type Provider struct {
	preset preset

	mu              sync.RWMutex
	client          oai.Client
	defaultModel    string
	availableModels []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New(p.preset.name + ": api_key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	baseURL := p.preset.baseURL
	if v := config["base_url"]; v != "" {
		baseURL = v
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if org := config["organization"]; org != "" {
		opts = append(opts, option.WithOrganization(org))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.client = oai.NewClient(opts...)
	p.defaultModel = p.preset.defaultModel
	if m := config["default_model"]; m != "" {
		p.defaultModel = m
	}
	if raw := config["custom_models"]; raw != "" {
		var models []string
		if err := json.Unmarshal([]byte(raw), &models); err == nil && len(models) > 0 {
			p.availableModels = models
		}
	}
	return nil
}

func (p *Provider) GetName() string {
	return p.preset.displayName
}

func (p *Provider) GetSupportedModels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.availableModels) > 0 {
		return append([]string(nil), p.availableModels...)
	}
	return append([]string(nil), p.preset.models...)
}

func (p *Provider) FetchAvailableModels(ctx context.Context) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	page, err := client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s: list models: %w", p.preset.name, err)
	}

	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	if len(models) > 0 {
		p.SetCustomModels(models)
	}
	return nil
}

func (p *Provider) SetCustomModels(models []string) {
	if len(models) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.availableModels = append([]string(nil), models...)
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.RLock()
	client := p.client
	model := p.defaultModel
	p.mu.RUnlock()

	if req.Model != "" {
		model = req.Model
	}
	params := p.buildParams(model, req)

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion: %w", p.preset.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices in response", p.preset.name)
	}

	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return nil, fmt.Errorf("%s: empty message content", p.preset.name)
	}

	return &llm.CompletionResponse{
		Text:         text,
		FinishReason: choice.FinishReason,
		TokensUsed:   int(resp.Usage.TotalTokens),
		PromptTokens: int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		ModelName:    model,
		ProviderName: p.preset.name,
	}, nil
}

// buildParams converts a CompletionRequest into SDK params.
func (p *Provider) buildParams(model string, req llm.CompletionRequest) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, oai.UserMessage(req.Prompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = param.NewOpt(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if len(req.StopWords) > 0 {
		params.Stop = oai.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopWords}
	}
	if req.JSONMode && p.preset.jsonMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}
