// internal/llm/providers/anthropic/anthropic.go
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/LectureCompanion/internal/llm"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
	defaultModel      = "claude-3-5-haiku-latest"
	defaultMaxTokens  = 4096
)

func init() {
	llm.Register("anthropic", func() llm.Provider { return New() })
}

// Provider calls the Anthropic Messages API.
type Provider struct {
	mu                sync.RWMutex
	apiKey            string
	baseURL           string
	apiVersion        string
	client            *http.Client
	defaultModel      string
	recommendedModels []string
	availableModels   []string
}

// New returns an uninitialised provider.
func New() *Provider {
	return &Provider{
		baseURL:    defaultBaseURL,
		apiVersion: defaultAPIVersion,
		recommendedModels: []string{
			"claude-3-5-haiku-latest",
			"claude-3-7-sonnet-latest",
			"claude-sonnet-4-0",
		},
	}
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New("anthropic: api_key is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 5 * time.Minute}
	p.defaultModel = defaultModel
	if m := config["default_model"]; m != "" {
		p.defaultModel = m
	}
	if u := config["base_url"]; u != "" {
		p.baseURL = strings.TrimRight(u, "/")
	}
	if v := config["api_version"]; v != "" {
		p.apiVersion = v
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
	return "Anthropic Claude"
}

func (p *Provider) GetSupportedModels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.availableModels) > 0 {
		return append([]string(nil), p.availableModels...)
	}
	return append([]string(nil), p.recommendedModels...)
}

func (p *Provider) FetchAvailableModels(ctx context.Context) error {
	var response struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, "/v1/models", nil, &response); err != nil {
		return fmt.Errorf("anthropic: list models: %w", err)
	}

	models := make([]string, 0, len(response.Data))
	for _, m := range response.Data {
		models = append(models, m.ID)
	}
	p.SetCustomModels(models)
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model         string    `json:"model"`
	Messages      []message `json:"messages"`
	System        string    `json:"system,omitempty"`
	MaxTokens     int       `json:"max_tokens"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

type messagesResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.RLock()
	model := p.defaultModel
	p.mu.RUnlock()
	if req.Model != "" {
		model = req.Model
	}

	body := messagesRequest{
		Model:         model,
		Messages:      []message{{Role: "user", Content: req.Prompt}},
		System:        req.SystemPrompt,
		MaxTokens:     req.MaxTokens,
		StopSequences: req.StopWords,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	if req.Temperature != 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if req.TopP > 0 {
		tp := req.TopP
		body.TopP = &tp
	}
	// The Messages API has no JSON mode; prefilling the assistant turn with
	// "{" keeps the reply on a JSON object.
	prefill := ""
	if req.JSONMode {
		prefill = "{"
		body.Messages = append(body.Messages, message{Role: "assistant", Content: prefill})
	}

	var response messagesResponse
	if err := p.do(ctx, http.MethodPost, "/v1/messages", body, &response); err != nil {
		return nil, fmt.Errorf("anthropic: messages: %w", err)
	}

	var text strings.Builder
	for _, c := range response.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("anthropic: response has no text content")
	}

	return &llm.CompletionResponse{
		Text:         prefill + text.String(),
		FinishReason: response.StopReason,
		TokensUsed:   response.Usage.InputTokens + response.Usage.OutputTokens,
		PromptTokens: response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		ModelName:    model,
		ProviderName: "anthropic",
	}, nil
}

// do sends one request and decodes a 200 response into out.
func (p *Provider) do(ctx context.Context, method, path string, in, out any) error {
	p.mu.RLock()
	apiKey, baseURL, version, client := p.apiKey, p.baseURL, p.apiVersion, p.client
	p.mu.RUnlock()

	if apiKey == "" || client == nil {
		return errors.New("provider not initialized")
	}

	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", apiKey)
	httpReq.Header.Set("Anthropic-Version", version)

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
