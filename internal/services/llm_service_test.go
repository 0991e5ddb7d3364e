package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Corphon/LectureCompanion/internal/config"
	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/llm"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

type stubProvider struct {
	config  map[string]string
	lastReq llm.CompletionRequest
	models  []string
}

func (p *stubProvider) Initialize(config map[string]string) error {
	if config["api_key"] == "" {
		return errors.New("api key required")
	}
	p.config = config
	return nil
}
func (p *stubProvider) GetName() string              { return "stub" }
func (p *stubProvider) GetSupportedModels() []string { return p.models }
func (p *stubProvider) SetCustomModels(models []string) {
	p.models = models
}
func (p *stubProvider) FetchAvailableModels(ctx context.Context) error {
	p.models = []string{"stub-remote"}
	return nil
}
func (p *stubProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.lastReq = req
	return &llm.CompletionResponse{Text: "ok", TokensUsed: 3}, nil
}

func newStubRegistry() (*llm.Registry, *stubProvider) {
	stub := &stubProvider{models: []string{"stub-small"}}
	r := llm.NewRegistry()
	r.Register("stub", func() llm.Provider { return stub })
	return r, stub
}

func newTestStore(t *testing.T, provider, key string) *config.Store {
	t.Helper()
	store, err := config.NewStore(&config.Config{DataDir: t.TempDir(), LLMProvider: provider, LLMAPIKey: key})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestLLMServiceNotReadyWithoutKey(t *testing.T) {
	registry, _ := newStubRegistry()
	svc := NewLLMService(newTestStore(t, "stub", ""), registry, utils.NewMetricsCollector(false))

	if svc.IsReady() {
		t.Fatal("service should not be ready without an api key")
	}
	_, err := svc.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if !apperrors.IsType(err, apperrors.ErrorTypeUnavailable) || !errors.Is(err, ErrLLMNotReady) {
		t.Errorf("err = %v, want unavailable", err)
	}
	if st := svc.Status(); st.Ready || st.State != "API key not configured" || len(st.Providers) != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestLLMServiceCompleteResolvesModel(t *testing.T) {
	registry, stub := newStubRegistry()
	svc := NewLLMService(newTestStore(t, "stub", "key"), registry, utils.NewMetricsCollector(false))
	if !svc.IsReady() {
		t.Fatalf("not ready: %+v", svc.Status())
	}

	resp, err := svc.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("CompleteText: %v", err)
	}
	if stub.lastReq.Model != "stub-small" {
		t.Errorf("model = %q, want the provider's first model", stub.lastReq.Model)
	}
	if resp.ProviderName != "stub" || resp.ModelName != "stub-small" {
		t.Errorf("response = %+v", resp)
	}

	if _, err := svc.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi", Model: " chosen "}); err != nil {
		t.Fatal(err)
	}
	if stub.lastReq.Model != "chosen" {
		t.Errorf("model = %q, want chosen", stub.lastReq.Model)
	}
}

func TestLLMServiceUpdateProvider(t *testing.T) {
	registry, stub := newStubRegistry()
	store := newTestStore(t, "stub", "old-key")
	svc := NewLLMService(store, registry, nil)

	if err := svc.UpdateProvider("stub", map[string]string{"default_model": "stub-large"}); err != nil {
		t.Fatalf("UpdateProvider: %v", err)
	}
	if stub.config["api_key"] != "old-key" {
		t.Errorf("api_key = %q, want the stored key reused", stub.config["api_key"])
	}
	if svc.GetDefaultModel() != "stub-large" {
		t.Errorf("default model = %q", svc.GetDefaultModel())
	}
	if cur := store.Current(); cur.LLMConfig["default_model"] != "stub-large" {
		t.Errorf("stored config = %+v", cur)
	}

	if err := svc.UpdateProvider("nope", map[string]string{"api_key": "x"}); !apperrors.IsValidationError(err) {
		t.Errorf("unknown provider err = %v, want validation", err)
	}
	if err := svc.UpdateProvider(" ", nil); !apperrors.IsValidationError(err) {
		t.Errorf("blank provider err = %v, want validation", err)
	}
}

func TestLLMServiceListModels(t *testing.T) {
	registry, _ := newStubRegistry()
	svc := NewLLMService(newTestStore(t, "stub", "key"), registry, nil)

	models, err := svc.ListModels(context.Background(), false)
	if err != nil || len(models) != 1 || models[0] != "stub-small" {
		t.Errorf("ListModels = %v, %v", models, err)
	}
	models, err = svc.ListModels(context.Background(), true)
	if err != nil || len(models) != 1 || models[0] != "stub-remote" {
		t.Errorf("ListModels(fetch) = %v, %v", models, err)
	}
}
