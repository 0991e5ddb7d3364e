package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("JOB_TTL", "15m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DEBUG_MODE", "yes")
	t.Setenv("RATE_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JobTTL != 15*time.Minute {
		t.Errorf("JobTTL = %v, want 15m", cfg.JobTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.DebugMode {
		t.Error("DebugMode = false, want true")
	}
	if cfg.RateLimit != 120 {
		t.Errorf("RateLimit = %d, want default 120", cfg.RateLimit)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestLoadRejectsBadRateLimit(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("RATE_LIMIT", "-3")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative RATE_LIMIT")
	}
}

func TestStoreEncryptsAPIKeyAtRest(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir(), ConfigSecret: "s3cret", LLMProvider: "openai"}

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.UpdateLLMConfig("openai", map[string]string{"api_key": "sk-abc", "default_model": "gpt-4o-mini"}); err != nil {
		t.Fatalf("UpdateLLMConfig: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.DataDir, "config.json"))
	if err != nil {
		t.Fatalf("read config.json: %v", err)
	}
	if strings.Contains(string(raw), "sk-abc") {
		t.Fatalf("api key stored in clear text: %s", raw)
	}
	var onDisk AppConfig
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("config.json is not JSON: %v", err)
	}
	if onDisk.LLMConfig["default_model"] != "gpt-4o-mini" {
		t.Errorf("default_model = %q", onDisk.LLMConfig["default_model"])
	}

	reopened, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Current().LLMConfig["api_key"]; got != "sk-abc" {
		t.Errorf("api_key after reopen = %q, want sk-abc", got)
	}
}

func TestUpdateKeepsKeyWhenOmitted(t *testing.T) {
	store, err := NewStore(&Config{DataDir: t.TempDir(), LLMProvider: "openai", LLMAPIKey: "sk-env"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.UpdateLLMConfig("openai", map[string]string{"default_model": "gpt-4o"}); err != nil {
		t.Fatalf("UpdateLLMConfig: %v", err)
	}
	cur := store.Current()
	if cur.LLMConfig["api_key"] != "sk-env" {
		t.Errorf("api_key = %q, want sk-env", cur.LLMConfig["api_key"])
	}

	cur.LLMConfig["api_key"] = "mutated"
	if store.Current().LLMConfig["api_key"] != "sk-env" {
		t.Error("Current returned a shared map")
	}

	if err := store.UpdateLLMConfig(" ", nil); err == nil {
		t.Error("expected error for empty provider")
	}
}
