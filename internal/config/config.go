// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/LectureCompanion/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds process settings read from the environment.
type Config struct {
	Port          string
	DataDir       string
	StaticDir     string
	LogDir        string
	DebugMode     bool
	CORSOrigins   []string
	RateLimit     int // requests per minute per client
	MaxUploadMB   int64
	JobTTL        time.Duration
	RedisAddr     string // empty selects the in-memory job store
	TranscribeCmd string
	OCRCmd        string
	ConfigSecret  string // encrypts api keys in config.json when set
	PromptsFile   string // replaces the embedded prompt catalogue

	LLMProvider string
	LLMAPIKey   string
	LLMModel    string
	LLMBaseURL  string
}

// AppConfig is the persisted part of the configuration. Only the LLM
// settings survive restarts; the rest is refreshed from the environment.
type AppConfig struct {
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DataDir:       getEnvPath("DATA_DIR", "data"),
		StaticDir:     getEnv("STATIC_DIR", "static"),
		LogDir:        getEnv("LOG_DIR", "logs"),
		DebugMode:     getEnvBool("DEBUG_MODE", false),
		CORSOrigins:   getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		RateLimit:     getEnvInt("RATE_LIMIT", 120),
		MaxUploadMB:   int64(getEnvInt("MAX_UPLOAD_MB", 500)),
		JobTTL:        getEnvDuration("JOB_TTL", 2*time.Hour),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		TranscribeCmd: getEnv("TRANSCRIBE_CMD", ""),
		OCRCmd:        getEnv("OCR_CMD", ""),
		ConfigSecret:  getEnv("CONFIG_SECRET", ""),
		PromptsFile:   getEnv("PROMPTS_FILE", ""),
		LLMProvider:   getEnv("LLM_PROVIDER", "openai"),
		LLMAPIKey:     getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
		LLMModel:      getEnv("LLM_MODEL", ""),
		LLMBaseURL:    getEnv("LLM_BASE_URL", ""),
	}

	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT must be positive, got %d", cfg.RateLimit)
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", cfg.MaxUploadMB)
	}
	return cfg, nil
}

// Store guards the persisted LLM settings in <data>/config.json.
type Store struct {
	mu      sync.RWMutex
	path    string
	secret  string
	current AppConfig
}

// NewStore loads config.json from the data directory, seeding it from the
// environment when absent. An api key from the environment fills an empty
// saved key but never overrides one set through the API.
func NewStore(cfg *Config) (*Store, error) {
	s := &Store{
		path:   filepath.Join(cfg.DataDir, "config.json"),
		secret: cfg.ConfigSecret,
		current: AppConfig{
			LLMProvider: cfg.LLMProvider,
			LLMConfig:   map[string]string{},
		},
	}
	if cfg.LLMAPIKey != "" {
		s.current.LLMConfig["api_key"] = cfg.LLMAPIKey
	}
	if cfg.LLMModel != "" {
		s.current.LLMConfig["default_model"] = cfg.LLMModel
	}
	if cfg.LLMBaseURL != "" {
		s.current.LLMConfig["base_url"] = cfg.LLMBaseURL
	}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var saved AppConfig
		if err := json.Unmarshal(data, &saved); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.path, err)
		}
		if err := s.merge(saved); err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) merge(saved AppConfig) error {
	if saved.LLMProvider != "" {
		s.current.LLMProvider = saved.LLMProvider
	}
	for k, v := range saved.LLMConfig {
		if k == "api_key" {
			plain, err := utils.DecryptSecret(v, s.secret)
			if err != nil {
				return fmt.Errorf("decrypt saved api key: %w", err)
			}
			if plain == "" {
				continue
			}
			v = plain
		}
		s.current.LLMConfig[k] = v
	}
	s.current.UpdatedAt = saved.UpdatedAt
	return nil
}

// Current returns a copy of the persisted settings with the api key in clear text.
func (s *Store) Current() AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.current
	out.LLMConfig = make(map[string]string, len(s.current.LLMConfig))
	for k, v := range s.current.LLMConfig {
		out.LLMConfig[k] = v
	}
	return out
}

// UpdateLLMConfig replaces the provider settings and persists them.
// An empty api_key keeps the previously stored key.
func (s *Store) UpdateLLMConfig(provider string, settings map[string]string) error {
	if strings.TrimSpace(provider) == "" {
		return fmt.Errorf("provider is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(settings))
	for k, v := range settings {
		next[k] = v
	}
	if next["api_key"] == "" {
		if prev := s.current.LLMConfig["api_key"]; prev != "" && provider == s.current.LLMProvider {
			next["api_key"] = prev
		}
	}

	s.current.LLMProvider = provider
	s.current.LLMConfig = next
	s.current.UpdatedAt = time.Now()
	return s.save()
}

// save writes config.json; callers hold the lock or own the store exclusively.
func (s *Store) save() error {
	onDisk := AppConfig{
		LLMProvider: s.current.LLMProvider,
		LLMConfig:   make(map[string]string, len(s.current.LLMConfig)),
		UpdatedAt:   s.current.UpdatedAt,
	}
	for k, v := range s.current.LLMConfig {
		if k == "api_key" && s.secret != "" {
			sealed, err := utils.EncryptSecret(v, s.secret)
			if err != nil {
				return fmt.Errorf("encrypt api key: %w", err)
			}
			v = sealed
		}
		onDisk.LLMConfig[k] = v
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath returns a directory path and makes sure it exists.
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			utils.GetLogger().Warn("failed to create directory", map[string]interface{}{"path": path, "error": err.Error()})
		}
	}
	return path
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
