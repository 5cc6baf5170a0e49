package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{DatabasePath: filepath.Join(t.TempDir(), "nested", "calls.db")},
		Model:   config.ModelConfig{Provider: config.ProviderOpenAI, Name: "gpt-4o", APIKey: "k"},
		Upload:  config.UploadConfig{MaxBytes: 1 << 20},
		Timeout: time.Second,
		Prompts: map[string]map[string]string{"image": {"summary": "Describe the image."}},
	}
}

func TestNew(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Model.ProviderName() != "openai" || a.Model.ModelName() != "gpt-4o" {
		t.Errorf("unexpected model %s/%s", a.Model.ProviderName(), a.Model.ModelName())
	}
	if _, err := a.Calls.Stats(context.Background()); err != nil {
		t.Errorf("call log not usable: %v", err)
	}
}

func TestNew_RequiresModelKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.APIKey = ""

	_, err := New(context.Background(), cfg, zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "ANALYST_MODEL_API_KEY") {
		t.Errorf("expected a missing key error, got %v", err)
	}
}

func TestNew_BadPromptOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prompts = map[string]map[string]string{"horoscope": {"summary": "x"}}

	if _, err := New(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected an error for an unknown prompt task")
	}
}

func TestNewModelClient(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{config.ProviderGemini, "gemini"},
		{config.ProviderAnthropic, "anthropic"},
		{config.ProviderOpenAI, "openai"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			client, err := NewModelClient(context.Background(), config.ModelConfig{Provider: tt.provider, Name: "m", APIKey: "k"})
			if err != nil {
				t.Fatalf("NewModelClient failed: %v", err)
			}
			if client.ProviderName() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, client.ProviderName())
			}
		})
	}

	if _, err := NewModelClient(context.Background(), config.ModelConfig{Provider: "llama"}); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}
