package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 4000 || cfg.Server.MCPPort != 4001 {
		t.Errorf("ports = %d/%d", cfg.Server.Port, cfg.Server.MCPPort)
	}
	if cfg.Batch.Window != 15*time.Second || cfg.Batch.MaxBatch != 10 {
		t.Errorf("batch = %s/%d", cfg.Batch.Window, cfg.Batch.MaxBatch)
	}
	if cfg.Chunk.Size != 1000 || cfg.Chunk.Overlap != 200 {
		t.Errorf("chunk = %d/%d", cfg.Chunk.Size, cfg.Chunk.Overlap)
	}
	if cfg.Ollama.ChatModel != "mistral-nemo" || cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("models = %s/%s", cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel)
	}
	if cfg.Ollama.EmbedDim != 768 {
		t.Errorf("embed dim = %d", cfg.Ollama.EmbedDim)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
batch:
  window: 5s
  max_batch: 3
chunk:
  size: 500
  overlap: 50
ollama:
  chat_model: llama3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want the file value", cfg.Server.Port)
	}
	if cfg.Batch.Window != 5*time.Second || cfg.Batch.MaxBatch != 3 {
		t.Errorf("batch = %s/%d", cfg.Batch.Window, cfg.Batch.MaxBatch)
	}
	if cfg.Chunk.Size != 500 || cfg.Chunk.Overlap != 50 {
		t.Errorf("chunk = %d/%d", cfg.Chunk.Size, cfg.Chunk.Overlap)
	}
	if cfg.Ollama.ChatModel != "llama3" {
		t.Errorf("chat model = %s", cfg.Ollama.ChatModel)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.MCPPort != 4001 {
		t.Errorf("mcp port = %d, want the default preserved", cfg.Server.MCPPort)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("embed model = %s, want the default preserved", cfg.Ollama.EmbedModel)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("DOCCHAT_SERVER_PORT", "9100")
	t.Setenv("DOCCHAT_BATCH_WINDOW", "2s")
	t.Setenv("DOCCHAT_API_TOKEN", "tok123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want the env value winning", cfg.Server.Port)
	}
	if cfg.Batch.Window != 2*time.Second {
		t.Errorf("window = %s", cfg.Batch.Window)
	}
	if cfg.Server.APIToken != "tok123" {
		t.Errorf("token = %q", cfg.Server.APIToken)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for an explicitly named missing file")
	}
}

func TestLoadInvalidEnvValue(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DOCCHAT_SERVER_PORT", "not-a-number")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected an error for a malformed override")
	}
	if !strings.Contains(err.Error(), "DOCCHAT_SERVER_PORT") {
		t.Errorf("error = %v, want the variable named", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"zero port", func(cfg *Config) { cfg.Server.Port = 0 }},
		{"overlap not below size", func(cfg *Config) { cfg.Chunk.Overlap = cfg.Chunk.Size }},
		{"zero window", func(cfg *Config) { cfg.Batch.Window = 0 }},
		{"zero max batch", func(cfg *Config) { cfg.Batch.MaxBatch = 0 }},
		{"zero chunk size", func(cfg *Config) { cfg.Chunk.Size = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
