package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// envSpec binds one DOCCHAT_* variable to a config field.
type envSpec struct {
	env   string
	apply func(cfg *Config, raw string) error
}

var envSpecs = []envSpec{
	{"DOCCHAT_SERVER_PORT", func(cfg *Config, raw string) error {
		return setInt(&cfg.Server.Port, raw)
	}},
	{"DOCCHAT_SERVER_MCP_PORT", func(cfg *Config, raw string) error {
		return setInt(&cfg.Server.MCPPort, raw)
	}},
	{"DOCCHAT_API_TOKEN", func(cfg *Config, raw string) error {
		cfg.Server.APIToken = raw
		return nil
	}},
	{"DOCCHAT_OLLAMA_BASE_URL", func(cfg *Config, raw string) error {
		cfg.Ollama.BaseURL = raw
		return nil
	}},
	{"DOCCHAT_CHAT_MODEL", func(cfg *Config, raw string) error {
		cfg.Ollama.ChatModel = raw
		return nil
	}},
	{"DOCCHAT_EMBED_MODEL", func(cfg *Config, raw string) error {
		cfg.Ollama.EmbedModel = raw
		return nil
	}},
	{"DOCCHAT_EMBED_DIM", func(cfg *Config, raw string) error {
		return setInt(&cfg.Ollama.EmbedDim, raw)
	}},
	{"DOCCHAT_DATA_DIR", func(cfg *Config, raw string) error {
		cfg.Storage.DataDir = raw
		return nil
	}},
	{"DOCCHAT_UPLOAD_DIR", func(cfg *Config, raw string) error {
		cfg.Storage.UploadDir = raw
		return nil
	}},
	{"DOCCHAT_BATCH_WINDOW", func(cfg *Config, raw string) error {
		return setDuration(&cfg.Batch.Window, raw)
	}},
	{"DOCCHAT_BATCH_MAX", func(cfg *Config, raw string) error {
		return setInt(&cfg.Batch.MaxBatch, raw)
	}},
	{"DOCCHAT_CHUNK_SIZE", func(cfg *Config, raw string) error {
		return setInt(&cfg.Chunk.Size, raw)
	}},
	{"DOCCHAT_CHUNK_OVERLAP", func(cfg *Config, raw string) error {
		return setInt(&cfg.Chunk.Overlap, raw)
	}},
	{"DOCCHAT_RETRIEVAL_TOP_K", func(cfg *Config, raw string) error {
		return setInt(&cfg.Retrieval.TopK, raw)
	}},
	{"DOCCHAT_WEBHOOK_URL", func(cfg *Config, raw string) error {
		cfg.Webhook.URL = raw
		return nil
	}},
	{"DOCCHAT_WEBHOOK_TOKEN", func(cfg *Config, raw string) error {
		cfg.Webhook.Token = raw
		return nil
	}},
	{"DOCCHAT_LOG_LEVEL", func(cfg *Config, raw string) error {
		cfg.Log.Level = raw
		return nil
	}},
}

func applyEnvOverrides(cfg *Config) error {
	for _, spec := range envSpecs {
		raw, ok := os.LookupEnv(spec.env)
		if !ok || raw == "" {
			continue
		}
		if err := spec.apply(cfg, raw); err != nil {
			return fmt.Errorf("%s: %w", spec.env, err)
		}
	}
	return nil
}

func setInt(dst *int, raw string) error {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("parsing %q as integer: %w", raw, err)
	}
	*dst = v
	return nil
}

func setDuration(dst *time.Duration, raw string) error {
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %q as duration: %w", raw, err)
	}
	*dst = v
	return nil
}
