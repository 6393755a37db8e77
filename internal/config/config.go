package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Storage   StorageConfig   `yaml:"storage"`
	Batch     BatchConfig     `yaml:"batch"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Log       LogConfig       `yaml:"log"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	MCPPort  int    `yaml:"mcp_port"`
	APIToken string `yaml:"api_token"`
}

type OllamaConfig struct {
	BaseURL    string `yaml:"base_url"`
	ChatModel  string `yaml:"chat_model"`
	EmbedModel string `yaml:"embed_model"`
	EmbedDim   int    `yaml:"embed_dim"`
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	UploadDir string `yaml:"upload_dir"`
}

type BatchConfig struct {
	Window   time.Duration `yaml:"window"`
	MaxBatch int           `yaml:"max_batch"`
}

// UnmarshalYAML accepts the window as a duration string ("15s", "2m").
// Absent fields keep their current values.
func (b *BatchConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Window   string `yaml:"window"`
		MaxBatch *int   `yaml:"max_batch"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Window != "" {
		d, err := time.ParseDuration(raw.Window)
		if err != nil {
			return fmt.Errorf("parsing batch window: %w", err)
		}
		b.Window = d
	}
	if raw.MaxBatch != nil {
		b.MaxBatch = *raw.MaxBatch
	}
	return nil
}

type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type RetrievalConfig struct {
	TopK           int `yaml:"top_k"`
	EmbedBatchSize int `yaml:"embed_batch_size"`
}

type WebhookConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "mistral-nemo",
			EmbedModel: "nomic-embed-text",
			EmbedDim:   768,
		},
		Storage: StorageConfig{
			DataDir:   dataDir,
			UploadDir: filepath.Join(dataDir, "uploads"),
		},
		Batch: BatchConfig{
			Window:   15 * time.Second,
			MaxBatch: 10,
		},
		Chunk: ChunkConfig{
			Size:    1000,
			Overlap: 200,
		},
		Retrieval: RetrievalConfig{
			TopK:           20,
			EmbedBatchSize: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "docchat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docchat"
	}
	return filepath.Join(home, ".local", "share", "docchat")
}

// Load builds the configuration from defaults, an optional YAML file, and
// DOCCHAT_* environment variables, in that order of precedence. An empty
// path means the default location ($XDG_CONFIG_HOME/docchat/config.yaml);
// a missing file there is not an error.
func Load(path string) (Config, error) {
	cfg := defaults()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine; defaults plus env apply.
	default:
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "docchat", "config.yaml")
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Chunk.Size <= 0 {
		return fmt.Errorf("invalid chunk size %d", cfg.Chunk.Size)
	}
	if cfg.Chunk.Overlap < 0 || cfg.Chunk.Overlap >= cfg.Chunk.Size {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Chunk.Overlap, cfg.Chunk.Size)
	}
	if cfg.Batch.Window <= 0 {
		return fmt.Errorf("invalid batch window %s", cfg.Batch.Window)
	}
	if cfg.Batch.MaxBatch <= 0 {
		return fmt.Errorf("invalid max batch size %d", cfg.Batch.MaxBatch)
	}
	return nil
}
