package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`

	Threads       int    `json:"threads" yaml:"threads" toml:"threads"`
	ContextLength int    `json:"context_length" yaml:"context_length" toml:"context_length"`
	GPULayers     int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	Device        string `json:"device" yaml:"device" toml:"device"`
	NoMmap        bool   `json:"no_mmap" yaml:"no_mmap" toml:"no_mmap"`

	TokenBudget        int64 `json:"token_budget" yaml:"token_budget" toml:"token_budget"`
	ResponseCacheSize  int   `json:"response_cache_size" yaml:"response_cache_size" toml:"response_cache_size"`
	ResponseTTLMinutes int   `json:"response_ttl_minutes" yaml:"response_ttl_minutes" toml:"response_ttl_minutes"`
	MemoryLimitMB      int   `json:"memory_limit_mb" yaml:"memory_limit_mb" toml:"memory_limit_mb"`

	Workers        int `json:"workers" yaml:"workers" toml:"workers"`
	QueueDepth     int `json:"queue_depth" yaml:"queue_depth" toml:"queue_depth"`
	MaxWaitSeconds int `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`

	EmbedDimension  int     `json:"embed_dimension" yaml:"embed_dimension" toml:"embed_dimension"`
	ChunkSize       int     `json:"chunk_size" yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap    int     `json:"chunk_overlap" yaml:"chunk_overlap" toml:"chunk_overlap"`
	RagLimit        int     `json:"rag_limit" yaml:"rag_limit" toml:"rag_limit"`
	RagThreshold    float64 `json:"rag_threshold" yaml:"rag_threshold" toml:"rag_threshold"`
	RagContextChars int     `json:"rag_context_chars" yaml:"rag_context_chars" toml:"rag_context_chars"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
