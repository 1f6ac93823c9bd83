package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ChromaConfig contains connection details for the Chroma vector store.
type ChromaConfig struct {
	URL              string `yaml:"url"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

// OllamaConfig configures the local embedding endpoint.
type OllamaConfig struct {
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeminiConfig selects the generation model.
type GeminiConfig struct {
	Model string `yaml:"model"`
}

// RetrievalConfig tunes the hybrid retriever.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	KeywordWeight float64 `yaml:"keyword_weight"`
	VectorWeight  float64 `yaml:"vector_weight"`
	FusedTopN     int     `yaml:"fused_top_n"`
}

// ChunkingConfig configures how extracted text is split before indexing.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// WatchConfig enables indexing of documents dropped into a local directory.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Pipeline string `yaml:"pipeline"`
}

// PipelineConfig declares one RAG variant exposed as its own page.
type PipelineConfig struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	WithHistory bool   `yaml:"with_history"`
	MaxTurns    int    `yaml:"max_turns"`
	Color       string `yaml:"color"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Chroma    ChromaConfig     `yaml:"chroma"`
	Ollama    OllamaConfig     `yaml:"ollama"`
	Gemini    GeminiConfig     `yaml:"gemini"`
	Retrieval RetrievalConfig  `yaml:"retrieval"`
	Chunking  ChunkingConfig   `yaml:"chunking"`
	Watch     WatchConfig      `yaml:"watch"`
	Pipelines []PipelineConfig `yaml:"pipelines"`
}

// Load reads a config from the given path. A missing file yields defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration: two pipeline variants
// matching the demo pages, hybrid retrieval weighted 0.6 keyword / 0.4
// vector, 1500/100 chunking.
func Default() *AppConfig {
	cfg := &AppConfig{
		Server: ServerConfig{Port: 8080},
		Chroma: ChromaConfig{URL: "http://localhost:8000", CollectionPrefix: "ragdemo"},
		Ollama: OllamaConfig{URL: "http://localhost:11434", Model: "nomic-embed-text:v1.5", TimeoutSecs: 30},
		Gemini: GeminiConfig{Model: "gemini-2.5-flash"},
		Retrieval: RetrievalConfig{
			TopK:          5,
			KeywordWeight: 0.6,
			VectorWeight:  0.4,
			FusedTopN:     5,
		},
		Chunking: ChunkingConfig{Size: 1500, Overlap: 100},
		Watch:    WatchConfig{Enabled: false, Dir: "documents", Pipeline: "advanced"},
		Pipelines: []PipelineConfig{
			{
				Name:        "advanced",
				Title:       "Advanced RAG",
				Description: "Hybrid keyword + vector retrieval with rank fusion. Best when queries are unrelated to each other.",
				WithHistory: false,
				Color:       "#DEEEFF",
			},
			{
				Name:        "advanced-history",
				Title:       "Advanced RAG with Chat History",
				Description: "The same hybrid retrieval, with the recent conversation used to interpret follow-up questions.",
				WithHistory: true,
				MaxTurns:    5,
				Color:       "#CFEAF5",
			},
		},
	}
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Chroma.URL == "" {
		cfg.Chroma.URL = def.Chroma.URL
	}
	if cfg.Chroma.CollectionPrefix == "" {
		cfg.Chroma.CollectionPrefix = def.Chroma.CollectionPrefix
	}
	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = def.Ollama.URL
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = def.Ollama.Model
	}
	if cfg.Ollama.TimeoutSecs == 0 {
		cfg.Ollama.TimeoutSecs = def.Ollama.TimeoutSecs
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = def.Gemini.Model
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.KeywordWeight == 0 && cfg.Retrieval.VectorWeight == 0 {
		cfg.Retrieval.KeywordWeight = def.Retrieval.KeywordWeight
		cfg.Retrieval.VectorWeight = def.Retrieval.VectorWeight
	}
	if cfg.Retrieval.FusedTopN == 0 {
		cfg.Retrieval.FusedTopN = def.Retrieval.FusedTopN
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = def.Chunking.Size
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = def.Chunking.Overlap
	}
	if cfg.Watch.Dir == "" {
		cfg.Watch.Dir = def.Watch.Dir
	}
	if cfg.Watch.Pipeline == "" {
		cfg.Watch.Pipeline = def.Watch.Pipeline
	}
	if len(cfg.Pipelines) == 0 {
		cfg.Pipelines = def.Pipelines
	}
	for i := range cfg.Pipelines {
		if cfg.Pipelines[i].WithHistory && cfg.Pipelines[i].MaxTurns == 0 {
			cfg.Pipelines[i].MaxTurns = 5
		}
		if cfg.Pipelines[i].Title == "" {
			cfg.Pipelines[i].Title = cfg.Pipelines[i].Name
		}
	}
}

func validate(cfg *AppConfig) error {
	seen := make(map[string]bool, len(cfg.Pipelines))
	for _, p := range cfg.Pipelines {
		if p.Name == "" {
			return errors.New("pipeline with empty name in config")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate pipeline name %q in config", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
