package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the per-project configuration file.
const ProjectFileName = ".tradingrag.yaml"

// Config represents the complete tradingrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Agent      AgentConfig      `yaml:"agent" json:"agent"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig locates the on-disk stores. Relative paths resolve against the project dir.
type PathsConfig struct {
	Database    string `yaml:"database" json:"database"`
	VectorIndex string `yaml:"vector_index" json:"vector_index"`
	BleveIndex  string `yaml:"bleve_index" json:"bleve_index"`
	ChromemDir  string `yaml:"chromem_dir" json:"chromem_dir"`
}

// RetrievalConfig tunes the hybrid pipeline.
type RetrievalConfig struct {
	// RRFConstant is the fusion smoothing constant k. Default: 60.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// OversampleFactor multiplies top_k for the candidate pool handed to the reranker.
	OversampleFactor int `yaml:"oversample_factor" json:"oversample_factor"`

	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`

	// FullTextBackend: "sqlite" (FTS5 in the record store) or "bleve".
	FullTextBackend string `yaml:"fulltext_backend" json:"fulltext_backend"`

	// VectorBackend: "hnsw" or "chromem".
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`
}

// RerankConfig selects the pairwise relevance scorer.
type RerankConfig struct {
	// Provider: "lexical" (offline term overlap) or "http" (cross-encoder service).
	Provider string `yaml:"provider" json:"provider"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Model    string `yaml:"model" json:"model"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider: "static", "ollama" or "openai".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	APIKey     string `yaml:"api_key,omitempty" json:"-"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// LLMConfig configures the completion service.
type LLMConfig struct {
	// Provider: "openrouter" (any OpenAI-compatible API) or "ollama".
	Provider    string  `yaml:"provider" json:"provider"`
	Model       string  `yaml:"model" json:"model"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	APIKey      string  `yaml:"api_key,omitempty" json:"-"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Timeout     string  `yaml:"timeout" json:"timeout"`
}

// AgentConfig configures the ReAct loop.
type AgentConfig struct {
	MaxSteps      int `yaml:"max_steps" json:"max_steps"`
	HistoryWindow int `yaml:"history_window" json:"history_window"`
	MaxTokens     int `yaml:"max_tokens" json:"max_tokens"`
	// TokenBudget caps the rendered prompt; 0 disables trimming.
	TokenBudget int `yaml:"token_budget" json:"token_budget"`
}

// CacheConfig configures the answer cache.
type CacheConfig struct {
	// Backend: "memory", "redis" or "none".
	Backend   string `yaml:"backend" json:"backend"`
	TTL       string `yaml:"ttl" json:"ttl"`
	Size      int    `yaml:"size" json:"size"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
	RedisDB   int    `yaml:"redis_db" json:"redis_db"`
}

// ServerConfig configures the MCP server and CLI logging.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MetricsAddr serves Prometheus /metrics when non-empty (e.g. ":9464").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig returns a Config with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Database:    filepath.Join("data", "metadata.db"),
			VectorIndex: filepath.Join("data", "vectors.hnsw"),
			BleveIndex:  filepath.Join("data", "fulltext.bleve"),
			ChromemDir:  filepath.Join("data", "chromem"),
		},
		Retrieval: RetrievalConfig{
			RRFConstant:      60,
			OversampleFactor: 3,
			DefaultTopK:      5,
			FullTextBackend:  "sqlite",
			VectorBackend:    "hnsw",
		},
		Rerank: RerankConfig{
			Provider: "lexical",
			Endpoint: "http://localhost:9659",
			Model:    "cross-encoder/ms-marco-MiniLM-L-6-v2",
			Timeout:  "10s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			Dimensions: 256,
			OllamaHost: "http://localhost:11434",
			BaseURL:    "https://api.openai.com/v1",
			CacheSize:  1000,
		},
		LLM: LLMConfig{
			Provider:    "openrouter",
			Model:       "anthropic/claude-3.5-sonnet",
			BaseURL:     "https://openrouter.ai/api/v1",
			Temperature: 0.3,
			MaxTokens:   2000,
			Timeout:     "60s",
		},
		Agent: AgentConfig{
			MaxSteps:      10,
			HistoryWindow: 3,
			MaxTokens:     1000,
			TokenBudget:   12000,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			TTL:       "30m",
			Size:      256,
			RedisAddr: "localhost:6379",
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the user-level config file.
//   - $XDG_CONFIG_HOME/tradingrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/tradingrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tradingrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "tradingrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "tradingrag", "config.yaml")
}

// Load loads configuration for the project in dir.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/tradingrag/config.yaml)
//  3. Project config (.tradingrag.yaml)
//  4. Environment variables (TRADINGRAG_*, OPENROUTER_API_KEY, OPENAI_API_KEY)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	projectPath := filepath.Join(dir, ProjectFileName)
	if fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeString(&c.Paths.Database, other.Paths.Database)
	mergeString(&c.Paths.VectorIndex, other.Paths.VectorIndex)
	mergeString(&c.Paths.BleveIndex, other.Paths.BleveIndex)
	mergeString(&c.Paths.ChromemDir, other.Paths.ChromemDir)

	mergeInt(&c.Retrieval.RRFConstant, other.Retrieval.RRFConstant)
	mergeInt(&c.Retrieval.OversampleFactor, other.Retrieval.OversampleFactor)
	mergeInt(&c.Retrieval.DefaultTopK, other.Retrieval.DefaultTopK)
	mergeString(&c.Retrieval.FullTextBackend, other.Retrieval.FullTextBackend)
	mergeString(&c.Retrieval.VectorBackend, other.Retrieval.VectorBackend)

	mergeString(&c.Rerank.Provider, other.Rerank.Provider)
	mergeString(&c.Rerank.Endpoint, other.Rerank.Endpoint)
	mergeString(&c.Rerank.Model, other.Rerank.Model)
	mergeString(&c.Rerank.Timeout, other.Rerank.Timeout)

	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	mergeString(&c.Embeddings.BaseURL, other.Embeddings.BaseURL)
	mergeString(&c.Embeddings.APIKey, other.Embeddings.APIKey)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)

	mergeString(&c.LLM.Provider, other.LLM.Provider)
	mergeString(&c.LLM.Model, other.LLM.Model)
	mergeString(&c.LLM.BaseURL, other.LLM.BaseURL)
	mergeString(&c.LLM.APIKey, other.LLM.APIKey)
	// 0 is not a useful generation temperature, so it is treated as unset here.
	if other.LLM.Temperature != 0 {
		c.LLM.Temperature = other.LLM.Temperature
	}
	mergeInt(&c.LLM.MaxTokens, other.LLM.MaxTokens)
	mergeString(&c.LLM.Timeout, other.LLM.Timeout)

	mergeInt(&c.Agent.MaxSteps, other.Agent.MaxSteps)
	mergeInt(&c.Agent.HistoryWindow, other.Agent.HistoryWindow)
	mergeInt(&c.Agent.MaxTokens, other.Agent.MaxTokens)
	mergeInt(&c.Agent.TokenBudget, other.Agent.TokenBudget)

	mergeString(&c.Cache.Backend, other.Cache.Backend)
	mergeString(&c.Cache.TTL, other.Cache.TTL)
	mergeInt(&c.Cache.Size, other.Cache.Size)
	mergeString(&c.Cache.RedisAddr, other.Cache.RedisAddr)
	mergeInt(&c.Cache.RedisDB, other.Cache.RedisDB)

	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
	mergeString(&c.Server.MetricsAddr, other.Server.MetricsAddr)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies TRADINGRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRADINGRAG_DATABASE"); v != "" {
		c.Paths.Database = v
	}
	if v := os.Getenv("TRADINGRAG_VECTOR_INDEX"); v != "" {
		c.Paths.VectorIndex = v
	}

	if v := os.Getenv("TRADINGRAG_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.RRFConstant = k
		}
	}
	if v := os.Getenv("TRADINGRAG_OVERSAMPLE_FACTOR"); v != "" {
		if f, err := strconv.Atoi(v); err == nil && f > 0 {
			c.Retrieval.OversampleFactor = f
		}
	}
	if v := os.Getenv("TRADINGRAG_FULLTEXT_BACKEND"); v != "" {
		c.Retrieval.FullTextBackend = v
	}
	if v := os.Getenv("TRADINGRAG_VECTOR_BACKEND"); v != "" {
		c.Retrieval.VectorBackend = v
	}

	if v := os.Getenv("TRADINGRAG_RERANK_PROVIDER"); v != "" {
		c.Rerank.Provider = v
	}
	if v := os.Getenv("TRADINGRAG_RERANK_ENDPOINT"); v != "" {
		c.Rerank.Endpoint = v
	}

	if v := os.Getenv("TRADINGRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("TRADINGRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("TRADINGRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}

	if v := os.Getenv("TRADINGRAG_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("TRADINGRAG_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("TRADINGRAG_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	// OPENROUTER_API_KEY is the conventional name; the prefixed one wins.
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TRADINGRAG_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TRADINGRAG_LLM_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.LLM.Temperature = t
		}
	}

	if v := os.Getenv("TRADINGRAG_AGENT_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxSteps = n
		}
	}

	if v := os.Getenv("TRADINGRAG_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("TRADINGRAG_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}

	if v := os.Getenv("TRADINGRAG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("TRADINGRAG_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
}

// Validate returns an error describing the first invalid setting.
func (c *Config) Validate() error {
	if c.Retrieval.RRFConstant <= 0 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}
	if c.Retrieval.OversampleFactor < 1 {
		return fmt.Errorf("retrieval.oversample_factor must be >= 1, got %d", c.Retrieval.OversampleFactor)
	}
	if c.Retrieval.DefaultTopK <= 0 {
		return fmt.Errorf("retrieval.default_top_k must be positive, got %d", c.Retrieval.DefaultTopK)
	}
	if err := oneOf("retrieval.fulltext_backend", c.Retrieval.FullTextBackend, "sqlite", "bleve"); err != nil {
		return err
	}
	if err := oneOf("retrieval.vector_backend", c.Retrieval.VectorBackend, "hnsw", "chromem"); err != nil {
		return err
	}
	if err := oneOf("rerank.provider", c.Rerank.Provider, "lexical", "http", "none"); err != nil {
		return err
	}
	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "static", "ollama", "openai"); err != nil {
		return err
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if err := oneOf("llm.provider", c.LLM.Provider, "openrouter", "ollama"); err != nil {
		return err
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %.2f", c.LLM.Temperature)
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.HistoryWindow < 0 {
		return fmt.Errorf("agent.history_window must be non-negative, got %d", c.Agent.HistoryWindow)
	}
	if err := oneOf("cache.backend", c.Cache.Backend, "memory", "redis", "none"); err != nil {
		return err
	}
	for name, d := range map[string]string{"cache.ttl": c.Cache.TTL, "llm.timeout": c.LLM.Timeout, "rerank.timeout": c.Rerank.Timeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s is not a valid duration: %q", name, d)
		}
	}
	return oneOf("server.log_level", c.Server.LogLevel, "debug", "info", "warn", "error")
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

// Resolve returns a copy with relative store paths anchored at dir.
func (c *Config) Resolve(dir string) *Config {
	out := *c
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	out.Paths.Database = anchor(c.Paths.Database)
	out.Paths.VectorIndex = anchor(c.Paths.VectorIndex)
	out.Paths.BleveIndex = anchor(c.Paths.BleveIndex)
	out.Paths.ChromemDir = anchor(c.Paths.ChromemDir)
	return &out
}

// Duration parses a duration setting, returning def when empty or invalid.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
// API keys are left out so the file can be committed.
func (c *Config) WriteYAML(path string) error {
	clean := *c
	clean.LLM.APIKey = ""
	clean.Embeddings.APIKey = ""

	data, err := yaml.Marshal(&clean)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
