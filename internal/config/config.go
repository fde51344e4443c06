// Package config loads the service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

// Provider kinds.
const (
	ProviderAuto   = "auto"
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Rewrite strategies.
const (
	RewriteHeuristic = "heuristic"
	RewriteLLM       = "llm"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "config.yaml"

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimensions        int           `yaml:"dimensions"`
	Timeout           time.Duration `yaml:"timeout"`
	BatchSize         int           `yaml:"batch_size"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Timeout           time.Duration `yaml:"timeout"`
	Temperature       float64       `yaml:"temperature"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MockDelay         time.Duration `yaml:"mock_delay"`
}

// IngestConfig configures document loading and chunking.
type IngestConfig struct {
	PDFDir        string        `yaml:"pdf_dir"`
	Pattern       string        `yaml:"pattern"`
	ChunkSize     int           `yaml:"chunk_size"`
	ChunkOverlap  int           `yaml:"chunk_overlap"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// IndexConfig configures index storage.
type IndexConfig struct {
	Path  string `yaml:"path"`
	Store string `yaml:"store"`
}

// RetrievalConfig configures the query chain.
type RetrievalConfig struct {
	K            int    `yaml:"k"`
	Rewrite      string `yaml:"rewrite"`
	HistoryTurns int    `yaml:"history_turns"`
}

// Config is the root configuration.
type Config struct {
	Environment string          `yaml:"environment"`
	Debug       bool            `yaml:"debug"`
	UseMock     bool            `yaml:"use_mock"`
	LogLevel    string          `yaml:"log_level"`
	Server      ServerConfig    `yaml:"server"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	LLM         LLMConfig       `yaml:"llm"`
	Ingest      IngestConfig    `yaml:"ingest"`
	Index       IndexConfig     `yaml:"index"`
	Retrieval   RetrievalConfig `yaml:"retrieval"`
}

// Default returns the development defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	s := &cfg.Server
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8000
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 15 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 300 * time.Second
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = ProviderAuto
	}
	if e.APIKeyEnv == "" {
		e.APIKeyEnv = "OPENAI_API_KEY"
	}
	if e.Dimensions == 0 {
		e.Dimensions = 1536
	}
	if e.Timeout == 0 {
		e.Timeout = 30 * time.Second
	}
	if e.BatchSize == 0 {
		e.BatchSize = 64
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = 3
	}
	if e.RequestsPerSecond == 0 {
		e.RequestsPerSecond = 5
	}

	l := &cfg.LLM
	if l.Provider == "" {
		l.Provider = ProviderAuto
	}
	if l.APIKeyEnv == "" {
		l.APIKeyEnv = "OPENAI_API_KEY"
	}
	if l.Timeout == 0 {
		l.Timeout = 60 * time.Second
	}
	if l.MaxRetries == 0 {
		l.MaxRetries = 2
	}
	if l.RequestsPerSecond == 0 {
		l.RequestsPerSecond = 2
	}
	if l.MockDelay == 0 {
		l.MockDelay = time.Second
	}

	i := &cfg.Ingest
	if i.PDFDir == "" {
		i.PDFDir = "data/dev"
	}
	if i.Pattern == "" {
		i.Pattern = "*.pdf"
	}
	if i.ChunkSize == 0 {
		i.ChunkSize = 1000
	}
	if i.ChunkOverlap == 0 {
		i.ChunkOverlap = 100
	}
	if i.WatchDebounce == 0 {
		i.WatchDebounce = 2 * time.Second
	}

	if cfg.Index.Path == "" {
		cfg.Index.Path = "./index"
	}
	if cfg.Index.Store == "" {
		cfg.Index.Store = "flat"
	}

	r := &cfg.Retrieval
	if r.K == 0 {
		r.K = 4
	}
	if r.Rewrite == "" {
		r.Rewrite = RewriteHeuristic
	}
	if r.HistoryTurns == 0 {
		r.HistoryTurns = 3
	}
}

// ApplyEnv overrides config values from DOCURAG_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DOCURAG_ENV"); v != "" {
		c.Environment = strings.ToLower(v)
	}
	if v := os.Getenv("DOCURAG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DOCURAG_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("DOCURAG_INDEX_STORE"); v != "" {
		c.Index.Store = v
	}
	if v := os.Getenv("DOCURAG_PDF_DIR"); v != "" {
		c.Ingest.PDFDir = v
	}
	for name, dst := range map[string]*bool{
		"DOCURAG_DEBUG":    &c.Debug,
		"DOCURAG_USE_MOCK": &c.UseMock,
	} {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = b
		}
	}
	for name, dst := range map[string]*int{
		"DOCURAG_PORT":        &c.Server.Port,
		"DOCURAG_RETRIEVAL_K": &c.Retrieval.K,
	} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}
	return nil
}

// IsDevelopment reports whether the development environment is active.
func (c *Config) IsDevelopment() bool { return c.Environment == EnvDevelopment }

// IsProduction reports whether the production environment is active.
func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }

// APIKey returns the OpenAI-compatible key for the LLM provider.
func (c *Config) APIKey() string { return os.Getenv(c.LLM.APIKeyEnv) }

// ShouldUseMock reports whether "auto" providers resolve to the mocks:
// always in testing, when forced, or in development without an API key.
func (c *Config) ShouldUseMock() bool {
	if c.UseMock || c.Environment == EnvTesting {
		return true
	}
	return c.IsDevelopment() && c.APIKey() == ""
}

// EmbeddingProvider resolves "auto" to a concrete provider kind.
func (c *Config) EmbeddingProvider() string {
	return c.resolve(c.Embedding.Provider)
}

// LLMProvider resolves "auto" to a concrete provider kind.
func (c *Config) LLMProvider() string {
	return c.resolve(c.LLM.Provider)
}

func (c *Config) resolve(p string) string {
	if p != ProviderAuto {
		return p
	}
	if c.ShouldUseMock() {
		return ProviderMock
	}
	return ProviderOpenAI
}

// Validate checks value ranges and, in production, the deployment rules.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("environment %q must be development, testing or production", c.Environment))
	}
	for name, p := range map[string]string{"embedding": c.Embedding.Provider, "llm": c.LLM.Provider} {
		switch p {
		case ProviderAuto, ProviderMock, ProviderOpenAI, ProviderOllama:
		default:
			errs = append(errs, fmt.Errorf("%s.provider %q is not supported", name, p))
		}
	}
	switch c.Index.Store {
	case "flat", "sqlite", "bolt":
	default:
		errs = append(errs, fmt.Errorf("index.store %q must be flat, sqlite or bolt", c.Index.Store))
	}
	switch c.Retrieval.Rewrite {
	case RewriteHeuristic, RewriteLLM:
	default:
		errs = append(errs, fmt.Errorf("retrieval.rewrite %q must be heuristic or llm", c.Retrieval.Rewrite))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, errors.New("ingest.chunk_size must be positive"))
	}
	if c.Ingest.ChunkOverlap <= 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, errors.New("ingest.chunk_overlap must be in [1, chunk_size)"))
	}
	if c.Retrieval.K < 1 {
		errs = append(errs, errors.New("retrieval.k must be at least 1"))
	}
	if c.IsProduction() {
		errs = append(errs, c.validateProduction()...)
	}
	return errors.Join(errs...)
}

func (c *Config) validateProduction() []error {
	var errs []error
	if c.Debug {
		errs = append(errs, errors.New("debug must be disabled in production"))
	}
	if c.EmbeddingProvider() == ProviderMock || c.LLMProvider() == ProviderMock {
		errs = append(errs, errors.New("mock providers are not allowed in production"))
	}
	if (c.LLMProvider() == ProviderOpenAI || c.EmbeddingProvider() == ProviderOpenAI) && c.APIKey() == "" {
		errs = append(errs, fmt.Errorf("%s is required in production", c.LLM.APIKeyEnv))
	}
	return errs
}
