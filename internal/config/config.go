// Package config loads and validates quarry configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config (~/.config/quarry/config.yaml)
//  3. Corpus config (.quarry.yaml in the corpus root)
//  4. Environment variables (QUARRY_*)
//
// Every recognized option has a documented default and a valid range
// enforced by Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DataDirName is the per-corpus data directory.
	DataDirName = ".quarry"
	// ProjectConfigName is the corpus-level config file.
	ProjectConfigName = ".quarry.yaml"
)

// Config represents the complete quarry configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// ChunkSize is the target chunk length in characters.
	// Default: 1000. Valid range: 100-8192.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// ChunkOverlap is the number of trailing characters carried into the
	// next chunk as a seed. Default: 200. Valid range: 0 to chunk_size-1.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// LexicalWeight is the fusion weight for BM25 scores.
	// Default: 0.3. Valid range: 0.0-1.0. The two weights do not have to
	// sum to 1.0, but they must not both be zero.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// VectorWeight is the fusion weight for embedding similarity scores.
	// Default: 0.7. Valid range: 0.0-1.0.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// TopKOverfetchFactor multiplies top_k when fetching candidates from
	// each retrieval path before fusion. Default: 2. Valid range: 1-10.
	TopKOverfetchFactor int `yaml:"top_k_overfetch_factor" json:"top_k_overfetch_factor"`

	// DefaultTopK is used when a search request does not set top_k.
	// Default: 5.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`

	// MaxTopK caps top_k for a single request. Default: 100.
	MaxTopK int `yaml:"max_top_k" json:"max_top_k"`

	// LexicalBackend selects the lexical index backend.
	// Options: "memory" (default, exact Okapi BM25) or "bleve" (persistent).
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// VectorBackend selects the vector index backend.
	// Options: "linear" (default, exact scan) or "hnsw" (approximate).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`

	// Tokenizer selects the query/corpus tokenizer.
	// Options: "whitespace" (default) or "bigram" (adds Hangul bigrams).
	// Whitespace splitting is a known recall limitation for languages
	// without whitespace-delimited words.
	Tokenizer string `yaml:"tokenizer" json:"tokenizer"`
}

// EmbeddingConfig configures the embedding collaborator.
type EmbeddingConfig struct {
	// Backend selects the embedder. Options: "static" (default,
	// deterministic, offline) or "ollama" (HTTP).
	Backend string `yaml:"backend" json:"backend"`

	// Model is the embedding model name (ollama backend).
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding dimension. Default: 256 (static).
	// Must match what the embedder reports.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is the number of texts embedded per batch. Default: 32.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint.
	// Default: http://localhost:11434.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the in-memory LRU embedding cache capacity in entries.
	// Default: 4096. Zero disables the memory cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// DiskCache enables the persistent bbolt embedding cache under the
	// data directory, so restarts avoid re-embedding. Default: true.
	DiskCache bool `yaml:"disk_cache" json:"disk_cache"`
}

// StorageConfig configures corpus persistence.
type StorageConfig struct {
	// DataDir is the data directory. Empty means <corpus root>/.quarry.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`

	// ToFile enables rotated file logging under <data_dir>/logs.
	ToFile bool `yaml:"to_file" json:"to_file"`
}

// NewConfig creates a new Config with documented defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Search: SearchConfig{
			LexicalWeight:       0.3,
			VectorWeight:        0.7,
			TopKOverfetchFactor: 2,
			DefaultTopK:         5,
			MaxTopK:             100,
			LexicalBackend:      "memory",
			VectorBackend:       "linear",
			Tokenizer:           "whitespace",
		},
		Embedding: EmbeddingConfig{
			Backend:    "static",
			Model:      "",
			Dimensions: 256,
			BatchSize:  32,
			OllamaHost: "",
			CacheSize:  4096,
			DiskCache:  true,
		},
		Storage: StorageConfig{
			DataDir: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			ToFile: false,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/quarry/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/quarry/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quarry", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "quarry", "config.yaml")
	}
	return filepath.Join(home, ".config", "quarry", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration for the given corpus root, applying defaults,
// user config, corpus config, and QUARRY_* environment overrides in that
// order, then validating the result.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .quarry.yaml or .quarry.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectConfigName)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".quarry.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
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

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Chunking
	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}

	// Search. Zero is not a practical weight in a config file; explicit
	// zeroes are still reachable through env overrides.
	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.TopKOverfetchFactor != 0 {
		c.Search.TopKOverfetchFactor = other.Search.TopKOverfetchFactor
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.MaxTopK != 0 {
		c.Search.MaxTopK = other.Search.MaxTopK
	}
	if other.Search.LexicalBackend != "" {
		c.Search.LexicalBackend = other.Search.LexicalBackend
	}
	if other.Search.VectorBackend != "" {
		c.Search.VectorBackend = other.Search.VectorBackend
	}
	if other.Search.Tokenizer != "" {
		c.Search.Tokenizer = other.Search.Tokenizer
	}

	// Embedding
	if other.Embedding.Backend != "" {
		c.Embedding.Backend = other.Embedding.Backend
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.OllamaHost != "" {
		c.Embedding.OllamaHost = other.Embedding.OllamaHost
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	// Storage
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.ToFile {
		c.Logging.ToFile = true
	}
}

// applyEnvOverrides applies QUARRY_* environment variable overrides.
// Env vars are the highest-precedence source and the one place explicit
// zero weights can be set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUARRY_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.ChunkSize = n
		}
	}
	if v := os.Getenv("QUARRY_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunking.ChunkOverlap = n
		}
	}
	if v := os.Getenv("QUARRY_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("QUARRY_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("QUARRY_OVERFETCH_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.TopKOverfetchFactor = n
		}
	}
	if v := os.Getenv("QUARRY_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := os.Getenv("QUARRY_VECTOR_BACKEND"); v != "" {
		c.Search.VectorBackend = v
	}
	if v := os.Getenv("QUARRY_TOKENIZER"); v != "" {
		c.Search.Tokenizer = v
	}
	if v := os.Getenv("QUARRY_EMBEDDING_BACKEND"); v != "" {
		c.Embedding.Backend = v
	}
	if v := os.Getenv("QUARRY_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("QUARRY_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("QUARRY_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("QUARRY_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("QUARRY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize < 100 || c.Chunking.ChunkSize > 8192 {
		return fmt.Errorf("chunk_size must be between 100 and 8192, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap must be between 0 and chunk_size-1, got %d", c.Chunking.ChunkOverlap)
	}

	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	// The weights do not have to sum to 1.0, but a search with both at
	// zero can never rank anything.
	if c.Search.LexicalWeight == 0 && c.Search.VectorWeight == 0 {
		return fmt.Errorf("lexical_weight and vector_weight must not both be zero")
	}

	if c.Search.TopKOverfetchFactor < 1 || c.Search.TopKOverfetchFactor > 10 {
		return fmt.Errorf("top_k_overfetch_factor must be between 1 and 10, got %d", c.Search.TopKOverfetchFactor)
	}
	if c.Search.DefaultTopK < 1 {
		return fmt.Errorf("default_top_k must be at least 1, got %d", c.Search.DefaultTopK)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("max_top_k must be at least default_top_k, got %d", c.Search.MaxTopK)
	}

	validLexical := map[string]bool{"memory": true, "bleve": true}
	if !validLexical[strings.ToLower(c.Search.LexicalBackend)] {
		return fmt.Errorf("search.lexical_backend must be 'memory' or 'bleve', got %s", c.Search.LexicalBackend)
	}
	validVector := map[string]bool{"linear": true, "hnsw": true}
	if !validVector[strings.ToLower(c.Search.VectorBackend)] {
		return fmt.Errorf("search.vector_backend must be 'linear' or 'hnsw', got %s", c.Search.VectorBackend)
	}
	validTokenizers := map[string]bool{"whitespace": true, "bigram": true}
	if !validTokenizers[strings.ToLower(c.Search.Tokenizer)] {
		return fmt.Errorf("search.tokenizer must be 'whitespace' or 'bigram', got %s", c.Search.Tokenizer)
	}

	validBackends := map[string]bool{"static": true, "ollama": true}
	if !validBackends[strings.ToLower(c.Embedding.Backend)] {
		return fmt.Errorf("embedding.backend must be 'static' or 'ollama', got %s", c.Embedding.Backend)
	}
	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// DataDir resolves the effective data directory for a corpus root.
func (c *Config) DataDir(root string) string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return filepath.Join(root, DataDirName)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindCorpusRoot finds the corpus root directory by walking up from
// startDir looking for .quarry.yaml, a .quarry data directory, or .git.
func FindCorpusRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ProjectConfigName)) ||
			fileExists(filepath.Join(currentDir, ".quarry.yml")) ||
			dirExists(filepath.Join(currentDir, DataDirName)) ||
			dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached the filesystem root, fall back to where we started.
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
