// Package core assembles the memory stack: it loads configuration, builds
// the embedding provider and vector indexes, and wires the tiered and legacy
// stores into a resilient wrapper.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/memkeep/memkeep-go/pkg/memory"
)

// ErrInvalidConfig indicates a configuration with a missing or unsupported
// required field.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains the complete configuration for the memory stack.
//
// It includes settings for:
//   - Embedding provider (for vector generation)
//   - Vector index (for memory persistence)
//   - Tiered store behavior (capacity and expiry)
//
// Example:
//
//	config := &core.Config{
//	    Embedder: core.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Model:      "text-embedding-3-small",
//	        Dimensions: 1536,
//	    },
//	    Index: core.IndexConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./memories.db",
//	        },
//	    },
//	}
type Config struct {
	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`

	// Index contains vector index configuration.
	Index IndexConfig `json:"index" yaml:"index"`

	// Store contains tiered store capacity and expiry settings.
	Store StoreConfig `json:"store" yaml:"store"`

	// LegacyCollection is the collection name used by the legacy fallback
	// store. It must differ from the advanced collection so the two tiers
	// never share records.
	LegacyCollection string `json:"legacy_collection" yaml:"legacy_collection"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, mock
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, mock).
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the embedding model name (e.g., "text-embedding-3-small").
	Model string `json:"model" yaml:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors (e.g., 1536, 384).
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// IndexConfig contains configuration for the vector index.
//
// Supported providers: chromem, sqlite, postgres
type IndexConfig struct {
	// Provider is the vector index provider name (chromem, sqlite, postgres).
	Provider string `json:"provider" yaml:"provider"`

	// Config contains provider-specific configuration.
	// For chromem: collection_name
	// For SQLite: db_path, collection_name
	// For PostgreSQL: host, port, user, password, db_name, collection_name,
	// embedding_model_dims, ssl_mode
	Config map[string]interface{} `json:"config" yaml:"config"`
}

// StoreConfig contains capacity and expiry settings for the tiered store.
// Zero values mean store defaults.
type StoreConfig struct {
	// MaxItemsPerUser caps each owner's record count.
	MaxItemsPerUser int `json:"max_items_per_user,omitempty" yaml:"max_items_per_user,omitempty"`

	// ShortTermExpireSec is the lifetime of short-term records in seconds.
	ShortTermExpireSec int64 `json:"short_term_expire_sec,omitempty" yaml:"short_term_expire_sec,omitempty"`

	// HistoryExpireSec is the lifetime of history records in seconds.
	HistoryExpireSec int64 `json:"history_expire_sec,omitempty" yaml:"history_expire_sec,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - INDEX_PROVIDER (chromem, sqlite, postgres)
//   - SQLITE_PATH, SQLITE_COLLECTION
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - CHROMEM_COLLECTION
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - MAX_ITEMS_PER_USER, SHORT_TERM_EXPIRE_SEC, HISTORY_EXPIRE_SEC
//   - LEGACY_COLLECTION
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("INDEX_PROVIDER", "sqlite")

	indexConfig := make(map[string]interface{})

	switch provider {
	case "chromem":
		indexConfig = map[string]interface{}{
			"collection_name": getEnvOrDefault("CHROMEM_COLLECTION", "memories"),
		}
	case "sqlite":
		indexConfig = map[string]interface{}{
			"db_path":         getEnvOrDefault("SQLITE_PATH", "./memkeep.db"),
			"collection_name": getEnvOrDefault("SQLITE_COLLECTION", "memories"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		dims, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_EMBEDDING_MODEL_DIMS", "1536"))

		indexConfig = map[string]interface{}{
			"host":                 getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":                 port,
			"user":                 getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":             os.Getenv("POSTGRES_PASSWORD"),
			"db_name":              getEnvOrDefault("POSTGRES_DATABASE", "memkeep"),
			"collection_name":      getEnvOrDefault("POSTGRES_COLLECTION", "memories"),
			"embedding_model_dims": dims,
			"ssl_mode":             getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	embedderModel := os.Getenv("EMBEDDING_MODEL")
	embedderBaseURL := os.Getenv("EMBEDDING_BASE_URL")
	if embedderProvider == "openai" && embedderModel == "" {
		embedderModel = "text-embedding-3-small"
	}
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "1536"))

	maxItems, _ := strconv.Atoi(os.Getenv("MAX_ITEMS_PER_USER"))
	shortTermExpire, _ := strconv.ParseInt(os.Getenv("SHORT_TERM_EXPIRE_SEC"), 10, 64)
	historyExpire, _ := strconv.ParseInt(os.Getenv("HISTORY_EXPIRE_SEC"), 10, 64)

	config := &Config{
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      embedderModel,
			BaseURL:    embedderBaseURL,
			Dimensions: dims,
		},
		Index: IndexConfig{
			Provider: provider,
			Config:   indexConfig,
		},
		Store: StoreConfig{
			MaxItemsPerUser:    maxItems,
			ShortTermExpireSec: shortTermExpire,
			HistoryExpireSec:   historyExpire,
		},
		LegacyCollection: getEnvOrDefault("LEGACY_COLLECTION", "memories_legacy"),
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, memory.NewStoreError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, memory.NewStoreError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, memory.NewStoreError("LoadConfigFromYAML", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, memory.NewStoreError("LoadConfigFromYAML", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required fields are set:
//   - Embedder provider must be specified
//   - Index provider must be specified
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return memory.NewStoreError("Validate", ErrInvalidConfig)
	}
	if c.Index.Provider == "" {
		return memory.NewStoreError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
