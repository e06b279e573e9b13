package core

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/memkeep/memkeep-go/pkg/embedder"
	"github.com/memkeep/memkeep-go/pkg/embedder/mock"
	"github.com/memkeep/memkeep-go/pkg/embedder/openai"
	"github.com/memkeep/memkeep-go/pkg/index"
	"github.com/memkeep/memkeep-go/pkg/index/chromem"
	"github.com/memkeep/memkeep-go/pkg/index/postgres"
	"github.com/memkeep/memkeep-go/pkg/index/sqlite"
	"github.com/memkeep/memkeep-go/pkg/legacy"
	"github.com/memkeep/memkeep-go/pkg/memory"
	"github.com/memkeep/memkeep-go/pkg/resilient"
)

// Open builds the full memory stack from the configuration and returns the
// resilient wrapper over it.
//
// Construction is deliberately forgiving: a failure to build the advanced
// tier (index or store) is logged and leaves the wrapper running on the
// legacy tier alone; a failure to build the legacy tier likewise leaves only
// the advanced tier. Open returns an error only when the configuration
// itself is invalid or the embedder cannot be built, since both tiers need
// it. A wrapper with no working backend is still returned so callers keep
// the never-fail operation surface.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	wrapper, err := core.Open(config, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
func Open(config *Config, logger *log.Logger) (*resilient.Wrapper, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	emb, err := createEmbedder(config.Embedder)
	if err != nil {
		return nil, memory.NewStoreError("Open", err)
	}

	var advanced resilient.Backend
	advIdx, err := createIndex(config.Index, config.Embedder.Dimensions, "")
	if err != nil {
		logger.Error("failed to create advanced index", "provider", config.Index.Provider, "error", err)
	} else {
		store, serr := memory.New(advIdx, emb, memory.Config{
			MaxItemsPerUser:    config.Store.MaxItemsPerUser,
			ShortTermExpireSec: config.Store.ShortTermExpireSec,
			HistoryExpireSec:   config.Store.HistoryExpireSec,
		}, logger)
		if serr != nil {
			logger.Error("failed to create tiered store", "error", serr)
			_ = advIdx.Close()
		} else {
			advanced = store
		}
	}

	var legacyBackend resilient.Backend
	legacyCollection := config.LegacyCollection
	if legacyCollection == "" {
		legacyCollection = "memories_legacy"
	}
	legIdx, err := createIndex(config.Index, config.Embedder.Dimensions, legacyCollection)
	if err != nil {
		logger.Error("failed to create legacy index", "provider", config.Index.Provider, "error", err)
	} else {
		legacyBackend = legacy.New(legIdx, emb, logger)
	}

	return resilient.New(advanced, legacyBackend, logger), nil
}

// createEmbedder builds the embedding provider from configuration.
func createEmbedder(config EmbedderConfig) (embedder.Provider, error) {
	switch config.Provider {
	case "openai":
		return openai.NewClient(&openai.Config{
			APIKey:     config.APIKey,
			Model:      config.Model,
			BaseURL:    config.BaseURL,
			Dimensions: config.Dimensions,
		})
	case "mock":
		if config.Dimensions > 0 {
			return mock.NewWithDimensions(config.Dimensions), nil
		}
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", config.Provider)
	}
}

// createIndex builds a vector index from configuration. A non-empty
// collection overrides the configured collection name, so the legacy tier
// can share the provider settings while keeping its records apart.
func createIndex(config IndexConfig, dims int, collection string) (index.Index, error) {
	collectionName := getStringConfig(config.Config, "collection_name", "memories")
	if collection != "" {
		collectionName = collection
	}

	switch config.Provider {
	case "chromem":
		return chromem.NewClient(&chromem.Config{
			CollectionName: collectionName,
		})
	case "sqlite":
		dbPath := getStringConfig(config.Config, "db_path", "./memkeep.db")
		return sqlite.NewClient(&sqlite.Config{
			DBPath:         dbPath,
			CollectionName: collectionName,
		})
	case "postgres":
		if d := getIntConfig(config.Config, "embedding_model_dims", 0); d > 0 {
			dims = d
		}
		if dims <= 0 {
			dims = 1536
		}
		return postgres.NewClient(&postgres.Config{
			Host:           getStringConfig(config.Config, "host", "localhost"),
			Port:           getIntConfig(config.Config, "port", 5432),
			User:           getStringConfig(config.Config, "user", "postgres"),
			Password:       getStringConfig(config.Config, "password", ""),
			DBName:         getStringConfig(config.Config, "db_name", "memkeep"),
			CollectionName: collectionName,
			Dimensions:     dims,
			SSLMode:        getStringConfig(config.Config, "ssl_mode", "disable"),
		})
	default:
		return nil, fmt.Errorf("unsupported index provider: %s", config.Provider)
	}
}

// getStringConfig extracts a string value from the provider config map.
func getStringConfig(config map[string]interface{}, key, defaultValue string) string {
	if value, ok := config[key]; ok {
		if s, ok := value.(string); ok && s != "" {
			return s
		}
	}
	return defaultValue
}

// getIntConfig extracts an integer value from the provider config map.
// JSON numbers decode as float64 and YAML numbers as int, so both are
// accepted.
func getIntConfig(config map[string]interface{}, key string, defaultValue int) int {
	if value, ok := config[key]; ok {
		switch v := value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return defaultValue
}
