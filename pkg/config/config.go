// Package config loads application configuration from a YAML file and
// environment variables via viper. A .env file, when present, is loaded
// first so local development mirrors the deployed environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DatabaseConfig contains settings for the relational store (PostgreSQL with
// the pgvector extension).
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig contains settings for the Redis-backed cache layer.
type CacheConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// EmbeddingConfig configures the tiered embedding service.
type EmbeddingConfig struct {
	PrimaryAPIKey    string `mapstructure:"primary_api_key"`
	PrimaryModel     string `mapstructure:"primary_model"`
	SecondaryAPIKey  string `mapstructure:"secondary_api_key"`
	SecondaryBaseURL string `mapstructure:"secondary_base_url"`
	SecondaryModel   string `mapstructure:"secondary_model"`
	LocalBaseURL     string `mapstructure:"local_base_url"`
	LocalModel       string `mapstructure:"local_model"`
	BatchSize        int    `mapstructure:"batch_size"`
	LocalBatchSize   int    `mapstructure:"local_batch_size"`
}

// LLMConfig configures the chat-completion endpoints used for synonyms,
// match validation, reranking and answering.
type LLMConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
	ValidatorModel   string        `mapstructure:"validator_model"`
	Temperature      float32       `mapstructure:"temperature"`
	ValidatorTimeout time.Duration `mapstructure:"validator_timeout"`
	EnableValidation bool          `mapstructure:"enable_validation"`
}

// MatchingConfig configures the matching engine.
type MatchingConfig struct {
	SimilarityThreshold   float64 `mapstructure:"similarity_threshold"`
	IncrementalDays       int     `mapstructure:"incremental_days"`
	PageSize              int     `mapstructure:"page_size"`
	VectorizerKind        string  `mapstructure:"vectorizer_kind"`
	ClearBeforeReevaluate bool    `mapstructure:"clear_before_reevaluate"`
}

// ProvidersConfig configures the source adapters.
type ProvidersConfig struct {
	PNCPBaseURL          string `mapstructure:"pncp_base_url"`
	PNCPModalityCode     int    `mapstructure:"pncp_modality_code"`
	ComprasNetSearchURL  string `mapstructure:"comprasnet_search_url"`
	EnableParallelSearch bool   `mapstructure:"enable_parallel_search"`
}

// StorageConfig configures object storage for document blobs.
type StorageConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`
}

// APIConfig configures the inbound HTTP server.
type APIConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

// Config holds the complete application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	API         APIConfig       `mapstructure:"api"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Embedding   EmbeddingConfig `mapstructure:"embedding"`
	LLM         LLMConfig       `mapstructure:"llm"`
	Matching    MatchingConfig  `mapstructure:"matching"`
	Providers   ProvidersConfig `mapstructure:"providers"`
	Storage     StorageConfig   `mapstructure:"storage"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Best effort; absence of a .env file is normal in production.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("LICITAHUB_CONFIG_FILE")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("LICITAHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known variable names used by deployments, bound explicitly.
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("cache.address", "CACHE_BACKEND_URL")
	_ = v.BindEnv("embedding.primary_api_key", "PRIMARY_EMBEDDING_API_KEY")
	_ = v.BindEnv("embedding.secondary_api_key", "SECONDARY_EMBEDDING_API_KEY")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("llm.enable_validation", "ENABLE_LLM_VALIDATION")
	_ = v.BindEnv("matching.vectorizer_kind", "VECTORIZER_KIND")
	_ = v.BindEnv("matching.clear_before_reevaluate", "CLEAR_MATCHES_BEFORE_REEVALUATE")
	_ = v.BindEnv("providers.enable_parallel_search", "ENABLE_PARALLEL_SEARCH")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (set DATABASE_URL)")
	}
	if c.Matching.SimilarityThreshold <= 0 || c.Matching.SimilarityThreshold > 1 {
		return fmt.Errorf("matching.similarity_threshold must be in (0,1], got %v", c.Matching.SimilarityThreshold)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Minute)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.pool_size", 10)

	v.SetDefault("embedding.primary_model", "text-embedding-3-large")
	v.SetDefault("embedding.secondary_model", "BAAI/bge-m3")
	v.SetDefault("embedding.local_base_url", "http://localhost:11434/v1")
	v.SetDefault("embedding.local_model", "nomic-embed-text")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.local_batch_size", 16)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.validator_model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.validator_timeout", 75*time.Second)

	// Threshold tuned empirically; see matching engine.
	v.SetDefault("matching.similarity_threshold", 0.65)
	v.SetDefault("matching.incremental_days", 7)
	v.SetDefault("matching.page_size", 100)
	v.SetDefault("matching.vectorizer_kind", "remote")

	v.SetDefault("providers.enable_parallel_search", true)
	v.SetDefault("providers.pncp_base_url", "https://pncp.gov.br/api/consulta/v1")
	// The upstream portal's "pregão eletrônico" modality. Kept configurable;
	// other modalities are untested against the wire format.
	v.SetDefault("providers.pncp_modality_code", 8)
	v.SetDefault("providers.comprasnet_search_url", "http://comprasnet.gov.br/ConsultaLicitacoes/ConsLicitacao_Filtro.asp")

	v.SetDefault("storage.bucket", "licitahub-documents")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.prefix", "documents/")
}
