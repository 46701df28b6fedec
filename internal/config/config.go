package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for IdioRAG
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Database    DatabaseConfig    `mapstructure:"database"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Chunking    ChunkingConfig    `mapstructure:"chunking"`
	Query       QueryConfig       `mapstructure:"query"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
}

// AuthConfig holds JWT verification settings
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	JWTAlgorithm string `mapstructure:"jwt_algorithm"`
	Issuer       string `mapstructure:"issuer"`

	// PEM-encoded keys, used with RS256. The private key is only needed to issue tokens.
	JWTPublicKey  string `mapstructure:"jwt_public_key"`
	JWTPrivateKey string `mapstructure:"jwt_private_key"`

	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// VectorStoreConfig selects and configures the chunk vector store
type VectorStoreConfig struct {
	Type   string       `mapstructure:"type"` // sqlite, memory, qdrant
	Path   string       `mapstructure:"path"`
	Qdrant QdrantConfig `mapstructure:"qdrant"`
}

// QdrantConfig holds Qdrant REST settings
type QdrantConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, hashing
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Dimensions  int           `mapstructure:"dimensions"`
	CacheSize   int           `mapstructure:"cache_size"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LLMConfig holds completion provider configuration
type LLMConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Temperature   float64       `mapstructure:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	StopSequences []string      `mapstructure:"stop_sequences"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ChunkingConfig holds chunking defaults and strategy wiring
type ChunkingConfig struct {
	ChunkSize       int               `mapstructure:"chunk_size"`
	ChunkOverlap    int               `mapstructure:"chunk_overlap"`
	DocTypeChunkers map[string]string `mapstructure:"doc_type_chunkers"`
	// Chunkers maps a registry name to a catalog path, e.g. "fishing" -> "fishing_log/hybrid".
	Chunkers map[string]string `mapstructure:"chunkers"`
}

// QueryConfig holds query defaults
type QueryConfig struct {
	DefaultTopK int    `mapstructure:"default_top_k"`
	MaxTopK     int    `mapstructure:"max_top_k"`
	DefaultMode string `mapstructure:"default_mode"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
}

// Load loads configuration from .env, file and environment
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables, e.g. IDIORAG_LLM_BASE_URL
	v.SetEnvPrefix("IDIORAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_algorithm", "HS256")
	v.SetDefault("auth.jwt_public_key", "")
	v.SetDefault("auth.jwt_private_key", "")
	v.SetDefault("auth.issuer", "idiorag")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("database.path", "./data/idiorag.db")

	v.SetDefault("vector_store.type", "sqlite")
	v.SetDefault("vector_store.path", "./data/vectors.db")
	v.SetDefault("vector_store.qdrant.url", "http://localhost:6333")
	v.SetDefault("vector_store.qdrant.api_key", "")
	v.SetDefault("vector_store.qdrant.collection", "idiorag_chunks")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.base_url", "http://localhost:11434/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.cache_size", 1000)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.timeout", 60*time.Second)

	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "qwen2.5:7b")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.stop_sequences", []string{"\n\nOkay,", "\n\nLet me", "\n\nWait,", "\n\nHowever,"})
	v.SetDefault("llm.timeout", 120*time.Second)

	v.SetDefault("chunking.chunk_size", 512)
	v.SetDefault("chunking.chunk_overlap", 50)
	v.SetDefault("chunking.chunkers", map[string]string{"fishing": "fishing_log/hybrid"})
	v.SetDefault("chunking.doc_type_chunkers", map[string]string{"fishing_log": "fishing"})

	v.SetDefault("query.default_top_k", 5)
	v.SetDefault("query.max_top_k", 20)
	v.SetDefault("query.default_mode", "direct")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.environment", "production")
}

// Validate checks values that would otherwise fail deep inside a request
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}
	switch c.VectorStore.Type {
	case "sqlite", "memory", "qdrant":
	default:
		return fmt.Errorf("unknown vector_store.type %q", c.VectorStore.Type)
	}
	switch c.Embedding.Provider {
	case "openai", "hashing":
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	switch c.Auth.JWTAlgorithm {
	case "HS256", "RS256":
	default:
		return fmt.Errorf("unsupported auth.jwt_algorithm %q", c.Auth.JWTAlgorithm)
	}
	if c.Query.DefaultTopK <= 0 || c.Query.DefaultTopK > c.Query.MaxTopK {
		return fmt.Errorf("query.default_top_k must be in [1, %d]", c.Query.MaxTopK)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
