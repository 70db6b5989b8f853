// Package config loads and validates application configuration from a YAML
// file with environment-variable overrides, in the same two-stage pattern
// used across this codebase's services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Pool     PoolConfig     `yaml:"pool"`
	Writer   WriterConfig   `yaml:"writer"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Semantic SemanticConfig `yaml:"semantic"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// DataConfig points at the on-disk layout: processed indices, temp PDFs,
// temp tokenizer handshake files, and served downloads.
type DataConfig struct {
	ProcessedDir string `yaml:"processedDir"`
	TempPDFDir   string `yaml:"tempPdfDir"`
	TempJSONDir  string `yaml:"tempJsonDir"`
	DownloadsDir string `yaml:"downloadsDir"`
	BarrelCount  int    `yaml:"barrelCount"`
	TokenizerBin string `yaml:"tokenizerBin"`
}

// PoolConfig controls the PDF processing worker pool.
type PoolConfig struct {
	Workers       int           `yaml:"workers"`
	TaskTimeout   time.Duration `yaml:"taskTimeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
}

// WriterConfig controls the batch index writer's flush thresholds.
type WriterConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// RankingConfig holds the ranking scorer's factor weights.
type RankingConfig struct {
	FrequencyWeight float64 `yaml:"frequencyWeight"`
	PositionWeight  float64 `yaml:"positionWeight"`
	TitleWeight     float64 `yaml:"titleWeight"`
	MetadataWeight  float64 `yaml:"metadataWeight"`
	SemanticWeight  float64 `yaml:"semanticWeight"`
}

// SemanticConfig points at the optional precomputed embedding files.
type SemanticConfig struct {
	DocVectorsPath    string `yaml:"docVectorsPath"`
	WordEmbeddingPath string `yaml:"wordEmbeddingPath"`
}

// RedisConfig holds settings for the optional secondary query-result cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// Enabled reports whether a Redis address has been configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// KafkaConfig holds settings for the optional event bus.
type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIndexed string `yaml:"documentIndexed"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// Enabled reports whether at least one broker has been configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML config file (if provided) and applies environment
// variable overrides, returning a Config seeded with defaults for anything
// left unset.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Data: DataConfig{
			ProcessedDir: "data/processed",
			TempPDFDir:   "data/temp_pdfs",
			TempJSONDir:  "data/temp_json",
			DownloadsDir: "data/downloads",
			BarrelCount:  100,
			TokenizerBin: "tools/pdf_tokenizer",
		},
		Pool: PoolConfig{
			Workers:       4,
			TaskTimeout:   60 * time.Second,
			RetryAttempts: 2,
		},
		Writer: WriterConfig{
			BatchSize:     20,
			FlushInterval: 5 * time.Second,
		},
		Ranking: RankingConfig{
			FrequencyWeight: 0.4,
			PositionWeight:  0.2,
			TitleWeight:     0.3,
			MetadataWeight:  0.1,
			SemanticWeight:  0.4,
		},
		Semantic: SemanticConfig{
			DocVectorsPath:    "data/processed/document_vectors.bin",
			WordEmbeddingPath: "data/processed/word_embeddings.bin",
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Topics: KafkaTopics{
				DocumentIndexed: "document.indexed",
				CacheInvalidate: "cache.invalidate",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyEnvOverrides reads SE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SE_DATA_PROCESSED_DIR"); v != "" {
		cfg.Data.ProcessedDir = v
	}
	if v := os.Getenv("SE_DATA_BARREL_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Data.BarrelCount = n
		}
	}
	if v := os.Getenv("SE_DATA_TOKENIZER_BIN"); v != "" {
		cfg.Data.TokenizerBin = v
	}
	if v := os.Getenv("SE_POOL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Workers = n
		}
	}
	if v := os.Getenv("SE_WRITER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Writer.BatchSize = n
		}
	}
	if v := os.Getenv("SE_WRITER_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Writer.FlushInterval = d
		}
	}
	if v := os.Getenv("SE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
