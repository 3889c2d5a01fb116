package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	Model     ModelConfig
	Quota     QuotaConfig
	Retrieval RetrievalConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type ModelConfig struct {
	BaseURL                 string
	APIKey                  string
	Model                   string
	Temperature             float32
	MaxTokens               int
	TimeoutSec              int
	PromptCostCentsPerK     float64
	CompletionCostCentsPerK float64
}

type QuotaConfig struct {
	DailyCostCapCents int
}

type RetrievalConfig struct {
	CorpusLimit int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Backend           string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/lexybrain")

	viper.SetEnvPrefix("LEXYBRAIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/lexybrain.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "lexy_corpus")
	viper.SetDefault("milvus.vectorDim", 256)

	viper.SetDefault("model.baseURL", "https://models.lexybrain.io/v1")
	viper.SetDefault("model.model", "lexy-insight-1")
	viper.SetDefault("model.temperature", 0.2)
	viper.SetDefault("model.maxTokens", 2048)
	viper.SetDefault("model.timeoutSec", 60)
	viper.SetDefault("model.promptCostCentsPerK", 0.3)
	viper.SetDefault("model.completionCostCentsPerK", 1.2)

	viper.SetDefault("quota.dailyCostCapCents", 5000)

	viper.SetDefault("retrieval.corpusLimit", 8)

	viper.SetDefault("ratelimit.requestsPerMinute", 60)
	viper.SetDefault("ratelimit.backend", "memory")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
