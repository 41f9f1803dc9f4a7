package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Store     StoreConfig     `mapstructure:"store"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Serve     ServeConfig     `mapstructure:"serve"`
	Log       LogConfig       `mapstructure:"log"`
}

type ScrapeConfig struct {
	BaseURL         string `mapstructure:"baseURL"`
	SitemapIndexURL string `mapstructure:"sitemapIndexURL"`
	ArticleFilter   string `mapstructure:"articleFilter"`
	DataDir         string `mapstructure:"dataDir"`
	URLsFile        string `mapstructure:"urlsFile"`
	ImagesDir       string `mapstructure:"imagesDir"`
}

type IngestConfig struct {
	BatchSize    int `mapstructure:"batchSize"`
	ArticleLimit int `mapstructure:"articleLimit"`
	ImageLimit   int `mapstructure:"imageLimit"`
}

type OpenAIConfig struct {
	APIKey         string  `mapstructure:"apiKey"`
	BaseURL        string  `mapstructure:"baseURL"`
	ChatModel      string  `mapstructure:"chatModel"`
	CaptionModel   string  `mapstructure:"captionModel"`
	EmbeddingModel string  `mapstructure:"embeddingModel"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"maxTokens"`
}

// StoreConfig selects a vector store backend. Config carries the
// backend-specific block, decoded by the backend itself.
type StoreConfig struct {
	Backend    string         `mapstructure:"backend"`
	Dimensions int            `mapstructure:"dimensions"`
	Config     map[string]any `mapstructure:"config"`
}

type RetrievalConfig struct {
	TopK       int `mapstructure:"topK"`
	TokenLimit int `mapstructure:"tokenLimit"`
}

type ServeConfig struct {
	ListenAddr     string        `mapstructure:"listenAddr"`
	MetricsAddr    string        `mapstructure:"metricsAddr"`
	MetricsEnabled bool          `mapstructure:"metricsEnabled"`
	CacheTTL       time.Duration `mapstructure:"cacheTTL"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

// Load reads config from file or environment
func Load(cfgFile string) (*Config, error) {
	// pick up OPENAI_API_KEY and friends from a .env if present
	_ = godotenv.Load()

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("batchrag")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("BATCHRAG")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		fmt.Println("Using config file:", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.OpenAI.APIKey = cmp.Or(cfg.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY"))

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scrape.baseURL", "https://www.deeplearning.ai")
	v.SetDefault("scrape.sitemapIndexURL", "https://www.deeplearning.ai/sitemap.xml")
	v.SetDefault("scrape.articleFilter", "/the-batch/")
	v.SetDefault("scrape.dataDir", "data")
	v.SetDefault("scrape.urlsFile", filepath.Join("data", "article_urls.txt"))
	v.SetDefault("scrape.imagesDir", filepath.Join("data", "images"))

	v.SetDefault("ingest.batchSize", 50)
	v.SetDefault("ingest.articleLimit", 50)
	v.SetDefault("ingest.imageLimit", 0)

	v.SetDefault("openai.chatModel", "gpt-3.5-turbo")
	v.SetDefault("openai.captionModel", "gpt-4o-mini")
	v.SetDefault("openai.embeddingModel", "text-embedding-3-small")
	v.SetDefault("openai.temperature", 0.0)
	v.SetDefault("openai.maxTokens", 1024)

	v.SetDefault("store.backend", "local")
	v.SetDefault("store.dimensions", 1536)
	v.SetDefault("store.config", map[string]any{
		"path":       filepath.Join("data", "index", "batchrag.db"),
		"collection": "the-batch",
	})

	v.SetDefault("retrieval.topK", 5)
	v.SetDefault("retrieval.tokenLimit", 12000)

	v.SetDefault("serve.listenAddr", ":8080")
	v.SetDefault("serve.metricsAddr", ":9100")
	v.SetDefault("serve.metricsEnabled", false)
	v.SetDefault("serve.cacheTTL", "0s")

	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")
}
