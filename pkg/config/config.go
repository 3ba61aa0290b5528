package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ClassifierConfig is one entry of the ordered classification chain.
type ClassifierConfig struct {
	Name      string        `yaml:"name"`
	Kind      string        `yaml:"kind"` // ollama or openai
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Config struct {
	LLM struct {
		Embedding struct {
			BaseURL       string        `yaml:"base_url"`
			Model         string        `yaml:"model"`
			Dimension     int           `yaml:"dimension"`
			BatchSize     int           `yaml:"batch_size"`
			QueryPrefix   string        `yaml:"query_prefix"`
			PassagePrefix string        `yaml:"passage_prefix"`
			Timeout       time.Duration `yaml:"timeout"`
		} `yaml:"embedding"`
		Classifiers []ClassifierConfig `yaml:"classifiers"`
	} `yaml:"llm"`

	Database struct {
		Driver         string `yaml:"driver"` // pgvector or memory
		URL            string `yaml:"url"`
		TableName      string `yaml:"table_name"`
		BatchSize      int    `yaml:"batch_size"`
		Index          string `yaml:"index"` // hnsw, ivfflat or none (exact scan)
		M              int    `yaml:"m"`
		EfConstruction int    `yaml:"ef_construction"`
		EfSearch       int    `yaml:"ef_search"`
		Lists          int    `yaml:"lists"`
		Probes         int    `yaml:"probes"`
		TopK           int    `yaml:"top_k"`
	} `yaml:"database"`

	Layout struct {
		ColumnGap        float64 `yaml:"column_gap"`
		ClusterTolerance float64 `yaml:"cluster_tolerance"`
		MinColumnBlocks  int     `yaml:"min_column_blocks"`
	} `yaml:"layout"`

	Metadata struct {
		Instruments []string `yaml:"instruments"`
	} `yaml:"metadata"`

	Processor struct {
		MinSentenceLength int      `yaml:"min_sentence_length"`
		Abbreviations     []string `yaml:"abbreviations"`
	} `yaml:"processor"`

	Verifier struct {
		Threshold         *float64 `yaml:"threshold"` // nil means 0.70; 0 keeps every candidate
		MaxSentences      int      `yaml:"max_sentences"`
		Entities          []string `yaml:"entities"`
		RequestsPerSecond float64  `yaml:"requests_per_second"`
		Burst             int      `yaml:"burst"`
	} `yaml:"verifier"`

	Highlight struct {
		Color   []float64 `yaml:"color"`
		Opacity float64   `yaml:"opacity"`
	} `yaml:"highlight"`

	PDF struct {
		Pdftotext string        `yaml:"pdftotext"`
		Timeout   time.Duration `yaml:"timeout"`
		MaxPages  int           `yaml:"max_pages"`
	} `yaml:"pdf"`

	Fetcher struct {
		MaxDepth       int      `yaml:"max_depth"`
		RateLimit      float64  `yaml:"rate_limit"`
		IgnorePatterns []string `yaml:"ignore_patterns"`
		MaxBytes       int64    `yaml:"max_bytes"`
	} `yaml:"fetcher"`

	Output struct {
		Dir   string `yaml:"dir"`
		Minio struct {
			Endpoint  string `yaml:"endpoint"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
			Bucket    string `yaml:"bucket"`
			UseSSL    bool   `yaml:"use_ssl"`
			Prefix    string `yaml:"prefix"`
		} `yaml:"minio"`
	} `yaml:"output"`

	Server struct {
		Addr          string `yaml:"addr"`
		MaxUploadMB   int    `yaml:"max_upload_mb"`
		AllowedOrigin string `yaml:"allowed_origin"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"ackaudit.yaml",
			"config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/ackaudit/config.yaml"),
			"/etc/ackaudit/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	emb := &config.LLM.Embedding
	if emb.BaseURL == "" {
		emb.BaseURL = "http://localhost:11434"
	}
	if emb.Model == "" {
		emb.Model = "nomic-embed-text:latest"
	}
	if emb.Dimension == 0 {
		emb.Dimension = 768
	}
	if emb.BatchSize == 0 {
		emb.BatchSize = 64
	}
	if emb.Timeout == 0 {
		emb.Timeout = 60 * time.Second
	}

	if len(config.LLM.Classifiers) == 0 {
		config.LLM.Classifiers = []ClassifierConfig{
			{Name: "primary", Kind: "ollama", Model: "mistral"},
			{Name: "fallback", Kind: "ollama", Model: "llama3.1"},
		}
	}
	for i := range config.LLM.Classifiers {
		c := &config.LLM.Classifiers[i]
		if c.Kind == "" {
			c.Kind = "ollama"
		}
		if c.Kind == "ollama" && c.BaseURL == "" {
			c.BaseURL = emb.BaseURL
		}
		if c.MaxTokens == 0 {
			c.MaxTokens = 256
		}
		if c.Timeout == 0 {
			c.Timeout = 60 * time.Second
		}
	}

	if config.Database.Driver == "" {
		config.Database.Driver = "pgvector"
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "reference_phrases"
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}
	if config.Database.Index == "" {
		config.Database.Index = "hnsw"
	}
	if config.Database.Lists == 0 {
		config.Database.Lists = 100
	}
	if config.Database.Probes == 0 {
		config.Database.Probes = config.Database.Lists
	}
	if config.Database.TopK == 0 {
		config.Database.TopK = 30
	}

	if config.Layout.ColumnGap == 0 {
		config.Layout.ColumnGap = 40
	}
	if config.Layout.ClusterTolerance == 0 {
		config.Layout.ClusterTolerance = 12
	}
	if config.Layout.MinColumnBlocks == 0 {
		config.Layout.MinColumnBlocks = 2
	}

	if config.Processor.MinSentenceLength == 0 {
		config.Processor.MinSentenceLength = 2
	}

	if config.Verifier.Threshold == nil {
		threshold := 0.70
		config.Verifier.Threshold = &threshold
	}
	if config.Verifier.MaxSentences == 0 {
		config.Verifier.MaxSentences = 7
	}
	if config.Verifier.Burst == 0 {
		config.Verifier.Burst = 1
	}

	if len(config.Highlight.Color) == 0 {
		config.Highlight.Color = []float64{1, 1, 0}
	}
	if config.Highlight.Opacity == 0 {
		config.Highlight.Opacity = 0.4
	}

	if config.PDF.Pdftotext == "" {
		config.PDF.Pdftotext = "pdftotext"
	}
	if config.PDF.Timeout == 0 {
		config.PDF.Timeout = 2 * time.Minute
	}

	if config.Fetcher.MaxDepth == 0 {
		config.Fetcher.MaxDepth = 1
	}
	if config.Fetcher.RateLimit == 0 {
		config.Fetcher.RateLimit = 2.0
	}
	if config.Fetcher.MaxBytes == 0 {
		config.Fetcher.MaxBytes = 100 << 20
	}

	if config.Output.Dir == "" {
		config.Output.Dir = "outputs"
	}
	if config.Output.Minio.Bucket == "" {
		config.Output.Minio.Bucket = "ackaudit"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 50
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.Embedding.BaseURL = baseURL
		for i := range config.LLM.Classifiers {
			if config.LLM.Classifiers[i].Kind == "ollama" || config.LLM.Classifiers[i].Kind == "" {
				config.LLM.Classifiers[i].BaseURL = baseURL
			}
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for i := range config.LLM.Classifiers {
			if config.LLM.Classifiers[i].Kind == "openai" && config.LLM.Classifiers[i].APIKey == "" {
				config.LLM.Classifiers[i].APIKey = key
			}
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		config.Output.Minio.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		config.Output.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		config.Output.Minio.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		config.Output.Minio.Bucket = v
	}
	if v := os.Getenv("ACKAUDIT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
