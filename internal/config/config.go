package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"scidigest/internal/aggregate"
	"scidigest/internal/category"
	"scidigest/internal/feed"
)

type Config struct {
	// Gateway settings
	GeminiAPIKey string
	GeminiModel  string
	TargetLang   string // empty disables translation
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
	GatewayRPM   int // token-bucket refill, requests per minute

	// Source settings
	SourcesPath    string
	RequestTimeout time.Duration

	// Highlight settings
	HighlightURL    string
	HighlightAPIKey string

	// Storage / output
	DatabasePath string
	OutputPath   string // "-" writes to stdout

	// Aggregate limits
	NewsLimit   int
	VideosLimit int
	PapersLimit int

	Debug bool
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		GeminiModel:    "gemini-1.5-flash",
		BatchSize:      20,
		MaxAttempts:    3,
		RetryDelay:     5 * time.Second,
		GatewayRPM:     10,
		SourcesPath:    "configs/sources.yaml",
		RequestTimeout: 10 * time.Second,
		HighlightURL:   "https://api.nasa.gov/planetary/apod",
		DatabasePath:   "scidigest.db",
		OutputPath:     "-",
		NewsLimit:      aggregate.DefaultNewsLimit,
		VideosLimit:    aggregate.DefaultVideosLimit,
		PapersLimit:    aggregate.DefaultPapersLimit,
	}

	// Load from environment
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.HighlightAPIKey = getEnvOrDefault("HIGHLIGHT_API_KEY", "DEMO_KEY")

	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}
	if v := os.Getenv("TARGET_LANG"); v != "" {
		cfg.TargetLang = v
	}
	if v := os.Getenv("SOURCES_CONFIG_PATH"); v != "" {
		cfg.SourcesPath = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("HIGHLIGHT_URL"); v != "" {
		cfg.HighlightURL = v
	}

	cfg.BatchSize = getEnvIntOrDefault("GATEWAY_BATCH_SIZE", cfg.BatchSize)
	cfg.MaxAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.MaxAttempts)
	cfg.GatewayRPM = getEnvIntOrDefault("GATEWAY_RPM", cfg.GatewayRPM)
	cfg.NewsLimit = getEnvIntOrDefault("NEWS_LIMIT", cfg.NewsLimit)
	cfg.VideosLimit = getEnvIntOrDefault("VIDEOS_LIMIT", cfg.VideosLimit)
	cfg.PapersLimit = getEnvIntOrDefault("PAPERS_LIMIT", cfg.PapersLimit)

	if v := os.Getenv("RETRY_DELAY_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.RetryDelay = time.Duration(val) * time.Second
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.RequestTimeout = time.Duration(val) * time.Second
		}
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.SourcesPath == "" {
		return fmt.Errorf("SOURCES_CONFIG_PATH must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("GATEWAY_BATCH_SIZE must be at least 1")
	}
	if c.GatewayRPM < 1 {
		return fmt.Errorf("GATEWAY_RPM must be at least 1")
	}
	// GEMINI_API_KEY is optional: without it the run skips classification
	// and translation, and items fall back to fixed or catch-all categories.
	return nil
}

// Sources is the declarative source-descriptor file.
type Sources struct {
	Categories []string                        `yaml:"categories"`
	Feeds      []feed.Source                   `yaml:"feeds"`
	Papers     []feed.Source                   `yaml:"papers"`
	Resources  map[string][]aggregate.Resource `yaml:"resources"`
}

// LoadSources reads and validates the YAML source list.
func LoadSources(path string) (*Sources, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources config: %w", err)
	}
	defer f.Close()

	var s Sources
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode sources config: %w", err)
	}

	cats := category.FromStrings(s.Categories)
	s.Categories = make([]string, len(cats))
	for i, cat := range cats {
		s.Categories[i] = string(cat)
	}

	for i := range s.Papers {
		s.Papers[i].Kind = feed.KindPaper
	}

	for _, src := range append(append([]feed.Source{}, s.Feeds...), s.Papers...) {
		if src.Name == "" || src.URL == "" {
			return nil, fmt.Errorf("source entries need both name and url (got name=%q url=%q)", src.Name, src.URL)
		}
		if src.Kind != feed.KindNews && src.Kind != feed.KindVideo && src.Kind != feed.KindPaper {
			return nil, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
		}
		if src.Category != "" && !category.Contains(cats, category.Category(src.Category)) {
			return nil, fmt.Errorf("source %s: fixed category %q is not in the enumeration", src.Name, src.Category)
		}
	}

	return &s, nil
}

// CategoryList returns the configured enumeration as categories.
func (s *Sources) CategoryList() []category.Category {
	return category.FromStrings(s.Categories)
}
