package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the taxotag service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy"`
	Tagging   TaggingConfig   `yaml:"tagging"`
	Report    ReportConfig    `yaml:"report"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AuthConfig holds API authentication settings. An empty key list disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CacheConfig holds Redis connection settings for the embedding cache and
// budget counters. An empty addr list disables caching and budget
// persistence; the service still runs.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"` // keyed by profile name
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string       `yaml:"api_key"`
	BaseURL string       `yaml:"base_url"`
	Budget  BudgetConfig `yaml:"budget"`
}

// VectorizerConfig binds an embedding profile to a provider and its models.
// TextModel and ImageModel must map into the same semantic space for
// blending to make sense.
type VectorizerConfig struct {
	Provider   string `yaml:"provider"`
	TextModel  string `yaml:"text_model"`
	ImageModel string `yaml:"image_model"`
	Dimensions int    `yaml:"dimensions"`
}

// FetchConfig holds image fetching settings.
type FetchConfig struct {
	TimeoutSec   int  `yaml:"timeout_sec"`
	PrimeCookies bool `yaml:"prime_cookies"` // fetch the shop page first to capture cookies
}

// TaxonomyConfig holds taxonomy tree settings.
type TaxonomyConfig struct {
	Dir              string  `yaml:"dir"`               // categories.yaml + attributes/*.yaml
	CategoryProfile  string  `yaml:"category_profile"`  // profile for the category tree
	AttributeProfile string  `yaml:"attribute_profile"` // profile for attribute trees
	TagThreshold     float64 `yaml:"tag_threshold"`     // default multi-match threshold
}

// TaggingConfig selects which item fields feed the short and full text
// phrases blended with the image embedding.
type TaggingConfig struct {
	TextFields     []string `yaml:"text_fields"`
	TextFieldsFull []string `yaml:"text_fields_full"`
}

// ReportConfig holds catalog-wide top-tag aggregation settings.
type ReportConfig struct {
	SimilarityFloor float64 `yaml:"similarity_floor"` // drop rows below this raw similarity
	Threshold       float64 `yaml:"threshold"`        // combined-score cutoff
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Predictions block on remote embedding calls; give them room.
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Fetch.TimeoutSec <= 0 {
		c.Fetch.TimeoutSec = 20
	}
	if c.Taxonomy.Dir == "" {
		c.Taxonomy.Dir = filepath.Join("config", "taxonomies")
	}
	if c.Taxonomy.CategoryProfile == "" {
		c.Taxonomy.CategoryProfile = "baseline"
	}
	if c.Taxonomy.AttributeProfile == "" {
		c.Taxonomy.AttributeProfile = "fast"
	}
	if c.Taxonomy.TagThreshold <= 0 {
		c.Taxonomy.TagThreshold = 0.25
	}
	if c.Report.SimilarityFloor <= 0 {
		c.Report.SimilarityFloor = 0.2
	}
	if c.Report.Threshold <= 0 {
		c.Report.Threshold = 0.25
	}
	if len(c.Tagging.TextFields) == 0 {
		c.Tagging.TextFields = []string{"title"}
	}
	if len(c.Tagging.TextFieldsFull) == 0 {
		c.Tagging.TextFieldsFull = []string{"title", "description"}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Embedding.Vectorizers) == 0 {
		return fmt.Errorf("embedding.vectorizers is required")
	}
	for profile, v := range c.Embedding.Vectorizers {
		if _, ok := c.Embedding.Providers[v.Provider]; !ok {
			return fmt.Errorf("embedding.vectorizers.%s references unknown provider %q", profile, v.Provider)
		}
		if v.TextModel == "" {
			return fmt.Errorf("embedding.vectorizers.%s.text_model is required", profile)
		}
	}
	for name, p := range c.Embedding.Providers {
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"embedding.providers.%s.budget.action must be \"warn\" or \"reject\", got %q",
				name, p.Budget.Action,
			)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
