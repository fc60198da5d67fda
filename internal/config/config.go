package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `json:"database"  envPrefix:"ASKDB_"`
	Embedder  EmbedderConfig  `json:"embedder"  envPrefix:"ASKDB_"`
	Generator GeneratorConfig `json:"generator" envPrefix:"ASKDB_"`
	Retrieval RetrievalConfig `json:"retrieval" envPrefix:"ASKDB_"`
	Prompt    PromptConfig    `json:"prompt"    envPrefix:"ASKDB_"`
	Validator ValidatorConfig `json:"validator" envPrefix:"ASKDB_"`
	Logging   LoggingConfig   `json:"logging"   envPrefix:"ASKDB_"`
}

// DatabaseConfig covers both the target analytical database and the
// description store, which live in the same DuckDB file by default.
type DatabaseConfig struct {
	Path            string `json:"path"               env:"DB_PATH"              envDefault:"~/.config/askdb/askdb.db"`
	StorePath       string `json:"store_path"         env:"STORE_PATH"           envDefault:""`
	MaxConnections  int    `json:"max_connections"    env:"DB_MAX_CONNECTIONS"   envDefault:"10"`
	MaxIdleConns    int    `json:"max_idle_conns"     env:"DB_MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime string `json:"conn_max_lifetime"  env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	SampleValues    int    `json:"sample_values"      env:"DB_SAMPLE_VALUES"     envDefault:"3"`
}

// EmbedderConfig represents embedding provider configuration
type EmbedderConfig struct {
	Provider   string `json:"provider"    env:"EMBEDDER_PROVIDER"    envDefault:"ollama"` // openai, ollama
	Model      string `json:"model"       env:"EMBEDDER_MODEL"       envDefault:"all-minilm"`
	BaseURL    string `json:"base_url"    env:"EMBEDDER_BASE_URL"    envDefault:"http://localhost:11434"`
	APIKey     string `json:"api_key"     env:"EMBEDDER_API_KEY"     envDefault:""`
	Dimensions int    `json:"dimensions"  env:"EMBEDDER_DIMENSIONS"  envDefault:"384"`
	Timeout    string `json:"timeout"     env:"EMBEDDER_TIMEOUT"     envDefault:"30s"`
	MaxRetries int    `json:"max_retries" env:"EMBEDDER_MAX_RETRIES" envDefault:"3"`
}

// GeneratorConfig represents NL-to-SQL model configuration
type GeneratorConfig struct {
	Provider    string  `json:"provider"    env:"GENERATOR_PROVIDER"    envDefault:"ollama"` // openai, ollama
	Model       string  `json:"model"       env:"GENERATOR_MODEL"       envDefault:"sqlcoder"`
	BaseURL     string  `json:"base_url"    env:"GENERATOR_BASE_URL"    envDefault:"http://localhost:11434"`
	APIKey      string  `json:"api_key"     env:"GENERATOR_API_KEY"     envDefault:""`
	Temperature float64 `json:"temperature" env:"GENERATOR_TEMPERATURE" envDefault:"0.1"`
	Timeout     string  `json:"timeout"     env:"GENERATOR_TIMEOUT"     envDefault:"60s"`
	MaxRetries  int     `json:"max_retries" env:"GENERATOR_MAX_RETRIES" envDefault:"3"`
}

// RetrievalConfig controls ranking and the selection policy
type RetrievalConfig struct {
	Policy      string  `json:"policy"      env:"RETRIEVAL_POLICY"      envDefault:"topk_threshold"` // topk_threshold, adaptive, margin
	TopK        int     `json:"top_k"       env:"RETRIEVAL_TOP_K"       envDefault:"20"`
	Threshold   float64 `json:"threshold"   env:"RETRIEVAL_THRESHOLD"   envDefault:"0.3"`
	Coefficient float64 `json:"coefficient" env:"RETRIEVAL_COEFFICIENT" envDefault:"1.0"`  // adaptive: theta = mean + c*stddev
	Margin      float64 `json:"margin"      env:"RETRIEVAL_MARGIN"      envDefault:"0.95"` // margin: keep score >= top*margin
	Rerank      bool    `json:"rerank"      env:"RETRIEVAL_RERANK"      envDefault:"false"`
	RerankTopN  int     `json:"rerank_top_n" env:"RETRIEVAL_RERANK_TOP_N" envDefault:"50"`
}

// PromptConfig bounds the assembled context handed to the generator
type PromptConfig struct {
	BudgetChars int `json:"budget_chars" env:"PROMPT_BUDGET_CHARS" envDefault:"8000"`
}

// ValidatorConfig controls the SQL guard's retry loop and heuristics
type ValidatorConfig struct {
	MaxAttempts  int  `json:"max_attempts"  env:"VALIDATOR_MAX_ATTEMPTS"  envDefault:"3"`
	RequireLimit bool `json:"require_limit" env:"VALIDATOR_REQUIRE_LIMIT" envDefault:"false"`
	MaxJoins     int  `json:"max_joins"     env:"VALIDATOR_MAX_JOINS"     envDefault:"0"` // 0 disables the check
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`   // text, json
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/askdb/logs/askdb.log"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := &Config{}

	// Load from config file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply environment variable overrides using env library (also sets defaults)
	if err := env.ParseWithOptions(config, env.Options{
		Prefix: "ASKDB_",
	}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "db-path":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Path = str
			}
		case "store-path":
			if str, ok := value.(string); ok && str != "" {
				config.Database.StorePath = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "policy":
			if str, ok := value.(string); ok && str != "" {
				config.Retrieval.Policy = str
			}
		case "threshold":
			if f, ok := value.(float64); ok && f != 0 {
				config.Retrieval.Threshold = f
			}
		case "max-attempts":
			if n, ok := value.(int); ok && n > 0 {
				config.Validator.MaxAttempts = n
			}
		}
	}

	return nil
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := 0; i < s.NumField(); i++ {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if s.Kind() == reflect.Bool {
			t.Set(s)
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validPolicies := map[string]bool{
		"topk_threshold": true, "adaptive": true, "margin": true,
	}
	if !validPolicies[config.Retrieval.Policy] {
		return fmt.Errorf(
			"invalid retrieval policy: %s (must be topk_threshold, adaptive, or margin)",
			config.Retrieval.Policy,
		)
	}

	validProviders := map[string]bool{"openai": true, "ollama": true}
	if !validProviders[config.Embedder.Provider] {
		return fmt.Errorf("invalid embedder provider: %s (must be openai or ollama)", config.Embedder.Provider)
	}

	if !validProviders[config.Generator.Provider] {
		return fmt.Errorf("invalid generator provider: %s (must be openai or ollama)", config.Generator.Provider)
	}

	for name, value := range map[string]string{
		"embedder timeout":           config.Embedder.Timeout,
		"generator timeout":          config.Generator.Timeout,
		"database conn max lifetime": config.Database.ConnMaxLifetime,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	if config.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive: %d", config.Retrieval.TopK)
	}

	if config.Retrieval.Threshold < -1 || config.Retrieval.Threshold > 1 {
		return fmt.Errorf(
			"retrieval threshold must be within [-1, 1]: %f",
			config.Retrieval.Threshold,
		)
	}

	if config.Prompt.BudgetChars <= 0 {
		return fmt.Errorf("prompt budget must be positive: %d", config.Prompt.BudgetChars)
	}

	if config.Validator.MaxAttempts <= 0 {
		return fmt.Errorf("validator max attempts must be positive: %d", config.Validator.MaxAttempts)
	}

	if config.Embedder.Dimensions <= 0 {
		return fmt.Errorf("embedder dimensions must be positive: %d", config.Embedder.Dimensions)
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("ASKDB_CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "askdb", "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Database.Path = expandPath(c.Database.Path)
	c.Database.StorePath = expandPath(c.Database.StorePath)
	c.Logging.File = expandPath(c.Logging.File)
}

// EffectiveStorePath returns the description store location, which defaults
// to the target database file when not set separately.
func (c *Config) EffectiveStorePath() string {
	if c.Database.StorePath != "" {
		return c.Database.StorePath
	}

	return c.Database.Path
}

// EmbedderTimeout returns the parsed embedder call timeout
func (c *Config) EmbedderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embedder.Timeout)
	if err != nil {
		return 30 * time.Second
	}

	return d
}

// GeneratorTimeout returns the parsed generator call timeout
func (c *Config) GeneratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generator.Timeout)
	if err != nil {
		return 60 * time.Second
	}

	return d
}
