// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.airqa/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - LLM: Ollama host, supported models, default model, sampling knobs
//   - Retrieval: embedder model, MMR parameters
//   - Storage: PostgreSQL connection for the vector store (see storage.go)
//   - Persistence: directories for session, feedback and QA-log files
//   - Serve: CORS origins, proxy trust, rate limiting, public API keys
//
// Sensitive data (the Postgres password, API keys) is never logged in the
// clear; Config masks it in MarshalJSON and String.
//
// Errors are package-level sentinels checked with errors.Is() and wrapped
// with fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidModelName indicates a model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidTopP indicates the top_p value is out of range.
	ErrInvalidTopP = errors.New("invalid top_p")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidRetrieval indicates a retrieval parameter is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval parameter")

	// ErrInvalidRetries indicates the LLM retry count is out of range.
	ErrInvalidRetries = errors.New("invalid max LLM retries")

	// ErrInvalidDataDir indicates a persistence directory is invalid.
	ErrInvalidDataDir = errors.New("invalid data directory")

	// ErrInvalidRateLimit indicates a rate-limit parameter is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultModel is used when a request names no model or an
	// unsupported one.
	DefaultModel = "gemma3:12b"

	// DefaultEmbedderModel is the Ollama embedding model backing the
	// vector store.
	DefaultEmbedderModel = "bge-m3"
)

// defaultSupportedModels is the model allow-list served by default.
// Overridable via supported_models in config.yaml.
var defaultSupportedModels = []string{
	"qwen3:14b",
	"gemma3:12b",
	"gemma3:12b-it-q4_K_M",
	"qwen2.5:14b-instruct-q5_K_M",
	"llama3:8b",
	"qwen:4b",
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, keys), update MarshalJSON.
type Config struct {
	// LLM configuration
	OllamaHost      string   `mapstructure:"ollama_host" json:"ollama_host"`
	SupportedModels []string `mapstructure:"supported_models" json:"supported_models"`
	DefaultModel    string   `mapstructure:"default_model" json:"default_model"`
	Temperature     float32  `mapstructure:"temperature" json:"temperature"`
	TopP            float32  `mapstructure:"top_p" json:"top_p"`
	MaxLLMRetries   int      `mapstructure:"max_llm_retries" json:"max_llm_retries"`

	// Retrieval configuration
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	RetrievalTopK int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	RetrievalFetchK int   `mapstructure:"retrieval_fetch_k" json:"retrieval_fetch_k"`
	RetrievalLambda float64 `mapstructure:"retrieval_lambda" json:"retrieval_lambda"`

	// Storage configuration (vector store; see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// File persistence directories (per-user subtrees are created on demand)
	ChatDataDir string `mapstructure:"chat_data_dir" json:"chat_data_dir"`
	FeedbackDir string `mapstructure:"feedback_dir" json:"feedback_dir"`
	QALogDir    string `mapstructure:"qa_log_dir" json:"qa_log_dir"`

	// Serve configuration
	CORSOrigins []string          `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool              `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
	APIKeys     map[string]string `mapstructure:"api_keys" json:"api_keys"`       // SENSITIVE: key -> consumer name; keys masked in MarshalJSON

	// Rate limiting on generation endpoints
	RateLimitRequests      int `mapstructure:"rate_limit_requests" json:"rate_limit_requests"`
	RateLimitWindowSeconds int `mapstructure:"rate_limit_window_seconds" json:"rate_limit_window_seconds"`

	// Observability (optional; empty endpoint disables trace export)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".airqa")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail-fast: a bad config never reaches the server loop.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// LLM defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("supported_models", defaultSupportedModels)
	viper.SetDefault("default_model", DefaultModel)
	viper.SetDefault("temperature", 0.1)
	viper.SetDefault("top_p", 0.8)
	viper.SetDefault("max_llm_retries", 1)

	// Retrieval defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("retrieval_top_k", 10)
	viper.SetDefault("retrieval_fetch_k", 30)
	viper.SetDefault("retrieval_lambda", 0.4)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "airqa")
	viper.SetDefault("postgres_password", "airqa_dev_password")
	viper.SetDefault("postgres_db_name", "airqa")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Persistence defaults
	viper.SetDefault("chat_data_dir", "user_specific_chat_data")
	viper.SetDefault("feedback_dir", "user_specific_feedback")
	viper.SetDefault("qa_log_dir", "user_specific_qa_logs")

	// Serve defaults
	viper.SetDefault("cors_origins", []string{"http://localhost:4200"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_limit_requests", 30)
	viper.SetDefault("rate_limit_window_seconds", 60)

	// Observability defaults (disabled unless an endpoint is configured)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "airqa")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment overrides explicitly.
// DATABASE_URL is read separately in parseDatabaseURL.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("ollama_host", "AIRQA_OLLAMA_HOST")
	mustBind("default_model", "AIRQA_DEFAULT_MODEL")
	mustBind("embedder_model", "AIRQA_EMBEDDER_MODEL")
	mustBind("chat_data_dir", "AIRQA_CHAT_DATA_DIR")
	mustBind("feedback_dir", "AIRQA_FEEDBACK_DIR")
	mustBind("qa_log_dir", "AIRQA_QA_LOG_DIR")
	mustBind("cors_origins", "AIRQA_CORS_ORIGINS")
	mustBind("trust_proxy", "AIRQA_TRUST_PROXY")
	mustBind("otlp_endpoint", "AIRQA_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked to prevent substring
// matching; longer ones keep the first and last 2 chars for debug utility.
// This defends against accidental logging, not against compromised logs.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking: PostgresPassword and every API key. When adding new sensitive
// fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	if len(a.APIKeys) > 0 {
		masked := make(map[string]string, len(a.APIKeys))
		for key, consumer := range a.APIKeys {
			masked[maskSecret(key)] = consumer
		}
		a.APIKeys = masked
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
