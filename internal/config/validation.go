package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. LLM configuration
	if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
		return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidOllamaHost, c.OllamaHost)
	}

	if len(c.SupportedModels) == 0 {
		return fmt.Errorf("%w: supported_models cannot be empty", ErrInvalidModelName)
	}
	for _, name := range c.SupportedModels {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: supported_models contains an empty entry", ErrInvalidModelName)
		}
	}

	if c.DefaultModel == "" {
		return fmt.Errorf("%w: default_model cannot be empty", ErrInvalidModelName)
	}
	if !slices.Contains(c.SupportedModels, c.DefaultModel) {
		return fmt.Errorf("%w: default_model %q is not in supported_models", ErrInvalidModelName, c.DefaultModel)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.TopP <= 0.0 || c.TopP > 1.0 {
		return fmt.Errorf("%w: must be in (0.0, 1.0], got %.2f", ErrInvalidTopP, c.TopP)
	}

	if c.MaxLLMRetries < 0 || c.MaxLLMRetries > 10 {
		return fmt.Errorf("%w: must be between 0 and 10, got %d", ErrInvalidRetries, c.MaxLLMRetries)
	}

	// 2. Retrieval configuration
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 100 {
		return fmt.Errorf("%w: retrieval_top_k must be between 1 and 100, got %d", ErrInvalidRetrieval, c.RetrievalTopK)
	}
	if c.RetrievalFetchK < c.RetrievalTopK {
		return fmt.Errorf("%w: retrieval_fetch_k (%d) must be at least retrieval_top_k (%d)",
			ErrInvalidRetrieval, c.RetrievalFetchK, c.RetrievalTopK)
	}
	if c.RetrievalLambda < 0.0 || c.RetrievalLambda > 1.0 {
		return fmt.Errorf("%w: retrieval_lambda must be between 0.0 and 1.0, got %.2f",
			ErrInvalidRetrieval, c.RetrievalLambda)
	}

	// 3. Persistence directories
	for name, dir := range map[string]string{
		"chat_data_dir": c.ChatDataDir,
		"feedback_dir":  c.FeedbackDir,
		"qa_log_dir":    c.QALogDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%w: %s cannot be empty", ErrInvalidDataDir, name)
		}
	}

	// 4. Rate limiting
	if c.RateLimitRequests < 1 {
		return fmt.Errorf("%w: rate_limit_requests must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitRequests)
	}
	if c.RateLimitWindowSeconds < 1 {
		return fmt.Errorf("%w: rate_limit_window_seconds must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitWindowSeconds)
	}

	// 5. PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml", ErrInvalidPostgresPassword)
	}

	// Warn on the default dev password but do not block local development.
	if c.PostgresPassword == "airqa_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
