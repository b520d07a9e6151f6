package config

import (
	"fmt"
	"os"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider API key (required for all AI operations)
	switch c.Provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	default:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	}

	// 2. Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// 3. PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	// 4. Rate limiting
	if c.RateWindowSeconds < 1 {
		return fmt.Errorf("%w: rate_window_seconds must be >= 1, got %d", ErrInvalidRateLimit, c.RateWindowSeconds)
	}
	if c.RateMaxRequests < 1 {
		return fmt.Errorf("%w: rate_max_requests must be >= 1, got %d", ErrInvalidRateLimit, c.RateMaxRequests)
	}
	if c.AnonMaxRequests < 1 || c.AnonMaxRequests > c.RateMaxRequests {
		return fmt.Errorf("%w: anon_max_requests must be between 1 and rate_max_requests (%d), got %d",
			ErrInvalidRateLimit, c.RateMaxRequests, c.AnonMaxRequests)
	}

	// 5. Conversation bounds
	if c.ContextBudgetBytes < 256 {
		return fmt.Errorf("%w: context_budget_bytes must be >= 256, got %d", ErrInvalidContextBudget, c.ContextBudgetBytes)
	}
	if c.MaxHistoryTurns < 2 || c.MaxHistoryTurns > 1000 {
		return fmt.Errorf("%w: max_history_turns must be between 2 and 1000, got %d", ErrInvalidHistoryTurns, c.MaxHistoryTurns)
	}
	if c.SessionIdleSeconds < 1 {
		return fmt.Errorf("%w: session_idle_seconds must be >= 1, got %d", ErrInvalidTimeout, c.SessionIdleSeconds)
	}

	// 6. Retrieval and generation
	if c.TopKDefault < 1 || c.TopKMax < c.TopKDefault {
		return fmt.Errorf("%w: need 1 <= top_k_default <= top_k_max, got default=%d max=%d",
			ErrInvalidTopK, c.TopKDefault, c.TopKMax)
	}
	if c.RetrievalTimeoutMS < 1 {
		return fmt.Errorf("%w: retrieval_timeout_ms must be >= 1, got %d", ErrInvalidTimeout, c.RetrievalTimeoutMS)
	}
	if c.GenerationTimeoutMS < 1 {
		return fmt.Errorf("%w: generation_timeout_ms must be >= 1, got %d", ErrInvalidTimeout, c.GenerationTimeoutMS)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("%w: cache_ttl_seconds must be >= 0, got %d", ErrInvalidTimeout, c.CacheTTLSeconds)
	}

	return nil
}
