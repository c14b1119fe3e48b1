package llm

import "time"

// Config agrupa la configuracion de proveedor que arma NewProvider.
type Config struct {
	// Provider: "openai", "anthropic", "gemini", "mock" o "keyword" (sin LLM).
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Retry          RetryConfig
}

// RetryConfig controla los reintentos ante fallas transitorias.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		InitialWait: 300 * time.Millisecond,
		MaxWait:     2 * time.Second,
		Multiplier:  2.0,
	}
}

// defaultModels se usa cuando LLM_MODEL viene vacio.
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-haiku",
	"gemini":    "gemini-flash",
}
