package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ProviderKeyword deshabilita el LLM: la interpretacion queda en reglas locales.
const ProviderKeyword = "keyword"

// NewProvider arma el proveedor configurado envuelto en logging y reintentos.
// Con ProviderKeyword devuelve (nil, nil, nil).
func NewProvider(ctx context.Context, cfg Config, logger *zap.Logger) (Provider, Embedder, error) {
	var (
		base     Provider
		embedder Embedder
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		var p *OpenAIProvider
		p, err = NewOpenAIProvider(cfg)
		if err == nil {
			base, embedder = p, p
		}
	case "anthropic":
		base, err = NewAnthropicProvider(cfg)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg)
	case "mock":
		return NewMockProvider(), HashEmbedder{}, nil
	case ProviderKeyword:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithRetry(WithLogging(base, logger), cfg.Retry), embedder, nil
}
