package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingProvider registra cada llamada con su latencia y consumo.
type LoggingProvider struct {
	inner  Provider
	logger *zap.Logger
}

func WithLogging(p Provider, logger *zap.Logger) Provider {
	if logger == nil {
		return p
	}
	return &LoggingProvider{inner: p, logger: logger}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	fields := []zap.Field{
		zap.String("model", l.inner.ModelID()),
		zap.Duration("latency", time.Since(start)),
	}
	if req.Schema != nil {
		fields = append(fields, zap.String("schema", req.Schema.Name))
	}
	if err != nil {
		l.logger.Warn("llm generate failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	l.logger.Debug("llm generate",
		append(fields,
			zap.Int("input_tokens", resp.Usage.InputTokens),
			zap.Int("output_tokens", resp.Usage.OutputTokens),
		)...,
	)
	return resp, nil
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}
