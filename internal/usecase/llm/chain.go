// Package llm provides an ordered fallback chain over chat completion
// providers. Providers are tried in order until one returns a non-empty
// completion.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wearly/searchd/internal/domain"
	"github.com/wearly/searchd/internal/logger"
)

// Completer is a single chat completion provider.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Provider() string
}

// Chain tries completers in order. An empty chain means LLM assistance is
// disabled and every call fails with domain.ErrLLMUnavailable.
type Chain struct {
	completers []Completer
}

// NewChain creates a fallback chain in priority order.
func NewChain(completers ...Completer) *Chain {
	return &Chain{completers: completers}
}

// Enabled reports whether any provider is configured.
func (c *Chain) Enabled() bool {
	return len(c.completers) > 0
}

// Complete returns the first non-empty completion. Per-provider failures are
// logged and the next provider is tried; only when all providers fail does
// the call fail.
func (c *Chain) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if len(c.completers) == 0 {
		return "", domain.ErrLLMUnavailable
	}

	log := logger.FromContext(ctx)

	var lastErr error
	for _, completer := range c.completers {
		out, err := completer.Complete(ctx, prompt, maxTokens)
		if err != nil {
			log.Warn("completion provider failed",
				zap.String("provider", completer.Provider()),
				zap.Error(err))
			lastErr = err
			continue
		}
		if strings.TrimSpace(out) == "" {
			log.Warn("completion provider returned empty output",
				zap.String("provider", completer.Provider()))
			lastErr = fmt.Errorf("provider %s returned empty completion", completer.Provider())
			continue
		}
		return out, nil
	}

	return "", fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, lastErr)
}
