package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FallbackProvider walks an ordered provider chain for each generation
// call. The report pipeline issues one single-turn request per stage, so
// there is no session state to migrate: when the active provider fails
// mid-chain, the next provider simply serves the stage.
type FallbackProvider struct {
	chain  []Provider
	logger *slog.Logger
}

var _ Provider = (*FallbackProvider)(nil)

// NewFallbackProvider builds a chain from the given providers, primary
// first. At least one provider is required.
func NewFallbackProvider(providers []Provider, logger *slog.Logger) *FallbackProvider {
	if len(providers) == 0 {
		panic("llm: fallback chain requires at least one provider")
	}
	return &FallbackProvider{chain: providers, logger: logger}
}

// Generate tries each provider until one completes the request. A canceled
// context stops the walk immediately instead of burning through backups;
// provider errors are collected and joined when the whole chain fails.
func (f *FallbackProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	var attempts []error
	for _, p := range f.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := p.Generate(ctx, req)
		if err == nil {
			if len(attempts) > 0 {
				f.logger.InfoContext(ctx, "stage request served by fallback provider",
					slog.String("provider", p.Name()),
					slog.Int("failed_attempts", len(attempts)),
				)
			}
			return resp, nil
		}

		attempts = append(attempts, fmt.Errorf("%s: %w", p.Name(), err))
		f.logger.WarnContext(ctx, "provider failed stage request",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
	}
	return nil, fmt.Errorf("no provider completed the request: %w", errors.Join(attempts...))
}

// Name lists the chain, primary first.
func (f *FallbackProvider) Name() string {
	names := make([]string, len(f.chain))
	for i, p := range f.chain {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}
