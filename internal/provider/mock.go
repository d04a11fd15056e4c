package provider

import (
	"context"
	"strings"
	"time"
)

// MockInvoker is a deterministic provider for local development and tests.
type MockInvoker struct {
	// Tokens overrides the generated sequence when non-nil.
	Tokens []string
	// Err, when set, is returned after Tokens are delivered.
	Err error
	// Delay is applied between tokens.
	Delay time.Duration
}

func NewMockInvoker() *MockInvoker {
	return &MockInvoker{}
}

func (p *MockInvoker) Name() string { return "mock" }

func (p *MockInvoker) StreamText(ctx context.Context, req TextRequest, onToken TokenHandler) error {
	tokens := p.Tokens
	if tokens == nil {
		tokens = strings.SplitAfter("This is a mock response to: "+req.Prompt, " ")
	}

	for _, tok := range tokens {
		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return p.Err
}
