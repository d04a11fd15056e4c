package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicInvoker streams completions from the Anthropic Messages API.
type AnthropicInvoker struct {
	client       *anthropic.Client
	defaultModel string
}

func NewAnthropicInvoker(apiKey, defaultModel string) *AnthropicInvoker {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicInvoker{
		client:       &client,
		defaultModel: defaultModel,
	}
}

func (p *AnthropicInvoker) Name() string { return "anthropic" }

func (p *AnthropicInvoker) StreamText(ctx context.Context, req TextRequest, onToken TokenHandler) error {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if e.Delta.Type == "text_delta" && e.Delta.Text != "" {
				if err := onToken(e.Delta.Text); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}
