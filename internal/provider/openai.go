package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// OpenAIInvoker streams completions from OpenAI or any OpenAI-compatible
// endpoint (configurable base URL).
type OpenAIInvoker struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAIInvoker(apiKey, baseURL, defaultModel string) *OpenAIInvoker {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIInvoker{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

func (p *OpenAIInvoker) Name() string { return "openai" }

func (p *OpenAIInvoker) StreamText(ctx context.Context, req TextRequest, onToken TokenHandler) error {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	creq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Stream: true,
	}
	if req.Temperature > 0 {
		creq.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = req.MaxTokens
	}
	if req.UserID != "" {
		creq.User = req.UserID
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onToken(delta); err != nil {
			return err
		}
	}
}
