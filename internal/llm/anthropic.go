package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// DefaultAnthropicMaxTokens caps completions when the request sets no limit.
const DefaultAnthropicMaxTokens = 1024

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider. Extra request options (base URL,
// retries) are passed to the SDK client.
func NewAnthropicProvider(apiKey, model string, opts ...option.RequestOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic model required")
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicProvider{client: client, model: model}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	model := p.model
	if req.Options.Model != "" {
		model = req.Options.Model
	}
	maxTokens := int64(DefaultAnthropicMaxTokens)
	if req.Options.MaxTokens > 0 {
		maxTokens = int64(req.Options.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: req.system()},
		},
	}
	if req.Options.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Options.Temperature)
	}
	return params
}

// Complete sends one message and returns the text blocks of the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return Response{}, wrapFatalError(fmt.Errorf("anthropic: %w", err))
	}
	return messageResponse(resp), nil
}

// Stream sends one message and forwards text deltas to onToken.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request, onToken TokenFunc) (Response, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		_ = message.Accumulate(event)

		if evt, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				onToken(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, wrapFatalError(fmt.Errorf("anthropic stream: %w", err))
	}
	return messageResponse(&message), nil
}

func messageResponse(msg *anthropic.Message) Response {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return Response{
		Text:  b.String(),
		Model: string(msg.Model),
		Usage: &models.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
}
