package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// BedrockProvider calls the AWS Bedrock Converse API. Credentials come from
// the default AWS chain (env, shared config, instance role).
type BedrockProvider struct {
	client *bedrockruntime.Client
	model  string
}

var _ Provider = (*BedrockProvider)(nil)

// NewBedrockProvider loads the default AWS config for region and creates a
// Converse client.
func NewBedrockProvider(ctx context.Context, region, model string) (*BedrockProvider, error) {
	if model == "" {
		return nil, fmt.Errorf("bedrock model required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("bedrock: no AWS region configured")
	}
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(cfg), model: model}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) modelID(req Request) string {
	if req.Options.Model != "" {
		return req.Options.Model
	}
	return p.model
}

func converseMessages(req Request) ([]types.Message, []types.SystemContentBlock, *types.InferenceConfiguration) {
	messages := []types.Message{{
		Role:    types.ConversationRoleUser,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
	}}
	system := []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.system()}}

	var inference *types.InferenceConfiguration
	if req.Options.MaxTokens > 0 || req.Options.Temperature > 0 {
		inference = &types.InferenceConfiguration{}
		if req.Options.MaxTokens > 0 {
			inference.MaxTokens = aws.Int32(int32(req.Options.MaxTokens))
		}
		if req.Options.Temperature > 0 {
			inference.Temperature = aws.Float32(float32(req.Options.Temperature))
		}
	}
	return messages, system, inference
}

// Complete runs a single Converse call.
func (p *BedrockProvider) Complete(ctx context.Context, req Request) (Response, error) {
	messages, system, inference := converseMessages(req)
	model := p.modelID(req)

	out, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		Messages:        messages,
		System:          system,
		InferenceConfig: inference,
	})
	if err != nil {
		return Response{}, wrapFatalError(fmt.Errorf("bedrock converse: %w", err))
	}

	resp := Response{Model: model, Usage: tokenUsage(out.Usage)}
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		resp.Text = contentText(msg.Value.Content)
	}
	return resp, nil
}

// Stream runs ConverseStream and forwards text deltas to onToken.
func (p *BedrockProvider) Stream(ctx context.Context, req Request, onToken TokenFunc) (Response, error) {
	messages, system, inference := converseMessages(req)
	model := p.modelID(req)

	out, err := p.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(model),
		Messages:        messages,
		System:          system,
		InferenceConfig: inference,
	})
	if err != nil {
		return Response{}, wrapFatalError(fmt.Errorf("bedrock converse stream: %w", err))
	}
	stream := out.GetStream()
	defer stream.Close()

	resp := Response{Model: model}
	var b strings.Builder
	for event := range stream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if delta, ok := ev.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && delta.Value != "" {
				b.WriteString(delta.Value)
				onToken(delta.Value)
			}
		case *types.ConverseStreamOutputMemberMetadata:
			resp.Usage = tokenUsage(ev.Value.Usage)
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, wrapFatalError(fmt.Errorf("bedrock stream: %w", err))
	}
	resp.Text = b.String()
	return resp, nil
}

func contentText(blocks []types.ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	return b.String()
}

func tokenUsage(u *types.TokenUsage) *models.Usage {
	if u == nil {
		return nil
	}
	return &models.Usage{
		InputTokens:  int64(aws.ToInt32(u.InputTokens)),
		OutputTokens: int64(aws.ToInt32(u.OutputTokens)),
	}
}
