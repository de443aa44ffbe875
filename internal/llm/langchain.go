package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollamaapi "github.com/ollama/ollama/api"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// LangChainProvider adapts a langchaingo model to Provider.
type LangChainProvider struct {
	name      string
	llm       llms.Model
	modelName string
	unload    func(ctx context.Context) error
}

var _ Provider = (*LangChainProvider)(nil)

// NewLangChainProvider wraps an existing langchaingo model.
func NewLangChainProvider(name, modelName string, model llms.Model) *LangChainProvider {
	return &LangChainProvider{name: name, llm: model, modelName: modelName}
}

// NewOllamaProvider creates a provider for a local Ollama model. Unload asks
// the server to evict the model from memory.
func NewOllamaProvider(host, model string) (*LangChainProvider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama model required")
	}
	lc, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	api := ollamaapi.NewClient(base, http.DefaultClient)

	p := NewLangChainProvider("ollama", model, lc)
	p.unload = func(ctx context.Context) error {
		stream := false
		return api.Generate(ctx, &ollamaapi.GenerateRequest{
			Model:     model,
			KeepAlive: &ollamaapi.Duration{Duration: 0},
			Stream:    &stream,
		}, func(ollamaapi.GenerateResponse) error { return nil })
	}
	return p, nil
}

// NewOpenAIProvider creates a provider for the OpenAI chat API.
func NewOpenAIProvider(apiKey, model string, opts ...openai.Option) (*LangChainProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	lc, err := openai.New(append([]openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return NewLangChainProvider("openai", model, lc), nil
}

func (p *LangChainProvider) Name() string { return p.name }

// Model returns the configured model name.
func (p *LangChainProvider) Model() string { return p.modelName }

// Unload releases the model when the backend supports it.
func (p *LangChainProvider) Unload(ctx context.Context) error {
	if p.unload == nil {
		return nil
	}
	return p.unload(ctx)
}

func (p *LangChainProvider) callOptions(req Request) []llms.CallOption {
	var opts []llms.CallOption
	if req.Options.Model != "" {
		opts = append(opts, llms.WithModel(req.Options.Model))
	}
	if req.Options.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Options.Temperature))
	}
	if req.Options.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.Options.MaxTokens))
	}
	return opts
}

func (p *LangChainProvider) generate(ctx context.Context, req Request, opts ...llms.CallOption) (Response, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.system()),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}

	resp, err := p.llm.GenerateContent(ctx, messages, append(p.callOptions(req), opts...)...)
	if err != nil {
		return Response{}, wrapFatalError(fmt.Errorf("%s generate: %w", p.name, err))
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%s: no response choices", p.name)
	}

	choice := resp.Choices[0]
	model := p.modelName
	if req.Options.Model != "" {
		model = req.Options.Model
	}
	return Response{
		Text:  choice.Content,
		Model: model,
		Usage: usageFrom(choice.GenerationInfo),
	}, nil
}

// Complete generates a completion.
func (p *LangChainProvider) Complete(ctx context.Context, req Request) (Response, error) {
	return p.generate(ctx, req)
}

// Stream generates a completion, passing chunks to onToken as they arrive.
func (p *LangChainProvider) Stream(ctx context.Context, req Request, onToken TokenFunc) (Response, error) {
	var b strings.Builder
	resp, err := p.generate(ctx, req, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		b.Write(chunk)
		onToken(string(chunk))
		return nil
	}))
	if err != nil {
		return Response{}, err
	}
	if resp.Text == "" {
		resp.Text = b.String()
	}
	return resp, nil
}

// usageFrom reads token counts from langchaingo generation info. Backends
// name the keys differently.
func usageFrom(info map[string]any) *models.Usage {
	in, okIn := intField(info, "PromptTokens", "prompt_tokens", "input_tokens")
	out, okOut := intField(info, "CompletionTokens", "completion_tokens", "output_tokens")
	if !okIn && !okOut {
		return nil
	}
	return &models.Usage{InputTokens: in, OutputTokens: out}
}

func intField(info map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v), true
		case int32:
			return int64(v), true
		case int64:
			return v, true
		case float64:
			return int64(v), true
		}
	}
	return 0, false
}
