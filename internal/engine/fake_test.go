package engine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/omnimemory/internal/llm"
)

type fakeCompleter struct {
	name   string
	delay  time.Duration
	block  bool
	err    error
	tokens []string

	mu      sync.Mutex
	prompts []string
	unloads atomic.Int32
}

func (f *fakeCompleter) Name() string { return f.name }

func (f *fakeCompleter) wait(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeCompleter) record(req llm.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.record(req)
	if err := f.wait(ctx); err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: "echo: " + req.Prompt, Model: f.name + "-model"}, nil
}

func (f *fakeCompleter) Stream(ctx context.Context, req llm.Request, onToken llm.TokenFunc) (llm.Response, error) {
	f.record(req)
	text := ""
	for _, tok := range f.tokens {
		onToken(tok)
		text += tok
	}
	if err := f.wait(ctx); err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: text, Model: f.name + "-model"}, nil
}

func (f *fakeCompleter) Unload(ctx context.Context) error {
	f.unloads.Add(1)
	return nil
}
