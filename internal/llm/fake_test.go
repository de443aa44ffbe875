package llm_test

import (
	"context"
	"sync/atomic"

	"github.com/raphaelgruber/omnimemory/internal/llm"
)

type fakeProvider struct {
	name     string
	text     string
	tokens   []string
	err      error
	failMid  bool
	calls    atomic.Int32
	unloaded atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.text, Model: f.name + "-model"}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req llm.Request, onToken llm.TokenFunc) (llm.Response, error) {
	f.calls.Add(1)
	if f.err != nil && !f.failMid {
		return llm.Response{}, f.err
	}
	for _, tok := range f.tokens {
		onToken(tok)
	}
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.text, Model: f.name + "-model"}, nil
}

func (f *fakeProvider) Unload(ctx context.Context) error {
	f.unloaded.Add(1)
	return nil
}
