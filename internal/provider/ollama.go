package provider

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// ollamaAdapter streams completions from a local Ollama daemon.
type ollamaAdapter struct {
	client     *api.Client
	model      string
	reqTimeout time.Duration
}

// OllamaOptions configures the Ollama adapter.
type OllamaOptions struct {
	// Host is the daemon base URL, e.g. http://localhost:11434.
	Host  string
	Model string
	// Per-request overall timeout. Zero disables the adapter-level deadline.
	RequestTimeout time.Duration
}

// NewOllama constructs an adapter backed by the Ollama HTTP API.
func NewOllama(opts OllamaOptions) (Adapter, error) {
	base, err := url.Parse(opts.Host)
	if err != nil {
		return nil, err
	}
	return &ollamaAdapter{
		client:     api.NewClient(base, http.DefaultClient),
		model:      opts.Model,
		reqTimeout: opts.RequestTimeout,
	}, nil
}

func (a *ollamaAdapter) Name() string         { return "ollama" }
func (a *ollamaAdapter) DefaultModel() string { return a.model }

func (a *ollamaAdapter) Generate(ctx context.Context, req Request, onFragment func(string) error) error {
	if a.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.reqTimeout)
		defer cancel()
	}
	model := req.Model
	if model == "" {
		model = a.model
	}
	stream := true
	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxFragments > 0 {
		opts["num_predict"] = req.MaxFragments
	}
	genReq := &api.GenerateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: opts,
	}
	var cbErr error
	err := a.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		if resp.Response != "" {
			if cbErr = onFragment(resp.Response); cbErr != nil {
				return cbErr
			}
		}
		return nil
	})
	if err != nil {
		// Callback errors pass through so the coordinator sees its own error.
		if cbErr != nil {
			return cbErr
		}
		if ctx.Err() != nil {
			return NewGenerationError(a.Name(), ctx.Err())
		}
		return NewGenerationError(a.Name(), err)
	}
	return nil
}
