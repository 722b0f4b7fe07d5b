package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// openaiAdapter streams completions from an OpenAI-compatible server
// (api.openai.com, llama.cpp server, vLLM, ...) over SSE.
type openaiAdapter struct {
	baseURL    string
	apiKey     string
	model      string
	reqTimeout time.Duration
	httpClient *http.Client
}

// OpenAIOptions configures the OpenAI-compatible adapter.
type OpenAIOptions struct {
	BaseURL string
	APIKey  string
	// Model used when the request does not name one.
	Model string
	// Per-request overall timeout. Zero disables the adapter-level deadline.
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// NewOpenAI constructs an adapter talking to an OpenAI-compatible
// /v1/chat/completions endpoint.
func NewOpenAI(opts OpenAIOptions) Adapter {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Client.Timeout stays 0: streaming responses are open-ended, so
	// deadlines are applied per request via context in Generate.
	return &openaiAdapter{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		reqTimeout: opts.RequestTimeout,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

func (a *openaiAdapter) Name() string         { return "openai" }
func (a *openaiAdapter) DefaultModel() string { return a.model }

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type chatStreamResponse struct {
	Choices []chatStreamChoice `json:"choices"`
}

func (a *openaiAdapter) Generate(ctx context.Context, req Request, onFragment func(string) error) error {
	if a.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.reqTimeout)
		defer cancel()
	}
	model := req.Model
	if model == "" {
		model = a.model
	}
	payload := chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxFragments,
		Temperature: req.Temperature,
		Stream:      true,
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return NewGenerationError(a.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return NewGenerationError(a.Name(), ctx.Err())
		}
		return NewGenerationError(a.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return NewGenerationError(a.Name(), &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))})
	}

	// SSE stream: "data: {json}" frames terminated by "data: [DONE]".
	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSpace(line)
			if line != "" && strings.HasPrefix(strings.ToLower(line), "data:") {
				data := strings.TrimSpace(line[len("data:"):])
				if data == "[DONE]" {
					return nil
				}
				var msg chatStreamResponse
				if uerr := json.Unmarshal([]byte(data), &msg); uerr == nil && len(msg.Choices) > 0 {
					if frag := msg.Choices[0].Delta.Content; frag != "" {
						if cbErr := onFragment(frag); cbErr != nil {
							return cbErr
						}
					}
					if msg.Choices[0].FinishReason != "" {
						return nil
					}
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return NewGenerationError(a.Name(), ctx.Err())
			}
			return NewGenerationError(a.Name(), err)
		}
	}
}
