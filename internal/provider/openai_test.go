package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseHandler(frames []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			if fl != nil {
				fl.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func deltaFrame(text string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, text)
}

func TestOpenAIGenerateStreamsFragments(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		deltaFrame("He"), deltaFrame("llo"), deltaFrame("!"),
	}))
	defer srv.Close()

	a := NewOpenAI(OpenAIOptions{BaseURL: srv.URL, Model: "m1"})
	var got []string
	err := a.Generate(context.Background(), Request{Prompt: "Hello"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Join(got, "") != "Hello!" {
		t.Fatalf("unexpected fragments: %q", got)
	}
}

func TestOpenAIGenerateSkipsEmptyDeltas(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"choices":[{"delta":{}}]}`, deltaFrame("hi"),
	}))
	defer srv.Close()

	a := NewOpenAI(OpenAIOptions{BaseURL: srv.URL})
	var got []string
	if err := a.Generate(context.Background(), Request{Prompt: "p"}, func(s string) error {
		got = append(got, s)
		return nil
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 1 || got[0] != "hi" {
		t.Fatalf("unexpected fragments: %q", got)
	}
}

func TestOpenAIGenerateCallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{deltaFrame("a"), deltaFrame("b")}))
	defer srv.Close()

	boom := errors.New("boom")
	a := NewOpenAI(OpenAIOptions{BaseURL: srv.URL})
	err := a.Generate(context.Background(), Request{Prompt: "p"}, func(string) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error to pass through, got %v", err)
	}
}

func TestOpenAIGenerateHTTPStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		a := NewOpenAI(OpenAIOptions{BaseURL: srv.URL})
		err := a.Generate(context.Background(), Request{Prompt: "p"}, func(string) error { return nil })
		srv.Close()
		if !IsGenerationError(err) {
			t.Fatalf("status %d: expected GenerationError, got %v", tc.status, err)
		}
		if IsTransient(err) != tc.transient {
			t.Fatalf("status %d: transient=%v, want %v (err=%v)", tc.status, IsTransient(err), tc.transient, err)
		}
	}
}

func TestOpenAIGenerateStopsOnFinishReason(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		deltaFrame("only"),
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		deltaFrame("never"),
	}))
	defer srv.Close()

	a := NewOpenAI(OpenAIOptions{BaseURL: srv.URL})
	var got []string
	if err := a.Generate(context.Background(), Request{Prompt: "p"}, func(s string) error {
		got = append(got, s)
		return nil
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 1 || got[0] != "only" {
		t.Fatalf("expected stream to stop at finish_reason, got %q", got)
	}
}

func TestOpenAISendsAuthHeaderAndModel(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		sseHandler(nil)(w, r)
	}))
	defer srv.Close()

	a := NewOpenAI(OpenAIOptions{BaseURL: srv.URL, APIKey: "sk-test", Model: "default-m"})
	if err := a.Generate(context.Background(), Request{Prompt: "p"}, func(string) error { return nil }); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if !strings.Contains(gotBody, `"model":"default-m"`) {
		t.Fatalf("expected default model in body, got %s", gotBody)
	}
}
