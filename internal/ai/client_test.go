package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/liao/chat-analyst/internal/config"
)

func fragments(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func failingAfter(err error, parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
		yield("", err)
	}
}

func TestCollect_ConcatenatesInOrder(t *testing.T) {
	var seen []string
	got, err := Collect(context.Background(), fragments("Hel", "lo", ", ", "world"), func(s string) {
		seen = append(seen, s)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("Collect() = %q", got)
	}
	if len(seen) != 4 {
		t.Errorf("fragment callback saw %d fragments, want 4", len(seen))
	}
}

func TestCollect_ErrorDiscardsPartialOutput(t *testing.T) {
	boom := errors.New("connection reset")
	got, err := Collect(context.Background(), failingAfter(boom, "partial "), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got != "" {
		t.Errorf("partial output must be discarded, got %q", got)
	}
}

func TestCollect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	seq := func(yield func(string, error) bool) {
		if !yield("first", nil) {
			return
		}
		cancel()
		yield("second", nil)
	}

	got, err := Collect(ctx, seq, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got != "" {
		t.Errorf("expected no output after cancellation, got %q", got)
	}
}

type flakyCompleter struct {
	calls    atomic.Int32
	failures int32
	partial  bool
}

func (f *flakyCompleter) Stream(ctx context.Context, _ []Message) iter.Seq2[string, error] {
	n := f.calls.Add(1)
	if n <= f.failures {
		if f.partial {
			return failingAfter(fmt.Errorf("attempt %d failed", n), "half")
		}
		return failingAfter(fmt.Errorf("attempt %d failed", n))
	}
	return fragments("ok")
}

func TestWithRetry_RetriesBeforeFirstFragment(t *testing.T) {
	f := &flakyCompleter{failures: 2}
	c := WithRetry(f, 2, time.Millisecond)

	got, err := Collect(context.Background(), c.Stream(context.Background(), nil), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || f.calls.Load() != 3 {
		t.Errorf("got %q after %d calls", got, f.calls.Load())
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	f := &flakyCompleter{failures: 5}
	c := WithRetry(f, 1, time.Millisecond)

	_, err := Collect(context.Background(), c.Stream(context.Background(), nil), nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if f.calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", f.calls.Load())
	}
}

func TestWithRetry_NoRetryAfterOutputStarted(t *testing.T) {
	f := &flakyCompleter{failures: 1, partial: true}
	c := WithRetry(f, 3, time.Millisecond)

	_, err := Collect(context.Background(), c.Stream(context.Background(), nil), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if f.calls.Load() != 1 {
		t.Errorf("stream that already produced output must not be retried, got %d calls", f.calls.Load())
	}
}

func TestBuildContextPrompt(t *testing.T) {
	prompt, truncated := BuildContextPrompt("short chat", 15000)
	if truncated {
		t.Error("short chat should not be truncated")
	}
	if !strings.HasPrefix(prompt, contextHeader) || !strings.HasSuffix(prompt, "short chat") {
		t.Errorf("unexpected prompt %q", prompt)
	}

	long := strings.Repeat("a", 15000) + "DROPPED"
	prompt, truncated = BuildContextPrompt(long, 15000)
	if !truncated {
		t.Error("long chat should be truncated")
	}
	if strings.Contains(prompt, "DROPPED") {
		t.Error("text beyond the limit leaked into the prompt")
	}
	if got := len(prompt) - len(contextHeader); got != 15000 {
		t.Errorf("context length = %d, want 15000", got)
	}
}

func TestBuildContextPrompt_CountsRunes(t *testing.T) {
	prompt, truncated := BuildContextPrompt("日本語テキスト", 3)
	if !truncated || prompt != contextHeader+"日本語" {
		t.Errorf("got %q truncated=%v", prompt, truncated)
	}
}

func TestBuildExcerptPrompt(t *testing.T) {
	if BuildExcerptPrompt(nil) != "" {
		t.Error("no excerpts should produce no prompt")
	}
	got := BuildExcerptPrompt([]string{"a", "b"})
	want := "Relevant excerpts beyond the context window:\n1. a\n2. b"
	if got != want {
		t.Errorf("BuildExcerptPrompt() = %q, want %q", got, want)
	}
}

func TestToGenaiContents(t *testing.T) {
	system, contents := toGenaiContents([]Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleSystem, Content: "context"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	})
	if system != "persona\n\ncontext" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	wantRoles := []string{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Errorf("content %d role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
}

func TestNew_MissingKeyReturnsNil(t *testing.T) {
	c, err := New(context.Background(), config.LLMConfig{Provider: "groq"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Error("expected nil completer without an API key")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), config.LLMConfig{Provider: "nope", APIKey: "k"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func streamServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}

		var req struct {
			Model    string    `json:"model"`
			Stream   bool      `json:"stream"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "llama3-8b-8192" || !req.Stream {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"model":   "llama3-8b-8192",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": c}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAIClient_Stream(t *testing.T) {
	server := streamServer(t, []string{"The ", "answer ", "is 42."})
	defer server.Close()

	c := NewOpenAIClient("test-key", server.URL, "llama3-8b-8192", 0.7, 256)
	msgs := []Message{{Role: RoleSystem, Content: "ctx"}, {Role: RoleUser, Content: "hello"}}

	got, err := Collect(context.Background(), c.Stream(context.Background(), msgs), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "The answer is 42." {
		t.Errorf("got %q", got)
	}
}

func TestOpenAIClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid API Key", "type": "invalid_request_error"},
		})
	}))
	defer server.Close()

	c := NewOpenAIClient("bad-key", server.URL, "llama3-8b-8192", 0.7, 256)
	_, err := Collect(context.Background(), c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}), nil)
	if err == nil {
		t.Fatal("expected error for unauthorized response")
	}
	if !strings.Contains(err.Error(), "Invalid API Key") {
		t.Errorf("error should carry the API message, got %v", err)
	}
}
