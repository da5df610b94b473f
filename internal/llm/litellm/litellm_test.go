package litellm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spikehq/spike/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComplete_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "gemini-2.5-flash" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}

		resp := apiResponse{
			Choices: []apiChoice{{Message: apiMessage{Role: "assistant", Content: "Hello!"}, FinishReason: "stop"}},
			Usage:   apiUsage{PromptTokens: 12, CompletionTokens: 4},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "gemini-2.5-flash", discardLogger())
	resp, err := client.Complete(context.Background(), &llm.Request{
		System: "You are helpful.",
		Prompt: "Hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello!" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestComplete_JSONMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %+v", req.ResponseFormat)
		}
		json.NewEncoder(w).Encode(apiResponse{
			Choices: []apiChoice{{Message: apiMessage{Content: `{"intent":"seo"}`}}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "m", discardLogger())
	resp, err := client.Complete(context.Background(), &llm.Request{Prompt: "classify", ResponseJSON: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != `{"intent":"seo"}` {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestComplete_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "m", discardLogger())
	_, err := client.Complete(context.Background(), &llm.Request{Prompt: "hi"})

	me := llm.AsModelError(err)
	if me == nil {
		t.Fatalf("expected ModelError, got %v", err)
	}
	if me.Kind != llm.KindRateLimited {
		t.Errorf("kind = %q", me.Kind)
	}
	if me.RetryAfter != 7*time.Second {
		t.Errorf("retry-after = %v", me.RetryAfter)
	}
	if !me.Retryable() {
		t.Error("rate-limited should be retryable")
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "m", discardLogger())
	_, err := client.Complete(context.Background(), &llm.Request{Prompt: "hi"})

	me := llm.AsModelError(err)
	if me == nil || me.Kind != llm.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestComplete_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "m", discardLogger())
	_, err := client.Complete(context.Background(), &llm.Request{Prompt: "hi"})

	me := llm.AsModelError(err)
	if me == nil || me.Kind != llm.KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}
	if me.Retryable() {
		t.Error("malformed should not be blind-retryable")
	}
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "m", discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, &llm.Request{Prompt: "hi"})
	me := llm.AsModelError(err)
	if me == nil || me.Kind != llm.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}
