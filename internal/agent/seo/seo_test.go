package seo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spikehq/spike/internal/agent"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestInvoke_Success(t *testing.T) {
	var gotReq queryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != queryPath {
			t.Errorf("expected path %s, got %s", queryPath, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(queryResponse{
			Summary: "42 pages have missing title tags.",
			Issues:  []map[string]any{{"type": "missing_title", "count": 42}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", testLogger())
	finding, err := client.Invoke(context.Background(), "which pages have title issues", "516815205")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if gotReq.Query != "which pages have title issues" {
		t.Errorf("unexpected query forwarded: %q", gotReq.Query)
	}
	if finding.Text != "42 pages have missing title tags." {
		t.Errorf("unexpected finding text: %q", finding.Text)
	}
	if finding.Data == nil {
		t.Fatal("expected issue data on finding")
	}
}

func TestInvoke_IgnoresScope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(queryResponse{Summary: "No critical issues found."})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", testLogger())
	finding, err := client.Invoke(context.Background(), "site health", "")
	if err != nil {
		t.Fatalf("Invoke with empty scope failed: %v", err)
	}
	if finding.Text != "No critical issues found." {
		t.Errorf("unexpected finding text: %q", finding.Text)
	}
}

func TestInvoke_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   agent.ErrorKind
	}{
		{"not found", http.StatusNotFound, agent.KindNoData},
		{"rate limited", http.StatusTooManyRequests, agent.KindUpstreamTransient},
		{"bad gateway", http.StatusBadGateway, agent.KindUpstreamTransient},
		{"bad request", http.StatusBadRequest, agent.KindUpstreamPermanent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, "key", testLogger())
			_, err := client.Invoke(context.Background(), "audit", "")
			aerr := agent.AsError(err)
			if aerr == nil {
				t.Fatalf("expected agent error, got %v", err)
			}
			if aerr.Kind != tc.kind {
				t.Errorf("expected %s, got %s", tc.kind, aerr.Kind)
			}
			if aerr.Domain != agent.DomainSEO {
				t.Errorf("expected seo domain, got %s", aerr.Domain)
			}
		})
	}
}
