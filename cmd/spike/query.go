package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
)

// Exit codes for the query command.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitUnauthorized = 2
	ExitUnavailable  = 3
)

var (
	queryText       string
	queryServerURL  string
	queryAPIKey     string
	queryStream     bool
	queryTimeout    int
	queryPropertyID string
	queryStrategy   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send a one-shot question to a running server",
	Long: `Send a natural-language question to the Spike server.
The question is classified, routed to the analytics and SEO agents,
and answered from their findings.

Examples:
  spike query -q "how many visitors did we get last week" --property-id 42
  spike query -q "audit our landing pages for SEO issues" --stream

Exit codes:
  0  success
  1  execution failure
  2  unauthorized or rate limited
  3  server unavailable`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question to send (required)")
	queryCmd.Flags().StringVar(&queryServerURL, "server-url", "http://localhost:8080", "server HTTP API URL")
	queryCmd.Flags().StringVar(&queryAPIKey, "api-key", "", "API key for authentication (or SPIKE_API_KEY env)")
	queryCmd.Flags().BoolVar(&queryStream, "stream", false, "stream progress via SSE")
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 180, "timeout in seconds")
	queryCmd.Flags().StringVar(&queryPropertyID, "property-id", "", "analytics property scope")
	queryCmd.Flags().StringVar(&queryStrategy, "strategy", "", "routing strategy: pipeline or react")

	_ = queryCmd.MarkFlagRequired("query")
}

func runQuery(_ *cobra.Command, _ []string) error {
	if queryText == "" {
		return fmt.Errorf("query is required: use -q flag")
	}

	// Resolve API key from flag or env.
	apiKey := goutils.Env("SPIKE_API_KEY", queryAPIKey)
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required (use --api-key or set SPIKE_API_KEY)")
		os.Exit(ExitUnauthorized)
	}

	serverURL := goutils.Env("SPIKE_SERVER_URL", queryServerURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(queryTimeout)*time.Second)
	defer cancel()

	if queryStream {
		return runQuerySSE(ctx, serverURL, apiKey)
	}
	return runQueryHTTP(ctx, serverURL, apiKey)
}

func queryBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"query":       queryText,
		"property_id": queryPropertyID,
		"strategy":    queryStrategy,
	})
	return body
}

// runQueryHTTP sends a synchronous query and prints the answer.
func runQueryHTTP(ctx context.Context, serverURL, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", serverURL+"/v1/query", bytes.NewReader(queryBody()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach server at %s: %v\n", serverURL, err)
		os.Exit(ExitUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var result struct {
			Answer        string `json:"answer"`
			Partial       bool   `json:"partial"`
			CorrelationID string `json:"correlation_id"`
		}
		_ = json.Unmarshal(respBody, &result)
		fmt.Println(result.Answer)
		fmt.Fprintf(os.Stderr, "\n[correlation_id=%s partial=%t]\n", result.CorrelationID, result.Partial)
		os.Exit(ExitSuccess)

	case http.StatusUnauthorized:
		fmt.Fprintln(os.Stderr, "Error: unauthorized (check API key)")
		os.Exit(ExitUnauthorized)

	case http.StatusTooManyRequests:
		fmt.Fprintln(os.Stderr, "Error: rate limited, try again later")
		os.Exit(ExitUnauthorized)

	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		fmt.Fprintf(os.Stderr, "Error: server unavailable (%d)\n", resp.StatusCode)
		os.Exit(ExitUnavailable)

	default:
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s\n", resp.StatusCode, string(respBody))
		os.Exit(ExitFailure)
	}

	return nil
}

// runQuerySSE sends a streaming query and prints progress as it arrives.
func runQuerySSE(ctx context.Context, serverURL, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", serverURL+"/v1/query/stream", bytes.NewReader(queryBody()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach server at %s: %v\n", serverURL, err)
		os.Exit(ExitUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		fmt.Fprintln(os.Stderr, "Error: unauthorized (check API key)")
		os.Exit(ExitUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s\n", resp.StatusCode, string(body))
		os.Exit(ExitFailure)
	}

	// Parse SSE stream. Progress goes to stderr, the answer to stdout.
	scanner := bufio.NewScanner(resp.Body)
	partial := false

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var event struct {
			Stage   string `json:"stage"`
			Content string `json:"content"`
			Partial bool   `json:"partial"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch {
		case event.Stage == "done":
			fmt.Fprintf(os.Stderr, "[partial=%t]\n", partial)
			os.Exit(ExitSuccess)
		case event.Content != "":
			fmt.Println(event.Content)
			partial = event.Partial
		case event.Stage != "":
			fmt.Fprintf(os.Stderr, "[%s]\n", event.Stage)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: stream interrupted: %v\n", err)
		os.Exit(ExitFailure)
	}
	return nil
}
