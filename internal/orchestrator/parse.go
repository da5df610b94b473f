package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The model is asked for strict JSON but sometimes wraps it in prose or
// markdown fences. These helpers unmarshal directly first, then fall back
// to extracting the outermost object or array from the text.

func unmarshalObject(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return fmt.Errorf("parsing model JSON: %w", err)
	}
	return nil
}

func unmarshalArray(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON array in model response")
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return fmt.Errorf("parsing model JSON: %w", err)
	}
	return nil
}
