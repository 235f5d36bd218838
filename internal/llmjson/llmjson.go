// Package llmjson recovers JSON payloads from model text output.
//
// Models often wrap JSON in markdown fences or surround it with commentary.
// Decode handles the common shapes:
//  1. Pure JSON - decoded directly
//  2. JSON inside ```json ... ``` fences
//  3. A JSON object embedded in prose - first '{' to last '}'
//
// Limitations: only objects are recovered from embedded prose (not arrays),
// and brace matching is textual, so unbalanced braces inside strings can
// defeat it. In practice schema-constrained outputs decode on the first path.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode extracts the JSON portion of response and unmarshals it into out.
func Decode(response string, out any) error {
	raw, err := Extract(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}

// Extract returns the JSON portion of a response string.
func Extract(response string) (string, error) {
	response = stripFences(response)

	if json.Valid([]byte(response)) {
		return response, nil
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end > start {
		candidate := response[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON in response: %q", preview)
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(response string) string {
	trimmed := strings.TrimSpace(response)

	switch {
	case strings.HasPrefix(trimmed, "```json"):
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	case strings.HasPrefix(trimmed, "```"):
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}
