package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSONObject pulls a JSON object out of an LLM response. The response
// might contain markdown code fences or other wrapper text.
func extractJSONObject(content string, out any) error {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		// Remove first and last lines (```json and ```)
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < 0 || end <= start {
		return fmt.Errorf("no JSON object found in response")
	}

	if err := json.Unmarshal([]byte(content[start:end+1]), out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
