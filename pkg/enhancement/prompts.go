package enhancement

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
)

const samplingSystemPrompt = "You write concise, accurate one-paragraph descriptions of API tools for an LLM tool-selection catalog. Respond with the description only."

const elicitationSystemPrompt = "You extract search keywords for an API tool. Respond with a single comma-separated line of lowercase keywords and nothing else."

func samplingUserPrompt(tool catalog.ToolDefinition) string {
	return fmt.Sprintf("Tool name: %s\nCurrent description: %s\nInput schema: %s\n\nWrite an improved description of what this tool does and when to use it.",
		tool.Name, tool.Description, string(tool.InputSchema))
}

func elicitationUserPrompt(tool catalog.ToolDefinition) string {
	return fmt.Sprintf("Tool name: %s\nDescription: %s\n\nList keywords a user might search for to find this tool.",
		tool.Name, tool.Description)
}

// parseKeywords splits a comma-separated LLM response into a
// deduplicated, trimmed, lowercased list, preserving first-seen order.
func parseKeywords(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
