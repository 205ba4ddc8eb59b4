package runner

import (
	"fmt"
	"os"
	"strings"
)

// minimalBasePrompt is used when no base prompt file is configured or readable.
const minimalBasePrompt = `You are controlling an Android phone via accessibility commands.
Analyze the screen state and decide the next action to complete the task.
Respond with JSON: {"action": "tap|type|swipe|press_key|wait|done|error", "params": {}, "done": boolean, "reasoning": "..."}
`

// LoadBasePrompt reads the base system prompt from path, falling back to a
// built-in minimal prompt when the file is missing.
func LoadBasePrompt(path string) string {
	if path == "" {
		return minimalBasePrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return minimalBasePrompt
	}
	return string(data)
}

// renderTaskPrompt substitutes {key}, {{key}} and {{ key }} placeholders in a
// task prompt template with the caller-supplied parameters.
func renderTaskPrompt(template string, params map[string]interface{}) string {
	out := template
	for key, value := range params {
		v := fmt.Sprintf("%v", value)
		// Double-brace forms first, or "{{key}}" would degrade to "{value}".
		out = strings.ReplaceAll(out, "{{ "+key+" }}", v)
		out = strings.ReplaceAll(out, "{{"+key+"}}", v)
		out = strings.ReplaceAll(out, "{"+key+"}", v)
	}
	return out
}

// systemPrompt combines the base prompt with the task-specific goal text.
func systemPrompt(basePrompt, goal string, params map[string]interface{}) string {
	return basePrompt + "\n\n# Current Task\n\n" + renderTaskPrompt(goal, params)
}
