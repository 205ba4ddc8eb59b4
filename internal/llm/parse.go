package llm

import (
	"PhonePilot/internal/models"
	"encoding/json"
	"fmt"
	"strings"
)

// parseDecision 将后端返回的文本内容解析为 Decision。
// 模型偶尔会把 JSON 包在 markdown 代码块里，这里先做剥离再解析。
func parseDecision(content string) (*models.Decision, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty response from LLM")
	}

	content = stripFences(content)

	var decision models.Decision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return nil, fmt.Errorf("invalid JSON from LLM: %w", err)
	}

	if decision.Action == "" {
		return nil, fmt.Errorf("decision is missing an action")
	}
	if !decision.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q in decision", decision.Action)
	}

	// done 动作即终止，即使模型忘记置位 done 标志。
	if decision.Action == models.ActionDone {
		decision.Done = true
	}
	// error 动作表示任务失败，绝不允许 done 标志把它标记为完成。
	if decision.Action == models.ActionError {
		decision.Done = false
	}

	return &decision, nil
}

// stripFences 剥离 ```json ... ``` 或 ``` ... ``` 形式的代码块包装。
func stripFences(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+len("```"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return content
}
