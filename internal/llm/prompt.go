package llm

import (
	"PhonePilot/internal/models"
	"fmt"
	"sort"
	"strings"
)

// 屏幕摘要中包含的元素数量上限。带标签的元素信息量更高，配额也更大。
const (
	maxLabeledElements   = 25
	maxUnlabeledElements = 10
)

// StepContext 是渲染一次步骤上下文所需的输入。
type StepContext struct {
	Goal       string                 // 任务目标描述
	Params     map[string]interface{} // 调用方提供的任务参数
	StepNumber int                    // 当前迭代序号（从 1 开始）
	MaxSteps   int                    // 步数预算
}

// BuildUserMessage 将屏幕状态和步骤上下文渲染为发送给决策服务的文本。
// 超长的原始 XML 按字符数确定性截断，而不是静默丢弃。
func BuildUserMessage(state *models.ScreenState, sc StepContext, xmlLimit int) string {
	var parts []string

	// 任务上下文
	parts = append(parts, "## Task Context")
	parts = append(parts, fmt.Sprintf("Task: %s", sc.Goal))
	parts = append(parts, fmt.Sprintf("Step: %d of %d", sc.StepNumber, sc.MaxSteps))

	if len(sc.Params) > 0 {
		parts = append(parts, "\n### Parameters")
		keys := make([]string, 0, len(sc.Params))
		for k := range sc.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys) // 参数按键排序，保证渲染结果可复现
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("- %s: %v", k, sc.Params[k]))
		}
	}

	// 屏幕状态
	parts = append(parts, "\n## Screen State")
	parts = append(parts, fmt.Sprintf("Total elements on screen: %d", state.ElementCount))
	if state.DominantPackage != "" {
		parts = append(parts, fmt.Sprintf("Dominant package on screen: %s", state.DominantPackage))
	}

	// 可交互元素摘要
	if len(state.Elements) > 0 {
		var labeled, unlabeledClickable []*models.ScreenElement
		for i := range state.Elements {
			el := &state.Elements[i]
			if strings.TrimSpace(el.Label()) != "" {
				labeled = append(labeled, el)
			} else if el.Clickable {
				unlabeledClickable = append(unlabeledClickable, el)
			}
		}

		parts = append(parts, fmt.Sprintf("\n### Interactive Elements (%d total)", len(state.Elements)))
		if len(labeled) > 0 {
			parts = append(parts, fmt.Sprintf("Labeled elements (up to %d):", maxLabeledElements))
			for i, el := range labeled {
				if i >= maxLabeledElements {
					break
				}
				kind := "text-only"
				if el.Clickable {
					kind = "clickable"
				}
				line := fmt.Sprintf(" [%d] %q at (%d, %d) - %s", i, strings.TrimSpace(el.Label()), el.CenterX, el.CenterY, kind)
				if rid := strings.TrimSpace(el.ResourceID); rid != "" {
					line += fmt.Sprintf(" (id=%s)", rid)
				}
				parts = append(parts, line)
			}
		}

		// 很多应用大量使用没有文本的图标按钮，保留一小部分让模型仍能确定地操作。
		if len(unlabeledClickable) > 0 {
			parts = append(parts, fmt.Sprintf("\nUnlabeled clickable elements (up to %d):", maxUnlabeledElements))
			for i, el := range unlabeledClickable {
				if i >= maxUnlabeledElements {
					break
				}
				rid := strings.TrimSpace(el.ResourceID)
				if rid == "" {
					rid = "unknown"
				}
				cls := strings.TrimSpace(el.ClassName)
				if cls == "" {
					cls = "unknown"
				}
				line := fmt.Sprintf("  [u%d] id=%s class=%s at (%d, %d)", i, rid, cls, el.CenterX, el.CenterY)
				if b := el.Bounds; b != nil {
					line += fmt.Sprintf(" bounds=(%d,%d)-(%d,%d)", b.Left, b.Top, b.Right, b.Bottom)
				}
				parts = append(parts, line)
			}
		}
	}

	// 原始 XML 片段（为控制上下文长度而截断）
	if xml := state.XML; xml != "" {
		if xmlLimit > 0 && len(xml) > xmlLimit {
			parts = append(parts, "\n### XML (truncated)")
			parts = append(parts, xml[:xmlLimit]+"\n... [truncated]")
		} else {
			parts = append(parts, "\n### XML")
			parts = append(parts, xml)
		}
	}

	parts = append(parts, "\n## Your Response")
	parts = append(parts, "Respond with a JSON object containing:")
	parts = append(parts, "- action: tap|type|swipe|press_key|wait|done|error")
	parts = append(parts, "- params: {x, y} for tap, {text} for type, {direction} for swipe, etc.")
	parts = append(parts, "- done: true if the task is complete")
	parts = append(parts, "- reasoning: your thought process")

	return strings.Join(parts, "\n")
}
