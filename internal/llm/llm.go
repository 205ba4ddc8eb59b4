package llm

import (
	"PhonePilot/internal/config"
	"PhonePilot/internal/models"
	"context"
	"fmt"
	"strings"
)

// Usage 是一次决策调用消耗的 token 统计。
type Usage struct {
	InputTokens  int // 输入（提示词）token 数
	OutputTokens int // 输出（补全）token 数
}

// DecisionRequest 是一次决策调用的归一化输入。
// 所有后端消费同一个请求结构，各自负责转换为自己的消息格式。
type DecisionRequest struct {
	SystemPrompt string // 系统提示词（基础提示词 + 当前任务）
	UserText     string // 渲染后的步骤上下文（任务信息 + 屏幕摘要）
	ImageBase64  string // 当前屏幕截图的 base64 编码 PNG，可为空
}

// Decider 定义了所有决策服务后端必须实现的通用接口。
// 无论底层是哪个提供商，编排器只消费归一化的 (Decision, Usage) 元组。
type Decider interface {
	Decide(ctx context.Context, req *DecisionRequest) (*models.Decision, Usage, error)
}

// DecisionError 表示决策服务不可达、返回格式非法或内容无法解析为 Decision。
type DecisionError struct {
	Backend string // 产生错误的后端名称
	Err     error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision service (%s): %v", e.Backend, e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }

// NewClient 是一个工厂函数，根据配置创建并返回一个实现了 Decider 接口的客户端。
// 后端的选择是配置的模型标识符的纯函数，运行期不做协商。
func NewClient(cfg config.LLMConfig) (Decider, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = inferProvider(cfg.Model)
	}

	switch provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no API key configured for openai provider")
		}
		return NewOpenAI(cfg)
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no API key configured for gemini provider")
		}
		return NewGemini(context.Background(), cfg)
	case "ollama":
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// inferProvider 根据模型名称前缀推断后端提供商。
func inferProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gemini"):
		return "gemini"
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "chatgpt"), strings.HasPrefix(m, "o"):
		return "openai"
	default:
		return "ollama"
	}
}
