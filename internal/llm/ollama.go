package llm

import (
	"PhonePilot/internal/config"
	"PhonePilot/internal/models"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	olla "github.com/ollama/ollama/api"
)

// Ollama 是一个用于本地 Ollama 服务的决策客户端。
// 本地模型不产生 API 费用，eval 计数可能为零，费用估算据此自然归零。
type Ollama struct {
	client      *olla.Client // Ollama 客户端实例。
	model       string       // 要使用的模型名称。
	temperature float32      // 采样温度。
}

// NewOllama 创建一个新的 Ollama 决策客户端。
// baseURL 为空时默认为 "http://localhost:11434"。
func NewOllama(cfg config.LLMConfig) (*Ollama, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	// 将字符串 URL 转换为 *url.URL。
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// 创建一个带有超时设置的 HTTP 客户端。
	hc := &http.Client{
		Timeout: 120 * time.Second,
	}

	return &Ollama{
		client:      olla.NewClient(parsedURL, hc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Decide 使用 Ollama API 做出一次动作决策。
func (o *Ollama) Decide(ctx context.Context, req *DecisionRequest) (*models.Decision, Usage, error) {
	userMsg := olla.Message{Role: "user", Content: req.UserText}
	if req.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return nil, Usage{}, &DecisionError{Backend: "ollama", Err: fmt.Errorf("invalid screenshot encoding: %w", err)}
		}
		userMsg.Images = []olla.ImageData{data}
	}

	chatReq := &olla.ChatRequest{
		Model: o.model,
		Messages: []olla.Message{
			{Role: "system", Content: req.SystemPrompt},
			userMsg,
		},
		Format: []byte(`"json"`),
		Stream: &[]bool{false}[0], // 设置为非流式传输。
		Options: map[string]interface{}{
			"temperature": o.temperature,
		},
	}

	var result *olla.ChatResponse // 用于存储最终响应。
	err := o.client.Chat(ctx, chatReq, func(resp olla.ChatResponse) error {
		result = &resp // 存储响应。
		return nil
	})
	if err != nil {
		return nil, Usage{}, &DecisionError{Backend: "ollama", Err: err}
	}
	if result == nil || result.Message.Content == "" {
		return nil, Usage{}, &DecisionError{Backend: "ollama", Err: errEmptyResponse}
	}

	decision, err := parseDecision(result.Message.Content)
	if err != nil {
		return nil, Usage{}, &DecisionError{Backend: "ollama", Err: err}
	}

	usage := Usage{
		InputTokens:  result.Metrics.PromptEvalCount,
		OutputTokens: result.Metrics.EvalCount,
	}
	return decision, usage, nil
}
