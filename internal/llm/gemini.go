package llm

import (
	"PhonePilot/internal/config"
	"PhonePilot/internal/models"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var errEmptyResponse = errors.New("empty response from LLM")

// Gemini 是一个实现了 Decider 接口的结构体，用于与 Gemini API 交互。
type Gemini struct {
	model *genai.GenerativeModel // Gemini 生成模型实例。
}

// NewGemini 创建一个新的 Gemini 决策客户端。
//
// 参数:
//
//	ctx: 上下文，用于控制客户端的生命周期。
//	cfg: 决策服务配置（模型名称、API 密钥、温度等）。
//
// 返回值:
//
//	*Gemini: 新创建的 Gemini 客户端实例。
//	error: 如果无法创建 GenAI 客户端，则返回错误。
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	// 使用 API 密钥创建 GenAI 客户端。
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}

	// 获取生成模型并约束输出：低温度 + JSON 响应。
	generativeModel := client.GenerativeModel(cfg.Model)
	generativeModel.SetTemperature(cfg.Temperature)
	generativeModel.SetMaxOutputTokens(int32(cfg.MaxTokens))
	generativeModel.ResponseMIMEType = "application/json"

	return &Gemini{model: generativeModel}, nil
}

// Decide 向 Gemini API 发送请求并解析动作决策。
func (g *Gemini) Decide(ctx context.Context, req *DecisionRequest) (*models.Decision, Usage, error) {
	parts, err := g.toParts(req)
	if err != nil {
		return nil, Usage{}, &DecisionError{Backend: "gemini", Err: err}
	}

	resp, err := g.requestModel(req.SystemPrompt).GenerateContent(ctx, parts...)
	if err != nil {
		return nil, Usage{}, &DecisionError{Backend: "gemini", Err: err}
	}

	content := textFromResponse(resp)
	if content == "" {
		return nil, Usage{}, &DecisionError{Backend: "gemini", Err: errEmptyResponse}
	}

	decision, err := parseDecision(content)
	if err != nil {
		return nil, Usage{}, &DecisionError{Backend: "gemini", Err: err}
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return decision, usage, nil
}

// requestModel 返回共享模型的一份逐调用副本，并在副本上设置系统提示词。
// Gemini 没有独立的 system 角色消息，只能通过 SystemInstruction 传入；
// 共享的模型实例在并发运行之间绝不能被修改。
func (g *Gemini) requestModel(systemPrompt string) *genai.GenerativeModel {
	model := *g.model
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	return &model
}

// toParts 将归一化的决策请求转换为 GenAI Part 切片。
func (g *Gemini) toParts(req *DecisionRequest) ([]genai.Part, error) {
	var parts []genai.Part
	if req.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid screenshot encoding: %w", err)
		}
		parts = append(parts, genai.Blob{MIMEType: "image/png", Data: data})
	}
	parts = append(parts, genai.Text(req.UserText))
	return parts, nil
}

// textFromResponse 提取 GenAI 响应中第一个文本部分。
func textFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if text, ok := p.(genai.Text); ok && text != "" {
				return string(text)
			}
		}
	}
	return ""
}
