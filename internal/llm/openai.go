package llm

import (
	"PhonePilot/internal/config"
	"PhonePilot/internal/models"
	"context"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个用于 OpenAI（及兼容）API 的决策客户端。
type OpenAI struct {
	client      *openai.Client // OpenAI 客户端实例。
	model       string         // 要使用的模型名称。
	temperature float32        // 采样温度，偏低以获得可复现的动作。
	maxTokens   int            // 单次补全的 token 上限。
}

// NewOpenAI 创建一个新的 OpenAI 决策客户端。
func NewOpenAI(cfg config.LLMConfig) (*OpenAI, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)
	return &OpenAI{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Decide 使用 OpenAI API 做出一次动作决策。
func (o *OpenAI) Decide(ctx context.Context, req *DecisionRequest) (*models.Decision, Usage, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.toChatRequest(req))
	if err != nil {
		return nil, Usage{}, &DecisionError{Backend: "openai", Err: err}
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, Usage{}, &DecisionError{Backend: "openai", Err: errEmptyResponse}
	}

	decision, err := parseDecision(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, Usage{}, &DecisionError{Backend: "openai", Err: err}
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	return decision, usage, nil
}

// toChatRequest 将归一化的决策请求转换为 OpenAI 的聊天补全请求。
func (o *OpenAI) toChatRequest(req *DecisionRequest) openai.ChatCompletionRequest {
	var userParts []openai.ChatMessagePart

	// 截图以低清晰度附带，控制视觉 token 的消耗。
	if req.ImageBase64 != "" {
		userParts = append(userParts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/png;base64," + req.ImageBase64,
				Detail: openai.ImageURLDetailLow,
			},
		})
	}
	userParts = append(userParts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: req.UserText,
	})

	return openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: userParts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: &o.temperature,
		MaxTokens:   o.maxTokens,
	}
}
