package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"suanming_maya/apperrors"
	"suanming_maya/logger"
	"suanming_maya/models"
	"suanming_maya/utils"
)

// InsightOutput 生成结果及token用量
type InsightOutput struct {
	Insights []models.Insight
	Tokens   int
}

// InsightClient OpenAI兼容接口的文字建议生成器（默认SiliconFlow）
type InsightClient struct {
	client       *openai.Client
	defaultModel string
}

// NewInsightClient baseURL形如 https://api.siliconflow.cn/v1
func NewInsightClient(apiKey, baseURL, model string) *InsightClient {
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	return &InsightClient{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: model,
	}
}

// 模型返回的JSON结构
type insightPayload struct {
	Insights []struct {
		Category string `json:"category"`
		Title    string `json:"title"`
		Advice   string `json:"advice"`
	} `json:"insights"`
}

// Generate 调用模型生成建议，任何失败都归为InsightUnavailable
func (c *InsightClient) Generate(ctx context.Context, in InsightInput) (*InsightOutput, error) {
	model := in.Model
	if model == "" {
		model = c.defaultModel
	}
	prompt := buildInsightPrompt(in)

	logger.Debug("LLM请求", "model", model, "prompt_len", len(prompt),
		"temperature", in.Params.Temperature, "max_tokens", in.MaxTokens)

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: insightSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: wireTemperature(in.Params.Temperature),
		MaxTokens:   in.MaxTokens,
	})
	if err != nil {
		logger.Warn("LLM请求失败", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, apperrors.Wrap(apperrors.KindInsightUnavailable, err, "insight generation failed")
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.New(apperrors.KindInsightUnavailable, "no choices in response")
	}

	content := resp.Choices[0].Message.Content
	insights, err := parseInsights(content, in.Categories)
	if err != nil {
		logger.Warn("解析LLM返回内容失败", "error", err, "content_preview", utils.Truncate(content, 200))
		return nil, apperrors.Wrap(apperrors.KindInsightUnavailable, err, "insight response unusable")
	}

	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = utils.CalculateTokens(prompt) + utils.CalculateTokens(content)
	}

	logger.Info("LLM请求完成",
		"tokens_prompt", resp.Usage.PromptTokens,
		"tokens_completion", resp.Usage.CompletionTokens,
		"insights", len(insights),
		"finish_reason", resp.Choices[0].FinishReason,
		"duration_ms", time.Since(start).Milliseconds())

	return &InsightOutput{Insights: insights, Tokens: tokens}, nil
}

// parseInsights 提取JSON并丢弃未请求类别的条目，按请求类别顺序返回
func parseInsights(content string, categories []models.Category) ([]models.Insight, error) {
	var payload insightPayload
	if err := json.Unmarshal([]byte(utils.ExtractJSONFromText(content)), &payload); err != nil {
		return nil, err
	}

	byCategory := make(map[models.Category]models.Insight, len(payload.Insights))
	for _, item := range payload.Insights {
		c, err := models.ParseCategory(item.Category)
		if err != nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		advice := strings.TrimSpace(item.Advice)
		if advice == "" {
			continue
		}
		if title == "" {
			title = categoryTitles[c]
		}
		if _, dup := byCategory[c]; !dup {
			byCategory[c] = models.Insight{Category: c, Title: title, Advice: advice}
		}
	}

	out := make([]models.Insight, 0, len(categories))
	for _, c := range categories {
		if ins, ok := byCategory[c]; ok {
			out = append(out, ins)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no insights for requested categories")
	}
	return out, nil
}

// wireTemperature go-openai会省略0值，0时改为最小正数以保留确定性输出
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
