package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suanming_maya/apperrors"
	"suanming_maya/models"
)

// fakeLLMServer 模拟OpenAI兼容的 /v1/chat/completions
func fakeLLMServer(t *testing.T, status int, content string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"upstream overloaded","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Model:  "test-model",
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 300, CompletionTokens: 120, TotalTokens: 420},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testInsightInput() InsightInput {
	return InsightInput{
		Name:       "山田 花子",
		Categories: workLove,
		Scores: models.Scores{
			Overall:     0.7,
			PerCategory: map[models.Category]float64{models.CategoryWork: 0.68, models.CategoryLove: 0.72},
		},
		Suanming:  sampleSuanming(),
		Maya:      sampleMaya(),
		FreeText:  "転職を考えています",
		Params:    models.GenerationParams{Temperature: 0.8, Intensity: 9},
		MaxTokens: 900,
		Model:     "Qwen/Qwen2.5-7B-Instruct",
	}
}

func TestInsightClientGenerate(t *testing.T) {
	var seen openai.ChatCompletionRequest
	content := "以下が結果です。\n" +
		`{"insights":[` +
		`{"category":"love","title":"恋愛運","advice":"相手の気持ちを理解することで、関係が深まります。"},` +
		`{"category":"wealth","title":"金運","advice":"対象外のカテゴリ"},` +
		`{"category":"work","title":"","advice":"新しいプロジェクトへの挑戦が吉。"}]}`
	server := fakeLLMServer(t, http.StatusOK, content, &seen)

	c := NewInsightClient("test-key", server.URL+"/v1", "default-model")
	out, err := c.Generate(context.Background(), testInsightInput())
	require.NoError(t, err)

	// 按请求类别顺序返回，未请求的类别被丢弃，空标题使用默认标题
	require.Len(t, out.Insights, 2)
	assert.Equal(t, models.CategoryWork, out.Insights[0].Category)
	assert.Equal(t, "仕事運", out.Insights[0].Title)
	assert.Equal(t, models.CategoryLove, out.Insights[1].Category)
	assert.Equal(t, 420, out.Tokens)

	assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", seen.Model)
	assert.InDelta(t, 0.8, seen.Temperature, 1e-6)
	assert.Equal(t, 900, seen.MaxTokens)
	require.Len(t, seen.Messages, 2)
	assert.Contains(t, seen.Messages[1].Content, "転職を考えています")
	assert.Contains(t, seen.Messages[1].Content, "率直")
}

func TestInsightClientFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"upstream error", http.StatusInternalServerError, ""},
		{"not json", http.StatusOK, "今日は良い日です"},
		{"no requested category", http.StatusOK, `{"insights":[{"category":"health","title":"健康運","advice":"よく眠る"}]}`},
		{"empty advice", http.StatusOK, `{"insights":[{"category":"work","title":"仕事運","advice":"  "}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := fakeLLMServer(t, tt.status, tt.content, nil)
			c := NewInsightClient("test-key", server.URL+"/v1", "default-model")

			_, err := c.Generate(context.Background(), testInsightInput())
			assert.ErrorIs(t, err, apperrors.ErrInsightUnavailable)
		})
	}
}

func TestBuildInsightPrompt(t *testing.T) {
	in := testInsightInput()
	in.Params.Intensity = 2
	in.Maya = nil

	prompt := buildInsightPrompt(in)
	assert.Contains(t, prompt, "日柱: 甲子")
	assert.Contains(t, prompt, "守護神: 火、水")
	assert.Contains(t, prompt, "仕事運(work): 0.68")
	assert.Contains(t, prompt, "穏やか")
	assert.NotContains(t, prompt, "マヤ暦")
}

func TestWireTemperature(t *testing.T) {
	assert.Greater(t, wireTemperature(0), float32(0))
	assert.Equal(t, float32(1.5), wireTemperature(1.5))
}
