package models

// APIResponse 通用API响应
type APIResponse struct {
	Code    int         `json:"code" example:"0"`
	Kind    string      `json:"kind,omitempty" example:"InvalidInput"`
	Message string      `json:"message" example:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// LLMPrefs 前端旧版请求体中的生成参数
type LLMPrefs struct {
	Temperature *float64 `json:"temperature,omitempty" example:"0.5"`
	Intensity   *int     `json:"intensity,omitempty" example:"6"`
}

// AnalyzeRequestBody POST /api/v1/analyze 请求体
type AnalyzeRequestBody struct {
	RequesterID string    `json:"requester_id,omitempty" example:"user-123"`
	Birthdate   string    `json:"birthdate" example:"1990-05-15"`
	Birthtime   string    `json:"birthtime,omitempty" example:"08:30"`
	BirthTime   string    `json:"birth_time,omitempty" swaggerignore:"true"`
	Birthplace  string    `json:"birthplace,omitempty" example:"東京"`
	Name        string    `json:"name,omitempty" example:"山田 花子"`
	Categories  *[]string `json:"categories,omitempty"`
	FreeText    string    `json:"free_text,omitempty"`
	Temperature *float64  `json:"temperature,omitempty" example:"0.5"`
	Intensity   *int      `json:"intensity,omitempty" example:"6"`
	LLMPrefs    *LLMPrefs `json:"llm_prefs,omitempty" swaggerignore:"true"`
}

// WeightsUpdateBody PUT /api/v1/admin/weights 请求体
type WeightsUpdateBody struct {
	WSuanming *float64 `json:"w_suanming" example:"0.6"`
	WMaya     *float64 `json:"w_maya" example:"0.4"`
}

// LLMConfigUpdateBody PUT /api/v1/admin/llm-config 请求体
type LLMConfigUpdateBody struct {
	MaxTokens *int `json:"max_tokens" example:"900"`
}

// QuotaUpdateBody PUT /api/v1/admin/quota 请求体
type QuotaUpdateBody struct {
	MonthlyLimit *int `json:"monthly_limit" example:"50"`
}

// RuntimeSettingsView 管理后台展示的运行时配置
type RuntimeSettingsView struct {
	Weights             AggregationWeights `json:"weights"`
	MaxTokens           int                `json:"max_tokens"`
	Model               string             `json:"model"`
	MonthlyLimit        int                `json:"monthly_limit"`
	SubsystemTimeoutSec float64            `json:"subsystem_timeout_sec"`
	RequestTimeoutSec   float64            `json:"request_timeout_sec"`
	InsightTimeoutSec   float64            `json:"insight_timeout_sec"`
	Version             int64              `json:"version"`
}

// NewRuntimeSettingsView 把快照转换为展示结构
func NewRuntimeSettingsView(s RuntimeSettings) RuntimeSettingsView {
	return RuntimeSettingsView{
		Weights:             s.Weights,
		MaxTokens:           s.LLM.MaxTokens,
		Model:               s.LLM.Model,
		MonthlyLimit:        s.MonthlyLimit,
		SubsystemTimeoutSec: s.SubsystemTimeout.Seconds(),
		RequestTimeoutSec:   s.RequestTimeout.Seconds(),
		InsightTimeoutSec:   s.InsightTimeout.Seconds(),
		Version:             s.Version,
	}
}
