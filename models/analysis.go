package models

import "time"

// ResultVersion 分析结果结构版本，字段有不兼容变更时递增
const ResultVersion = "v1"

const (
	SubsystemSuanming = "suanming"
	SubsystemMaya     = "maya"
)

// Scores 综合得分
type Scores struct {
	Overall     float64              `json:"overall"`
	PerCategory map[Category]float64 `json:"per_category"`
}

// Insight 文字建议
type Insight struct {
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Advice   string   `json:"advice"`
}

// LLMUsage LLM用量及实际使用的生成参数
type LLMUsage struct {
	Tokens      int     `json:"tokens"`
	Temperature float64 `json:"temperature"`
	Intensity   int     `json:"intensity"`
	MaxTokens   int     `json:"max_tokens"`
	Model       string  `json:"model,omitempty"`
}

// AnalysisResult 一次分析的完整结果，创建后不可修改，按request_id缓存
type AnalysisResult struct {
	Version             string             `json:"version"`
	RequestID           string             `json:"request_id"`
	RequesterID         string             `json:"requester_id"`
	Timestamp           time.Time          `json:"timestamp"`
	Name                string             `json:"name,omitempty"`
	Birth               BirthView          `json:"birth"`
	Categories          []Category         `json:"categories"`
	Suanming            *SuanmingResult    `json:"suanming"`
	Maya                *MayaResult        `json:"maya"`
	Scores              Scores             `json:"scores"`
	Insights            []Insight          `json:"insights"`
	LLMUsage            LLMUsage           `json:"llm_usage"`
	WeightsApplied      AggregationWeights `json:"weights_applied"`
	Partial             bool               `json:"partial"`
	FailedSubsystems    []string           `json:"failed_subsystems,omitempty"`
	InsightsUnavailable bool               `json:"insights_unavailable"`
}

// Summary 历史列表使用的摘要
func (r *AnalysisResult) Summary() HistorySummary {
	return HistorySummary{
		RequestID:  r.RequestID,
		Timestamp:  r.Timestamp,
		Name:       r.Name,
		Categories: r.Categories,
		Overall:    r.Scores.Overall,
		Partial:    r.Partial,
	}
}

// HistorySummary 历史记录摘要
type HistorySummary struct {
	RequestID  string     `json:"request_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Name       string     `json:"name,omitempty"`
	Categories []Category `json:"categories"`
	Overall    float64    `json:"overall"`
	Partial    bool       `json:"partial"`
}

// QuotaRecord 某用户某月的额度使用情况
type QuotaRecord struct {
	RequesterID string    `json:"requester_id"`
	Period      string    `json:"period"`
	Committed   int       `json:"committed"`
	Reserved    int       `json:"reserved"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	ResetAt     time.Time `json:"reset_at"`
}

// UsageStats 管理后台的月度统计
type UsageStats struct {
	Period           string `json:"period"`
	TotalAnalyses    int    `json:"total_analyses"`
	ActiveRequesters int    `json:"active_requesters"`
	TokensUsed       int    `json:"tokens_used"`
}
