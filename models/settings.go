package models

import (
	"math"
	"time"
)

const (
	// WeightTolerance 权重之和与1.0允许的误差，边界值视为合法
	WeightTolerance = 0.01
	// 浮点比较余量，保证 0.5+0.49 这类边界输入不会因为舍入误差被拒绝
	weightFloatSlack = 1e-9

	MinMaxTokens    = 256
	MaxMaxTokens    = 1200
	MinMonthlyLimit = 1
	MaxMonthlyLimit = 1000
)

// AggregationWeights 两个子系统的权重
type AggregationWeights struct {
	Suanming float64 `json:"w_suanming" yaml:"w_suanming"`
	Maya     float64 `json:"w_maya" yaml:"w_maya"`
}

// Valid 每个权重在[0,1]内，且和与1.0的差不超过0.01
func (w AggregationWeights) Valid() bool {
	if math.IsNaN(w.Suanming) || math.IsNaN(w.Maya) {
		return false
	}
	if w.Suanming < 0 || w.Suanming > 1 || w.Maya < 0 || w.Maya > 1 {
		return false
	}
	return math.Abs(w.Suanming+w.Maya-1.0) <= WeightTolerance+weightFloatSlack
}

// LLMSettings 管理员可调整的生成限制
type LLMSettings struct {
	MaxTokens int    `json:"max_tokens"`
	Model     string `json:"model"`
}

// RuntimeSettings 进程级运行时配置快照，发布后不再修改
type RuntimeSettings struct {
	Weights          AggregationWeights `json:"weights"`
	LLM              LLMSettings        `json:"llm"`
	MonthlyLimit     int                `json:"monthly_limit"`
	SubsystemTimeout time.Duration      `json:"subsystem_timeout"`
	RequestTimeout   time.Duration      `json:"request_timeout"`
	InsightTimeout   time.Duration      `json:"insight_timeout"`
	Version          int64              `json:"version"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// ValidMaxTokens max_tokens ∈ [256,1200]
func ValidMaxTokens(n int) bool {
	return n >= MinMaxTokens && n <= MaxMaxTokens
}

// ValidMonthlyLimit limit ∈ [1,1000]
func ValidMonthlyLimit(n int) bool {
	return n >= MinMonthlyLimit && n <= MaxMonthlyLimit
}
