package services

import (
	"math"

	"suanming_maya/apperrors"
	"suanming_maya/models"
)

// 得分保留4位小数
const scorePrecision = 1e4

// Aggregate 把两个子系统的结果合成为各类别得分
// 权重为0的一侧允许传nil，降级模式下由编排器保证失败一侧的权重为0
func Aggregate(s *models.SuanmingResult, m *models.MayaResult, w models.AggregationWeights, categories []models.Category) (models.Scores, error) {
	if err := checkAggregateInput(w, categories); err != nil {
		return models.Scores{}, err
	}

	var sSig, mSig Signals
	if s != nil {
		sSig = SuanmingSignals(s, categories)
	}
	if m != nil {
		mSig = MayaSignals(m, categories)
	}
	return CombineSignals(sSig, mSig, w, categories)
}

// CombineSignals clamp(w_s*s[c] + w_m*m[c], 0, 1)，overall为所选类别得分的平均值
func CombineSignals(sSig, mSig Signals, w models.AggregationWeights, categories []models.Category) (models.Scores, error) {
	if err := checkAggregateInput(w, categories); err != nil {
		return models.Scores{}, err
	}
	if (sSig == nil && w.Suanming > 0) || (mSig == nil && w.Maya > 0) {
		return models.Scores{}, apperrors.New(apperrors.KindInternal, "missing signals for a subsystem with non-zero weight")
	}

	perCategory := make(map[models.Category]float64, len(categories))
	sum := 0.0
	for _, c := range categories {
		v := clamp01(w.Suanming*sSig[c] + w.Maya*mSig[c])
		perCategory[c] = round(v)
		sum += v
	}

	return models.Scores{
		Overall:     round(clamp01(sum / float64(len(categories)))),
		PerCategory: perCategory,
	}, nil
}

// 聚合前再次校验权重，不信任上游写入
func checkAggregateInput(w models.AggregationWeights, categories []models.Category) error {
	if !w.Valid() {
		return apperrors.ErrInvalidWeights
	}
	if len(categories) == 0 {
		return apperrors.ErrEmptyCategorySet
	}
	return nil
}

// RenormalizeWeights 单个子系统失败时，把存活一侧的权重设为1.0
// 只作用于当前请求，不回写配置
func RenormalizeWeights(suanmingOK, mayaOK bool, w models.AggregationWeights) models.AggregationWeights {
	switch {
	case suanmingOK && !mayaOK:
		return models.AggregationWeights{Suanming: 1, Maya: 0}
	case !suanmingOK && mayaOK:
		return models.AggregationWeights{Suanming: 0, Maya: 1}
	default:
		return w
	}
}

func round(v float64) float64 {
	return math.Round(v*scorePrecision) / scorePrecision
}
