package services

import (
	"math"

	"suanming_maya/models"
)

// Signals 某个子系统对各类别的原始信号，取值[0,1]
type Signals map[models.Category]float64

// 各类别对应的五行亲和度，每个类别的亲和度之和为1
var elementAffinity = map[models.Category]map[models.Element]float64{
	models.CategoryWork:          {models.ElementWood: 0.55, models.ElementMetal: 0.45},
	models.CategoryLove:          {models.ElementFire: 0.7, models.ElementWater: 0.3},
	models.CategoryRelationships: {models.ElementEarth: 0.5, models.ElementWater: 0.5},
	models.CategoryHealth:        {models.ElementEarth: 0.55, models.ElementWater: 0.45},
	models.CategoryWealth:        {models.ElementMetal: 0.6, models.ElementEarth: 0.4},
	models.CategoryGrowth:        {models.ElementWood: 0.5, models.ElementFire: 0.5},
}

const (
	// 五行完全平衡时每个元素的占比
	balancedShare = 0.2
	// 守护神/忌神对信号的修正幅度
	guardianAdjust = 0.1
)

// SuanmingSignals 由五行占比和守护神/忌神计算各类别信号
// 五行总分为0的结果在适配层已被拒绝，这里按0信号处理
func SuanmingSignals(r *models.SuanmingResult, categories []models.Category) Signals {
	out := make(Signals, len(categories))
	total := float64(r.ElementTotal())
	for _, c := range categories {
		aff := elementAffinity[c]
		if total <= 0 {
			out[c] = 0
			continue
		}

		// 按固定顺序累加，保证结果逐位一致
		base := 0.0
		for _, e := range models.AllElements {
			base += aff[e] * float64(r.FiveElements[e]) / total
		}
		ratio := base / balancedShare
		signal := ratio / (1 + ratio)

		for _, e := range r.Guardians {
			signal += guardianAdjust * aff[e]
		}
		for _, e := range r.Taboos {
			signal -= guardianAdjust * aff[e]
		}
		out[c] = clamp01(signal)
	}
	return out
}

// 太阳纹章颜色按编号循环：赤、白、青、黄
type sealColor int

const (
	colorRed sealColor = iota
	colorWhite
	colorBlue
	colorYellow
)

var colorCategories = map[sealColor][]models.Category{
	colorRed:    {models.CategoryWork, models.CategoryGrowth},
	colorWhite:  {models.CategoryRelationships, models.CategoryHealth},
	colorBlue:   {models.CategoryLove, models.CategoryGrowth},
	colorYellow: {models.CategoryWealth, models.CategoryWork},
}

// 以音（tone）为主的类别，其余类别以kin为主
var toneDriven = map[models.Category]bool{
	models.CategoryWork:   true,
	models.CategoryHealth: true,
	models.CategoryWealth: true,
}

// MayaSignals 由kin、音和纹章颜色计算各类别信号
func MayaSignals(r *models.MayaResult, categories []models.Category) Signals {
	out := make(Signals, len(categories))
	kinNorm := float64(r.Kin) / models.MaxKin
	toneNorm := float64(r.Tone) / models.MaxTone

	var colorSet []models.Category
	if idx := models.SealIndex(r.SolarSeal); idx >= 0 {
		colorSet = colorCategories[sealColor(idx%4)]
	}

	for _, c := range categories {
		primary := kinNorm
		if toneDriven[c] {
			primary = toneNorm
		}
		bonus := 0.0
		for _, cc := range colorSet {
			if cc == c {
				bonus = 1
				break
			}
		}
		out[c] = clamp01(0.8*primary + 0.2*bonus)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
