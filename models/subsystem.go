package models

import "strings"

// Element 五行
type Element string

const (
	ElementWood  Element = "木"
	ElementFire  Element = "火"
	ElementEarth Element = "土"
	ElementMetal Element = "金"
	ElementWater Element = "水"
)

// AllElements 五行顺序（相生顺）
var AllElements = []Element{ElementWood, ElementFire, ElementEarth, ElementMetal, ElementWater}

var elementAliases = map[string]Element{
	"木": ElementWood, "wood": ElementWood,
	"火": ElementFire, "fire": ElementFire,
	"土": ElementEarth, "earth": ElementEarth,
	"金": ElementMetal, "metal": ElementMetal,
	"水": ElementWater, "water": ElementWater,
}

// ParseElement 接受汉字或英文名
func ParseElement(s string) (Element, bool) {
	e, ok := elementAliases[strings.ToLower(strings.TrimSpace(s))]
	return e, ok
}

// Pillar 一柱（天干+地支）
type Pillar struct {
	Stem   string `json:"stem"`
	Branch string `json:"branch"`
}

// FourPillars 年月日时四柱
type FourPillars struct {
	Year  Pillar `json:"year"`
	Month Pillar `json:"month"`
	Day   Pillar `json:"day"`
	Hour  Pillar `json:"hour"`
}

// LifePeriod 大运区间
type LifePeriod struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// SuanmingResult 算命学子系统的规范化结果，生成后只读
type SuanmingResult struct {
	Pillars      FourPillars     `json:"pillars"`
	TenStars     []string        `json:"ten_stars"`
	TwelveHouses []string        `json:"twelve_houses"`
	FiveElements map[Element]int `json:"five_elements_score"`
	Guardians    []Element       `json:"guardian_elements"`
	Taboos       []Element       `json:"taboo_elements"`
	Periods      []LifePeriod    `json:"periods"`
}

// ElementTotal 五行总分
func (s *SuanmingResult) ElementTotal() int {
	total := 0
	for _, v := range s.FiveElements {
		total += v
	}
	return total
}

// SolarSeals 太阳纹章（20种），下标即纹章编号-1
var SolarSeals = []string{
	"赤い竜", "白い風", "青い夜", "黄色い種", "赤い蛇",
	"白い世界の橋渡し", "青い手", "黄色い星", "赤い月", "白い犬",
	"青い猿", "黄色い人", "赤い空歩く人", "白い魔法使い", "青い鷲",
	"黄色い戦士", "赤い地球", "白い鏡", "青い嵐", "黄色い太陽",
}

// SealIndex 纹章在列表中的位置，未知纹章返回-1
func SealIndex(seal string) int {
	for i, s := range SolarSeals {
		if s == seal {
			return i
		}
	}
	return -1
}

const (
	MaxKin  = 260
	MaxTone = 13
)

// KinSeal kin对应的太阳纹章：(kin-1) mod 20
func KinSeal(kin int) string {
	return SolarSeals[(kin-1)%len(SolarSeals)]
}

// KinTone kin对应的银河音：(kin-1) mod 13 + 1
func KinTone(kin int) int {
	return (kin-1)%MaxTone + 1
}

// KinWavespell 波符每13天换一次，以纹章命名
func KinWavespell(kin int) string {
	return SolarSeals[((kin-1)/MaxTone)%len(SolarSeals)]
}

// MayaResult 玛雅历子系统的规范化结果
type MayaResult struct {
	Kin       int    `json:"kin"`
	SolarSeal string `json:"solar_seal"`
	Tone      int    `json:"tone"`
	Wavespell string `json:"wavespell"`
}
