package services

import (
	"fmt"
	"strings"

	"suanming_maya/models"
)

// InsightInput 生成文字建议所需的全部上下文
type InsightInput struct {
	Name       string
	Categories []models.Category
	Scores     models.Scores
	Suanming   *models.SuanmingResult
	Maya       *models.MayaResult
	FreeText   string
	Params     models.GenerationParams
	MaxTokens  int
	Model      string
}

// 类别在提示词中的显示名
var categoryTitles = map[models.Category]string{
	models.CategoryWork:          "仕事運",
	models.CategoryLove:          "恋愛運",
	models.CategoryRelationships: "人間関係運",
	models.CategoryHealth:        "健康運",
	models.CategoryWealth:        "金運",
	models.CategoryGrowth:        "学習運",
}

const insightSystemPrompt = `あなたは算命学とマヤ暦に精通した占術アドバイザーです。
与えられた命式・マヤ暦・スコアをもとに、カテゴリごとに具体的で前向きな助言を書いてください。
出力は次のJSONのみとし、説明文やコードブロックは付けないでください:
{"insights":[{"category":"<カテゴリID>","title":"<見出し>","advice":"<助言>"}]}`

// toneInstruction 根据强度（1-10）决定语气
func toneInstruction(intensity int) string {
	switch {
	case intensity <= 3:
		return "穏やかで柔らかい表現を使い、断定は避けてください。"
	case intensity <= 7:
		return "バランスの取れた表現で、具体的な行動を一つ以上含めてください。"
	default:
		return "率直で明確な表現を使い、注意点もはっきり伝えてください。"
	}
}

// buildInsightPrompt 构建用户提示词
func buildInsightPrompt(in InsightInput) string {
	var b strings.Builder

	if in.Name != "" {
		fmt.Fprintf(&b, "相談者: %s\n", in.Name)
	}

	if s := in.Suanming; s != nil {
		b.WriteString("\n【算命学】\n")
		fmt.Fprintf(&b, "日柱: %s%s\n", s.Pillars.Day.Stem, s.Pillars.Day.Branch)
		elems := make([]string, 0, len(models.AllElements))
		for _, e := range models.AllElements {
			elems = append(elems, fmt.Sprintf("%s%d", e, s.FiveElements[e]))
		}
		fmt.Fprintf(&b, "五行: %s\n", strings.Join(elems, " "))
		fmt.Fprintf(&b, "守護神: %s\n", joinElements(s.Guardians))
		fmt.Fprintf(&b, "忌神: %s\n", joinElements(s.Taboos))
	}

	if m := in.Maya; m != nil {
		b.WriteString("\n【マヤ暦】\n")
		fmt.Fprintf(&b, "KIN%d 太陽の紋章: %s 銀河の音: %d ウェイブスペル: %s\n", m.Kin, m.SolarSeal, m.Tone, m.Wavespell)
	}

	b.WriteString("\n【スコア（0〜1）】\n")
	for _, c := range in.Categories {
		fmt.Fprintf(&b, "%s(%s): %.2f\n", categoryTitles[c], c, in.Scores.PerCategory[c])
	}
	fmt.Fprintf(&b, "総合: %.2f\n", in.Scores.Overall)

	if in.FreeText != "" {
		fmt.Fprintf(&b, "\n【相談内容】\n%s\n", in.FreeText)
	}

	ids := make([]string, 0, len(in.Categories))
	for _, c := range in.Categories {
		ids = append(ids, string(c))
	}
	fmt.Fprintf(&b, "\n対象カテゴリID: %s（各カテゴリにつき1件）\n", strings.Join(ids, ", "))
	b.WriteString(toneInstruction(in.Params.Intensity))

	return b.String()
}

func joinElements(es []models.Element) string {
	if len(es) == 0 {
		return "なし"
	}
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = string(e)
	}
	return strings.Join(parts, "、")
}
