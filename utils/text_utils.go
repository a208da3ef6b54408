package utils

import (
	"strings"
	"unicode/utf8"
)

// CalculateTokens 粗略估算token数量：CJK字符各计1个，英文单词计1个
// 仅在上游没有返回usage时使用
func CalculateTokens(text string) int {
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}

	english := len(strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
	}))

	return cjk + english
}

func isCJK(r rune) bool {
	return (r >= '一' && r <= '鿿') || // 汉字
		(r >= '぀' && r <= 'ヿ') // 平假名、片假名
}

// Truncate 按字符截断，用于日志预览
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// ExtractJSONFromText 从模型返回的文本中提取JSON对象
// 优先取```json代码块，其次取第一个'{'到最后一个'}'之间的内容
func ExtractJSONFromText(text string) string {
	const startMarker = "```json"
	if startIdx := strings.Index(text, startMarker); startIdx >= 0 {
		startIdx += len(startMarker)
		if endIdx := strings.Index(text[startIdx:], "```"); endIdx > 0 {
			return strings.TrimSpace(text[startIdx : startIdx+endIdx])
		}
	}

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx >= 0 && endIdx > startIdx {
		return text[startIdx : endIdx+1]
	}

	// 找不到时返回原始文本，由调用方解析失败
	return strings.TrimSpace(text)
}
