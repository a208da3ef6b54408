package models

import (
	"fmt"
	"strings"
)

// Category 分析类别
type Category string

const (
	CategoryWork          Category = "work"
	CategoryLove          Category = "love"
	CategoryRelationships Category = "relationships"
	CategoryHealth        Category = "health"
	CategoryWealth        Category = "wealth"
	CategoryGrowth        Category = "growth"
)

// AllCategories 固定的类别枚举，顺序即展示顺序
var AllCategories = []Category{
	CategoryWork,
	CategoryLove,
	CategoryRelationships,
	CategoryHealth,
	CategoryWealth,
	CategoryGrowth,
}

// 前端表单使用的日文标签
var categoryLabels = map[string]Category{
	"仕事":   CategoryWork,
	"恋愛":   CategoryLove,
	"人間関係": CategoryRelationships,
	"健康":   CategoryHealth,
	"金運":   CategoryWealth,
	"学習":   CategoryGrowth,
}

// ParseCategory 解析类别标签，同时接受英文标签和前端的日文标签
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if c, ok := categoryLabels[s]; ok {
		return c, nil
	}
	c := Category(strings.ToLower(s))
	for _, known := range AllCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ParseCategories 解析并去重，保留首次出现的顺序
func ParseCategories(raw []string) ([]Category, error) {
	out := make([]Category, 0, len(raw))
	seen := make(map[Category]bool, len(raw))
	for _, s := range raw {
		c, err := ParseCategory(s)
		if err != nil {
			return nil, err
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}
