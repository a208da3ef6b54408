package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"suanming_maya/models"
)

// 算命学子系统的响应格式
type suanmingWire struct {
	YearGan           string         `json:"year_gan"`
	YearShi           string         `json:"year_shi"`
	MonthGan          string         `json:"month_gan"`
	MonthShi          string         `json:"month_shi"`
	DayGan            string         `json:"day_gan"`
	DayShi            string         `json:"day_shi"`
	HourGan           string         `json:"hour_gan"`
	HourShi           string         `json:"hour_shi"`
	TenStars          []string       `json:"ten_stars"`
	TwelveHouses      []string       `json:"twelve_houses"`
	FiveElementsScore map[string]int `json:"five_elements_score"`
	GuardianGods      []string       `json:"guardian_gods"`
	TabooElements     []string       `json:"taboo_elements"`
	Periods           []struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Label string `json:"label"`
	} `json:"periods"`
}

// SuanmingClient 算命学子系统适配器
type SuanmingClient struct {
	transport subsystemTransport
}

// NewSuanmingClient url为完整请求地址
func NewSuanmingClient(url, apiKey string, client *http.Client) *SuanmingClient {
	return &SuanmingClient{transport: newSubsystemTransport(models.SubsystemSuanming, url, apiKey, client)}
}

// Fetch 调用子系统并校验响应结构
func (c *SuanmingClient) Fetch(ctx context.Context, birth models.BirthRecord, timeout time.Duration) (*models.SuanmingResult, error) {
	var wire suanmingWire
	if err := c.transport.post(ctx, birth, timeout, &wire); err != nil {
		return nil, err
	}
	return normalizeSuanming(&wire)
}

func normalizeSuanming(w *suanmingWire) (*models.SuanmingResult, error) {
	const name = models.SubsystemSuanming

	pillars := models.FourPillars{
		Year:  models.Pillar{Stem: w.YearGan, Branch: w.YearShi},
		Month: models.Pillar{Stem: w.MonthGan, Branch: w.MonthShi},
		Day:   models.Pillar{Stem: w.DayGan, Branch: w.DayShi},
		Hour:  models.Pillar{Stem: w.HourGan, Branch: w.HourShi},
	}
	for label, p := range map[string]models.Pillar{"year": pillars.Year, "month": pillars.Month, "day": pillars.Day, "hour": pillars.Hour} {
		if p.Stem == "" || p.Branch == "" {
			return nil, malformed(name, "%s pillar is missing", label)
		}
	}

	if w.FiveElementsScore == nil {
		return nil, malformed(name, "five_elements_score is missing")
	}
	elements := make(map[models.Element]int, len(models.AllElements))
	for k, v := range w.FiveElementsScore {
		e, ok := models.ParseElement(k)
		if !ok {
			return nil, malformed(name, "unknown element %q", k)
		}
		if v < 0 {
			return nil, malformed(name, "negative score for %s", e)
		}
		elements[e] += v
	}
	total := 0
	for _, e := range models.AllElements {
		if _, ok := elements[e]; !ok {
			return nil, malformed(name, "score for %s is missing", e)
		}
		total += elements[e]
	}
	if total == 0 {
		return nil, malformed(name, "five element scores are all zero")
	}

	guardians, err := parseElementSet(w.GuardianGods)
	if err != nil {
		return nil, malformed(name, "guardian_gods: %v", err)
	}
	taboos, err := parseElementSet(w.TabooElements)
	if err != nil {
		return nil, malformed(name, "taboo_elements: %v", err)
	}

	periods := make([]models.LifePeriod, 0, len(w.Periods))
	for i, p := range w.Periods {
		from, err := time.Parse(models.DateLayout, p.From)
		if err != nil {
			return nil, malformed(name, "periods[%d].from: %v", i, err)
		}
		to, err := time.Parse(models.DateLayout, p.To)
		if err != nil {
			return nil, malformed(name, "periods[%d].to: %v", i, err)
		}
		if to.Before(from) {
			return nil, malformed(name, "periods[%d] ends before it starts", i)
		}
		periods = append(periods, models.LifePeriod{From: p.From, To: p.To, Label: p.Label})
	}

	return &models.SuanmingResult{
		Pillars:      pillars,
		TenStars:     nonNil(w.TenStars),
		TwelveHouses: nonNil(w.TwelveHouses),
		FiveElements: elements,
		Guardians:    guardians,
		Taboos:       taboos,
		Periods:      periods,
	}, nil
}

// parseElementSet 解析五行集合并去重
func parseElementSet(raw []string) ([]models.Element, error) {
	out := make([]models.Element, 0, len(raw))
	seen := make(map[models.Element]bool, len(raw))
	for _, s := range raw {
		e, ok := models.ParseElement(s)
		if !ok {
			return nil, fmt.Errorf("unknown element %q", s)
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
