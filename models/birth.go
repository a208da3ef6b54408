package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DateLayout       = "2006-01-02"
	TimeLayout       = "15:04"
	DefaultBirthTime = "12:00"

	DefaultTemperature = 0.5
	DefaultIntensity   = 6

	MaxFreeTextRunes = 1000
	MaxNameRunes     = 100
)

// BirthRecord 出生信息，构造后不可修改
type BirthRecord struct {
	date  time.Time
	clock string
	place string
}

// NewBirthRecord 校验并构造出生信息，birthtime为空时默认12:00
func NewBirthRecord(birthdate, birthtime, birthplace string) (BirthRecord, error) {
	birthdate = strings.TrimSpace(birthdate)
	if birthdate == "" {
		return BirthRecord{}, fmt.Errorf("birthdate is required (YYYY-MM-DD)")
	}
	d, err := time.Parse(DateLayout, birthdate)
	if err != nil {
		return BirthRecord{}, fmt.Errorf("birthdate must be YYYY-MM-DD")
	}

	birthtime = strings.TrimSpace(birthtime)
	if birthtime == "" {
		birthtime = DefaultBirthTime
	}
	t, err := time.Parse(TimeLayout, birthtime)
	if err != nil {
		return BirthRecord{}, fmt.Errorf("birthtime must be HH:MM")
	}

	return BirthRecord{
		date:  d,
		clock: t.Format(TimeLayout),
		place: strings.TrimSpace(birthplace),
	}, nil
}

func (b BirthRecord) Date() time.Time { return b.date }

// DateString YYYY-MM-DD
func (b BirthRecord) DateString() string { return b.date.Format(DateLayout) }

// TimeString HH:MM
func (b BirthRecord) TimeString() string { return b.clock }

func (b BirthRecord) Place() string { return b.place }

// IsZero 未初始化的出生信息
func (b BirthRecord) IsZero() bool { return b.date.IsZero() }

// BirthView 出生信息的JSON形式
type BirthView struct {
	Birthdate  string `json:"birthdate"`
	Birthtime  string `json:"birthtime"`
	Birthplace string `json:"birthplace,omitempty"`
}

func (b BirthRecord) View() BirthView {
	return BirthView{Birthdate: b.DateString(), Birthtime: b.clock, Birthplace: b.place}
}

// GenerationParams LLM生成参数
type GenerationParams struct {
	Temperature float64 `json:"temperature"`
	Intensity   int     `json:"intensity"`
}

// DefaultGenerationParams 与前端默认值一致
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{Temperature: DefaultTemperature, Intensity: DefaultIntensity}
}

// Validate temperature ∈ [0,2]，intensity ∈ [1,10]
func (p GenerationParams) Validate() error {
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0.0, 2.0]")
	}
	if p.Intensity < 1 || p.Intensity > 10 {
		return fmt.Errorf("intensity must be an integer within [1, 10]")
	}
	return nil
}

// AnalysisRequest 一次分析请求，生命周期归编排器所有
type AnalysisRequest struct {
	RequesterID string
	Name        string
	Birth       BirthRecord
	Categories  []Category
	FreeText    string
	Params      GenerationParams
}

// Validate 请求级校验，出生信息在构造时已经校验过
func (r *AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.RequesterID) == "" {
		return fmt.Errorf("requester_id is required")
	}
	if r.Birth.IsZero() {
		return fmt.Errorf("birthdate is required (YYYY-MM-DD)")
	}
	if len(r.Categories) == 0 {
		return fmt.Errorf("categories must not be empty")
	}
	if utf8.RuneCountInString(r.Name) > MaxNameRunes {
		return fmt.Errorf("name must be at most %d characters", MaxNameRunes)
	}
	if utf8.RuneCountInString(r.FreeText) > MaxFreeTextRunes {
		return fmt.Errorf("free_text must be at most %d characters", MaxFreeTextRunes)
	}
	return r.Params.Validate()
}
