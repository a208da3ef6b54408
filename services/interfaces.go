package services

import (
	"context"
	"time"

	"suanming_maya/models"
)

// SuanmingFetcher 算命学子系统
type SuanmingFetcher interface {
	// 单次调用，不重试
	Fetch(ctx context.Context, birth models.BirthRecord, timeout time.Duration) (*models.SuanmingResult, error)
}

// MayaFetcher 玛雅历子系统
type MayaFetcher interface {
	Fetch(ctx context.Context, birth models.BirthRecord, timeout time.Duration) (*models.MayaResult, error)
}

// InsightGenerator 文字建议生成
type InsightGenerator interface {
	Generate(ctx context.Context, in InsightInput) (*InsightOutput, error)
}

// SettingsSource 运行时配置快照
type SettingsSource interface {
	Snapshot() models.RuntimeSettings
}

// QuotaReserver 月度额度
type QuotaReserver interface {
	CheckAndReserve(ctx context.Context, requesterID string, limit int) (*ReservationToken, error)
	Commit(ctx context.Context, tok *ReservationToken) error
	Release(ctx context.Context, tok *ReservationToken) error
}

// ResultStore 分析结果持久化
type ResultStore interface {
	Save(ctx context.Context, r *models.AnalysisResult) error
}

// SettingsPersister 管理员修改的持久化，同一次调用的多个键必须在一个事务内写入
type SettingsPersister interface {
	SaveSettings(ctx context.Context, values map[string]string) error
	LoadSettings(ctx context.Context) (map[string]string, error)
}
