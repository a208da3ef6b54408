package services

import (
	"context"
	"fmt"
	"strconv"

	"suanming_maya/apperrors"
	"suanming_maya/config"
	"suanming_maya/logger"
	"suanming_maya/metrics"
	"suanming_maya/models"
)

// system_settings 表中的键
const (
	SettingWeightSuanming = "weights.w_suanming"
	SettingWeightMaya     = "weights.w_maya"
	SettingMaxTokens      = "llm.max_tokens"
	SettingMonthlyLimit   = "quota.monthly_limit"
)

// AdminConfigService 管理员修改运行时配置的唯一入口
type AdminConfigService struct {
	store   *config.Store
	repo    SettingsPersister
	metrics *metrics.Metrics
}

func NewAdminConfigService(store *config.Store, repo SettingsPersister, m *metrics.Metrics) *AdminConfigService {
	m.SetConfigVersion(store.Version())
	return &AdminConfigService{store: store, repo: repo, metrics: m}
}

// Current 当前配置快照
func (s *AdminConfigService) Current() models.RuntimeSettings {
	return s.store.Snapshot()
}

// UpdateWeights 两个权重同时生效，不合法时返回InvalidWeights
func (s *AdminConfigService) UpdateWeights(ctx context.Context, wSuanming, wMaya float64) (models.RuntimeSettings, error) {
	w := models.AggregationWeights{Suanming: wSuanming, Maya: wMaya}
	if !w.Valid() {
		return models.RuntimeSettings{}, apperrors.ErrInvalidWeights
	}
	return s.apply(ctx, "weights", func(rs *models.RuntimeSettings) {
		rs.Weights = w
	}, map[string]string{
		SettingWeightSuanming: formatFloat(wSuanming),
		SettingWeightMaya:     formatFloat(wMaya),
	})
}

// UpdateGenerationLimits max_tokens ∈ [256,1200]
func (s *AdminConfigService) UpdateGenerationLimits(ctx context.Context, maxTokens int) (models.RuntimeSettings, error) {
	if !models.ValidMaxTokens(maxTokens) {
		return models.RuntimeSettings{}, apperrors.InvalidInput("max_tokens must be an integer within [%d, %d]", models.MinMaxTokens, models.MaxMaxTokens)
	}
	return s.apply(ctx, "llm-config", func(rs *models.RuntimeSettings) {
		rs.LLM.MaxTokens = maxTokens
	}, map[string]string{SettingMaxTokens: strconv.Itoa(maxTokens)})
}

// UpdateMonthlyLimit limit ∈ [1,1000]，只影响之后的额度判定
func (s *AdminConfigService) UpdateMonthlyLimit(ctx context.Context, limit int) (models.RuntimeSettings, error) {
	if !models.ValidMonthlyLimit(limit) {
		return models.RuntimeSettings{}, apperrors.InvalidInput("monthly_limit must be an integer within [%d, %d]", models.MinMonthlyLimit, models.MaxMonthlyLimit)
	}
	return s.apply(ctx, "quota", func(rs *models.RuntimeSettings) {
		rs.MonthlyLimit = limit
	}, map[string]string{SettingMonthlyLimit: strconv.Itoa(limit)})
}

// apply 先持久化再发布，持久化失败时内存中的配置保持不变
func (s *AdminConfigService) apply(ctx context.Context, op string, mutate func(*models.RuntimeSettings), rows map[string]string) (models.RuntimeSettings, error) {
	updated, err := s.store.Update(func(rs *models.RuntimeSettings) error {
		mutate(rs)
		if err := config.ValidateSettings(*rs); err != nil {
			return apperrors.InvalidInput("%s", err.Error())
		}
		if s.repo == nil {
			return nil
		}
		if err := s.repo.SaveSettings(ctx, rows); err != nil {
			return apperrors.Wrap(apperrors.KindInternal, err, "persist settings")
		}
		return nil
	})
	if err != nil {
		logger.Warn("运行时配置更新失败", "op", op, "error", err)
		return models.RuntimeSettings{}, err
	}

	s.metrics.SetConfigVersion(updated.Version)
	logger.Info("运行时配置已更新", "op", op, "version", updated.Version,
		"w_suanming", updated.Weights.Suanming, "w_maya", updated.Weights.Maya,
		"max_tokens", updated.LLM.MaxTokens, "monthly_limit", updated.MonthlyLimit)
	return updated, nil
}

// LoadPersisted 启动时把数据库中保存的修改覆盖到配置文件的默认值上
// 单项不合法时记录日志并跳过，不影响其他项
func (s *AdminConfigService) LoadPersisted(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	values, err := s.repo.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load persisted settings: %w", err)
	}
	if len(values) == 0 {
		return nil
	}

	current := s.store.Snapshot()
	overlay := current

	ws, okS := parseFloatSetting(values, SettingWeightSuanming)
	wm, okM := parseFloatSetting(values, SettingWeightMaya)
	if okS && okM {
		if w := (models.AggregationWeights{Suanming: ws, Maya: wm}); w.Valid() {
			overlay.Weights = w
		} else {
			logger.Warn("忽略不合法的持久化权重", "w_suanming", ws, "w_maya", wm)
		}
	}
	if n, ok := parseIntSetting(values, SettingMaxTokens); ok {
		if models.ValidMaxTokens(n) {
			overlay.LLM.MaxTokens = n
		} else {
			logger.Warn("忽略不合法的持久化max_tokens", "value", n)
		}
	}
	if n, ok := parseIntSetting(values, SettingMonthlyLimit); ok {
		if models.ValidMonthlyLimit(n) {
			overlay.MonthlyLimit = n
		} else {
			logger.Warn("忽略不合法的持久化monthly_limit", "value", n)
		}
	}

	if overlay.Weights == current.Weights && overlay.LLM == current.LLM && overlay.MonthlyLimit == current.MonthlyLimit {
		return nil
	}
	updated, err := s.store.Update(func(rs *models.RuntimeSettings) error {
		rs.Weights = overlay.Weights
		rs.LLM = overlay.LLM
		rs.MonthlyLimit = overlay.MonthlyLimit
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply persisted settings: %w", err)
	}
	s.metrics.SetConfigVersion(updated.Version)
	logger.Info("已加载持久化的运行时配置", "version", updated.Version,
		"w_suanming", updated.Weights.Suanming, "w_maya", updated.Weights.Maya,
		"max_tokens", updated.LLM.MaxTokens, "monthly_limit", updated.MonthlyLimit)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloatSetting(values map[string]string, key string) (float64, bool) {
	raw, ok := values[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Warn("持久化配置格式错误", "key", key, "value", raw)
		return 0, false
	}
	return v, true
}

func parseIntSetting(values map[string]string, key string) (int, bool) {
	raw, ok := values[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("持久化配置格式错误", "key", key, "value", raw)
		return 0, false
	}
	return v, true
}
