package config

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"suanming_maya/models"
)

// Store 进程级运行时配置
// 读取方拿到的是不可变快照，写入方复制、修改、校验后整体替换，
// 因此任何请求都不会看到只更新了一半的权重
type Store struct {
	current atomic.Pointer[models.RuntimeSettings]
	mu      sync.Mutex // 串行化写入
	now     func() time.Time
}

// NewStore 以初始配置创建Store，初始配置不合法时返回错误
func NewStore(initial models.RuntimeSettings) (*Store, error) {
	if err := ValidateSettings(initial); err != nil {
		return nil, err
	}
	s := &Store{now: time.Now}
	initial.Version = 1
	initial.UpdatedAt = s.now().UTC()
	s.current.Store(&initial)
	return s, nil
}

// Snapshot 当前配置的只读副本
func (s *Store) Snapshot() models.RuntimeSettings {
	return *s.current.Load()
}

// Version 当前配置版本号
func (s *Store) Version() int64 {
	return s.current.Load().Version
}

// Update 在副本上执行fn，校验通过后原子替换并递增版本号
// fn返回错误或结果不合法时，当前配置保持不变
func (s *Store) Update(fn func(*models.RuntimeSettings) error) (models.RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current.Load()
	if err := fn(&next); err != nil {
		return models.RuntimeSettings{}, err
	}
	if err := ValidateSettings(next); err != nil {
		return models.RuntimeSettings{}, err
	}
	next.Version++
	next.UpdatedAt = s.now().UTC()
	s.current.Store(&next)
	return next, nil
}

// ValidateSettings 运行时配置的整体约束
func ValidateSettings(rs models.RuntimeSettings) error {
	if !rs.Weights.Valid() {
		return fmt.Errorf("weights invalid: w_suanming=%v w_maya=%v", rs.Weights.Suanming, rs.Weights.Maya)
	}
	if !models.ValidMaxTokens(rs.LLM.MaxTokens) {
		return fmt.Errorf("max_tokens must be within [%d,%d]", models.MinMaxTokens, models.MaxMaxTokens)
	}
	if !models.ValidMonthlyLimit(rs.MonthlyLimit) {
		return fmt.Errorf("monthly_limit must be within [%d,%d]", models.MinMonthlyLimit, models.MaxMonthlyLimit)
	}
	if rs.SubsystemTimeout <= 0 || rs.InsightTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if rs.RequestTimeout < 2*rs.SubsystemTimeout+rs.InsightTimeout {
		return fmt.Errorf("request timeout %s must be >= 2 x subsystem timeout %s + insight timeout %s",
			rs.RequestTimeout, rs.SubsystemTimeout, rs.InsightTimeout)
	}
	return nil
}
