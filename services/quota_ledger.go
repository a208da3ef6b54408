package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"suanming_maya/clock"
	"suanming_maya/logger"
	"suanming_maya/models"
)

// PeriodLayout 额度周期键 YYYY-MM
const PeriodLayout = "2006-01"

// ErrTokenSettled 预约已经确认或释放过
var ErrTokenSettled = errors.New("reservation already settled")

// QuotaKey 额度计数的维度
type QuotaKey struct {
	RequesterID string
	Period      string
}

// ReserveResult 一次预约尝试的结果，Committed/Reserved为判定时的计数
type ReserveResult struct {
	OK        bool
	Committed int
	Reserved  int
}

// QuotaStore 额度计数存储，Reserve必须是原子的“检查并占位”
type QuotaStore interface {
	Reserve(ctx context.Context, key QuotaKey, token string, limit int, now, expiresAt time.Time, keyTTL time.Duration) (ReserveResult, error)
	Commit(ctx context.Context, key QuotaKey, token string, keyTTL time.Duration) error
	Release(ctx context.Context, key QuotaKey, token string) error
	Usage(ctx context.Context, key QuotaKey, now time.Time) (committed, reserved int, err error)
}

// ReservationToken 临时占用的一次额度，只能确认或释放一次
type ReservationToken struct {
	ID      string
	Key     QuotaKey
	ResetAt time.Time
	settled atomic.Bool
}

// Settled 是否已经确认或释放
func (t *ReservationToken) Settled() bool {
	return t.settled.Load()
}

// QuotaLedger 按(requester_id, 年月)统计的月度额度
type QuotaLedger struct {
	store QuotaStore
	loc   *time.Location
	ttl   time.Duration
	clock clock.Clock
}

// NewQuotaLedger loc为按月结算的时区，ttl为预约的最长存活时间
func NewQuotaLedger(store QuotaStore, loc *time.Location, ttl time.Duration, clk clock.Clock) *QuotaLedger {
	if loc == nil {
		loc = time.UTC
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &QuotaLedger{store: store, loc: loc, ttl: ttl, clock: clk}
}

// periodOf 当前周期及下个周期的开始时间
func (l *QuotaLedger) periodOf(now time.Time) (string, time.Time) {
	local := now.In(l.loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, l.loc)
	return local.Format(PeriodLayout), start.AddDate(0, 1, 0)
}

// 计数键在月末后再保留32天，方便管理后台查询上个月
func keyTTL(resetAt, now time.Time) time.Duration {
	return resetAt.AddDate(0, 0, 32).Sub(now)
}

// CheckAndReserve 已确认+未过期预约数小于limit时占用一次额度
func (l *QuotaLedger) CheckAndReserve(ctx context.Context, requesterID string, limit int) (*ReservationToken, error) {
	now := l.clock.Now()
	period, resetAt := l.periodOf(now)
	key := QuotaKey{RequesterID: requesterID, Period: period}
	token := uuid.NewString()

	res, err := l.store.Reserve(ctx, key, token, limit, now, now.Add(l.ttl), keyTTL(resetAt, now))
	if err != nil {
		return nil, fmt.Errorf("reserve quota: %w", err)
	}
	if !res.OK {
		return nil, &QuotaExceededError{Limit: limit, Used: res.Committed + res.Reserved, ResetAt: resetAt}
	}

	logger.Debug("额度预约成功", "requester_id", requesterID, "period", period,
		"committed", res.Committed, "reserved", res.Reserved, "limit", limit)
	return &ReservationToken{ID: token, Key: key, ResetAt: resetAt}, nil
}

// Commit 确认预约，计数持久化
// 存储失败时预约恢复为未结算，调用方仍可释放
func (l *QuotaLedger) Commit(ctx context.Context, tok *ReservationToken) error {
	if !tok.settled.CompareAndSwap(false, true) {
		return ErrTokenSettled
	}
	if err := l.store.Commit(ctx, tok.Key, tok.ID, keyTTL(tok.ResetAt, l.clock.Now())); err != nil {
		tok.settled.Store(false)
		return fmt.Errorf("commit quota: %w", err)
	}
	return nil
}

// Release 释放预约，不计入额度
func (l *QuotaLedger) Release(ctx context.Context, tok *ReservationToken) error {
	if !tok.settled.CompareAndSwap(false, true) {
		return ErrTokenSettled
	}
	if err := l.store.Release(ctx, tok.Key, tok.ID); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// Usage 当前周期的额度使用情况
func (l *QuotaLedger) Usage(ctx context.Context, requesterID string, limit int) (models.QuotaRecord, error) {
	now := l.clock.Now()
	period, resetAt := l.periodOf(now)
	committed, reserved, err := l.store.Usage(ctx, QuotaKey{RequesterID: requesterID, Period: period}, now)
	if err != nil {
		return models.QuotaRecord{}, fmt.Errorf("quota usage: %w", err)
	}
	remaining := limit - committed - reserved
	if remaining < 0 {
		remaining = 0
	}
	return models.QuotaRecord{
		RequesterID: requesterID,
		Period:      period,
		Committed:   committed,
		Reserved:    reserved,
		Limit:       limit,
		Remaining:   remaining,
		ResetAt:     resetAt,
	}, nil
}

// PreviousPeriod 上一个周期键，定时清理时保留上个月的数据
func (l *QuotaLedger) PreviousPeriod() string {
	local := l.clock.Now().In(l.loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, l.loc)
	return start.AddDate(0, -1, 0).Format(PeriodLayout)
}
