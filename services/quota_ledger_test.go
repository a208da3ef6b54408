package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suanming_maya/apperrors"
	"suanming_maya/clock"
)

var tokyo = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*3600)
	}
	return loc
}()

// quotaStores 两种存储跑同一组用例
func quotaStores(t *testing.T) map[string]QuotaStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]QuotaStore{
		"memory": NewMemoryQuotaStore(),
		"redis":  NewRedisQuotaStore(client),
	}
}

func newTestLedger(store QuotaStore, clk clock.Clock) *QuotaLedger {
	return NewQuotaLedger(store, tokyo, time.Minute, clk)
}

// TestQuotaBoundary 已确认50次且上限为50时，第51次预约失败
func TestQuotaBoundary(t *testing.T) {
	for name, store := range quotaStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := clock.NewFakeClock(time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC))
			l := newTestLedger(store, clk)

			for i := 0; i < 50; i++ {
				tok, err := l.CheckAndReserve(ctx, "user-1", 50)
				require.NoError(t, err)
				require.NoError(t, l.Commit(ctx, tok))
			}

			_, err := l.CheckAndReserve(ctx, "user-1", 50)
			require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
			var qe *QuotaExceededError
			require.True(t, errors.As(err, &qe))
			assert.Equal(t, 50, qe.Limit)
			assert.Equal(t, 50, qe.Used)
			assert.True(t, qe.ResetAt.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, tokyo)))

			// 其他用户不受影响
			_, err = l.CheckAndReserve(ctx, "user-2", 50)
			assert.NoError(t, err)
		})
	}
}

// TestQuotaReleaseFreesSlot 释放的预约不计入额度
func TestQuotaReleaseFreesSlot(t *testing.T) {
	for name, store := range quotaStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newTestLedger(store, clock.NewFakeClock(time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)))

			tok, err := l.CheckAndReserve(ctx, "user-1", 1)
			require.NoError(t, err)
			_, err = l.CheckAndReserve(ctx, "user-1", 1)
			require.ErrorIs(t, err, apperrors.ErrQuotaExceeded, "未结算的预约也占用额度")

			require.NoError(t, l.Release(ctx, tok))
			tok2, err := l.CheckAndReserve(ctx, "user-1", 1)
			require.NoError(t, err)
			require.NoError(t, l.Commit(ctx, tok2))

			rec, err := l.Usage(ctx, "user-1", 1)
			require.NoError(t, err)
			assert.Equal(t, 1, rec.Committed)
			assert.Equal(t, 0, rec.Reserved)
			assert.Equal(t, 0, rec.Remaining)
		})
	}
}

func TestQuotaTokenSettlesOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(NewMemoryQuotaStore(), nil)

	tok, err := l.CheckAndReserve(ctx, "user-1", 5)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, tok))
	assert.ErrorIs(t, l.Commit(ctx, tok), ErrTokenSettled)
	assert.ErrorIs(t, l.Release(ctx, tok), ErrTokenSettled)

	rec, err := l.Usage(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Committed)
}

// TestQuotaReservationExpires 进程崩溃遗留的预约在TTL后不再占用额度
func TestQuotaReservationExpires(t *testing.T) {
	for name, store := range quotaStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := clock.NewFakeClock(time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC))
			l := newTestLedger(store, clk)

			_, err := l.CheckAndReserve(ctx, "user-1", 1)
			require.NoError(t, err)

			clk.Advance(2 * time.Minute)
			_, err = l.CheckAndReserve(ctx, "user-1", 1)
			assert.NoError(t, err)
		})
	}
}

// TestQuotaMonthRollover 按东京时间换月
func TestQuotaMonthRollover(t *testing.T) {
	for name, store := range quotaStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// 东京时间 2026-10-31 23:30
			clk := clock.NewFakeClock(time.Date(2026, 10, 31, 14, 30, 0, 0, time.UTC))
			l := newTestLedger(store, clk)

			tok, err := l.CheckAndReserve(ctx, "user-1", 1)
			require.NoError(t, err)
			assert.Equal(t, "2026-10", tok.Key.Period)
			require.NoError(t, l.Commit(ctx, tok))

			_, err = l.CheckAndReserve(ctx, "user-1", 1)
			require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

			clk.Advance(time.Hour)
			tok, err = l.CheckAndReserve(ctx, "user-1", 1)
			require.NoError(t, err)
			assert.Equal(t, "2026-11", tok.Key.Period)
			assert.Equal(t, "2026-10", l.PreviousPeriod())
		})
	}
}

// TestQuotaConcurrentReservations N个并发预约在上限L下恰好成功min(N, L)个
func TestQuotaConcurrentReservations(t *testing.T) {
	const (
		n     = 64
		limit = 10
	)
	for name, store := range quotaStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newTestLedger(store, nil)

			var ok, rejected atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := l.CheckAndReserve(ctx, "racer", limit)
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, apperrors.ErrQuotaExceeded):
						rejected.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(limit), ok.Load())
			assert.Equal(t, int32(n-limit), rejected.Load())
		})
	}
}

func TestMemoryQuotaStorePurgeBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryQuotaStore()
	for _, p := range []string{"2026-08", "2026-09", "2026-10"} {
		require.NoError(t, s.Commit(ctx, QuotaKey{RequesterID: "u", Period: p}, "t", 0))
	}

	assert.Equal(t, 1, s.PurgeBefore("2026-09"))
	c, _, err := s.Usage(ctx, QuotaKey{RequesterID: "u", Period: "2026-08"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, c)
	c, _, err = s.Usage(ctx, QuotaKey{RequesterID: "u", Period: "2026-09"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, c)
}

func TestRedisQuotaKeys(t *testing.T) {
	keys := quotaKeys(QuotaKey{RequesterID: "user-1", Period: "2026-10"})
	assert.Equal(t, []string{"quota:{user-1}:2026-10:committed", "quota:{user-1}:2026-10:reserved"}, keys)
}
