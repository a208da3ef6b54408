package services

import (
	"context"
	"sync"
	"time"
)

type memoryQuotaEntry struct {
	committed int
	reserved  map[string]time.Time // token -> 过期时间
}

// MemoryQuotaStore 进程内额度存储，未配置Redis时使用，重启后计数丢失
type MemoryQuotaStore struct {
	mu      sync.Mutex
	entries map[QuotaKey]*memoryQuotaEntry
}

func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{entries: make(map[QuotaKey]*memoryQuotaEntry)}
}

func (s *MemoryQuotaStore) entry(key QuotaKey) *memoryQuotaEntry {
	e, ok := s.entries[key]
	if !ok {
		e = &memoryQuotaEntry{reserved: make(map[string]time.Time)}
		s.entries[key] = e
	}
	return e
}

// 清除过期预约，调用方持有锁
func (e *memoryQuotaEntry) expire(now time.Time) {
	for token, exp := range e.reserved {
		if !exp.After(now) {
			delete(e.reserved, token)
		}
	}
}

func (s *MemoryQuotaStore) Reserve(_ context.Context, key QuotaKey, token string, limit int, now, expiresAt time.Time, _ time.Duration) (ReserveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	e.expire(now)
	res := ReserveResult{Committed: e.committed, Reserved: len(e.reserved)}
	if e.committed+len(e.reserved) >= limit {
		return res, nil
	}
	e.reserved[token] = expiresAt
	res.OK = true
	res.Reserved++
	return res, nil
}

func (s *MemoryQuotaStore) Commit(_ context.Context, key QuotaKey, token string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	delete(e.reserved, token)
	e.committed++
	return nil
}

func (s *MemoryQuotaStore) Release(_ context.Context, key QuotaKey, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		delete(e.reserved, token)
	}
	return nil
}

func (s *MemoryQuotaStore) Usage(_ context.Context, key QuotaKey, now time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, 0, nil
	}
	e.expire(now)
	return e.committed, len(e.reserved), nil
}

// PurgeBefore 删除早于period的周期，返回删除的条数
func (s *MemoryQuotaStore) PurgeBefore(period string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if key.Period < period {
			delete(s.entries, key)
			n++
		}
	}
	return n
}
