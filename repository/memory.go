package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"suanming_maya/apperrors"
	"suanming_maya/models"
)

// MemoryAnalysisRepo 未配置MySQL时使用，进程重启后数据丢失
type MemoryAnalysisRepo struct {
	mu      sync.RWMutex
	results map[string]*models.AnalysisResult
}

func NewMemoryAnalysisRepo() *MemoryAnalysisRepo {
	return &MemoryAnalysisRepo{results: make(map[string]*models.AnalysisResult)}
}

func (r *MemoryAnalysisRepo) Save(_ context.Context, res *models.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[res.RequestID]; ok {
		return fmt.Errorf("analysis result %s already stored", res.RequestID)
	}
	r.results[res.RequestID] = res
	return nil
}

func (r *MemoryAnalysisRepo) Get(_ context.Context, requestID string) (*models.AnalysisResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[requestID]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "analysis %s not found", requestID)
	}
	return res, nil
}

func (r *MemoryAnalysisRepo) ListByRequester(_ context.Context, requesterID string, limit int) ([]models.HistorySummary, error) {
	r.mu.RLock()
	var matched []*models.AnalysisResult
	for _, res := range r.results {
		if res.RequesterID == requesterID {
			matched = append(matched, res)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]models.HistorySummary, 0, len(matched))
	for _, res := range matched {
		out = append(out, res.Summary())
	}
	return out, nil
}

func (r *MemoryAnalysisRepo) UsageSince(_ context.Context, since time.Time) (models.UsageStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats models.UsageStats
	requesters := make(map[string]struct{})
	for _, res := range r.results {
		if res.Timestamp.Before(since) {
			continue
		}
		stats.TotalAnalyses++
		stats.TokensUsed += res.LLMUsage.Tokens
		requesters[res.RequesterID] = struct{}{}
	}
	stats.ActiveRequesters = len(requesters)
	return stats, nil
}

func (r *MemoryAnalysisRepo) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, res := range r.results {
		if res.Timestamp.Before(before) {
			delete(r.results, id)
			n++
		}
	}
	return n, nil
}

// MemorySettingsRepo 未配置MySQL时使用
type MemorySettingsRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemorySettingsRepo() *MemorySettingsRepo {
	return &MemorySettingsRepo{values: make(map[string]string)}
}

func (r *MemorySettingsRepo) SaveSettings(_ context.Context, values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range values {
		r.values[k] = v
	}
	return nil
}

func (r *MemorySettingsRepo) LoadSettings(context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out, nil
}
