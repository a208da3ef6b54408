package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suanming_maya/apperrors"
	"suanming_maya/clock"
	"suanming_maya/config"
	"suanming_maya/models"
	"suanming_maya/repository"
	"suanming_maya/services"
)

const testAdminToken = "s3cret"

// fakeAnalyzer 记录收到的请求，按预设返回
type fakeAnalyzer struct {
	got *models.AnalysisRequest
	err error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	f.got = req
	if err := req.Validate(); err != nil {
		return nil, apperrors.InvalidInput("%s", err.Error())
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.AnalysisResult{
		Version:     models.ResultVersion,
		RequestID:   "req-1",
		RequesterID: req.RequesterID,
		Categories:  req.Categories,
		Scores:      models.Scores{Overall: 0.7, PerCategory: map[models.Category]float64{models.CategoryWork: 0.7}},
		Insights:    []models.Insight{},
	}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	handler  http.Handler
	analyzer *fakeAnalyzer
	history  *repository.MemoryAnalysisRepo
	store    *config.Store
	ledger   *services.QuotaLedger
}

func newTestServer(t *testing.T, adminToken string) *testServer {
	t.Helper()
	cfg := config.Default()
	store, err := config.NewStore(cfg.InitialSettings())
	require.NoError(t, err)

	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	ledger := services.NewQuotaLedger(services.NewMemoryQuotaStore(), time.UTC, time.Minute, clock.NewFakeClock(now))

	ts := &testServer{
		analyzer: &fakeAnalyzer{},
		history:  repository.NewMemoryAnalysisRepo(),
		store:    store,
		ledger:   ledger,
	}
	ts.handler = NewRouter(&Deps{
		Analyzer:       ts.analyzer,
		History:        ts.history,
		Quota:          ledger,
		Admin:          services.NewAdminConfigService(store, repository.NewMemorySettingsRepo(), nil),
		QuotaLocation:  time.UTC,
		HistoryLimit:   50,
		AdminToken:     adminToken,
		AllowedOrigins: []string{"*"},
		HandlerTimeout: 5 * time.Second,
		Version:        "test",
		Now:            func() time.Time { return now },
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testAdminToken)
	rec, env := ts.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.CodeSuccess, env.Code)
	assert.JSONEq(t, `{"status":"ok","service":"suanming-maya","version":"test"}`, string(env.Data))
}

func TestAnalyzeRequestMapping(t *testing.T) {
	ts := newTestServer(t, testAdminToken)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/analyze", map[string]any{
		"requester_id": "body-user",
		"birthdate":    "1990-05-15",
		"birth_time":   "08:30",
		"llm_prefs":    map[string]any{"temperature": 0.9, "intensity": 3},
		"intensity":    8,
	}, map[string]string{RequesterIDHeader: "header-user"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.CodeSuccess, env.Code)

	got := ts.analyzer.got
	require.NotNil(t, got)
	assert.Equal(t, "header-user", got.RequesterID)
	assert.Equal(t, "08:30", got.Birth.TimeString())
	assert.Equal(t, []models.Category{models.CategoryWork}, got.Categories)
	assert.Equal(t, 0.9, got.Params.Temperature)
	// 顶层字段优先于llm_prefs
	assert.Equal(t, 8, got.Params.Intensity)
}

func TestAnalyzeAnonymousRequester(t *testing.T) {
	ts := newTestServer(t, testAdminToken)
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/analyze",
		map[string]any{"birthdate": "1990-05-15", "categories": []string{"恋愛", "work", "love"}}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anon:192.0.2.1", ts.analyzer.got.RequesterID)
	assert.Equal(t, []models.Category{models.CategoryLove, models.CategoryWork}, ts.analyzer.got.Categories)
}

func TestAnalyzeInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		body any
	}{
		{"非JSON", "{not json"},
		{"缺少出生日期", map[string]any{"categories": []string{"work"}}},
		{"出生日期格式错误", map[string]any{"birthdate": "15/05/1990"}},
		{"类别为空", map[string]any{"birthdate": "1990-05-15", "categories": []string{}}},
		{"未知类别", map[string]any{"birthdate": "1990-05-15", "categories": []string{"luck"}}},
		{"temperature超范围", map[string]any{"birthdate": "1990-05-15", "temperature": 2.5}},
		{"intensity超范围", map[string]any{"birthdate": "1990-05-15", "intensity": 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, testAdminToken)
			rec, env := ts.do(t, http.MethodPost, "/api/v1/analyze", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, models.CodeInvalidParams, env.Code)
			assert.Equal(t, string(apperrors.KindInvalidInput), env.Kind)
		})
	}
}

func TestAnalyzeRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t, testAdminToken)
	body := map[string]any{
		"birthdate": "1990-05-15",
		"free_text": strings.Repeat("a", maxBodyBytes+1),
	}

	rec, env := ts.do(t, http.MethodPost, "/api/v1/analyze", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperrors.KindInvalidInput), env.Kind)
	assert.Nil(t, ts.analyzer.got, "超长请求体不应进入分析")
}

func TestAnalyzeErrorMapping(t *testing.T) {
	reset := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"额度用完", &services.QuotaExceededError{Limit: 50, Used: 50, ResetAt: reset}, http.StatusTooManyRequests, models.CodeQuotaExceeded},
		{"子系统均失败", apperrors.Wrap(apperrors.KindAnalysisUnavailable, context.DeadlineExceeded, "analysis is temporarily unavailable"), http.StatusServiceUnavailable, models.CodeAnalysisUnavailable},
		{"内部错误", apperrors.Wrap(apperrors.KindInternal, assert.AnError, "persist analysis result"), http.StatusInternalServerError, models.CodeServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, testAdminToken)
			ts.analyzer.err = tc.err
			rec, env := ts.do(t, http.MethodPost, "/api/v1/analyze", map[string]any{"birthdate": "1990-05-15"}, nil)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, env.Code)
			assert.NotContains(t, env.Message, assert.AnError.Error())
		})
	}
}

func TestAnalyzeQuotaExceededReportsReset(t *testing.T) {
	ts := newTestServer(t, testAdminToken)
	ts.analyzer.err = &services.QuotaExceededError{Limit: 50, Used: 50, ResetAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	_, env := ts.do(t, http.MethodPost, "/api/v1/analyze", map[string]any{"birthdate": "1990-05-15"}, nil)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "2026-06-01T00:00:00Z", data["reset_at"])
	assert.Equal(t, float64(50), data["limit"])
	assert.Equal(t, string(apperrors.KindQuotaExceeded), env.Kind)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, testAdminToken)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, ts.history.Save(ctx, &models.AnalysisResult{
			RequestID: id, RequesterID: "user-1", Timestamp: base.Add(time.Duration(i) * time.Hour),
			Categories: []models.Category{models.CategoryWork},
		}))
	}

	rec, env := ts.do(t, http.MethodGet, "/api/v1/history?requester_id=user-1&limit=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		RequesterID string                  `json:"requester_id"`
		Items       []models.HistorySummary `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "r3", page.Items[0].RequestID)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/history/r1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/history/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.CodeNotFound, env.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/history?requester_id=user-1&limit=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuotaEndpoint(t *testing.T) {
	ts := newTestServer(t, testAdminToken)
	tok, err := ts.ledger.CheckAndReserve(context.Background(), "user-1", 50)
	require.NoError(t, err)
	require.NoError(t, ts.ledger.Commit(context.Background(), tok))

	rec, env := ts.do(t, http.MethodGet, "/api/v1/quota", nil, map[string]string{RequesterIDHeader: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var q models.QuotaRecord
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, "2026-05", q.Period)
	assert.Equal(t, 1, q.Committed)
	assert.Equal(t, 49, q.Remaining)
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t, testAdminToken)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/admin/config", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.CodeUnauthorized, env.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/admin/config", nil, map[string]string{AdminTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/admin/config", nil, map[string]string{AdminTokenHeader: testAdminToken})
	assert.Equal(t, http.StatusOK, rec.Code)

	// 未配置口令时管理接口关闭
	disabled := newTestServer(t, "")
	rec, _ = disabled.do(t, http.MethodGet, "/api/v1/admin/config", nil, map[string]string{AdminTokenHeader: ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUpdates(t *testing.T) {
	ts := newTestServer(t, testAdminToken)
	auth := map[string]string{AdminTokenHeader: testAdminToken}

	rec, env := ts.do(t, http.MethodPut, "/api/v1/admin/weights", map[string]any{"w_suanming": 0.3, "w_maya": 0.7}, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view models.RuntimeSettingsView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, models.AggregationWeights{Suanming: 0.3, Maya: 0.7}, view.Weights)
	assert.Equal(t, view.Weights, ts.store.Snapshot().Weights)

	rec, env = ts.do(t, http.MethodPut, "/api/v1/admin/weights", map[string]any{"w_suanming": 0.6, "w_maya": 0.6}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.CodeInvalidWeights, env.Code)
	assert.Equal(t, string(apperrors.KindInvalidWeights), env.Kind)
	assert.Equal(t, 0.3, ts.store.Snapshot().Weights.Suanming)

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/admin/weights", map[string]any{"w_suanming": 1.0}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/admin/llm-config", map[string]any{"max_tokens": 600}, auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 600, ts.store.Snapshot().LLM.MaxTokens)

	rec, env = ts.do(t, http.MethodPut, "/api/v1/admin/llm-config", map[string]any{"max_tokens": 1201}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.CodeInvalidParams, env.Code)

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/admin/quota", map[string]any{"monthly_limit": 100}, auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, ts.store.Snapshot().MonthlyLimit)

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/admin/quota", map[string]any{"monthly_limit": 0}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 100, ts.store.Snapshot().MonthlyLimit)
}

func TestAdminStats(t *testing.T) {
	ts := newTestServer(t, testAdminToken)
	ctx := context.Background()
	require.NoError(t, ts.history.Save(ctx, &models.AnalysisResult{
		RequestID: "old", RequesterID: "a", Timestamp: time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		LLMUsage: models.LLMUsage{Tokens: 10},
	}))
	require.NoError(t, ts.history.Save(ctx, &models.AnalysisResult{
		RequestID: "new", RequesterID: "b", Timestamp: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		LLMUsage: models.LLMUsage{Tokens: 300},
	}))

	rec, env := ts.do(t, http.MethodGet, "/api/v1/admin/stats", nil, map[string]string{AdminTokenHeader: testAdminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.UsageStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, models.UsageStats{Period: "2026-05", TotalAnalyses: 1, ActiveRequesters: 1, TokensUsed: 300}, stats)
}
