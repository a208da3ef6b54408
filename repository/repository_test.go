package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suanming_maya/apperrors"
	"suanming_maya/models"
)

func sampleResult(id, rid string, ts time.Time) *models.AnalysisResult {
	return &models.AnalysisResult{
		Version:     models.ResultVersion,
		RequestID:   id,
		RequesterID: rid,
		Timestamp:   ts,
		Name:        "山田花子",
		Categories:  []models.Category{models.CategoryWork},
		Scores: models.Scores{
			Overall:     0.7,
			PerCategory: map[models.Category]float64{models.CategoryWork: 0.7},
		},
		Insights: []models.Insight{},
		LLMUsage: models.LLMUsage{Tokens: 100},
	}
}

func newMock(t *testing.T) (sqlmock.Sqlmock, *AnalysisRepo, *SettingsRepo) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return mock, NewAnalysisRepo(conn), NewSettingsRepo(conn)
}

func TestAnalysisRepoSave(t *testing.T) {
	mock, repo, _ := newMock(t)
	ts := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	res := sampleResult("req-1", "user-1", ts)

	mock.ExpectExec("INSERT INTO analysis_results").
		WithArgs("req-1", "user-1", ts, 0.7, false, `["work"]`, sqlmock.AnyArg(), 100).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisRepoSaveDuplicate(t *testing.T) {
	mock, repo, _ := newMock(t)
	mock.ExpectExec("INSERT INTO analysis_results").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Save(context.Background(), sampleResult("req-1", "user-1", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already stored")
}

func TestAnalysisRepoGet(t *testing.T) {
	mock, repo, _ := newMock(t)
	ts := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(sampleResult("req-1", "user-1", ts))
	require.NoError(t, err)

	mock.ExpectQuery(`WHERE request_id = \?`).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(string(raw)))

	got, err := repo.Get(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.RequesterID)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, 0.7, got.Scores.PerCategory[models.CategoryWork])
}

func TestAnalysisRepoGetNotFound(t *testing.T) {
	mock, repo, _ := newMock(t)
	mock.ExpectQuery(`WHERE request_id = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"result"}))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAnalysisRepoListByRequester(t *testing.T) {
	mock, repo, _ := newMock(t)
	newer, _ := json.Marshal(sampleResult("req-2", "user-1", time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)))
	older, _ := json.Marshal(sampleResult("req-1", "user-1", time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)))

	mock.ExpectQuery(`WHERE requester_id = \?`).
		WithArgs("user-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).
			AddRow(string(newer)).
			AddRow(string(older)))

	list, err := repo.ListByRequester(context.Background(), "user-1", 50)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "req-2", list[0].RequestID)
	assert.Equal(t, "req-1", list[1].RequestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisRepoUsageAndRetention(t *testing.T) {
	mock, repo, _ := newMock(t)
	since := time.Date(2026, 4, 30, 15, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"total", "requesters", "tokens"}).AddRow(12, 4, 3400))
	mock.ExpectExec("DELETE FROM analysis_results WHERE created_at").
		WithArgs(since).
		WillReturnResult(sqlmock.NewResult(0, 7))

	stats, err := repo.UsageSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, models.UsageStats{TotalAnalyses: 12, ActiveRequesters: 4, TokensUsed: 3400}, stats)

	n, err := repo.DeleteBefore(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepoSaveInOneTransaction(t *testing.T) {
	mock, _, repo := newMock(t)
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO system_settings").
		WithArgs("weights.w_maya", "0.7", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO system_settings").
		WithArgs("weights.w_suanming", "0.3", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveSettings(context.Background(), map[string]string{
		"weights.w_suanming": "0.3",
		"weights.w_maya":     "0.7",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepoRollbackOnFailure(t *testing.T) {
	mock, _, repo := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO system_settings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO system_settings").WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	err := repo.SaveSettings(context.Background(), map[string]string{"a": "1", "b": "2"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepoLoad(t *testing.T) {
	mock, _, repo := newMock(t)
	mock.ExpectQuery("SELECT setting_key, setting_value FROM system_settings").
		WillReturnRows(sqlmock.NewRows([]string{"setting_key", "setting_value"}).
			AddRow("quota.monthly_limit", "80"))

	values, err := repo.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"quota.monthly_limit": "80"}, values)
}

func TestMemoryAnalysisRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAnalysisRepo()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, sampleResult(id, "user-1", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.Save(ctx, sampleResult("d", "user-2", base)))
	assert.Error(t, repo.Save(ctx, sampleResult("a", "user-1", base)))

	list, err := repo.ListByRequester(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].RequestID)
	assert.Equal(t, "b", list[1].RequestID)

	_, err = repo.Get(ctx, "zzz")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	stats, err := repo.UsageSince(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAnalyses)
	assert.Equal(t, 1, stats.ActiveRequesters)
	assert.Equal(t, 200, stats.TokensUsed)

	n, err := repo.DeleteBefore(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemorySettingsRepo(t *testing.T) {
	repo := NewMemorySettingsRepo()
	require.NoError(t, repo.SaveSettings(context.Background(), map[string]string{"llm.max_tokens": "600"}))
	values, err := repo.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "600", values["llm.max_tokens"])
}
