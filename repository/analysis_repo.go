package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"suanming_maya/apperrors"
	"suanming_maya/models"
	"suanming_maya/utils"
)

// AnalysisRepo analysis_results 表
type AnalysisRepo struct {
	db *sql.DB
}

func NewAnalysisRepo(db *sql.DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

// Save 写入分析结果，同一request_id只能写一次
func (r *AnalysisRepo) Save(ctx context.Context, res *models.AnalysisResult) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal analysis result: %w", err)
	}
	categoriesJSON, err := json.Marshal(res.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analysis_results (request_id, requester_id, created_at, overall, partial, categories, result, tokens)
		VALUES (?, ?, ?, ?, ?, CAST(? AS JSON), CAST(? AS JSON), ?)
	`, res.RequestID, res.RequesterID, res.Timestamp.UTC(), res.Scores.Overall, res.Partial,
		string(categoriesJSON), string(resultJSON), res.LLMUsage.Tokens)
	if utils.IsDuplicateKeyError(err) {
		return fmt.Errorf("analysis result %s already stored: %w", res.RequestID, err)
	}
	return err
}

// Get 按request_id读取完整结果，不存在时返回NotFound
func (r *AnalysisRepo) Get(ctx context.Context, requestID string) (*models.AnalysisResult, error) {
	var resultJSON string
	err := r.db.QueryRowContext(ctx, `
		SELECT result
		FROM analysis_results
		WHERE request_id = ?
	`, requestID).Scan(&resultJSON)
	if utils.IsSQLNoRowsError(err) {
		return nil, apperrors.New(apperrors.KindNotFound, "analysis %s not found", requestID)
	}
	if err != nil {
		return nil, err
	}

	var res models.AnalysisResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return nil, fmt.Errorf("decode analysis result %s: %w", requestID, err)
	}
	return &res, nil
}

// ListByRequester 某个用户的历史记录，新的在前
func (r *AnalysisRepo) ListByRequester(ctx context.Context, requesterID string, limit int) ([]models.HistorySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT result
		FROM analysis_results
		WHERE requester_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, requesterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.HistorySummary{}
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, err
		}
		var res models.AnalysisResult
		if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
			continue
		}
		out = append(out, res.Summary())
	}
	return out, rows.Err()
}

// UsageSince 管理后台统计
func (r *AnalysisRepo) UsageSince(ctx context.Context, since time.Time) (models.UsageStats, error) {
	var stats models.UsageStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT requester_id), COALESCE(SUM(tokens), 0)
		FROM analysis_results
		WHERE created_at >= ?
	`, since.UTC()).Scan(&stats.TotalAnalyses, &stats.ActiveRequesters, &stats.TokensUsed)
	return stats, err
}

// DeleteBefore 删除早于before的记录，返回删除条数
func (r *AnalysisRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_results WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
