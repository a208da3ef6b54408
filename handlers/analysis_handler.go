package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"suanming_maya/apperrors"
	"suanming_maya/models"
	"suanming_maya/services"
	"suanming_maya/utils"
)

const (
	serviceName         = "suanming-maya"
	defaultHistoryLimit = 50
	// 请求体上限，free_text最多1000字符
	maxBodyBytes = 64 << 10
)

// HealthHandler godoc
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} models.APIResponse "成功"
// @Router /api/v1/health [get]
func HealthHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	utils.WriteSuccessResponse(w, r, map[string]interface{}{
		"status":  "ok",
		"service": serviceName,
		"version": d.Version,
	})
}

// AnalyzeHandler godoc
// @Summary 综合分析
// @Description 并行调用算命学和玛雅历子系统，按权重合成各类别得分并生成文字建议。单个子系统失败时返回partial结果
// @Tags 分析
// @Accept json
// @Produce json
// @Param X-Requester-ID header string false "请求者ID"
// @Param body body models.AnalyzeRequestBody true "出生信息及分析类别"
// @Success 200 {object} models.APIResponse{data=models.AnalysisResult} "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Failure 429 {object} models.APIResponse "超出月度额度"
// @Failure 503 {object} models.APIResponse "两个子系统均不可用"
// @Failure 500 {object} models.APIResponse "服务器错误"
// @Router /api/v1/analyze [post]
func AnalyzeHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	var body models.AnalyzeRequestBody
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		utils.HandleServiceError(w, r, apperrors.InvalidInput("request body must be valid JSON"), nil)
		return
	}

	req, err := buildAnalysisRequest(r, &body)
	if err != nil {
		utils.HandleServiceError(w, r, err, nil)
		return
	}

	res, err := d.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		var qe *services.QuotaExceededError
		if errors.As(err, &qe) {
			utils.HandleServiceError(w, r, err, map[string]interface{}{
				"limit":    qe.Limit,
				"used":     qe.Used,
				"reset_at": qe.ResetAt,
			})
			return
		}
		utils.HandleServiceError(w, r, err, nil)
		return
	}

	utils.WriteSuccessResponse(w, r, res)
}

// buildAnalysisRequest 请求体转换为领域请求，兼容旧版字段名
func buildAnalysisRequest(r *http.Request, body *models.AnalyzeRequestBody) (*models.AnalysisRequest, error) {
	birthtime := body.Birthtime
	if birthtime == "" {
		birthtime = body.BirthTime
	}
	birth, err := models.NewBirthRecord(body.Birthdate, birthtime, body.Birthplace)
	if err != nil {
		return nil, apperrors.InvalidInput("%s", err.Error())
	}

	categories := []models.Category{models.CategoryWork}
	if body.Categories != nil {
		categories, err = models.ParseCategories(*body.Categories)
		if err != nil {
			return nil, apperrors.InvalidInput("%s", err.Error())
		}
	}

	params := models.DefaultGenerationParams()
	if p := body.LLMPrefs; p != nil {
		if p.Temperature != nil {
			params.Temperature = *p.Temperature
		}
		if p.Intensity != nil {
			params.Intensity = *p.Intensity
		}
	}
	if body.Temperature != nil {
		params.Temperature = *body.Temperature
	}
	if body.Intensity != nil {
		params.Intensity = *body.Intensity
	}

	return &models.AnalysisRequest{
		RequesterID: requesterID(r, body.RequesterID),
		Name:        strings.TrimSpace(body.Name),
		Birth:       birth,
		Categories:  categories,
		FreeText:    strings.TrimSpace(body.FreeText),
		Params:      params,
	}, nil
}

// ListHistoryHandler godoc
// @Summary 历史记录
// @Description 按时间倒序返回请求者的分析摘要
// @Tags 分析
// @Produce json
// @Param requester_id query string false "请求者ID，也可通过X-Requester-ID传递"
// @Param limit query int false "返回条数"
// @Success 200 {object} models.APIResponse{data=[]models.HistorySummary} "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Router /api/v1/history [get]
func ListHistoryHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	rid := requesterID(r, r.URL.Query().Get("requester_id"))

	limit := d.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.HandleServiceError(w, r, apperrors.InvalidInput("limit must be a positive integer"), nil)
			return
		}
		if n < limit {
			limit = n
		}
	}

	list, err := d.History.ListByRequester(r.Context(), rid, limit)
	if err != nil {
		utils.HandleServiceError(w, r, err, nil)
		return
	}
	utils.WriteSuccessResponse(w, r, map[string]interface{}{
		"requester_id": rid,
		"items":        list,
	})
}

// GetHistoryHandler godoc
// @Summary 分析结果详情
// @Tags 分析
// @Produce json
// @Param request_id path string true "分析请求ID"
// @Success 200 {object} models.APIResponse{data=models.AnalysisResult} "成功"
// @Failure 404 {object} models.APIResponse "记录不存在"
// @Router /api/v1/history/{request_id} [get]
func GetHistoryHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	id := chi.URLParam(r, "request_id")
	res, err := d.History.Get(r.Context(), id)
	if err != nil {
		utils.HandleServiceError(w, r, err, nil)
		return
	}
	utils.WriteSuccessResponse(w, r, res)
}

// QuotaHandler godoc
// @Summary 本月额度
// @Tags 分析
// @Produce json
// @Param requester_id query string false "请求者ID，也可通过X-Requester-ID传递"
// @Success 200 {object} models.APIResponse{data=models.QuotaRecord} "成功"
// @Router /api/v1/quota [get]
func QuotaHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	rid := requesterID(r, r.URL.Query().Get("requester_id"))
	rec, err := d.Quota.Usage(r.Context(), rid, d.Admin.Current().MonthlyLimit)
	if err != nil {
		utils.HandleServiceError(w, r, err, nil)
		return
	}
	utils.WriteSuccessResponse(w, r, rec)
}
