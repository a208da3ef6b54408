package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"suanming_maya/apperrors"
	"suanming_maya/models"
	"suanming_maya/utils"
)

// GetConfigHandler godoc
// @Summary 当前运行时配置
// @Tags 管理
// @Produce json
// @Param X-Admin-Token header string true "管理口令"
// @Success 200 {object} models.APIResponse{data=models.RuntimeSettingsView} "成功"
// @Failure 401 {object} models.APIResponse "未授权"
// @Router /api/v1/admin/config [get]
func GetConfigHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	utils.WriteSuccessResponse(w, r, models.NewRuntimeSettingsView(d.Admin.Current()))
}

// StatsHandler godoc
// @Summary 本月使用统计
// @Tags 管理
// @Produce json
// @Param X-Admin-Token header string true "管理口令"
// @Success 200 {object} models.APIResponse{data=models.UsageStats} "成功"
// @Failure 401 {object} models.APIResponse "未授权"
// @Router /api/v1/admin/stats [get]
func StatsHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	loc := d.QuotaLocation
	if loc == nil {
		loc = time.UTC
	}
	now := d.now().In(loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	stats, err := d.History.UsageSince(r.Context(), monthStart)
	if err != nil {
		utils.HandleServiceError(w, r, err, nil)
		return
	}
	stats.Period = now.Format("2006-01")
	utils.WriteSuccessResponse(w, r, stats)
}

// UpdateWeightsHandler godoc
// @Summary 修改聚合权重
// @Description 两个权重都在[0,1]内且和与1.0相差不超过0.01，下一次分析请求开始生效
// @Tags 管理
// @Accept json
// @Produce json
// @Param X-Admin-Token header string true "管理口令"
// @Param body body models.WeightsUpdateBody true "新权重"
// @Success 200 {object} models.APIResponse{data=models.RuntimeSettingsView} "成功"
// @Failure 400 {object} models.APIResponse "权重不合法"
// @Failure 401 {object} models.APIResponse "未授权"
// @Router /api/v1/admin/weights [put]
func UpdateWeightsHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	var body models.WeightsUpdateBody
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		utils.HandleServiceError(w, r, apperrors.InvalidInput("request body must be valid JSON"), nil)
		return
	}
	if body.WSuanming == nil || body.WMaya == nil {
		utils.HandleServiceError(w, r, apperrors.InvalidInput("w_suanming and w_maya are required"), nil)
		return
	}

	updated, err := d.Admin.UpdateWeights(r.Context(), *body.WSuanming, *body.WMaya)
	if err != nil {
		utils.HandleServiceError(w, r, err, nil)
		return
	}
	utils.WriteSuccessResponse(w, r, models.NewRuntimeSettingsView(updated))
}

// UpdateLLMConfigHandler godoc
// @Summary 修改生成参数上限
// @Tags 管理
// @Accept json
// @Produce json
// @Param X-Admin-Token header string true "管理口令"
// @Param body body models.LLMConfigUpdateBody true "max_tokens ∈ [256,1200]"
// @Success 200 {object} models.APIResponse{data=models.RuntimeSettingsView} "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Failure 401 {object} models.APIResponse "未授权"
// @Router /api/v1/admin/llm-config [put]
func UpdateLLMConfigHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	var body models.LLMConfigUpdateBody
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil || body.MaxTokens == nil {
		utils.HandleServiceError(w, r, apperrors.InvalidInput("max_tokens is required"), nil)
		return
	}

	updated, err := d.Admin.UpdateGenerationLimits(r.Context(), *body.MaxTokens)
	if err != nil {
		utils.HandleServiceError(w, r, err, nil)
		return
	}
	utils.WriteSuccessResponse(w, r, models.NewRuntimeSettingsView(updated))
}

// UpdateQuotaHandler godoc
// @Summary 修改月度额度
// @Tags 管理
// @Accept json
// @Produce json
// @Param X-Admin-Token header string true "管理口令"
// @Param body body models.QuotaUpdateBody true "monthly_limit ∈ [1,1000]"
// @Success 200 {object} models.APIResponse{data=models.RuntimeSettingsView} "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Failure 401 {object} models.APIResponse "未授权"
// @Router /api/v1/admin/quota [put]
func UpdateQuotaHandler(w http.ResponseWriter, r *http.Request, d *Deps) {
	var body models.QuotaUpdateBody
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil || body.MonthlyLimit == nil {
		utils.HandleServiceError(w, r, apperrors.InvalidInput("monthly_limit is required"), nil)
		return
	}

	updated, err := d.Admin.UpdateMonthlyLimit(r.Context(), *body.MonthlyLimit)
	if err != nil {
		utils.HandleServiceError(w, r, err, nil)
		return
	}
	utils.WriteSuccessResponse(w, r, models.NewRuntimeSettingsView(updated))
}
