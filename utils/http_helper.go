package utils

import (
	"net/http"

	"github.com/go-chi/render"

	"suanming_maya/apperrors"
	"suanming_maya/logger"
	"suanming_maya/models"
)

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, r *http.Request, data interface{}) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, models.NewSuccessResponse(data))
}

// WriteCustomErrorResponse 写入自定义错误消息的响应
func WriteCustomErrorResponse(w http.ResponseWriter, r *http.Request, status, code int, kind, message string, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, models.NewCustomErrorResponse(code, kind, message, data))
}

// StatusAndCode 错误分类对应的HTTP状态码和业务错误码
func StatusAndCode(kind apperrors.Kind) (int, int) {
	switch kind {
	case apperrors.KindInvalidInput, apperrors.KindEmptyCategorySet:
		return http.StatusBadRequest, models.CodeInvalidParams
	case apperrors.KindInvalidWeights:
		return http.StatusBadRequest, models.CodeInvalidWeights
	case apperrors.KindQuotaExceeded:
		return http.StatusTooManyRequests, models.CodeQuotaExceeded
	case apperrors.KindAnalysisUnavailable:
		return http.StatusServiceUnavailable, models.CodeAnalysisUnavailable
	case apperrors.KindInsightUnavailable:
		return http.StatusBadGateway, models.CodeThirdPartyAPIError
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized, models.CodeUnauthorized
	case apperrors.KindNotFound:
		return http.StatusNotFound, models.CodeNotFound
	default:
		return http.StatusInternalServerError, models.CodeServerError
	}
}

// HandleServiceError 把服务层错误转换为统一响应，内部错误只记录日志不暴露细节
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error, data interface{}) {
	kind := apperrors.KindOf(err)
	status, code := StatusAndCode(kind)
	if kind == apperrors.KindInternal {
		logger.Error("请求处理失败", "path", r.URL.Path, "error", err)
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	WriteCustomErrorResponse(w, r, status, code, string(kind), apperrors.PublicMessage(err), data)
}
