package models

// 响应码定义
const (
	// 成功
	CodeSuccess = 0

	// 客户端错误 (1000-1999)
	CodeInvalidParams  = 1000 // 无效的参数
	CodeMissingParams  = 1001 // 缺少必要参数
	CodeNotFound       = 1002 // 记录不存在
	CodeInvalidWeights = 1003 // 权重不合法
	CodeQuotaExceeded  = 1004 // 超出月度额度
	CodeUnauthorized   = 1005 // 未授权

	// 服务端错误 (2000-2999)
	CodeServerError         = 2000 // 服务器内部错误
	CodeDatabaseError       = 2001 // 数据库错误
	CodeAnalysisUnavailable = 2004 // 两个子系统均不可用
	CodeThirdPartyAPIError  = 2005 // 第三方API错误
)

// 错误码对应的消息
var CodeMessages = map[int]string{
	CodeSuccess:             "success",
	CodeInvalidParams:       "无效的参数",
	CodeMissingParams:       "缺少必要参数",
	CodeNotFound:            "记录不存在",
	CodeInvalidWeights:      "权重不合法",
	CodeQuotaExceeded:       "超出月度额度",
	CodeUnauthorized:        "未授权",
	CodeServerError:         "服务器内部错误",
	CodeDatabaseError:       "数据库错误",
	CodeAnalysisUnavailable: "分析服务暂不可用",
	CodeThirdPartyAPIError:  "第三方API错误",
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Code:    CodeSuccess,
		Message: CodeMessages[CodeSuccess],
		Data:    data,
	}
}

// NewCustomErrorResponse 创建自定义错误消息的响应
func NewCustomErrorResponse(code int, kind, message string, data interface{}) APIResponse {
	return APIResponse{
		Code:    code,
		Kind:    kind,
		Message: message,
		Data:    data,
	}
}
