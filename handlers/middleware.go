package handlers

import (
	"net"
	"net/http"
	"strings"

	"suanming_maya/apperrors"
	"suanming_maya/logger"
	"suanming_maya/utils"
)

const (
	RequesterIDHeader = "X-Requester-ID"
	AdminTokenHeader  = "X-Admin-Token"
)

// AdminAuth 校验管理口令，未配置口令时管理接口全部返回401
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if token == "" || got == "" || !utils.SecureCompare(got, token) {
				logger.Warn("管理接口鉴权失败", "path", r.URL.Path, "remote", r.RemoteAddr)
				utils.HandleServiceError(w, r, apperrors.ErrUnauthorized, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requesterID 优先取请求头，其次请求体/查询参数，最后按客户端IP归属
func requesterID(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get(RequesterIDHeader)); v != "" {
		return v
	}
	if v := strings.TrimSpace(fallback); v != "" {
		return v
	}
	return "anon:" + clientIP(r)
}

// RealIP中间件之后RemoteAddr可能不带端口
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
