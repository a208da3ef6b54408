package utils

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// CalculateMD5 计算字符串的MD5哈希值，返回32位小写十六进制字符串
func CalculateMD5(input string) string {
	hasher := md5.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// CalculateAuthorizationHeader 计算Authorization头的值：apiKey+timestamp后4位的MD5值
func CalculateAuthorizationHeader(apiKey string, timestampLastFourDigits string) string {
	authStr := apiKey + timestampLastFourDigits
	return CalculateMD5(authStr)
}

// SetSignedHeaders 为内部服务调用设置签名请求头
func SetSignedHeaders(req *http.Request, apiKey string, now time.Time) {
	timestampStr := strconv.FormatInt(now.UnixMilli(), 10)
	lastFourDigits := timestampStr[len(timestampStr)-4:]

	req.Header.Set("timestamp", timestampStr)
	req.Header.Set("Authorization", CalculateAuthorizationHeader(apiKey, lastFourDigits))
	req.Header.Set("apiKey", apiKey)
}

// SecureCompare 常量时间比较，避免通过响应时间猜测令牌
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
