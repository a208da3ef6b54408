package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"suanming_maya/logger"
	"suanming_maya/models"
	"suanming_maya/utils"
)

// 子系统请求体
type subsystemRequest struct {
	Birthdate  string `json:"birthdate"`
	BirthTime  string `json:"birth_time"`
	Birthplace string `json:"birthplace,omitempty"`
}

// 响应体大小上限
const maxSubsystemResponseBytes = 1 << 20

// subsystemTransport 两个子系统共用的HTTP调用逻辑，不做重试
type subsystemTransport struct {
	name   string
	url    string
	apiKey string
	client *http.Client
	now    func() time.Time
}

func newSubsystemTransport(name, url, apiKey string, client *http.Client) subsystemTransport {
	if client == nil {
		client = &http.Client{}
	}
	return subsystemTransport{name: name, url: url, apiKey: apiKey, client: client, now: time.Now}
}

// post 发送出生信息并把响应解码到out，超时由timeout控制
func (t subsystemTransport) post(ctx context.Context, birth models.BirthRecord, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqJSON, err := json.Marshal(subsystemRequest{
		Birthdate:  birth.DateString(),
		BirthTime:  birth.TimeString(),
		Birthplace: birth.Place(),
	})
	if err != nil {
		return unavailable(t.name, fmt.Errorf("序列化请求体失败: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(reqJSON))
	if err != nil {
		return unavailable(t.name, fmt.Errorf("创建HTTP请求失败: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	utils.SetSignedHeaders(req, t.apiKey, t.now())

	startTime := time.Now()
	resp, err := t.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		logger.Warn("子系统请求失败", "subsystem", t.name, "error", err, "duration_ms", duration.Milliseconds())
		return unavailable(t.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSubsystemResponseBytes))
	if err != nil {
		return unavailable(t.name, fmt.Errorf("读取响应失败: %w", err))
	}

	logger.Debug("子系统响应", "subsystem", t.name, "status_code", resp.StatusCode,
		"response_size", len(body), "duration_ms", duration.Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unavailable(t.name, fmt.Errorf("status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return malformed(t.name, "解析响应失败: %v", err)
	}
	return nil
}
