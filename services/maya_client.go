package services

import (
	"context"
	"net/http"
	"time"

	"suanming_maya/models"
)

// 玛雅历子系统的响应格式，字段用指针区分缺失和零值
type mayaWire struct {
	Kin       *int   `json:"kin"`
	SolarSeal string `json:"solar_seal"`
	Tone      *int   `json:"tone"`
	Wavespell string `json:"wavespell"`
}

// MayaClient 玛雅历子系统适配器
type MayaClient struct {
	transport subsystemTransport
}

// NewMayaClient url为完整请求地址
func NewMayaClient(url, apiKey string, client *http.Client) *MayaClient {
	return &MayaClient{transport: newSubsystemTransport(models.SubsystemMaya, url, apiKey, client)}
}

// Fetch 调用子系统，校验kin、音、纹章、波符的取值及相互一致
func (c *MayaClient) Fetch(ctx context.Context, birth models.BirthRecord, timeout time.Duration) (*models.MayaResult, error) {
	var wire mayaWire
	if err := c.transport.post(ctx, birth, timeout, &wire); err != nil {
		return nil, err
	}
	return normalizeMaya(&wire)
}

func normalizeMaya(w *mayaWire) (*models.MayaResult, error) {
	const name = models.SubsystemMaya

	if w.Kin == nil || *w.Kin < 1 || *w.Kin > models.MaxKin {
		return nil, malformed(name, "kin must be within [1,%d]", models.MaxKin)
	}
	if w.Tone == nil || *w.Tone < 1 || *w.Tone > models.MaxTone {
		return nil, malformed(name, "tone must be within [1,%d]", models.MaxTone)
	}
	if models.SealIndex(w.SolarSeal) < 0 {
		return nil, malformed(name, "unknown solar_seal %q", w.SolarSeal)
	}
	// 波符以纹章命名
	if models.SealIndex(w.Wavespell) < 0 {
		return nil, malformed(name, "unknown wavespell %q", w.Wavespell)
	}

	// 纹章、音、波符都由kin决定，不一致说明子系统返回的数据有误
	kin := *w.Kin
	if w.SolarSeal != models.KinSeal(kin) {
		return nil, malformed(name, "solar_seal %q does not match kin %d", w.SolarSeal, kin)
	}
	if *w.Tone != models.KinTone(kin) {
		return nil, malformed(name, "tone %d does not match kin %d", *w.Tone, kin)
	}
	if w.Wavespell != models.KinWavespell(kin) {
		return nil, malformed(name, "wavespell %q does not match kin %d", w.Wavespell, kin)
	}

	return &models.MayaResult{
		Kin:       *w.Kin,
		SolarSeal: w.SolarSeal,
		Tone:      *w.Tone,
		Wavespell: w.Wavespell,
	}, nil
}
