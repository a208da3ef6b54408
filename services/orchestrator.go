package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"suanming_maya/apperrors"
	"suanming_maya/clock"
	"suanming_maya/logger"
	"suanming_maya/metrics"
	"suanming_maya/models"
)

// State 单次分析请求的处理阶段
type State string

const (
	StateReceived           State = "Received"
	StateValidated          State = "Validated"
	StateQuotaChecked       State = "QuotaChecked"
	StateSubsystemsInFlight State = "SubsystemsInFlight"
	StateAggregated         State = "Aggregated"
	StateInsightGenerated   State = "InsightGenerated"
	StateCompleted          State = "Completed"
	StateErrored            State = "Errored"
)

// 子系统调用次数上限（首次 + 一次重试）
const subsystemAttempts = 2

// OrchestratorDeps 编排器依赖
type OrchestratorDeps struct {
	Settings SettingsSource
	Quota    QuotaReserver
	Suanming SuanmingFetcher
	Maya     MayaFetcher
	Insights InsightGenerator
	Results  ResultStore
	Metrics  *metrics.Metrics
	Clock    clock.Clock
	// NewID 生成request_id，默认uuid
	NewID func() string
}

// Orchestrator 分析请求编排：校验 → 额度 → 并行调用子系统 → 聚合 → 文字建议 → 持久化
type Orchestrator struct {
	settings SettingsSource
	quota    QuotaReserver
	suanming SuanmingFetcher
	maya     MayaFetcher
	insights InsightGenerator
	results  ResultStore
	metrics  *metrics.Metrics
	clock    clock.Clock
	newID    func() string
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &Orchestrator{
		settings: d.Settings,
		quota:    d.Quota,
		suanming: d.Suanming,
		maya:     d.Maya,
		insights: d.Insights,
		results:  d.Results,
		metrics:  d.Metrics,
		clock:    d.Clock,
		newID:    d.NewID,
	}
}

// requestTrace 记录状态迁移
type requestTrace struct {
	log   *slog.Logger
	state State
}

func (t *requestTrace) to(s State, args ...any) {
	t.state = s
	t.log.Info("分析状态变更", append([]any{"state", s}, args...)...)
}

func (t *requestTrace) fail(err error) {
	from := t.state
	t.state = StateErrored
	t.log.Warn("分析失败", "state", StateErrored, "from", from, "kind", apperrors.KindOf(err), "error", err)
}

// Analyze 处理一次分析请求
// 请求开始时读取一次配置快照，处理过程中管理员的修改不影响本次请求
func (o *Orchestrator) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	start := o.clock.Now()
	snap := o.settings.Snapshot()
	requestID := o.newID()
	trace := &requestTrace{log: logger.With("request_id", requestID, "requester_id", req.RequesterID)}
	trace.to(StateReceived, "config_version", snap.Version)

	outcome := metrics.OutcomeError
	defer func() {
		o.metrics.ObserveRequest(outcome, o.clock.Now().Sub(start))
	}()

	if err := req.Validate(); err != nil {
		outcome = metrics.OutcomeInvalid
		verr := apperrors.InvalidInput("%s", err.Error())
		trace.fail(verr)
		return nil, verr
	}
	trace.to(StateValidated)

	// caller结束才算请求被放弃，整体超时按服务自身失败处理
	caller := ctx
	ctx, cancel := context.WithTimeout(ctx, snap.RequestTimeout)
	defer cancel()

	tok, err := o.quota.CheckAndReserve(ctx, req.RequesterID, snap.MonthlyLimit)
	if err != nil {
		if errors.Is(err, apperrors.ErrQuotaExceeded) {
			outcome = metrics.OutcomeQuotaExceeded
			o.metrics.QuotaRejected()
		} else {
			err = apperrors.Wrap(apperrors.KindInternal, err, "quota check failed")
		}
		trace.fail(err)
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rerr := o.quota.Release(context.WithoutCancel(ctx), tok); rerr != nil && !errors.Is(rerr, ErrTokenSettled) {
			trace.log.Error("释放额度失败", "error", rerr)
			return
		}
		trace.log.Debug("额度预约已释放", "period", tok.Key.Period)
	}()
	trace.to(StateQuotaChecked, "period", tok.Key.Period)

	trace.to(StateSubsystemsInFlight)
	fetched, err := o.fetchSubsystems(ctx, trace.log, req.Birth, snap.SubsystemTimeout)
	if err != nil {
		if cerr := caller.Err(); cerr != nil {
			outcome = metrics.OutcomeCanceled
			trace.fail(cerr)
			return nil, cerr
		}
		outcome = metrics.OutcomeUnavailable
		uerr := apperrors.Wrap(apperrors.KindAnalysisUnavailable, err, "analysis is temporarily unavailable")
		trace.fail(uerr)
		return nil, uerr
	}

	var failed []string
	if fetched.suanmingErr != nil {
		failed = append(failed, models.SubsystemSuanming)
	}
	if fetched.mayaErr != nil {
		failed = append(failed, models.SubsystemMaya)
	}
	if len(failed) == 2 {
		outcome = metrics.OutcomeUnavailable
		uerr := apperrors.Wrap(apperrors.KindAnalysisUnavailable,
			errors.Join(fetched.suanmingErr, fetched.mayaErr), "analysis is temporarily unavailable")
		trace.fail(uerr)
		return nil, uerr
	}

	weights := RenormalizeWeights(fetched.suanmingErr == nil, fetched.mayaErr == nil, snap.Weights)
	scores, err := Aggregate(fetched.suanming, fetched.maya, weights, req.Categories)
	if err != nil {
		trace.fail(err)
		return nil, err
	}
	trace.to(StateAggregated, "overall", scores.Overall, "partial", len(failed) > 0)

	insights, tokens, insightsUnavailable := o.generateInsights(ctx, caller, trace.log, req, snap, scores, fetched)
	if err := caller.Err(); err != nil {
		outcome = metrics.OutcomeCanceled
		trace.fail(err)
		return nil, err
	}
	trace.to(StateInsightGenerated, "insights", len(insights), "insights_unavailable", insightsUnavailable)

	result := &models.AnalysisResult{
		Version:     models.ResultVersion,
		RequestID:   requestID,
		RequesterID: req.RequesterID,
		Timestamp:   o.clock.Now().UTC(),
		Name:        req.Name,
		Birth:       req.Birth.View(),
		Categories:  req.Categories,
		Suanming:    fetched.suanming,
		Maya:        fetched.maya,
		Scores:      scores,
		Insights:    insights,
		LLMUsage: models.LLMUsage{
			Tokens:      tokens,
			Temperature: req.Params.Temperature,
			Intensity:   req.Params.Intensity,
			MaxTokens:   snap.LLM.MaxTokens,
			Model:       snap.LLM.Model,
		},
		WeightsApplied:      weights,
		Partial:             len(failed) > 0,
		FailedSubsystems:    failed,
		InsightsUnavailable: insightsUnavailable,
	}

	// 文字建议耗尽了整体超时时，结果仍然按调用方的context落库
	saveCtx := ctx
	if ctx.Err() != nil {
		saveCtx = caller
	}
	if err := o.results.Save(saveCtx, result); err != nil {
		if cerr := caller.Err(); cerr != nil {
			outcome = metrics.OutcomeCanceled
			trace.fail(cerr)
			return nil, cerr
		}
		serr := apperrors.Wrap(apperrors.KindInternal, err, "persist analysis result")
		trace.fail(serr)
		return nil, serr
	}

	// 结果已落库，调用方此时断开也照常计数
	if err := o.quota.Commit(context.WithoutCancel(ctx), tok); err != nil {
		trace.log.Error("额度确认失败", "error", err)
	} else {
		committed = true
	}

	outcome = metrics.OutcomeCompleted
	if result.Partial {
		outcome = metrics.OutcomePartial
	}
	trace.to(StateCompleted, "duration_ms", o.clock.Now().Sub(start).Milliseconds())
	return result, nil
}

// subsystemResults 两个子系统的最终结果，失败的一方结果为nil
type subsystemResults struct {
	suanming    *models.SuanmingResult
	suanmingErr error
	maya        *models.MayaResult
	mayaErr     error
}

type fetchOutcome[T any] struct {
	res T
	err error
}

// fetchSubsystems 并行调用两个子系统
// 调用在脱离取消的context上执行，调用方取消时立即返回，后台调用跑完后结果丢弃
func (o *Orchestrator) fetchSubsystems(ctx context.Context, log *slog.Logger, birth models.BirthRecord, timeout time.Duration) (subsystemResults, error) {
	detached := context.WithoutCancel(ctx)
	sCh := make(chan fetchOutcome[*models.SuanmingResult], 1)
	mCh := make(chan fetchOutcome[*models.MayaResult], 1)

	go func() {
		res, err := fetchWithRetry(ctx, o.metrics, log, models.SubsystemSuanming, func() (*models.SuanmingResult, error) {
			return o.suanming.Fetch(detached, birth, timeout)
		})
		sCh <- fetchOutcome[*models.SuanmingResult]{res: res, err: err}
	}()
	go func() {
		res, err := fetchWithRetry(ctx, o.metrics, log, models.SubsystemMaya, func() (*models.MayaResult, error) {
			return o.maya.Fetch(detached, birth, timeout)
		})
		mCh <- fetchOutcome[*models.MayaResult]{res: res, err: err}
	}()

	var out subsystemResults
	for pending := 2; pending > 0; pending-- {
		select {
		case r := <-sCh:
			out.suanming, out.suanmingErr = r.res, r.err
		case r := <-mCh:
			out.maya, out.mayaErr = r.res, r.err
		case <-ctx.Done():
			return subsystemResults{}, ctx.Err()
		}
	}
	return out, nil
}

// fetchWithRetry Unavailable时重试一次，MalformedResponse不重试；调用方已取消时不再重试
func fetchWithRetry[T any](parent context.Context, m *metrics.Metrics, log *slog.Logger, subsystem string, fetch func() (T, error)) (T, error) {
	var (
		res T
		err error
	)
	for attempt := 1; attempt <= subsystemAttempts; attempt++ {
		res, err = fetch()
		m.SubsystemCall(subsystem, callResult(err))
		if err == nil {
			return res, nil
		}
		if !IsUnavailable(err) {
			log.Warn("子系统返回数据不合法", "subsystem", subsystem, "error", err)
			return res, err
		}
		log.Warn("子系统不可用", "subsystem", subsystem, "attempt", attempt, "error", err)
		if parent.Err() != nil {
			break
		}
	}
	return res, err
}

func callResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case IsUnavailable(err):
		return metrics.ResultUnavailable
	default:
		return metrics.ResultMalformed
	}
}

// generateInsights 文字建议是尽力而为的，失败或超时时返回空列表并标记insights_unavailable
func (o *Orchestrator) generateInsights(ctx, caller context.Context, log *slog.Logger, req *models.AnalysisRequest,
	snap models.RuntimeSettings, scores models.Scores, fetched subsystemResults) ([]models.Insight, int, bool) {
	ictx, cancel := context.WithTimeout(ctx, snap.InsightTimeout)
	defer cancel()

	out, err := o.insights.Generate(ictx, InsightInput{
		Name:       req.Name,
		Categories: req.Categories,
		Scores:     scores,
		Suanming:   fetched.suanming,
		Maya:       fetched.maya,
		FreeText:   req.FreeText,
		Params:     req.Params,
		MaxTokens:  snap.LLM.MaxTokens,
		Model:      snap.LLM.Model,
	})
	if err != nil || out == nil || len(out.Insights) == 0 {
		if caller.Err() == nil {
			o.metrics.InsightFailed()
			log.Warn("文字建议生成失败，仅返回分数", "error", fmt.Sprint(err))
		}
		return []models.Insight{}, 0, true
	}
	return out.Insights, out.Tokens, false
}
