package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 分析请求的最终结果
const (
	OutcomeCompleted     = "completed"
	OutcomePartial       = "partial"
	OutcomeInvalid       = "invalid"
	OutcomeQuotaExceeded = "quota_exceeded"
	OutcomeUnavailable   = "unavailable"
	OutcomeCanceled      = "canceled"
	OutcomeError         = "error"
)

// 子系统调用结果
const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultMalformed   = "malformed"
)

// Metrics 分析服务的Prometheus指标
type Metrics struct {
	requests         *prometheus.CounterVec
	subsystemCalls   *prometheus.CounterVec
	quotaRejections  prometheus.Counter
	insightFailures  prometheus.Counter
	analysisDuration prometheus.Histogram
	configVersion    prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default 注册到prometheus.DefaultRegisterer的单例
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New 在指定registerer上注册指标，测试中使用独立的Registry
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_requests_total",
			Help: "Analysis requests by final outcome.",
		}, []string{"outcome"}),
		subsystemCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subsystem_calls_total",
			Help: "Calls to the divination subsystems by result, retries included.",
		}, []string{"subsystem", "result"}),
		quotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Requests rejected because the monthly quota was exhausted.",
		}),
		insightFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insight_failures_total",
			Help: "Requests completed without insights because generation failed.",
		}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "End-to-end analysis latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		configVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "config_version",
			Help: "Version of the runtime settings currently in effect.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.requests, m.subsystemCalls, m.quotaRejections,
			m.insightFailures, m.analysisDuration, m.configVersion)
	}
	return m
}

// ObserveRequest 记录一次请求的结果和耗时
func (m *Metrics) ObserveRequest(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.analysisDuration.Observe(elapsed.Seconds())
}

// SubsystemCall 记录一次子系统调用
func (m *Metrics) SubsystemCall(subsystem, result string) {
	if m == nil {
		return
	}
	m.subsystemCalls.WithLabelValues(subsystem, result).Inc()
}

func (m *Metrics) QuotaRejected() {
	if m == nil {
		return
	}
	m.quotaRejections.Inc()
}

func (m *Metrics) InsightFailed() {
	if m == nil {
		return
	}
	m.insightFailures.Inc()
}

// SetConfigVersion 管理接口更新配置后调用
func (m *Metrics) SetConfigVersion(v int64) {
	if m == nil {
		return
	}
	m.configVersion.Set(float64(v))
}
