package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "suanming_maya/docs" // 导入 swagger 文档
	"suanming_maya/models"
	"suanming_maya/services"
)

// Analyzer 分析请求编排
type Analyzer interface {
	Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error)
}

// HistoryReader 历史记录查询
type HistoryReader interface {
	Get(ctx context.Context, requestID string) (*models.AnalysisResult, error)
	ListByRequester(ctx context.Context, requesterID string, limit int) ([]models.HistorySummary, error)
	UsageSince(ctx context.Context, since time.Time) (models.UsageStats, error)
}

// QuotaReporter 额度查询
type QuotaReporter interface {
	Usage(ctx context.Context, requesterID string, limit int) (models.QuotaRecord, error)
}

// Deps 路由依赖
type Deps struct {
	Analyzer       Analyzer
	History        HistoryReader
	Quota          QuotaReporter
	Admin          *services.AdminConfigService
	QuotaLocation  *time.Location
	HistoryLimit   int
	AdminToken     string
	AllowedOrigins []string
	// HandlerTimeout 整个HTTP请求的上限，应大于分析请求本身的超时
	HandlerTimeout time.Duration
	Version        string
	Now            func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewRouter 创建带全部中间件和路由的router
func NewRouter(d *Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if d.HandlerTimeout > 0 {
		r.Use(middleware.Timeout(d.HandlerTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequesterIDHeader, AdminTokenHeader},
		MaxAge:         300,
	}))

	RegisterRoutes(r, d)
	return r
}

func RegisterRoutes(r chi.Router, d *Deps) {
	// Swagger 文档
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // Swagger JSON 的 URL
	))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			HealthHandler(w, r, d)
		})
		r.Post("/analyze", func(w http.ResponseWriter, r *http.Request) {
			AnalyzeHandler(w, r, d)
		})
		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			ListHistoryHandler(w, r, d)
		})
		r.Get("/history/{request_id}", func(w http.ResponseWriter, r *http.Request) {
			GetHistoryHandler(w, r, d)
		})
		r.Get("/quota", func(w http.ResponseWriter, r *http.Request) {
			QuotaHandler(w, r, d)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(d.AdminToken))
			r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
				GetConfigHandler(w, r, d)
			})
			r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
				StatsHandler(w, r, d)
			})
			r.Put("/weights", func(w http.ResponseWriter, r *http.Request) {
				UpdateWeightsHandler(w, r, d)
			})
			r.Put("/llm-config", func(w http.ResponseWriter, r *http.Request) {
				UpdateLLMConfigHandler(w, r, d)
			})
			r.Put("/quota", func(w http.ResponseWriter, r *http.Request) {
				UpdateQuotaHandler(w, r, d)
			})
		})
	})
}
