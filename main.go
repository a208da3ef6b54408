package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/swaggo/swag" // 导入 swag

	"suanming_maya/config"
	"suanming_maya/db"
	"suanming_maya/handlers"
	"suanming_maya/logger"
	"suanming_maya/metrics"
	"suanming_maya/repository"
	"suanming_maya/scheduler"
	"suanming_maya/services"
)

const version = "1.0.0"

// 结果存储：MySQL或内存
type historyStore interface {
	services.ResultStore
	handlers.HistoryReader
	scheduler.HistoryPruner
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// 初始化日志系统
	if err := logger.Init(cfg); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	logger.Info("日志系统初始化成功", "level", cfg.Log.Level, "format", cfg.Log.Format, "output", cfg.Log.Output)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		history  historyStore
		settings services.SettingsPersister
	)
	if cfg.DB.DSN != "" {
		if err := db.InitMySQLWithConfig(cfg); err != nil {
			logger.Error("初始化MySQL失败", "error", err)
			os.Exit(1)
		}
		if err := db.EnsureSchema(ctx, db.DB); err != nil {
			logger.Error("初始化数据表失败", "error", err)
			os.Exit(1)
		}
		logger.Info("MySQL连接成功",
			"max_open_conns", cfg.DB.MaxOpenConns,
			"max_idle_conns", cfg.DB.MaxIdleConns,
			"conn_max_lifetime", cfg.DB.ConnMaxLifetime)
		history = repository.NewAnalysisRepo(db.DB)
		settings = repository.NewSettingsRepo(db.DB)
	} else {
		logger.Warn("未配置数据库，历史记录和配置修改只保存在内存中")
		history = repository.NewMemoryAnalysisRepo()
		settings = repository.NewMemorySettingsRepo()
	}

	var (
		quotaStore  services.QuotaStore
		quotaPurger scheduler.QuotaPurger
	)
	if cfg.Redis.Addr != "" {
		if err := db.InitRedis(ctx, cfg); err != nil {
			logger.Error("初始化Redis失败", "error", err)
			os.Exit(1)
		}
		logger.Info("Redis连接成功", "addr", cfg.Redis.Addr)
		quotaStore = services.NewRedisQuotaStore(db.Redis)
	} else {
		logger.Warn("未配置Redis，额度计数只保存在内存中")
		mem := services.NewMemoryQuotaStore()
		quotaStore, quotaPurger = mem, mem
	}

	m := metrics.Default()
	store, err := config.NewStore(cfg.InitialSettings())
	if err != nil {
		logger.Error("运行时配置不合法", "error", err)
		os.Exit(1)
	}
	admin := services.NewAdminConfigService(store, settings, m)
	if err := admin.LoadPersisted(ctx); err != nil {
		logger.Warn("加载持久化配置失败，使用配置文件默认值", "error", err)
	}

	ledger := services.NewQuotaLedger(quotaStore, cfg.QuotaLocation(),
		time.Duration(cfg.Analysis.ReservationTTLSec)*time.Second, nil)

	subsystemHTTP := &http.Client{}
	orchestrator := services.NewOrchestrator(services.OrchestratorDeps{
		Settings: store,
		Quota:    ledger,
		Suanming: services.NewSuanmingClient(cfg.Suanming.URL(), cfg.Subsystem.APIKey, subsystemHTTP),
		Maya:     services.NewMayaClient(cfg.Maya.URL(), cfg.Subsystem.APIKey, subsystemHTTP),
		Insights: services.NewInsightClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model),
		Results:  history,
		Metrics:  m,
	})

	router := handlers.NewRouter(&handlers.Deps{
		Analyzer:       orchestrator,
		History:        history,
		Quota:          ledger,
		Admin:          admin,
		QuotaLocation:  cfg.QuotaLocation(),
		HistoryLimit:   cfg.Analysis.HistoryLimit,
		AdminToken:     cfg.Admin.Token,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HandlerTimeout: store.Snapshot().RequestTimeout + 5*time.Second,
		Version:        version,
	})
	if cfg.Admin.Token == "" {
		logger.Warn("未配置ADMIN_TOKEN，管理接口已关闭")
	}

	// 启动定时清理
	opts := scheduler.OptionsFromConfig(cfg)
	opts.Quota = quotaPurger
	opts.PreviousPeriod = ledger.PreviousPeriod
	opts.History = history
	sched, err := scheduler.NewScheduler(opts)
	if err != nil {
		logger.Error("初始化调度器失败", "error", err)
		os.Exit(1)
	}
	sched.Start(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("服务器启动", "address", cfg.Server.Addr)
		logger.Info("Swagger文档可访问", "url", fmt.Sprintf("http://%s/swagger/index.html", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP服务异常退出", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("收到退出信号，开始关闭服务")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), store.Snapshot().RequestTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP服务关闭失败", "error", err)
	}
	sched.Wait()
	if err := db.CloseRedis(); err != nil {
		logger.Warn("关闭Redis失败", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Warn("关闭MySQL失败", "error", err)
	}
	logger.Info("服务已退出")
}
