package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"suanming_maya/clock"
	"suanming_maya/config"
	"suanming_maya/logger"
)

// 任务类型
type TaskType int

const (
	TaskQuotaPurge TaskType = iota
	TaskHistoryRetention
)

// 任务状态
type TaskStatus struct {
	LastRun     time.Time
	NextRun     time.Time
	IsRunning   bool
	Description string
}

// QuotaPurger 清理内存额度计数，Redis中的键自带过期时间不需要清理
type QuotaPurger interface {
	PurgeBefore(period string) int
}

// HistoryPruner 按保留天数删除历史记录
type HistoryPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Options 调度器依赖，Quota或History为nil时不注册对应任务
type Options struct {
	Schedule       string
	CheckInterval  time.Duration
	RetentionDays  int
	Quota          QuotaPurger
	PreviousPeriod func() string
	History        HistoryPruner
	Clock          clock.Clock
}

// OptionsFromConfig 从配置文件构造调度参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Schedule:      cfg.Housekeeping.Schedule,
		CheckInterval: time.Duration(cfg.Housekeeping.CheckIntervalSec) * time.Second,
		RetentionDays: cfg.Housekeeping.HistoryRetentionDays,
	}
}

// 任务调度器
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	tasks    map[TaskType]*TaskStatus
	mutex    sync.Mutex
	wg       sync.WaitGroup
}

// NewScheduler 解析cron表达式并初始化任务
func NewScheduler(opts Options) (*Scheduler, error) {
	if opts.Schedule == "" {
		opts.Schedule = "0 3 * * *"
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	schedule, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid housekeeping schedule %q: %w", opts.Schedule, err)
	}

	s := &Scheduler{
		opts:     opts,
		schedule: schedule,
		tasks:    make(map[TaskType]*TaskStatus),
	}
	s.initTasks()
	return s, nil
}

// Start 启动主循环，ctx取消后退出
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
	logger.Info("调度器已启动", "schedule", s.opts.Schedule,
		"check_interval_sec", int(s.opts.CheckInterval.Seconds()), "task_count", len(s.tasks))
}

// Wait 等待正在执行的任务结束
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// 初始化任务
func (s *Scheduler) initTasks() {
	now := s.opts.Clock.Now()
	next := s.schedule.Next(now)

	if s.opts.Quota != nil && s.opts.PreviousPeriod != nil {
		s.tasks[TaskQuotaPurge] = &TaskStatus{NextRun: next, Description: "清理过期额度计数"}
	}
	if s.opts.History != nil && s.opts.RetentionDays > 0 {
		s.tasks[TaskHistoryRetention] = &TaskStatus{
			NextRun:     next,
			Description: fmt.Sprintf("删除%d天前的历史记录", s.opts.RetentionDays),
		}
	}

	logger.Info("定时任务初始化完成", "task_count", len(s.tasks), "next_run", next.Format("2006-01-02 15:04:05"))
}

// 主循环
func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("调度器已停止")
			return
		case <-ticker.C:
			s.checkTasks(ctx, s.opts.Clock.Now())
		}
	}
}

// 检查任务
func (s *Scheduler) checkTasks(ctx context.Context, now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for taskType, status := range s.tasks {
		// 如果任务正在运行，跳过
		if status.IsRunning {
			continue
		}

		// 如果到达或超过下次运行时间，执行任务
		if !now.Before(status.NextRun) {
			status.IsRunning = true
			s.wg.Add(1)
			go s.runTask(ctx, taskType, now)
		}
	}
}

// 运行任务
func (s *Scheduler) runTask(ctx context.Context, taskType TaskType, now time.Time) {
	defer s.wg.Done()
	defer func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		status := s.tasks[taskType]
		status.IsRunning = false
		status.LastRun = now
		status.NextRun = s.schedule.Next(now)

		logger.Info("任务执行完成", "task", status.Description, "next_run", status.NextRun.Format("2006-01-02 15:04:05"))
	}()

	switch taskType {
	case TaskQuotaPurge:
		// 保留上个月的计数，管理后台还会查询
		period := s.opts.PreviousPeriod()
		n := s.opts.Quota.PurgeBefore(period)
		logger.Info("额度计数清理完成", "before_period", period, "purged", n)

	case TaskHistoryRetention:
		cutoff := now.AddDate(0, 0, -s.opts.RetentionDays)
		n, err := s.opts.History.DeleteBefore(ctx, cutoff)
		if err != nil {
			logger.Error("删除历史记录失败", "cutoff", cutoff, "error", err)
			return
		}
		logger.Info("历史记录清理完成", "cutoff", cutoff.Format(time.RFC3339), "deleted", n)
	}
}

// Tasks 任务状态快照
func (s *Scheduler) Tasks() map[TaskType]TaskStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make(map[TaskType]TaskStatus, len(s.tasks))
	for k, v := range s.tasks {
		out[k] = *v
	}
	return out
}
