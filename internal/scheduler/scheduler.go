package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/metrics"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// Scheduler 任务调度器
type Scheduler struct {
	cron          *cron.Cron
	lockManager   *LockManager
	execRepo      *repository.ExecutionRepository
	deferred      *Deferred
	jobs          map[string]Job
	jobConfigs    map[string]JobConfig
	mu            sync.RWMutex
	maxConcurrent int
	running       chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	log           *zap.Logger
}

// JobConfig 任务配置
type JobConfig struct {
	Cron    string
	Enabled bool
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	MaxConcurrentJobs int
	// RedisClient 为空时不加分布式锁 (单实例部署)
	RedisClient redis.UniversalClient
}

// NewScheduler 创建调度器
func NewScheduler(cfg *SchedulerConfig, execRepo *repository.ExecutionRepository) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	maxConcurrent := cfg.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	var lockManager *LockManager
	if cfg.RedisClient != nil {
		lockManager = NewLockManager(cfg.RedisClient)
	}

	return &Scheduler{
		cron:          cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
		lockManager:   lockManager,
		execRepo:      execRepo,
		deferred:      NewDeferred(ctx),
		jobs:          make(map[string]Job),
		jobConfigs:    make(map[string]JobConfig),
		maxConcurrent: maxConcurrent,
		running:       make(chan struct{}, maxConcurrent),
		ctx:           ctx,
		cancel:        cancel,
		log:           logger.Named("scheduler"),
	}
}

// Deferred 返回与调度器同生命周期的延迟任务执行器
func (s *Scheduler) Deferred() *Deferred {
	return s.deferred
}

// RegisterJob 注册任务
func (s *Scheduler) RegisterJob(job Job, config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return errors.Wrapf(errors.ErrConflict, "job %s already registered", job.Name())
	}

	s.jobs[job.Name()] = job
	s.jobConfigs[job.Name()] = config

	if !config.Enabled {
		s.log.Info("job registered but disabled", zap.String("job", job.Name()))
		return nil
	}

	if _, err := s.cron.AddFunc(config.Cron, func() { s.executeJob(job) }); err != nil {
		delete(s.jobs, job.Name())
		delete(s.jobConfigs, job.Name())
		return errors.WrapWithCause(errors.ErrConfiguration, err, "invalid cron %q for job %s", config.Cron, job.Name())
	}
	metrics.ScheduledJobsGauge.Inc()

	s.log.Info("job registered",
		zap.String("job", job.Name()),
		zap.String("cron", config.Cron))
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop 停止调度器: 不再触发新任务, 取消未到期的延迟任务, 等待运行中的任务退出
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.deferred.Wait()
	s.log.Info("scheduler stopped")
}

// TriggerJob 手动触发任务
func (s *Scheduler) TriggerJob(jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return errors.Wrapf(errors.ErrNotFound, "job %s", jobName)
	}

	go s.executeJob(job)
	return nil
}

// executeJob 执行任务
func (s *Scheduler) executeJob(job Job) {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		s.log.Warn("max concurrent jobs reached, skipping", zap.String("job", job.Name()))
		s.recordExecution(job.Name(), model.JobStatusSkipped, "max concurrent jobs reached")
		return
	}

	select {
	case <-s.ctx.Done():
		return
	default:
	}

	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout())
	defer cancel()

	if job.RequiresLock() && s.lockManager != nil {
		lock := s.lockManager.NewLock(job.Name(), job.LockTTL(), job.UseWatchdog())
		acquired, err := lock.TryLock(ctx)
		if err != nil {
			s.log.Error("failed to acquire lock",
				zap.String("job", job.Name()),
				zap.Error(err))
			s.recordExecution(job.Name(), model.JobStatusFailed, "failed to acquire lock: "+err.Error())
			return
		}
		if !acquired {
			s.log.Debug("job is already running on another instance", zap.String("job", job.Name()))
			s.recordExecution(job.Name(), model.JobStatusSkipped, "job is running on another instance")
			return
		}
		defer func() {
			if err := lock.Unlock(context.Background()); err != nil {
				s.log.Error("failed to release lock",
					zap.String("job", job.Name()),
					zap.Error(err))
			}
		}()
	}

	metrics.RunningJobsGauge.Inc()
	defer metrics.RunningJobsGauge.Dec()

	startTime := time.Now()
	exec := &model.JobExecution{
		JobName:   job.Name(),
		Status:    model.JobStatusRunning,
		StartedAt: startTime.UnixMilli(),
	}
	if err := s.execRepo.Create(ctx, exec); err != nil {
		s.log.Error("failed to record job start",
			zap.String("job", job.Name()),
			zap.Error(err))
	}

	s.log.Info("starting job", zap.String("job", job.Name()))

	result, err := s.runSafely(ctx, job)

	finishTime := time.Now()
	elapsed := finishTime.Sub(startTime)
	duration := int(elapsed.Milliseconds())
	exec.FinishedAt = ptrInt64(finishTime.UnixMilli())
	exec.DurationMs = &duration
	if result != nil {
		exec.Result = result.ToJSONResult()
	}

	if err != nil {
		exec.Status = model.JobStatusFailed
		errMsg := err.Error()
		exec.ErrorMessage = &errMsg
		s.log.Error("job failed",
			zap.String("job", job.Name()),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	} else {
		exec.Status = model.JobStatusSuccess
		fields := []zap.Field{zap.String("job", job.Name()), zap.Duration("duration", elapsed)}
		if result != nil {
			fields = append(fields,
				zap.Int("processed", result.ProcessedCount),
				zap.Int("errors", result.ErrorCount),
				zap.Int("skipped", result.SkippedCount))
		}
		s.log.Info("job completed", fields...)
	}

	metrics.JobExecutionsTotal.WithLabelValues(job.Name(), string(exec.Status)).Inc()
	metrics.JobDuration.WithLabelValues(job.Name()).Observe(elapsed.Seconds())
	metrics.JobLastExecutionTime.WithLabelValues(job.Name()).Set(float64(finishTime.Unix()))

	if exec.ID == 0 {
		return
	}
	if err := s.execRepo.Update(context.Background(), exec); err != nil {
		s.log.Error("failed to update job execution",
			zap.String("job", job.Name()),
			zap.Error(err))
	}
}

// runSafely 把任务 panic 转为错误
func (s *Scheduler) runSafely(ctx context.Context, job Job) (result *JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.ErrInternal, "job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Execute(ctx)
}

// recordExecution 记录跳过/未执行的情况
func (s *Scheduler) recordExecution(jobName string, status model.JobStatus, message string) {
	now := time.Now().UnixMilli()
	exec := &model.JobExecution{
		JobName:    jobName,
		Status:     status,
		StartedAt:  now,
		FinishedAt: ptrInt64(now),
		DurationMs: ptrInt(0),
	}
	if message != "" {
		exec.ErrorMessage = &message
	}
	metrics.JobExecutionsTotal.WithLabelValues(jobName, string(status)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.execRepo.Create(ctx, exec); err != nil {
		s.log.Error("failed to record job execution",
			zap.String("job", jobName),
			zap.Error(err))
	}
}

// JobStatus 任务状态
type JobStatus struct {
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	Cron           string `json:"cron"`
	TimeoutMs      int64  `json:"timeoutMs"`
	IsLocked       bool   `json:"isLocked"`
	LastStatus     string `json:"lastStatus,omitempty"`
	LastStartedAt  int64  `json:"lastStartedAt,omitempty"`
	LastFinishedAt int64  `json:"lastFinishedAt,omitempty"`
	LastDurationMs int    `json:"lastDurationMs,omitempty"`
	LastError      string `json:"lastError,omitempty"`
}

// GetJobStatus 获取任务状态
func (s *Scheduler) GetJobStatus(ctx context.Context, jobName string) (*JobStatus, error) {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	config := s.jobConfigs[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", jobName)
	}

	lastExec, err := s.execRepo.GetLatestByJobName(ctx, jobName)
	if err != nil {
		return nil, err
	}

	status := &JobStatus{
		Name:      jobName,
		Enabled:   config.Enabled,
		Cron:      config.Cron,
		TimeoutMs: job.Timeout().Milliseconds(),
	}
	if s.lockManager != nil {
		status.IsLocked, _ = s.lockManager.IsLocked(ctx, jobName)
	}

	if lastExec != nil {
		status.LastStatus = string(lastExec.Status)
		status.LastStartedAt = lastExec.StartedAt
		if lastExec.FinishedAt != nil {
			status.LastFinishedAt = *lastExec.FinishedAt
		}
		if lastExec.DurationMs != nil {
			status.LastDurationMs = *lastExec.DurationMs
		}
		if lastExec.ErrorMessage != nil {
			status.LastError = *lastExec.ErrorMessage
		}
	}
	return status, nil
}

// ListJobStatus 列出所有任务状态, 按名称排序
func (s *Scheduler) ListJobStatus(ctx context.Context) ([]*JobStatus, error) {
	s.mu.RLock()
	jobNames := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		jobNames = append(jobNames, name)
	}
	s.mu.RUnlock()
	sort.Strings(jobNames)

	statuses := make([]*JobStatus, 0, len(jobNames))
	for _, name := range jobNames {
		status, err := s.GetJobStatus(ctx, name)
		if err != nil {
			s.log.Error("failed to get job status",
				zap.String("job", name),
				zap.Error(err))
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// HasJob 任务是否已注册
func (s *Scheduler) HasJob(jobName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[jobName]
	return ok
}

func ptrInt64(v int64) *int64 {
	return &v
}

func ptrInt(v int) *int {
	return &v
}
