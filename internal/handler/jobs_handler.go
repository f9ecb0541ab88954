package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// JobController 调度器的查询与手动触发
type JobController interface {
	ListJobStatus(ctx context.Context) ([]*scheduler.JobStatus, error)
	TriggerJob(jobName string) error
	HasJob(jobName string) bool
}

// ExecutionLister 任务执行历史
type ExecutionLister interface {
	ListByJobName(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error)
}

// SyncRunLister 同步运行记录
type SyncRunLister interface {
	List(ctx context.Context, syncType model.SyncType, limit int) ([]*model.SyncRun, error)
}

// JobsHandler 任务管理接口
type JobsHandler struct {
	jobs       JobController
	executions ExecutionLister
	syncRuns   SyncRunLister
}

// NewJobsHandler 创建任务管理处理器
func NewJobsHandler(jobs JobController, executions ExecutionLister, syncRuns SyncRunLister) *JobsHandler {
	return &JobsHandler{jobs: jobs, executions: executions, syncRuns: syncRuns}
}

// ListJobs 列出所有任务状态
// GET /api/v1/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	statuses, err := h.jobs.ListJobStatus(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, statuses)
}

// TriggerJob 手动触发任务, 异步执行
// POST /api/v1/jobs/:name/trigger
func (h *JobsHandler) TriggerJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.jobs.TriggerJob(name); err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, &Response{Code: "OK", Message: "job triggered", Data: gin.H{"job": name}})
}

// ListExecutions 任务执行历史
// GET /api/v1/jobs/:name/executions
func (h *JobsHandler) ListExecutions(c *gin.Context) {
	name := c.Param("name")
	if !h.jobs.HasJob(name) {
		Error(c, errors.Wrapf(errors.ErrNotFound, "job %s", name))
		return
	}
	limit, ok := historyLimit(c)
	if !ok {
		return
	}
	execs, err := h.executions.ListByJobName(c.Request.Context(), name, limit)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, execs)
}

// ListSyncRuns 同步运行记录, type 为空时返回全部类型
// GET /api/v1/sync-runs?type=&limit=
func (h *JobsHandler) ListSyncRuns(c *gin.Context) {
	syncType := model.SyncType(c.Query("type"))
	switch syncType {
	case "", model.SyncTypeMarkets, model.SyncTypeWhales, model.SyncTypeLeaderboard, model.SyncTypeAlertPrices:
	default:
		BadRequest(c, "unknown sync type "+string(syncType))
		return
	}
	limit, ok := historyLimit(c)
	if !ok {
		return
	}
	runs, err := h.syncRuns.List(c.Request.Context(), syncType, limit)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, runs)
}

func historyLimit(c *gin.Context) (int, bool) {
	limit, ok := intQuery(c, "limit", defaultHistoryLimit)
	if !ok {
		return 0, false
	}
	switch {
	case limit == 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	return int(limit), true
}
