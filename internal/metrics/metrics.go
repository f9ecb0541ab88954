// Package metrics 提供 whale-sync 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eidos_whalesync"

// 调度任务指标
var (
	// JobExecutionsTotal 任务执行总数
	JobExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_executions_total",
			Help:      "任务执行总数",
		},
		[]string{"job_name", "status"}, // status: success, failed, skipped
	)

	// JobDuration 任务执行耗时
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "任务执行耗时(秒)",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"job_name"},
	)

	// JobLastExecutionTime 任务最后执行时间
	JobLastExecutionTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_execution_timestamp",
			Help:      "任务最后执行时间戳",
		},
		[]string{"job_name"},
	)

	// RunningJobsGauge 当前运行中的任务数
	RunningJobsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_jobs_total",
			Help:      "当前运行中的任务数",
		},
	)

	// ScheduledJobsGauge 已调度任务数
	ScheduledJobsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_jobs_total",
			Help:      "已调度任务总数",
		},
	)

	// DeferredTasksGauge 已排期但未执行的延迟任务数 (鲸鱼分块, 清理续跑)
	DeferredTasksGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deferred_tasks_pending",
			Help:      "等待执行的延迟任务数",
		},
	)
)

// 上游接口指标
var (
	// UpstreamRequestsTotal 上游请求总数
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "上游请求总数",
		},
		[]string{"endpoint", "result"}, // result: ok, upstream_error, timeout, circuit_open
	)

	// UpstreamRequestDuration 上游请求耗时
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "上游请求耗时(秒)",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"endpoint"},
	)

	// UpstreamBreakerState 熔断器状态 0=closed 1=open 2=half-open
	UpstreamBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_state",
			Help:      "上游熔断器状态",
		},
		[]string{"endpoint"},
	)
)

// 同步指标
var (
	// SyncRunsTotal 同步运行总数
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "同步运行总数",
		},
		[]string{"type", "status"}, // status: completed, failed
	)

	// SyncRecordsTotal 同步处理的记录数
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "同步处理的记录数",
		},
		[]string{"type", "result"}, // result: processed, error, skipped
	)

	// WhaleChunksTotal 鲸鱼分块执行数
	WhaleChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whale_chunks_total",
			Help:      "鲸鱼同步分块执行数",
		},
		[]string{"result"}, // result: ok, partial, failed
	)

	// ActivitiesIngestedTotal 新入库成交数
	ActivitiesIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_ingested_total",
			Help:      "新入库的鲸鱼成交数",
		},
	)
)

// 提醒指标
var (
	// AlertsEvaluatedTotal 提醒评估次数
	AlertsEvaluatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_evaluated_total",
			Help:      "提醒评估次数",
		},
		[]string{"type", "result"}, // result: triggered, cooldown, not_matched, skipped, error
	)

	// NotificationsTotal 生成的通知数
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "生成的通知数",
		},
		[]string{"channel", "status"},
	)
)

// 清理指标
var (
	// CleanupRecordsDeleted 清理删除记录数
	CleanupRecordsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_records_deleted_total",
			Help:      "清理删除的记录总数",
		},
		[]string{"table"},
	)

	// CleanupContinuations 清理续跑次数
	CleanupContinuations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_continuations_total",
			Help:      "清理续跑次数",
		},
		[]string{"result"}, // result: scheduled, capped
	)
)

// HTTP 接口指标
var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP 请求耗时(秒)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
