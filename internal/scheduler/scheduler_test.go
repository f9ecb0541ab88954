package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/testutil"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
)

// mockJob 模拟任务, lockTTL 为 0 时不加锁
type mockJob struct {
	BaseJob
	executeFunc func(ctx context.Context) (*JobResult, error)
	execCount   int64
}

func newMockJob(name string, lockTTL time.Duration, executeFunc func(ctx context.Context) (*JobResult, error)) *mockJob {
	return &mockJob{
		BaseJob:     NewBaseJob(name, 30*time.Second, lockTTL, false),
		executeFunc: executeFunc,
	}
}

func (j *mockJob) Execute(ctx context.Context) (*JobResult, error) {
	atomic.AddInt64(&j.execCount, 1)
	if j.executeFunc != nil {
		return j.executeFunc(ctx)
	}
	return &JobResult{ProcessedCount: 1}, nil
}

func (j *mockJob) GetExecCount() int64 {
	return atomic.LoadInt64(&j.execCount)
}

func newTestScheduler(t *testing.T, maxConcurrent int, rdb redis.UniversalClient) (*Scheduler, *repository.ExecutionRepository) {
	t.Helper()
	execRepo := repository.NewExecutionRepository(testutil.NewDB(t))
	return NewScheduler(&SchedulerConfig{MaxConcurrentJobs: maxConcurrent, RedisClient: rdb}, execRepo), execRepo
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestScheduler_RegisterJob(t *testing.T) {
	s, _ := newTestScheduler(t, 3, nil)

	require.NoError(t, s.RegisterJob(newMockJob("test-job", 0, nil), JobConfig{Cron: "*/5 * * * * *", Enabled: true}))
	assert.True(t, s.HasJob("test-job"))

	err := s.RegisterJob(newMockJob("test-job", 0, nil), JobConfig{Cron: "*/5 * * * * *", Enabled: true})
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestScheduler_RegisterJob_Disabled(t *testing.T) {
	s, _ := newTestScheduler(t, 3, nil)

	require.NoError(t, s.RegisterJob(newMockJob("disabled-job", 0, nil), JobConfig{Cron: "*/5 * * * * *"}))

	statuses, err := s.ListJobStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Enabled)
}

func TestScheduler_RegisterJob_InvalidCron(t *testing.T) {
	s, _ := newTestScheduler(t, 3, nil)

	err := s.RegisterJob(newMockJob("bad-cron", 0, nil), JobConfig{Cron: "every day", Enabled: true})
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.False(t, s.HasJob("bad-cron"))
}

func TestScheduler_TriggerJob_NotFound(t *testing.T) {
	s, _ := newTestScheduler(t, 3, nil)

	err := s.TriggerJob("non-existent")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestScheduler_TriggerJob_RecordsExecution(t *testing.T) {
	s, execRepo := newTestScheduler(t, 3, nil)

	executed := make(chan struct{}, 1)
	job := newMockJob("trigger-test", 0, func(ctx context.Context) (*JobResult, error) {
		executed <- struct{}{}
		return &JobResult{ProcessedCount: 4, Summary: "Processed: 4, Errors: 0, Skipped: 0"}, nil
	})
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "0 0 0 1 1 *", Enabled: true}))

	s.Start()
	defer s.Stop()

	require.NoError(t, s.TriggerJob("trigger-test"))
	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not executed within timeout")
	}

	require.Eventually(t, func() bool {
		exec, err := execRepo.GetLatestByJobName(context.Background(), "trigger-test")
		return err == nil && exec != nil && exec.Status == model.JobStatusSuccess
	}, 2*time.Second, 20*time.Millisecond)

	status, err := s.GetJobStatus(context.Background(), "trigger-test")
	require.NoError(t, err)
	assert.Equal(t, string(model.JobStatusSuccess), status.LastStatus)
}

func TestScheduler_JobPanicRecordedAsFailure(t *testing.T) {
	s, execRepo := newTestScheduler(t, 3, nil)

	job := newMockJob("panicky", 0, func(ctx context.Context) (*JobResult, error) {
		panic("boom")
	})
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "0 0 0 1 1 *", Enabled: true}))

	s.executeJob(job)

	exec, err := execRepo.GetLatestByJobName(context.Background(), "panicky")
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, model.JobStatusFailed, exec.Status)
	require.NotNil(t, exec.ErrorMessage)
	assert.Contains(t, *exec.ErrorMessage, "boom")
}

func TestScheduler_SkipsWhenLockedElsewhere(t *testing.T) {
	_, rdb := newTestRedis(t)
	s, execRepo := newTestScheduler(t, 3, rdb)

	other := NewDistributedLock(rdb, "locked-job", time.Minute, false)
	ok, err := other.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	job := newMockJob("locked-job", time.Minute, nil)
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "0 0 0 1 1 *", Enabled: true}))

	s.executeJob(job)

	assert.Equal(t, int64(0), job.GetExecCount())
	exec, err := execRepo.GetLatestByJobName(context.Background(), "locked-job")
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, model.JobStatusSkipped, exec.Status)
}

func TestScheduler_ReleasesLockAfterRun(t *testing.T) {
	_, rdb := newTestRedis(t)
	s, _ := newTestScheduler(t, 3, rdb)

	job := newMockJob("lock-release", time.Minute, nil)
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "0 0 0 1 1 *", Enabled: true}))

	s.executeJob(job)
	s.executeJob(job)

	assert.Equal(t, int64(2), job.GetExecCount())
	locked, err := s.lockManager.IsLocked(context.Background(), "lock-release")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestScheduler_StartStop(t *testing.T) {
	s, _ := newTestScheduler(t, 3, nil)

	job := newMockJob("start-stop-test", 0, nil)
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "*/1 * * * * *", Enabled: true}))

	s.Start()
	time.Sleep(3 * time.Second)
	s.Stop()

	assert.GreaterOrEqual(t, job.GetExecCount(), int64(2))

	countAfterStop := job.GetExecCount()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, countAfterStop, job.GetExecCount())
}

func TestScheduler_Concurrency(t *testing.T) {
	s, _ := newTestScheduler(t, 2, nil)

	var executing, maxSeen int64
	var mu sync.Mutex
	slow := func(ctx context.Context) (*JobResult, error) {
		current := atomic.AddInt64(&executing, 1)
		mu.Lock()
		if current > maxSeen {
			maxSeen = current
		}
		mu.Unlock()
		time.Sleep(500 * time.Millisecond)
		atomic.AddInt64(&executing, -1)
		return &JobResult{}, nil
	}

	for i := 0; i < 5; i++ {
		job := newMockJob("slow-job-"+string(rune('a'+i)), 0, slow)
		require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "*/1 * * * * *", Enabled: true}))
	}

	s.Start()
	time.Sleep(3 * time.Second)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxSeen, int64(2))
}

func TestJobResult_ToJSONResult(t *testing.T) {
	result := &JobResult{
		ProcessedCount: 10,
		ErrorCount:     1,
		SkippedCount:   2,
		Summary:        "Processed: 10, Errors: 1, Skipped: 2",
		Details:        map[string]interface{}{"sync_run_id": int64(7)},
	}

	out := result.ToJSONResult()
	assert.Equal(t, 10, out["processed_count"])
	assert.Equal(t, 1, out["error_count"])
	assert.Equal(t, 2, out["skipped_count"])
	assert.Equal(t, "Processed: 10, Errors: 1, Skipped: 2", out["summary"])
	assert.Equal(t, int64(7), out["sync_run_id"])

	var nilResult *JobResult
	assert.Nil(t, nilResult.ToJSONResult())
}

func TestBaseJob(t *testing.T) {
	job := NewBaseJob("test", 30*time.Second, 60*time.Second, true)

	assert.Equal(t, "test", job.Name())
	assert.Equal(t, 30*time.Second, job.Timeout())
	assert.True(t, job.RequiresLock())
	assert.True(t, job.UseWatchdog())

	assert.False(t, NewBaseJob("nolock", time.Second, 0, false).RequiresLock())
}

func TestDefaultJobConfigs(t *testing.T) {
	for name, def := range DefaultJobConfigs {
		_, err := cronParser.Parse(def.Cron)
		assert.NoError(t, err, name)
		assert.Greater(t, def.Timeout, time.Duration(0), name)
	}
	assert.False(t, DefaultJobConfigs[JobNameRecentWhaleAlerts].Enabled)
	assert.Equal(t, "0 */5 * * * *", DefaultJobConfigs[JobNameAlertPriceSync].Cron)
}
