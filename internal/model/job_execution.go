package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JobStatus 任务执行状态
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
	JobStatusSkipped JobStatus = "skipped"
)

// JobExecution 调度任务执行记录
type JobExecution struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	JobName      string     `gorm:"column:job_name;type:varchar(100);not null;index:idx_job_exec_name_started,priority:1" json:"jobName"`
	Status       JobStatus  `gorm:"column:status;type:varchar(20);not null;index:idx_job_exec_status" json:"status"`
	StartedAt    int64      `gorm:"column:started_at;not null;index:idx_job_exec_name_started,priority:2" json:"startedAt"`
	FinishedAt   *int64     `gorm:"column:finished_at" json:"finishedAt,omitempty"`
	DurationMs   *int       `gorm:"column:duration_ms" json:"durationMs,omitempty"`
	ErrorMessage *string    `gorm:"column:error_message;type:text" json:"errorMessage,omitempty"`
	Result       JSONResult `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	CreatedAt    int64      `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName 表名
func (JobExecution) TableName() string {
	return "job_executions"
}

// JSONResult JSON 结果类型
type JSONResult map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSONResult) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口
func (j *JSONResult) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONResult source type %T", value)
	}
}
