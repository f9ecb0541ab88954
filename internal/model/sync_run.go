package model

// SyncType 同步任务类型
type SyncType string

const (
	SyncTypeMarkets     SyncType = "markets"
	SyncTypeWhales      SyncType = "whales"
	SyncTypeLeaderboard SyncType = "leaderboard-whales"
	SyncTypeAlertPrices SyncType = "alert-prices"
)

// SyncStatus 同步运行状态
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun 一次同步运行的记录, 创建后只关闭一次
type SyncRun struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Type      SyncType   `gorm:"column:type;type:varchar(32);not null;index:idx_sync_runs_type" json:"type"`
	Status    SyncStatus `gorm:"column:status;type:varchar(16);not null;index:idx_sync_runs_status" json:"status"`
	StartedAt int64      `gorm:"column:started_at;not null;index:idx_sync_runs_started" json:"startedAt"`
	EndedAt   *int64     `gorm:"column:ended_at" json:"endedAt,omitempty"`
	ItemCount *int64     `gorm:"column:item_count" json:"itemCount,omitempty"`
	Error     *string    `gorm:"column:error;type:text" json:"error,omitempty"`
}

// TableName 表名
func (SyncRun) TableName() string {
	return "sync_runs"
}
