package model

// NotificationChannel 通知渠道
type NotificationChannel string

const (
	ChannelInApp    NotificationChannel = "in_app"
	ChannelEmail    NotificationChannel = "email"
	ChannelPush     NotificationChannel = "push"
	ChannelTelegram NotificationChannel = "telegram"
	ChannelDiscord  NotificationChannel = "discord"
)

// NotificationStatus 通知状态
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// CanTransitionTo 只允许 pending -> sent / failed
func (s NotificationStatus) CanTransitionTo(next NotificationStatus) bool {
	return s == NotificationPending && (next == NotificationSent || next == NotificationFailed)
}

// Notification 通知日志, 追加写入
type Notification struct {
	ID           int64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID       int64               `gorm:"column:user_id;not null;index:idx_notifications_user_sent,priority:1" json:"userId"`
	AlertID      *int64              `gorm:"column:alert_id;index:idx_notifications_alert" json:"alertId,omitempty"`
	ActivityID   *int64              `gorm:"column:activity_id" json:"activityId,omitempty"`
	Type         AlertType           `gorm:"column:type;type:varchar(16);not null" json:"type"`
	Channel      NotificationChannel `gorm:"column:channel;type:varchar(16);not null" json:"channel"`
	Status       NotificationStatus  `gorm:"column:status;type:varchar(16);not null;index:idx_notifications_status" json:"status"`
	Content      string              `gorm:"column:content;type:text;not null" json:"content"`
	ErrorMessage *string             `gorm:"column:error_message;type:text" json:"errorMessage,omitempty"`
	SentAt       int64               `gorm:"column:sent_at;not null;index:idx_notifications_user_sent,priority:2" json:"sentAt"`
	UpdatedAt    int64               `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName 表名
func (Notification) TableName() string {
	return "notification_log"
}
