package model

import "github.com/eidos-exchange/eidos-whalesync/internal/tier"

// User 订阅用户, 由身份服务维护; 本服务只读取等级和通知偏好
type User struct {
	ID                    int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Email                 *string   `gorm:"column:email;type:varchar(255)" json:"email,omitempty"`
	Tier                  tier.Tier `gorm:"column:tier;type:varchar(16);not null" json:"tier"`
	EmailNotifications    bool      `gorm:"column:email_notifications;not null" json:"emailNotifications"`
	PushNotifications     bool      `gorm:"column:push_notifications;not null" json:"pushNotifications"`
	TelegramNotifications bool      `gorm:"column:telegram_notifications;not null" json:"telegramNotifications"`
	DiscordNotifications  bool      `gorm:"column:discord_notifications;not null" json:"discordNotifications"`
	CreatedAt             int64     `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt             int64     `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// WantsEmail 开启邮件通知且有邮箱
func (u *User) WantsEmail() bool {
	return u.EmailNotifications && u.Email != nil && *u.Email != ""
}
