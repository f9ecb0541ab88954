// Package model 定义同步管道的持久化模型, 时间字段均为 unix 毫秒
package model

// All 返回全部模型, 供测试环境 AutoMigrate 使用
func All() []interface{} {
	return []interface{}{
		&Market{},
		&Whale{},
		&Activity{},
		&Alert{},
		&Notification{},
		&SyncRun{},
		&User{},
		&JobExecution{},
	}
}
