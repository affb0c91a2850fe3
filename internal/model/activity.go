package model

import (
	"time"

	"gorm.io/datatypes"
)

// Activity 用户动态日志
type Activity struct {
	ID        string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string         `json:"user_id" gorm:"type:varchar(36);index:idx_activities_user_created"`
	Action    string         `json:"action" gorm:"type:varchar(64);not null"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_activities_user_created"`
}

func (Activity) TableName() string { return "activities" }
