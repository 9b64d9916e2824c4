package model

import (
	"time"

	"gorm.io/datatypes"
)

// OperationLog records an administrative change to a license or the catalog.
type OperationLog struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"index"`
	Action    string         `json:"action" gorm:"size:64"`
	Target    string         `json:"target" gorm:"size:64"`
	TargetID  string         `json:"target_id" gorm:"size:200"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}
