package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AssistantCallLog records one assistant run for auditing and cost tracking.
type AssistantCallLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	PlanID    *uuid.UUID     `gorm:"type:uuid;index" json:"plan_id,omitempty"`
	Topic     string         `gorm:"column:topic;not null" json:"topic"`
	CallType  string         `gorm:"column:call_type;not null" json:"call_type"`
	ThreadID  string         `gorm:"column:thread_id" json:"thread_id"`
	RunID     string         `gorm:"column:run_id" json:"run_id"`
	Status    string         `gorm:"column:status" json:"status"`
	Success   bool           `gorm:"column:success;not null" json:"success"`
	Error     string         `gorm:"column:error" json:"error"`
	Usage     datatypes.JSON `gorm:"type:jsonb;column:usage" json:"usage"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (AssistantCallLog) TableName() string {
	return "assistant_call_log"
}
