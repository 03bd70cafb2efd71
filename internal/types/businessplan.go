package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BusinessPlan holds one plan per row. Content is an opaque JSON document
// mapping topic keys to topic sub-documents; unrelated keys in it must be
// preserved across writes.
type BusinessPlan struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Title     string         `gorm:"column:title;not null" json:"title"`
	Content   datatypes.JSON `gorm:"column:content;type:jsonb" json:"content"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (BusinessPlan) TableName() string { return "business_plan" }
