package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TaskStatusOpen      = "open"
	TaskStatusCompleted = "completed"
)

type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	GalaxyID    *uint          `gorm:"index" json:"galaxy_id,omitempty"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title" validate:"required,min=1,max=255"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	DueAt       *time.Time     `gorm:"type:timestamp;default:null" json:"due_at,omitempty"`
	CompletedAt *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
