package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Galaxy is a user workspace grouping notes and tasks.
type Galaxy struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UserID     uint           `gorm:"not null;index" json:"user_id"`
	Name       string         `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=1,max=100"`
	Color      string         `gorm:"type:varchar(7);default:'#6366f1'" json:"color"`
	ShareToken string         `gorm:"type:varchar(36);uniqueIndex" json:"share_token"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a share token when none is set.
func (g *Galaxy) BeforeCreate(tx *gorm.DB) error {
	if g.ShareToken == "" {
		g.ShareToken = uuid.New().String()
	}
	return nil
}
