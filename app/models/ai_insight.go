package models

import "time"

// AIInsight is one generated-insight log row. The daily AI quota counts rows
// in this table scoped to the user and the current calendar day.
type AIInsight struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_ai_insights_user_created,priority:1" json:"user_id"`
	NoteID    *uint     `gorm:"index" json:"note_id,omitempty"`
	TaskID    *uint     `gorm:"index" json:"task_id,omitempty"`
	Kind      string    `gorm:"type:varchar(32);not null;default:'summary'" json:"kind"`
	Content   string    `gorm:"type:longtext" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_ai_insights_user_created,priority:2" json:"created_at"`
}
