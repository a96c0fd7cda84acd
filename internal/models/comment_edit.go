package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommentEdit is an append-only history row written once per edit, holding
// the content as it was before the edit took effect. Rows are never updated
// or deleted, even when the comment itself is removed.
type CommentEdit struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	CommentID       string    `gorm:"type:uuid;not null;index" json:"comment_id"`
	PreviousContent string    `gorm:"type:text;not null" json:"previous_content"`
	EditedByAuthor  bool      `gorm:"not null;default:false" json:"edited_by_author"`
	CreatedAt       time.Time `json:"created_at"`
}

func (e *CommentEdit) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
