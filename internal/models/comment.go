package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeletedBy values for soft-deleted comments.
const (
	DeletedByAuthor = "author"
	DeletedByUser   = "user"
)

// DisplayName shown for anonymous commenters once they delete their comment.
const DeletedDisplayName = "[deleted]"

type Comment struct {
	ID       string  `gorm:"type:uuid;primaryKey" json:"id"`
	PostID   string  `gorm:"type:uuid;not null;index" json:"post_id"`
	ParentID *string `gorm:"type:uuid;index" json:"parent_id"` // nil for top-level comments
	Content  string  `gorm:"type:text;not null" json:"content"`

	// Exactly one of the two identifies the author: SessionID for anonymous
	// commenters, AuthorFlag for the site owner.
	SessionID   *string `gorm:"index" json:"-"`
	AuthorFlag  bool    `gorm:"not null;default:false" json:"author_flag"`
	DisplayName *string `gorm:"size:80" json:"display_name"`

	IsDeleted       bool    `gorm:"not null;default:false" json:"is_deleted"`
	DeletedBy       string  `gorm:"size:10" json:"deleted_by,omitempty"`
	OriginalContent *string `gorm:"type:text" json:"-"`

	// Denormalized vote aggregates, maintained transactionally with every
	// vote write. Score is always Upvotes - Downvotes.
	Upvotes   int `gorm:"not null;default:0" json:"upvotes"`
	Downvotes int `gorm:"not null;default:0" json:"downvotes"`
	Score     int `gorm:"not null;default:0" json:"score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Edited reports whether the comment was changed after creation.
func (c *Comment) Edited() bool {
	return c.UpdatedAt.After(c.CreatedAt)
}
