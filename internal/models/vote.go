package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vote values.
const (
	VoteUp   = 1
	VoteDown = -1
)

// CommentVote is a single identity's vote on a single comment. Exactly one
// of SessionID/UserID is set, matching the voter's identity at cast time.
// At most one row exists per (comment, identity) pair; the vote engine
// enforces this with delete-then-insert, never by allowing duplicates.
type CommentVote struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CommentID string    `gorm:"type:uuid;not null;index:idx_vote_comment" json:"comment_id"`
	SessionID *string   `gorm:"index:idx_vote_session" json:"-"`
	UserID    *string   `gorm:"index:idx_vote_user" json:"-"`
	VoteType  int       `gorm:"not null" json:"vote_type"` // VoteUp or VoteDown
	CreatedAt time.Time `json:"created_at"`
}

func (v *CommentVote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
