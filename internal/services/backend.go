package services

import (
	"context"

	"quillside/internal/identity"
	"quillside/internal/models"
)

// Aggregates are the denormalized vote counts of one comment.
type Aggregates struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Score     int `json:"score"`
}

// Backend is the row-oriented persistence store behind the comment system.
// Implementations return errors from the taxonomy in errors.go, already
// classified; callers rely on errors.Is and never inspect error text.
//
// SetSessionContext binds subsequent row-level checks to an identity. A
// stale or corrupted session token manifests there as an authorization
// failure indistinguishable from a real denial; the comment store handles
// the one-shot recovery, not the backend.
type Backend interface {
	SetSessionContext(ctx context.Context, who identity.Identity) error

	CommentsByPost(ctx context.Context, postID string) ([]models.Comment, error)
	CommentByID(ctx context.Context, id string) (models.Comment, error)
	InsertComment(ctx context.Context, c *models.Comment) error
	// ApplyEdit atomically appends the history row and updates the
	// comment's content and updated_at.
	ApplyEdit(ctx context.Context, commentID, newContent string, edit models.CommentEdit) error
	SoftDeleteComment(ctx context.Context, c models.Comment) error
	HardDeleteComment(ctx context.Context, commentID string) error
	EditsByComment(ctx context.Context, commentID string) ([]models.CommentEdit, error)

	// VoteFor returns nil (not ErrNotFound) when the identity has no vote
	// on the comment.
	VoteFor(ctx context.Context, commentID string, who identity.Identity) (*models.CommentVote, error)
	// ReplaceVote removes any existing vote row for (comment, identity),
	// inserts the new one, and adjusts the comment's aggregates, all in
	// one transaction.
	ReplaceVote(ctx context.Context, commentID string, who identity.Identity, voteType int) (Aggregates, error)
	DeleteVote(ctx context.Context, commentID string, who identity.Identity) (Aggregates, error)
	VoteAggregates(ctx context.Context, commentID string) (Aggregates, error)

	// Read-only collaborator lookups.
	AuthorByEmail(ctx context.Context, email string) (models.Author, error)
	PostBySlug(ctx context.Context, slug string) (models.Post, error)
	RelatedPosts(ctx context.Context, postID string, categoryID *string, excludeSlug string, limit int) ([]models.Post, error)
}
