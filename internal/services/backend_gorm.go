package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"quillside/internal/identity"
	"quillside/internal/logging"
	"quillside/internal/models"
)

// GormBackend is the Postgres persistence backend.
type GormBackend struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{
		db:  db,
		log: logging.For("backend"),
	}
}

// classify converts raw database errors into the service taxonomy.
// Authorization failures are recognized by SQLSTATE, never by matching
// message text.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501", "28000": // insufficient_privilege, invalid_authorization_specification
			return fmt.Errorf("%w: %s", ErrPermissionDenied, pgErr.Code)
		}
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// SetSessionContext binds row-level checks to the acting identity via
// Postgres session settings.
func (b *GormBackend) SetSessionContext(ctx context.Context, who identity.Identity) error {
	sessionID, userID := "", ""
	if who.IsOwner() {
		userID = who.UserID
	} else {
		sessionID = who.SessionID
	}
	err := b.db.WithContext(ctx).
		Exec("SELECT set_config('app.session_id', ?, false), set_config('app.user_id', ?, false)", sessionID, userID).
		Error
	return classify(err)
}

func (b *GormBackend) CommentsByPost(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := b.db.WithContext(ctx).Where("post_id = ?", postID).Find(&comments).Error
	if err != nil {
		return nil, classify(err)
	}
	return comments, nil
}

func (b *GormBackend) CommentByID(ctx context.Context, id string) (models.Comment, error) {
	var comment models.Comment
	err := b.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error
	if err != nil {
		return models.Comment{}, classify(err)
	}
	return comment, nil
}

func (b *GormBackend) InsertComment(ctx context.Context, c *models.Comment) error {
	return classify(b.db.WithContext(ctx).Create(c).Error)
}

func (b *GormBackend) ApplyEdit(ctx context.Context, commentID, newContent string, edit models.CommentEdit) error {
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&edit).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Comment{}).Where("id = ?", commentID).Updates(map[string]interface{}{
			"content":    newContent,
			"updated_at": time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return classify(err)
}

// SoftDeleteComment persists the deletion envelope prepared by the comment
// store. UpdateColumns keeps updated_at untouched so a deletion does not
// read as an edit.
func (b *GormBackend) SoftDeleteComment(ctx context.Context, c models.Comment) error {
	res := b.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", c.ID).UpdateColumns(map[string]interface{}{
		"is_deleted":       true,
		"deleted_by":       c.DeletedBy,
		"content":          c.Content,
		"original_content": c.OriginalContent,
		"display_name":     c.DisplayName,
	})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *GormBackend) HardDeleteComment(ctx context.Context, commentID string) error {
	res := b.db.WithContext(ctx).Where("id = ?", commentID).Delete(&models.Comment{})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *GormBackend) EditsByComment(ctx context.Context, commentID string) ([]models.CommentEdit, error) {
	var edits []models.CommentEdit
	err := b.db.WithContext(ctx).
		Where("comment_id = ?", commentID).
		Order("created_at ASC").
		Find(&edits).Error
	if err != nil {
		return nil, classify(err)
	}
	return edits, nil
}

func voteScope(tx *gorm.DB, commentID string, who identity.Identity) *gorm.DB {
	q := tx.Where("comment_id = ?", commentID)
	if who.IsOwner() {
		return q.Where("user_id = ?", who.UserID)
	}
	return q.Where("session_id = ?", who.SessionID)
}

func (b *GormBackend) VoteFor(ctx context.Context, commentID string, who identity.Identity) (*models.CommentVote, error) {
	var vote models.CommentVote
	err := voteScope(b.db.WithContext(ctx), commentID, who).First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &vote, nil
}

// applyVoteDelta adjusts the denormalized aggregates in one statement so
// score stays equal to upvotes - downvotes.
func applyVoteDelta(tx *gorm.DB, commentID string, upDelta, downDelta int) error {
	res := tx.Model(&models.Comment{}).Where("id = ?", commentID).UpdateColumns(map[string]interface{}{
		"upvotes":   gorm.Expr("upvotes + ?", upDelta),
		"downvotes": gorm.Expr("downvotes + ?", downDelta),
		"score":     gorm.Expr("(upvotes + ?) - (downvotes + ?)", upDelta, downDelta),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func deltaFor(voteType, sign int) (up, down int) {
	if voteType == models.VoteUp {
		return sign, 0
	}
	return 0, sign
}

func (b *GormBackend) ReplaceVote(ctx context.Context, commentID string, who identity.Identity, voteType int) (Aggregates, error) {
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upDelta, downDelta := 0, 0

		var existing models.CommentVote
		err := voteScope(tx, commentID, who).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			u, d := deltaFor(existing.VoteType, -1)
			upDelta += u
			downDelta += d
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first vote by this identity
		default:
			return err
		}

		vote := models.CommentVote{CommentID: commentID, VoteType: voteType}
		if who.IsOwner() {
			vote.UserID = &who.UserID
		} else {
			vote.SessionID = &who.SessionID
		}
		if err := tx.Create(&vote).Error; err != nil {
			return err
		}
		u, d := deltaFor(voteType, 1)
		return applyVoteDelta(tx, commentID, upDelta+u, downDelta+d)
	})
	if err != nil {
		return Aggregates{}, classify(err)
	}
	return b.VoteAggregates(ctx, commentID)
}

func (b *GormBackend) DeleteVote(ctx context.Context, commentID string, who identity.Identity) (Aggregates, error) {
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CommentVote
		err := voteScope(tx, commentID, who).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // nothing to remove
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&existing).Error; err != nil {
			return err
		}
		u, d := deltaFor(existing.VoteType, -1)
		return applyVoteDelta(tx, commentID, u, d)
	})
	if err != nil {
		return Aggregates{}, classify(err)
	}
	return b.VoteAggregates(ctx, commentID)
}

func (b *GormBackend) VoteAggregates(ctx context.Context, commentID string) (Aggregates, error) {
	var comment models.Comment
	err := b.db.WithContext(ctx).Select("upvotes", "downvotes", "score").Where("id = ?", commentID).First(&comment).Error
	if err != nil {
		return Aggregates{}, classify(err)
	}
	return Aggregates{Upvotes: comment.Upvotes, Downvotes: comment.Downvotes, Score: comment.Score}, nil
}

func (b *GormBackend) AuthorByEmail(ctx context.Context, email string) (models.Author, error) {
	var author models.Author
	err := b.db.WithContext(ctx).Where("email = ?", email).First(&author).Error
	if err != nil {
		return models.Author{}, classify(err)
	}
	return author, nil
}

func (b *GormBackend) PostBySlug(ctx context.Context, slug string) (models.Post, error) {
	var post models.Post
	err := b.db.WithContext(ctx).Preload("Category").Where("slug = ?", slug).First(&post).Error
	if err != nil {
		return models.Post{}, classify(err)
	}
	return post, nil
}

func (b *GormBackend) RelatedPosts(ctx context.Context, postID string, categoryID *string, excludeSlug string, limit int) ([]models.Post, error) {
	q := b.db.WithContext(ctx).Where("id <> ? AND slug <> ?", postID, excludeSlug)
	if categoryID != nil {
		q = q.Where("category_id = ?", *categoryID)
	}
	var posts []models.Post
	err := q.Order("published_at DESC").Limit(limit).Find(&posts).Error
	if err != nil {
		return nil, classify(err)
	}
	return posts, nil
}
