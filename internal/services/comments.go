package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"quillside/internal/identity"
	"quillside/internal/logging"
	"quillside/internal/models"
)

const (
	// DisplayName used when an anonymous commenter leaves the field blank.
	defaultDisplayName = "Anonymous"

	removedByAuthorNotice = "This comment was removed by the author."
	removedByPosterNotice = "This comment was removed by the poster."
)

// CommentStore is the typed client over the persistence backend's comment
// rows. Every write first establishes the caller's identity context with
// the backend; a spurious authorization failure there is retried exactly
// once with a freshly minted anonymous token.
type CommentStore struct {
	backend  Backend
	resolver *identity.Resolver
	log      zerolog.Logger
}

func NewCommentStore(backend Backend, resolver *identity.Resolver) *CommentStore {
	return &CommentStore{
		backend:  backend,
		resolver: resolver,
		log:      logging.For("comments"),
	}
}

// withSession runs fn after binding the backend's row-level checks to the
// acting identity. The one retry exists because a stale session token
// surfaces as an authorization failure indistinguishable from real
// denial; denial after a token refresh is treated as real.
func (s *CommentStore) withSession(ctx context.Context, who identity.Identity, fn func(identity.Identity) error) error {
	err := s.backend.SetSessionContext(ctx, who)
	if err != nil && errors.Is(err, ErrPermissionDenied) && !who.IsOwner() {
		s.log.Warn().Msg("session context rejected, retrying once with a fresh token")
		who = identity.Anonymous(s.resolver.RefreshSession())
		err = s.backend.SetSessionContext(ctx, who)
	}
	if err != nil {
		return err
	}
	return fn(who)
}

// FetchThread returns all comments for a post, flat and unsorted.
func (s *CommentStore) FetchThread(ctx context.Context, postID string) ([]models.Comment, error) {
	return s.backend.CommentsByPost(ctx, postID)
}

// History returns the append-only edit entries of a comment, oldest first.
func (s *CommentStore) History(ctx context.Context, commentID string) ([]models.CommentEdit, error) {
	return s.backend.EditsByComment(ctx, commentID)
}

// Create submits a new comment or reply. Owner comments carry the author
// flag in the persisted row and no display name; either half alone would
// leave the store inconsistent.
func (s *CommentStore) Create(ctx context.Context, postID string, parentID *string, content, displayName string, who identity.Identity) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, fmt.Errorf("%w: comment content is empty", ErrValidation)
	}

	var created models.Comment
	err := s.withSession(ctx, who, func(who identity.Identity) error {
		comment := models.Comment{
			PostID:   postID,
			ParentID: parentID,
			Content:  content,
		}
		if who.IsOwner() {
			comment.AuthorFlag = true
		} else {
			sessionID := who.SessionID
			comment.SessionID = &sessionID
			name := strings.TrimSpace(displayName)
			if name == "" {
				name = defaultDisplayName
			}
			comment.DisplayName = &name
		}
		if err := s.backend.InsertComment(ctx, &comment); err != nil {
			return err
		}
		created = comment
		return nil
	})
	if err != nil {
		return models.Comment{}, err
	}
	s.log.Debug().Str("post_id", postID).Str("comment_id", created.ID).Msg("comment created")
	return created, nil
}

// Edit replaces a comment's content after capturing the prior content as
// an edit-history entry, atomically with the update.
func (s *CommentStore) Edit(ctx context.Context, commentID, newContent string, who identity.Identity) error {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return fmt.Errorf("%w: comment content is empty", ErrValidation)
	}

	comment, err := s.backend.CommentByID(ctx, commentID)
	if err != nil {
		return err
	}
	if !s.resolver.CanModifyComment(comment, who.IsOwner()) {
		return ErrPermissionDenied
	}

	edit := models.CommentEdit{
		CommentID:       commentID,
		PreviousContent: comment.Content,
		EditedByAuthor:  who.IsOwner(),
	}
	return s.withSession(ctx, who, func(identity.Identity) error {
		return s.backend.ApplyEdit(ctx, commentID, newContent, edit)
	})
}

// Delete removes a comment. A top-level comment with no descendant at any
// depth is hard-deleted; everything else is soft-deleted so the thread
// structure survives.
func (s *CommentStore) Delete(ctx context.Context, commentID string, who identity.Identity) error {
	comment, err := s.backend.CommentByID(ctx, commentID)
	if err != nil {
		return err
	}
	if !s.resolver.CanModifyComment(comment, who.IsOwner()) {
		return ErrPermissionDenied
	}

	flat, err := s.backend.CommentsByPost(ctx, comment.PostID)
	if err != nil {
		return err
	}

	if comment.ParentID == nil && !hasDescendant(flat, commentID) {
		err = s.withSession(ctx, who, func(identity.Identity) error {
			return s.backend.HardDeleteComment(ctx, commentID)
		})
		if err == nil {
			s.log.Debug().Str("comment_id", commentID).Msg("comment hard-deleted")
		}
		return err
	}

	original := comment.Content
	comment.OriginalContent = &original
	comment.IsDeleted = true
	if who.IsOwner() {
		comment.DeletedBy = models.DeletedByAuthor
		comment.Content = removedByAuthorNotice
	} else {
		comment.DeletedBy = models.DeletedByUser
		comment.Content = removedByPosterNotice
		deleted := models.DeletedDisplayName
		comment.DisplayName = &deleted
	}
	err = s.withSession(ctx, who, func(identity.Identity) error {
		return s.backend.SoftDeleteComment(ctx, comment)
	})
	if err == nil {
		s.log.Debug().Str("comment_id", commentID).Msg("comment soft-deleted")
	}
	return err
}

// hasDescendant reports whether any comment in the batch descends from id,
// at any depth. The rule is deliberately not "direct children only": a
// reply anywhere below keeps the comment soft-deletable only.
func hasDescendant(flat []models.Comment, id string) bool {
	if node := findNode(AssembleThread(flat), id); node != nil {
		return node.TotalReplies() > 0
	}
	return false
}

func findNode(tree []*CommentNode, id string) *CommentNode {
	for _, n := range tree {
		if n.Comment.ID == id {
			return n
		}
		if found := findNode(n.Replies, id); found != nil {
			return found
		}
	}
	return nil
}
