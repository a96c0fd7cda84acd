package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quillside/internal/identity"
	"quillside/internal/models"
)

// MemoryBackend is an in-process Backend used for local development
// (DATABASE_URL=memory) and tests. It mirrors the Postgres backend's
// semantics, including aggregate maintenance and error classification.
type MemoryBackend struct {
	mu       sync.Mutex
	comments map[string]models.Comment
	edits    []models.CommentEdit
	votes    map[string]models.CommentVote // commentID + "|" + identity key
	authors  map[string]models.Author      // by email
	posts    map[string]models.Post        // by slug
	bound    identity.Identity

	// Failure injection. SessionContextErrs entries are consumed one per
	// SetSessionContext call (nil means success); NextOpErr fails the next
	// data operation.
	SessionContextErrs []error
	NextOpErr          error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		comments: make(map[string]models.Comment),
		votes:    make(map[string]models.CommentVote),
		authors:  make(map[string]models.Author),
		posts:    make(map[string]models.Post),
	}
}

func (b *MemoryBackend) SeedAuthor(a models.Author) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	b.authors[a.Email] = a
}

func (b *MemoryBackend) SeedPost(p models.Post) models.Post {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	b.posts[p.Slug] = p
	return p
}

// BoundIdentity returns the identity of the last SetSessionContext call.
func (b *MemoryBackend) BoundIdentity() identity.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// begin runs the shared preamble: context bound, injected failure.
func (b *MemoryBackend) begin(ctx context.Context) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NextOpErr != nil {
		err := b.NextOpErr
		b.NextOpErr = nil
		return err
	}
	return nil
}

func (b *MemoryBackend) SetSessionContext(ctx context.Context, who identity.Identity) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.SessionContextErrs) > 0 {
		err := b.SessionContextErrs[0]
		b.SessionContextErrs = b.SessionContextErrs[1:]
		if err != nil {
			return err
		}
	}
	b.bound = who
	return nil
}

func (b *MemoryBackend) CommentsByPost(ctx context.Context, postID string) ([]models.Comment, error) {
	if err := b.begin(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var comments []models.Comment
	for _, c := range b.comments {
		if c.PostID == postID {
			comments = append(comments, c)
		}
	}
	// Stable order for callers that iterate; sorting is still the
	// assembler's job.
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}

func (b *MemoryBackend) CommentByID(ctx context.Context, id string) (models.Comment, error) {
	if err := b.begin(ctx); err != nil {
		return models.Comment{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.comments[id]
	if !ok {
		return models.Comment{}, ErrNotFound
	}
	return c, nil
}

func (b *MemoryBackend) InsertComment(ctx context.Context, c *models.Comment) error {
	if err := b.begin(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	b.comments[c.ID] = *c
	return nil
}

func (b *MemoryBackend) ApplyEdit(ctx context.Context, commentID, newContent string, edit models.CommentEdit) error {
	if err := b.begin(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	if edit.ID == "" {
		edit.ID = uuid.NewString()
	}
	edit.CreatedAt = time.Now()
	b.edits = append(b.edits, edit)
	c.Content = newContent
	c.UpdatedAt = time.Now()
	b.comments[commentID] = c
	return nil
}

func (b *MemoryBackend) SoftDeleteComment(ctx context.Context, in models.Comment) error {
	if err := b.begin(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.comments[in.ID]
	if !ok {
		return ErrNotFound
	}
	c.IsDeleted = true
	c.DeletedBy = in.DeletedBy
	c.Content = in.Content
	c.OriginalContent = in.OriginalContent
	c.DisplayName = in.DisplayName
	b.comments[c.ID] = c
	return nil
}

func (b *MemoryBackend) HardDeleteComment(ctx context.Context, commentID string) error {
	if err := b.begin(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.comments[commentID]; !ok {
		return ErrNotFound
	}
	delete(b.comments, commentID)
	return nil
}

func (b *MemoryBackend) EditsByComment(ctx context.Context, commentID string) ([]models.CommentEdit, error) {
	if err := b.begin(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var edits []models.CommentEdit
	for _, e := range b.edits {
		if e.CommentID == commentID {
			edits = append(edits, e)
		}
	}
	return edits, nil
}

func voteKey(commentID string, who identity.Identity) string {
	return commentID + "|" + who.Key()
}

func (b *MemoryBackend) VoteFor(ctx context.Context, commentID string, who identity.Identity) (*models.CommentVote, error) {
	if err := b.begin(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.votes[voteKey(commentID, who)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (b *MemoryBackend) applyDeltaLocked(commentID string, voteType, sign int) error {
	c, ok := b.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	if voteType == models.VoteUp {
		c.Upvotes += sign
	} else {
		c.Downvotes += sign
	}
	c.Score = c.Upvotes - c.Downvotes
	b.comments[commentID] = c
	return nil
}

func (b *MemoryBackend) ReplaceVote(ctx context.Context, commentID string, who identity.Identity, voteType int) (Aggregates, error) {
	if err := b.begin(ctx); err != nil {
		return Aggregates{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := voteKey(commentID, who)
	if existing, ok := b.votes[key]; ok {
		delete(b.votes, key)
		if err := b.applyDeltaLocked(commentID, existing.VoteType, -1); err != nil {
			return Aggregates{}, err
		}
	}

	vote := models.CommentVote{ID: uuid.NewString(), CommentID: commentID, VoteType: voteType, CreatedAt: time.Now()}
	if who.IsOwner() {
		userID := who.UserID
		vote.UserID = &userID
	} else {
		sessionID := who.SessionID
		vote.SessionID = &sessionID
	}
	b.votes[key] = vote
	if err := b.applyDeltaLocked(commentID, voteType, 1); err != nil {
		return Aggregates{}, err
	}
	return b.aggregatesLocked(commentID)
}

func (b *MemoryBackend) DeleteVote(ctx context.Context, commentID string, who identity.Identity) (Aggregates, error) {
	if err := b.begin(ctx); err != nil {
		return Aggregates{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := voteKey(commentID, who)
	if existing, ok := b.votes[key]; ok {
		delete(b.votes, key)
		if err := b.applyDeltaLocked(commentID, existing.VoteType, -1); err != nil {
			return Aggregates{}, err
		}
	}
	return b.aggregatesLocked(commentID)
}

func (b *MemoryBackend) aggregatesLocked(commentID string) (Aggregates, error) {
	c, ok := b.comments[commentID]
	if !ok {
		return Aggregates{}, ErrNotFound
	}
	return Aggregates{Upvotes: c.Upvotes, Downvotes: c.Downvotes, Score: c.Score}, nil
}

func (b *MemoryBackend) VoteAggregates(ctx context.Context, commentID string) (Aggregates, error) {
	if err := b.begin(ctx); err != nil {
		return Aggregates{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aggregatesLocked(commentID)
}

func (b *MemoryBackend) AuthorByEmail(ctx context.Context, email string) (models.Author, error) {
	if err := b.begin(ctx); err != nil {
		return models.Author{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.authors[email]
	if !ok {
		return models.Author{}, ErrNotFound
	}
	return a, nil
}

func (b *MemoryBackend) PostBySlug(ctx context.Context, slug string) (models.Post, error) {
	if err := b.begin(ctx); err != nil {
		return models.Post{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.posts[slug]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return p, nil
}

func (b *MemoryBackend) RelatedPosts(ctx context.Context, postID string, categoryID *string, excludeSlug string, limit int) ([]models.Post, error) {
	if err := b.begin(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var posts []models.Post
	for _, p := range b.posts {
		if p.ID == postID || p.Slug == excludeSlug {
			continue
		}
		if categoryID != nil && (p.CategoryID == nil || *p.CategoryID != *categoryID) {
			continue
		}
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].PublishedAt.After(posts[j].PublishedAt) })
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}
