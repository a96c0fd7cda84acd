package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"quillside/internal/identity"
	"quillside/internal/middleware"
	"quillside/internal/models"
	"quillside/internal/services"
	"quillside/internal/utils"
)

// Fixed label shown for owner comments; anonymous commenters choose their
// own nickname.
const authorLabel = "Author"

type commentJSON struct {
	ID          string        `json:"id"`
	ParentID    *string       `json:"parent_id,omitempty"`
	Content     string        `json:"content"`
	ContentHTML string        `json:"content_html"`
	DisplayName string        `json:"display_name"`
	IsAuthor    bool          `json:"is_author"`
	IsDeleted   bool          `json:"is_deleted"`
	DeletedBy   string        `json:"deleted_by,omitempty"`
	Edited      bool          `json:"edited"`
	Upvotes     int           `json:"upvotes"`
	Downvotes   int           `json:"downvotes"`
	Score       int           `json:"score"`
	MyVote      int           `json:"my_vote"`
	CanModify   bool          `json:"can_modify"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Replies     []commentJSON `json:"replies"`
}

// CommentHandler serves the threaded comment API. The stateful pieces
// (backend, vote cache, content store) live for the whole process; the
// resolver, store client, vote engine and thread session are built per
// request around the caller's cookie identity.
type CommentHandler struct {
	backend   services.Backend
	voteCache *utils.Cache
	content   *services.ContentStore
	timeout   time.Duration
}

func NewCommentHandler(backend services.Backend, voteCache *utils.Cache, content *services.ContentStore, timeout time.Duration) *CommentHandler {
	return &CommentHandler{
		backend:   backend,
		voteCache: voteCache,
		content:   content,
		timeout:   timeout,
	}
}

func (h *CommentHandler) session(c *gin.Context, postID string) (*services.ThreadSession, *identity.Resolver) {
	resolver := middleware.ResolverFrom(c)
	store := services.NewCommentStore(h.backend, resolver)
	engine := services.NewVoteEngine(h.backend, h.voteCache)
	return services.NewThreadSession(postID, store, engine, resolver, h.timeout), resolver
}

// sessionForComment resolves a comment id to its post's thread session.
func (h *CommentHandler) sessionForComment(c *gin.Context, commentID string) (*services.ThreadSession, *identity.Resolver, error) {
	comment, err := h.backend.CommentByID(c.Request.Context(), commentID)
	if err != nil {
		return nil, nil, err
	}
	ts, resolver := h.session(c, comment.PostID)
	return ts, resolver, nil
}

func (h *CommentHandler) toJSON(ctx context.Context, ts *services.ThreadSession, resolver *identity.Resolver, node *services.CommentNode) commentJSON {
	cm := node.Comment

	displayName := authorLabel
	if !cm.AuthorFlag {
		displayName = ""
		if cm.DisplayName != nil {
			displayName = *cm.DisplayName
		}
	}

	myVote, err := ts.VoteStatus(ctx, cm.ID)
	if err != nil {
		myVote = 0
	}

	out := commentJSON{
		ID:          cm.ID,
		ParentID:    cm.ParentID,
		Content:     cm.Content,
		ContentHTML: string(utils.RenderMarkdown(cm.Content)),
		DisplayName: displayName,
		IsAuthor:    cm.AuthorFlag,
		IsDeleted:   cm.IsDeleted,
		DeletedBy:   cm.DeletedBy,
		Edited:      cm.Edited(),
		Upvotes:     cm.Upvotes,
		Downvotes:   cm.Downvotes,
		Score:       cm.Score,
		MyVote:      myVote,
		CanModify:   resolver.CanModifyComment(cm, resolver.IsAuthenticated()),
		CreatedAt:   cm.CreatedAt,
		UpdatedAt:   cm.UpdatedAt,
		Replies:     make([]commentJSON, 0, len(node.Replies)),
	}
	for _, r := range node.Replies {
		out.Replies = append(out.Replies, h.toJSON(ctx, ts, resolver, r))
	}
	return out
}

func (h *CommentHandler) threadPayload(c *gin.Context, ts *services.ThreadSession, resolver *identity.Resolver) gin.H {
	tree := ts.Thread()
	comments := make([]commentJSON, 0, len(tree))
	for _, n := range tree {
		comments = append(comments, h.toJSON(c.Request.Context(), ts, resolver, n))
	}
	return gin.H{
		"comments": comments,
		"total":    ts.Count(),
		"sort":     ts.SortMode(),
	}
}

// GetThread returns a post's assembled comment tree.
func (h *CommentHandler) GetThread(c *gin.Context) {
	post, err := h.content.PostBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		fail(c, err, nil)
		return
	}

	mode, valid := services.ParseSortMode(c.Query("sort"))
	if !valid {
		fail(c, services.ErrValidation, gin.H{"detail": "unknown sort mode"})
		return
	}

	ts, resolver := h.session(c, post.ID)
	if err := ts.Init(c.Request.Context(), nil); err != nil {
		fail(c, err, nil)
		return
	}
	if mode != services.DefaultSortMode {
		if err := ts.SetSortMode(c.Request.Context(), mode); err != nil {
			fail(c, err, nil)
			return
		}
	}

	ok(c, h.threadPayload(c, ts, resolver))
}

type createCommentRequest struct {
	Content     string  `json:"content" binding:"required"`
	ParentID    *string `json:"parent_id"`
	DisplayName string  `json:"display_name"`
}

// CreateComment submits a top-level comment or a reply.
func (h *CommentHandler) CreateComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, services.ErrValidation, gin.H{"detail": err.Error()})
		return
	}

	post, err := h.content.PostBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		fail(c, err, gin.H{"content": req.Content})
		return
	}

	ts, resolver := h.session(c, post.ID)
	if err := ts.Init(c.Request.Context(), nil); err != nil {
		fail(c, err, gin.H{"content": req.Content})
		return
	}

	created, err := ts.Submit(c.Request.Context(), req.ParentID, req.Content, req.DisplayName)
	if err != nil {
		// The submitted content rides along so the form can restore it.
		fail(c, err, gin.H{"content": req.Content})
		return
	}

	payload := h.threadPayload(c, ts, resolver)
	payload["created_id"] = created.ID
	ok(c, payload)
}

type editCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// EditComment rewrites a comment's content, capturing edit history.
func (h *CommentHandler) EditComment(c *gin.Context) {
	var req editCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, services.ErrValidation, gin.H{"detail": err.Error()})
		return
	}

	ts, resolver, err := h.sessionForComment(c, c.Param("id"))
	if err != nil {
		fail(c, err, gin.H{"content": req.Content})
		return
	}
	if err := ts.Init(c.Request.Context(), nil); err != nil {
		fail(c, err, gin.H{"content": req.Content})
		return
	}
	if err := ts.Edit(c.Request.Context(), c.Param("id"), req.Content); err != nil {
		fail(c, err, gin.H{"content": req.Content})
		return
	}

	ok(c, h.threadPayload(c, ts, resolver))
}

// DeleteComment removes a comment: hard when top-level and childless,
// soft otherwise.
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	ts, resolver, err := h.sessionForComment(c, c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	if err := ts.Init(c.Request.Context(), nil); err != nil {
		fail(c, err, nil)
		return
	}
	if err := ts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err, nil)
		return
	}

	ok(c, h.threadPayload(c, ts, resolver))
}

// History lists a comment's append-only edit entries, oldest first.
func (h *CommentHandler) History(c *gin.Context) {
	ts, _, err := h.sessionForComment(c, c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	edits, err := ts.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	if edits == nil {
		edits = []models.CommentEdit{}
	}
	ok(c, gin.H{"edits": edits})
}
