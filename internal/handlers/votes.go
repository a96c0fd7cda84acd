package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"quillside/internal/middleware"
	"quillside/internal/services"
	"quillside/internal/utils"
)

// VoteHandler serves per-comment voting. Votes are optimistic on the
// client; every response carries the server aggregates so the display can
// reconcile, and failure responses carry the last known-good aggregates
// as the revert target.
type VoteHandler struct {
	backend   services.Backend
	voteCache *utils.Cache
	timeout   time.Duration
}

func NewVoteHandler(backend services.Backend, voteCache *utils.Cache, timeout time.Duration) *VoteHandler {
	return &VoteHandler{
		backend:   backend,
		voteCache: voteCache,
		timeout:   timeout,
	}
}

func (h *VoteHandler) session(c *gin.Context, commentID string) (*services.ThreadSession, error) {
	comment, err := h.backend.CommentByID(c.Request.Context(), commentID)
	if err != nil {
		return nil, err
	}
	resolver := middleware.ResolverFrom(c)
	store := services.NewCommentStore(h.backend, resolver)
	engine := services.NewVoteEngine(h.backend, h.voteCache)
	ts := services.NewThreadSession(comment.PostID, store, engine, resolver, h.timeout)
	if err := ts.Init(c.Request.Context(), nil); err != nil {
		return nil, err
	}
	return ts, nil
}

// GetVote reports the caller's current vote on the comment.
func (h *VoteHandler) GetVote(c *gin.Context) {
	ts, err := h.session(c, c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	myVote, err := ts.VoteStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	ok(c, gin.H{"my_vote": myVote})
}

type voteRequest struct {
	VoteType int `json:"vote_type" binding:"required"`
}

// CastVote records an upvote or downvote; casting the same vote again
// toggles it off.
func (h *VoteHandler) CastVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, services.ErrValidation, gin.H{"detail": err.Error()})
		return
	}

	ts, err := h.session(c, c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}

	agg, err := ts.Vote(c.Request.Context(), c.Param("id"), req.VoteType)
	if err != nil {
		fail(c, err, gin.H{"aggregates": agg})
		return
	}
	myVote, _ := ts.VoteStatus(c.Request.Context(), c.Param("id"))
	ok(c, gin.H{"aggregates": agg, "my_vote": myVote})
}

// RemoveVote deletes the caller's vote on the comment.
func (h *VoteHandler) RemoveVote(c *gin.Context) {
	ts, err := h.session(c, c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}

	agg, err := ts.RemoveVote(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, gin.H{"aggregates": agg})
		return
	}
	ok(c, gin.H{"aggregates": agg, "my_vote": 0})
}
