package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"quillside/internal/identity"
	"quillside/internal/logging"
	"quillside/internal/models"
	"quillside/internal/utils"
)

const voteCacheTTL = 10 * time.Minute

// VoteEngine maintains per-comment, per-identity votes with an
// exactly-one-vote invariant. It keeps a local cache of the caller's own
// votes; the backend rows and aggregates stay the system of record.
//
// Unlike the comment store there is no session-refresh retry here: a
// failed vote loses nothing, the user can simply click again.
type VoteEngine struct {
	backend Backend
	cache   *utils.Cache
	log     zerolog.Logger
}

func NewVoteEngine(backend Backend, cache *utils.Cache) *VoteEngine {
	return &VoteEngine{
		backend: backend,
		cache:   cache,
		log:     logging.For("votes"),
	}
}

func voteCacheKey(commentID string, who identity.Identity) string {
	return "vote:" + who.Key() + ":" + commentID
}

// GetVote returns the identity's current vote on the comment: VoteUp,
// VoteDown, or 0 for none. The "no vote" answer is cached too, so repeated
// renders do not hit the backend.
func (e *VoteEngine) GetVote(ctx context.Context, commentID string, who identity.Identity) (int, error) {
	key := voteCacheKey(commentID, who)
	if cached, ok := e.cache.Get(key); ok {
		if vt, ok := cached.(int); ok {
			return vt, nil
		}
	}

	vote, err := e.backend.VoteFor(ctx, commentID, who)
	if err != nil {
		return 0, err
	}
	voteType := 0
	if vote != nil {
		voteType = vote.VoteType
	}
	e.cache.Set(key, voteType, voteCacheTTL)
	return voteType, nil
}

// Vote casts voteType for the identity. Casting the same vote again
// removes it (toggle-off); a different vote replaces the existing row.
// Either way at most one row exists per (comment, identity) afterwards.
func (e *VoteEngine) Vote(ctx context.Context, commentID string, voteType int, who identity.Identity) (Aggregates, error) {
	if voteType != models.VoteUp && voteType != models.VoteDown {
		return Aggregates{}, fmt.Errorf("%w: vote type must be +1 or -1", ErrValidation)
	}

	current, err := e.GetVote(ctx, commentID, who)
	if err != nil {
		return Aggregates{}, err
	}
	if current == voteType {
		return e.RemoveVote(ctx, commentID, who)
	}

	if err := e.backend.SetSessionContext(ctx, who); err != nil {
		return Aggregates{}, err
	}
	agg, err := e.backend.ReplaceVote(ctx, commentID, who, voteType)
	if err != nil {
		// Local cache may no longer match the server row.
		e.cache.Delete(voteCacheKey(commentID, who))
		return Aggregates{}, err
	}
	e.cache.Set(voteCacheKey(commentID, who), voteType, voteCacheTTL)
	e.log.Debug().Str("comment_id", commentID).Int("vote_type", voteType).Msg("vote recorded")
	return agg, nil
}

// RemoveVote deletes the identity's vote row for the comment, if any.
func (e *VoteEngine) RemoveVote(ctx context.Context, commentID string, who identity.Identity) (Aggregates, error) {
	if err := e.backend.SetSessionContext(ctx, who); err != nil {
		return Aggregates{}, err
	}
	agg, err := e.backend.DeleteVote(ctx, commentID, who)
	if err != nil {
		e.cache.Delete(voteCacheKey(commentID, who))
		return Aggregates{}, err
	}
	e.cache.Set(voteCacheKey(commentID, who), 0, voteCacheTTL)
	return agg, nil
}

// Aggregates fetches the comment's current denormalized vote counts.
func (e *VoteEngine) Aggregates(ctx context.Context, commentID string) (Aggregates, error) {
	return e.backend.VoteAggregates(ctx, commentID)
}
