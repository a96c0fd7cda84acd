package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quillside/internal/identity"
	"quillside/internal/models"
	"quillside/internal/utils"
)

func newVoteFixture(t *testing.T) (*VoteEngine, *MemoryBackend, models.Comment) {
	t.Helper()
	backend := NewMemoryBackend()
	post := backend.SeedPost(models.Post{Slug: "voted-post", PublishedAt: time.Now()})

	comment := models.Comment{PostID: post.ID, Content: "vote on me"}
	require.NoError(t, backend.InsertComment(context.Background(), &comment))

	cache, err := utils.NewCache(64)
	require.NoError(t, err)
	return NewVoteEngine(backend, cache), backend, comment
}

func TestVoteRejectsInvalidType(t *testing.T) {
	engine, _, comment := newVoteFixture(t)

	_, err := engine.Vote(context.Background(), comment.ID, 2, identity.Anonymous("anon-s1"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVoteUpThenToggleOff(t *testing.T) {
	engine, _, comment := newVoteFixture(t)
	ctx := context.Background()
	who := identity.Anonymous("anon-s1")

	agg, err := engine.Vote(ctx, comment.ID, models.VoteUp, who)
	require.NoError(t, err)
	assert.Equal(t, Aggregates{Upvotes: 1, Downvotes: 0, Score: 1}, agg)

	vt, err := engine.GetVote(ctx, comment.ID, who)
	require.NoError(t, err)
	assert.Equal(t, models.VoteUp, vt)

	// Same vote again removes it.
	agg, err = engine.Vote(ctx, comment.ID, models.VoteUp, who)
	require.NoError(t, err)
	assert.Equal(t, Aggregates{}, agg)

	vt, err = engine.GetVote(ctx, comment.ID, who)
	require.NoError(t, err)
	assert.Equal(t, 0, vt)
}

func TestVoteSwitchReplacesExistingRow(t *testing.T) {
	engine, _, comment := newVoteFixture(t)
	ctx := context.Background()
	who := identity.Anonymous("anon-s1")

	_, err := engine.Vote(ctx, comment.ID, models.VoteUp, who)
	require.NoError(t, err)

	agg, err := engine.Vote(ctx, comment.ID, models.VoteDown, who)
	require.NoError(t, err)
	assert.Equal(t, Aggregates{Upvotes: 0, Downvotes: 1, Score: -1}, agg)
}

func TestVoteOnePerIdentity(t *testing.T) {
	engine, _, comment := newVoteFixture(t)
	ctx := context.Background()

	_, err := engine.Vote(ctx, comment.ID, models.VoteUp, identity.Anonymous("anon-s1"))
	require.NoError(t, err)
	_, err = engine.Vote(ctx, comment.ID, models.VoteUp, identity.Anonymous("anon-s2"))
	require.NoError(t, err)
	agg, err := engine.Vote(ctx, comment.ID, models.VoteUp, identity.Owner("owner-1"))
	require.NoError(t, err)

	assert.Equal(t, Aggregates{Upvotes: 3, Downvotes: 0, Score: 3}, agg)

	// Repeated casts by one identity never inflate the count.
	agg, err = engine.Vote(ctx, comment.ID, models.VoteDown, identity.Anonymous("anon-s1"))
	require.NoError(t, err)
	assert.Equal(t, Aggregates{Upvotes: 2, Downvotes: 1, Score: 1}, agg)
}

func TestGetVoteServedFromCache(t *testing.T) {
	engine, backend, comment := newVoteFixture(t)
	ctx := context.Background()
	who := identity.Anonymous("anon-s1")

	_, err := engine.Vote(ctx, comment.ID, models.VoteUp, who)
	require.NoError(t, err)

	// A backend failure is invisible while the answer is cached.
	backend.NextOpErr = ErrBackendUnavailable
	vt, err := engine.GetVote(ctx, comment.ID, who)
	require.NoError(t, err)
	assert.Equal(t, models.VoteUp, vt)

	// The injected failure is still pending for the next uncached call.
	_, err = engine.GetVote(ctx, comment.ID, identity.Anonymous("anon-other"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestGetVoteCachesTheNoVoteAnswer(t *testing.T) {
	engine, backend, comment := newVoteFixture(t)
	ctx := context.Background()
	who := identity.Anonymous("anon-s1")

	vt, err := engine.GetVote(ctx, comment.ID, who)
	require.NoError(t, err)
	assert.Equal(t, 0, vt)

	backend.NextOpErr = ErrBackendUnavailable
	vt, err = engine.GetVote(ctx, comment.ID, who)
	require.NoError(t, err)
	assert.Equal(t, 0, vt)
}
