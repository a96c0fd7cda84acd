package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quillside/internal/identity"
	"quillside/internal/logging"
	"quillside/internal/models"
)

// SessionState is the lifecycle of a thread session.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateReady
)

// DefaultBackendTimeout bounds every backend call a session makes. The
// session-context RPC has been observed to hang silently; without a bound
// the caller would sit in "submitting" forever.
const DefaultBackendTimeout = 6 * time.Second

// ThreadSession orchestrates a single post's comment thread: it resolves
// the acting identity, loads and refreshes the thread, dispatches
// create/edit/delete/vote, and re-sorts after each mutation. Mutations
// always refetch the full thread rather than patch in place; the tree is
// cheap to rebuild from a flat list and partial patching invites
// divergence bugs.
type ThreadSession struct {
	postID   string
	store    *CommentStore
	votes    *VoteEngine
	resolver *identity.Resolver
	timeout  time.Duration
	log      zerolog.Logger

	mu         sync.Mutex
	state      SessionState
	sortMode   SortMode
	flat       []models.Comment
	tree       []*CommentNode
	refreshing bool
}

func NewThreadSession(postID string, store *CommentStore, votes *VoteEngine, resolver *identity.Resolver, timeout time.Duration) *ThreadSession {
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	return &ThreadSession{
		postID:   postID,
		store:    store,
		votes:    votes,
		resolver: resolver,
		timeout:  timeout,
		sortMode: DefaultSortMode,
		log:      logging.For("thread-session"),
	}
}

func (s *ThreadSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ThreadSession) SortMode() SortMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortMode
}

// Init moves the session to Ready. The acting identity is resolved before
// any read so a first read needing authorization context costs no second
// round-trip. A pre-loaded batch (server-rendered) is accepted as the
// starting state; nil forces a fetch.
func (s *ThreadSession) Init(ctx context.Context, preloaded []models.Comment) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.state = StateInitializing
	s.mu.Unlock()

	s.resolver.Current()

	flat := preloaded
	if flat == nil {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var err error
		flat, err = s.store.FetchThread(cctx, s.postID)
		if err != nil {
			s.mu.Lock()
			s.state = StateUninitialized
			s.mu.Unlock()
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flat = flat
	s.rebuildLocked()
	s.state = StateReady
	return nil
}

// rebuildLocked reassembles and re-sorts the tree from the flat batch.
func (s *ThreadSession) rebuildLocked() {
	s.tree = AssembleThread(s.flat)
	SortThread(s.tree, s.sortMode)
}

// Thread returns the assembled, sorted forest.
func (s *ThreadSession) Thread() []*CommentNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Count is the total number of comments at all nesting levels.
func (s *ThreadSession) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CountComments(s.tree)
}

func (s *ThreadSession) requireReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("%w: thread session not initialized", ErrValidation)
	}
	return nil
}

// SetSortMode switches the top-level ordering. Popular refetches, because
// score can change between loads; newest/oldest re-sort in place.
func (s *ThreadSession) SetSortMode(ctx context.Context, mode SortMode) error {
	if err := s.requireReady(); err != nil {
		return err
	}

	s.mu.Lock()
	if mode == s.sortMode {
		s.mu.Unlock()
		return nil
	}
	s.sortMode = mode
	s.mu.Unlock()

	if mode == SortPopular {
		return s.Refresh(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildLocked()
	return nil
}

// Refresh refetches the flat thread and rebuilds the tree. A refresh
// already in flight is authoritative: a concurrent request for the same
// post is ignored, not queued.
func (s *ThreadSession) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil
	}
	s.refreshing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	flat, err := s.store.FetchThread(cctx, s.postID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flat = flat
	s.rebuildLocked()
	return nil
}

// Submit creates a comment or reply, then refetches the whole thread.
func (s *ThreadSession) Submit(ctx context.Context, parentID *string, content, displayName string) (models.Comment, error) {
	if err := s.requireReady(); err != nil {
		return models.Comment{}, err
	}
	who := s.resolver.Current()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	created, err := s.store.Create(cctx, s.postID, parentID, content, displayName, who)
	if err != nil {
		return models.Comment{}, err
	}
	if err := s.Refresh(ctx); err != nil {
		// The write landed; a failed refresh only leaves the view stale.
		s.log.Warn().Err(err).Msg("refresh after submit failed")
	}
	return created, nil
}

// Edit updates a comment's content, then refetches.
func (s *ThreadSession) Edit(ctx context.Context, commentID, content string) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	who := s.resolver.Current()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Edit(cctx, commentID, content, who); err != nil {
		return err
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("refresh after edit failed")
	}
	return nil
}

// Delete removes a comment per the hard/soft rule, then refetches.
func (s *ThreadSession) Delete(ctx context.Context, commentID string) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	who := s.resolver.Current()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Delete(cctx, commentID, who); err != nil {
		return err
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("refresh after delete failed")
	}
	return nil
}

// Vote casts (or toggles off) a vote. On failure the last known-good
// aggregates are returned alongside the error so the caller can revert an
// optimistic display to server truth rather than to zero.
func (s *ThreadSession) Vote(ctx context.Context, commentID string, voteType int) (Aggregates, error) {
	if err := s.requireReady(); err != nil {
		return Aggregates{}, err
	}
	who := s.resolver.Current()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	agg, err := s.votes.Vote(cctx, commentID, voteType, who)
	if err != nil {
		return s.lastAggregates(commentID), err
	}
	s.patchAggregates(commentID, agg)
	return agg, nil
}

// RemoveVote deletes the caller's vote on the comment.
func (s *ThreadSession) RemoveVote(ctx context.Context, commentID string) (Aggregates, error) {
	if err := s.requireReady(); err != nil {
		return Aggregates{}, err
	}
	who := s.resolver.Current()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	agg, err := s.votes.RemoveVote(cctx, commentID, who)
	if err != nil {
		return s.lastAggregates(commentID), err
	}
	s.patchAggregates(commentID, agg)
	return agg, nil
}

// VoteStatus reports the caller's current vote on the comment.
func (s *ThreadSession) VoteStatus(ctx context.Context, commentID string) (int, error) {
	who := s.resolver.Current()
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.votes.GetVote(cctx, commentID, who)
}

// History returns the comment's edit entries.
func (s *ThreadSession) History(ctx context.Context, commentID string) ([]models.CommentEdit, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.History(cctx, commentID)
}

// lastAggregates is the comment's aggregates from the current snapshot,
// the revert target after a failed vote.
func (s *ThreadSession) lastAggregates(commentID string) Aggregates {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.flat {
		if s.flat[i].ID == commentID {
			c := s.flat[i]
			return Aggregates{Upvotes: c.Upvotes, Downvotes: c.Downvotes, Score: c.Score}
		}
	}
	return Aggregates{}
}

// patchAggregates reconciles the local snapshot with server aggregates
// after a settled vote; votes never mutate comment rows beyond counters,
// so a full refetch is not needed here.
func (s *ThreadSession) patchAggregates(commentID string, agg Aggregates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.flat {
		if s.flat[i].ID == commentID {
			s.flat[i].Upvotes = agg.Upvotes
			s.flat[i].Downvotes = agg.Downvotes
			s.flat[i].Score = agg.Score
			break
		}
	}
	s.rebuildLocked()
}
