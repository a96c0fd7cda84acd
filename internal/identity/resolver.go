package identity

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quillside/internal/logging"
	"quillside/internal/models"
)

// SessionTTL is the rolling expiry of an anonymous session token; each use
// extends it.
const SessionTTL = 30 * 24 * time.Hour

const (
	anonPrefix = "anon-"
	tempPrefix = "temp-"
)

// TokenStore persists the anonymous session token between requests.
// The HTTP layer backs it with the cookie session; tests use MemoryTokenStore.
type TokenStore interface {
	Load() (token string, expiresAt time.Time, err error)
	Save(token string, expiresAt time.Time) error
	Clear() error
}

// Transition is emitted when the acting identity changes shape.
type Transition struct {
	From Identity
	To   Identity
}

// Resolver determines who is acting: an anonymous session token or the
// authenticated site owner. One resolver exists per request/session scope.
type Resolver struct {
	store TokenStore
	log   zerolog.Logger

	mu           sync.Mutex
	token        string
	loaded       bool
	userID       string
	onTransition []func(Transition)
}

func NewResolver(store TokenStore) *Resolver {
	return &Resolver{
		store: store,
		log:   logging.For("identity"),
	}
}

// OnTransition registers a listener for identity transitions.
func (r *Resolver) OnTransition(fn func(Transition)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTransition = append(r.onTransition, fn)
}

// SessionID returns the active anonymous session token, minting one on
// first use. It never fails: when the token store is unavailable it falls
// open to a throwaway token marked with a "temp-" prefix.
func (r *Resolver) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionIDLocked()
}

func (r *Resolver) sessionIDLocked() string {
	if r.loaded && r.token != "" {
		return r.token
	}

	token, expiresAt, err := r.store.Load()
	if err != nil {
		r.token = tempPrefix + uuid.NewString()
		r.loaded = true
		r.log.Warn().Err(err).Msg("session store unavailable, using throwaway token")
		return r.token
	}

	if token == "" || time.Now().After(expiresAt) {
		token = anonPrefix + uuid.NewString()
		r.log.Debug().Msg("minted new anonymous session token")
	}

	// Rolling expiry: every use extends the window.
	if err := r.store.Save(token, time.Now().Add(SessionTTL)); err != nil {
		r.log.Warn().Err(err).Msg("failed to persist session token")
	}

	r.token = token
	r.loaded = true
	return r.token
}

// RefreshSession discards the current anonymous token and mints a fresh
// one. Used by the store client's one-shot recovery when the backend
// rejects a stale token.
func (r *Resolver) RefreshSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := anonPrefix + uuid.NewString()
	if err := r.store.Save(token, time.Now().Add(SessionTTL)); err != nil {
		r.log.Warn().Err(err).Msg("failed to persist refreshed session token")
	}
	r.token = token
	r.loaded = true
	r.log.Info().Msg("anonymous session token refreshed")
	return token
}

// SetUserID records the authenticated identity; an empty id reverts to
// anonymous. Signing in clears the stored anonymous token, so signing out
// later yields a new token, not the pre-authentication one. That severs
// ownership linkage between the signed-out browser and comments it posted
// anonymously before sign-in.
func (r *Resolver) SetUserID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		from := Anonymous(r.token)
		r.userID = id
		r.token = ""
		r.loaded = false
		if err := r.store.Clear(); err != nil {
			r.log.Warn().Err(err).Msg("failed to clear session token on sign-in")
		}
		r.log.Info().Str("user_id", id).Msg("identity transition: anonymous -> authenticated")
		r.emitLocked(Transition{From: from, To: Owner(id)})
		return
	}

	if r.userID == "" {
		return
	}
	from := Owner(r.userID)
	r.userID = ""
	// Force re-initialization: the next SessionID call mints a new token.
	r.token = ""
	r.loaded = false
	r.log.Info().Msg("identity transition: authenticated -> anonymous")
	r.emitLocked(Transition{From: from, To: Anonymous("")})
}

func (r *Resolver) emitLocked(t Transition) {
	for _, fn := range r.onTransition {
		fn(t)
	}
}

func (r *Resolver) IsAuthenticated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID != ""
}

func (r *Resolver) UserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

// Current resolves the acting identity for one operation.
func (r *Resolver) Current() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userID != "" {
		return Owner(r.userID)
	}
	return Anonymous(r.sessionIDLocked())
}

// CanModifyComment reports whether the current identity may edit or delete
// the comment. The site owner may modify anything; an authenticated
// non-owner nothing; an anonymous identity only comments whose stored
// session token exactly matches its own.
func (r *Resolver) CanModifyComment(c models.Comment, isSiteOwner bool) bool {
	if isSiteOwner {
		return true
	}
	if r.IsAuthenticated() {
		return false
	}
	if c.SessionID == nil || *c.SessionID == "" {
		return false
	}
	return *c.SessionID == r.SessionID()
}

// MemoryTokenStore is an in-process TokenStore for tests and the memory
// backend.
type MemoryTokenStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	// FailLoad makes Load return an error; exercises the fail-open path.
	FailLoad error
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLoad != nil {
		return "", time.Time{}, s.FailLoad
	}
	return s.token, s.expiresAt, nil
}

func (s *MemoryTokenStore) Save(token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = expiresAt
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
	return nil
}
