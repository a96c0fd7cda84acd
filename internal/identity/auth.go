package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"quillside/internal/logging"
	"quillside/internal/models"
	"quillside/internal/utils"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// AuthorDirectory is the read-only authors lookup the provider needs to
// answer "is this authenticated identity the site owner".
type AuthorDirectory interface {
	AuthorByEmail(ctx context.Context, email string) (models.Author, error)
}

type AuthUser struct {
	ID    string
	Email string
}

// AuthChange is pushed to subscribers on sign-in (User set) and sign-out
// (User nil).
type AuthChange struct {
	User *AuthUser
}

// AuthService is the authentication provider: owner sign-in/sign-out plus
// a change-notification stream the identity resolver subscribes to.
type AuthService struct {
	dir AuthorDirectory
	log zerolog.Logger

	mu      sync.Mutex
	current *AuthUser
	subs    []chan AuthChange
}

func NewAuthService(dir AuthorDirectory) *AuthService {
	return &AuthService{
		dir: dir,
		log: logging.For("auth"),
	}
}

// SignIn validates owner credentials. Only rows flagged IsOwner may sign
// in; the directory lookup failing is indistinguishable from a wrong email
// on purpose.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthUser, error) {
	author, err := s.dir.AuthorByEmail(ctx, email)
	if err != nil {
		s.log.Warn().Str("email", email).Err(err).Msg("sign-in lookup failed")
		return nil, ErrInvalidCredentials
	}
	if !author.IsOwner || !utils.CheckPassword(author.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	user := &AuthUser{ID: author.ID, Email: author.Email}
	s.mu.Lock()
	s.current = user
	s.mu.Unlock()

	s.log.Info().Str("email", email).Msg("owner signed in")
	s.notify(AuthChange{User: user})
	return user, nil
}

func (s *AuthService) SignOut() {
	s.mu.Lock()
	wasSignedIn := s.current != nil
	s.current = nil
	s.mu.Unlock()

	if wasSignedIn {
		s.log.Info().Msg("owner signed out")
		s.notify(AuthChange{})
	}
}

func (s *AuthService) CurrentUser() *AuthUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsOwner answers whether the given email belongs to the site owner.
func (s *AuthService) IsOwner(ctx context.Context, email string) bool {
	if email == "" {
		return false
	}
	author, err := s.dir.AuthorByEmail(ctx, email)
	if err != nil {
		return false
	}
	return author.IsOwner
}

// Subscribe returns a stream of auth changes. Slow subscribers drop
// events rather than block sign-in.
func (s *AuthService) Subscribe() <-chan AuthChange {
	ch := make(chan AuthChange, 8)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *AuthService) notify(change AuthChange) {
	s.mu.Lock()
	subs := make([]chan AuthChange, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- change:
		default:
		}
	}
}
