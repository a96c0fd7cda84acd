package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"quillside/internal/identity"
)

// Context key for the per-request identity resolver.
const ResolverKey = "resolver"

// Cookie-session keys.
const (
	anonTokenKey    = "anon_token"
	anonTokenExpKey = "anon_token_exp"
	ownerIDKey      = "owner_id"
	ownerEmailKey   = "owner_email"
)

// cookieTokenStore backs the identity resolver's TokenStore with the
// request's cookie session, so the anonymous token survives between
// visits from the same browser.
type cookieTokenStore struct {
	c *gin.Context
}

func (s *cookieTokenStore) Load() (string, time.Time, error) {
	sess := sessions.Default(s.c)
	token, _ := sess.Get(anonTokenKey).(string)
	expUnix, _ := sess.Get(anonTokenExpKey).(int64)
	return token, time.Unix(expUnix, 0), nil
}

func (s *cookieTokenStore) Save(token string, expiresAt time.Time) error {
	sess := sessions.Default(s.c)
	sess.Set(anonTokenKey, token)
	sess.Set(anonTokenExpKey, expiresAt.Unix())
	return sess.Save()
}

func (s *cookieTokenStore) Clear() error {
	sess := sessions.Default(s.c)
	sess.Delete(anonTokenKey)
	sess.Delete(anonTokenExpKey)
	return sess.Save()
}

// Identity builds the per-request resolver and restores the owner's
// authenticated state from the cookie session.
func Identity(auth *identity.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolver := identity.NewResolver(&cookieTokenStore{c: c})

		sess := sessions.Default(c)
		if ownerID, ok := sess.Get(ownerIDKey).(string); ok && ownerID != "" {
			email, _ := sess.Get(ownerEmailKey).(string)
			if auth.IsOwner(c.Request.Context(), email) {
				resolver.SetUserID(ownerID)
			} else {
				// Owner row changed or vanished; drop the stale session.
				sess.Delete(ownerIDKey)
				sess.Delete(ownerEmailKey)
				_ = sess.Save()
			}
		}

		c.Set(ResolverKey, resolver)
		c.Next()
	}
}

// ResolverFrom fetches the request's resolver.
func ResolverFrom(c *gin.Context) *identity.Resolver {
	return c.MustGet(ResolverKey).(*identity.Resolver)
}

// SetOwnerSession records a signed-in owner in the cookie session.
func SetOwnerSession(c *gin.Context, user *identity.AuthUser) error {
	sess := sessions.Default(c)
	sess.Set(ownerIDKey, user.ID)
	sess.Set(ownerEmailKey, user.Email)
	return sess.Save()
}

// ClearOwnerSession removes the owner's authenticated state.
func ClearOwnerSession(c *gin.Context) error {
	sess := sessions.Default(c)
	sess.Delete(ownerIDKey)
	sess.Delete(ownerEmailKey)
	return sess.Save()
}

// OwnerRequired aborts requests whose identity is not the authenticated
// owner.
func OwnerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ResolverFrom(c).IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "owner sign-in required"})
			return
		}
		c.Next()
	}
}
