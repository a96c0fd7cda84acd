package handlers

import (
	"github.com/gin-gonic/gin"

	"quillside/internal/identity"
	"quillside/internal/middleware"
	"quillside/internal/services"
)

// AuthHandler serves owner sign-in and sign-out. Anonymous commenters
// never authenticate; the only account is the site owner's.
type AuthHandler struct {
	auth *identity.AuthService
}

func NewAuthHandler(auth *identity.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates the owner and binds the signed-in state to the
// cookie session. The anonymous token is cleared so the pre-auth session
// never bleeds into owner actions.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, services.ErrValidation, gin.H{"detail": err.Error()})
		return
	}

	user, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err, nil)
		return
	}
	if err := middleware.SetOwnerSession(c, user); err != nil {
		fail(c, services.ErrBackendUnavailable, nil)
		return
	}
	middleware.ResolverFrom(c).SetUserID(user.ID)

	ok(c, gin.H{"email": user.Email, "is_owner": true})
}

// Logout drops the owner's authenticated state. The resolver falls back
// to anonymous and mints a fresh session token on next use, so the
// post-sign-out identity never matches the pre-sign-in one.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.auth.SignOut()
	if err := middleware.ClearOwnerSession(c); err != nil {
		fail(c, services.ErrBackendUnavailable, nil)
		return
	}
	middleware.ResolverFrom(c).SetUserID("")

	ok(c, gin.H{"is_owner": false})
}

// Me reports the caller's identity as the client sees it.
func (h *AuthHandler) Me(c *gin.Context) {
	resolver := middleware.ResolverFrom(c)
	who := resolver.Current()
	payload := gin.H{"is_owner": who.Kind == identity.KindOwner}
	if who.Kind == identity.KindOwner {
		if user := h.auth.CurrentUser(); user != nil {
			payload["email"] = user.Email
		}
	}
	ok(c, payload)
}
