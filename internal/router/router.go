package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"quillside/internal/handlers"
	"quillside/internal/identity"
	"quillside/internal/middleware"
	"quillside/internal/services"
	"quillside/internal/utils"
)

// Deps are the process-wide pieces the routes hang off of. Per-request
// state (identity resolver, thread session) is built inside middleware
// and handlers.
type Deps struct {
	Backend   services.Backend
	VoteCache *utils.Cache
	Content   *services.ContentStore
	Auth      *identity.AuthService
	Timeout   time.Duration
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	// Handlers
	authHandler := handlers.NewAuthHandler(deps.Auth)
	postHandler := handlers.NewPostHandler(deps.Backend, deps.Content)
	commentHandler := handlers.NewCommentHandler(deps.Backend, deps.VoteCache, deps.Content, deps.Timeout)
	voteHandler := handlers.NewVoteHandler(deps.Backend, deps.VoteCache, deps.Timeout)

	r.GET("/api/health", handlers.Health)

	api := r.Group("/api")
	api.Use(middleware.Identity(deps.Auth))
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/auth/me", authHandler.Me)

		api.GET("/posts/:slug", postHandler.GetPost)

		api.GET("/posts/:slug/comments", commentHandler.GetThread)
		api.POST("/posts/:slug/comments", commentHandler.CreateComment)
		api.PUT("/comments/:id", commentHandler.EditComment)
		api.DELETE("/comments/:id", commentHandler.DeleteComment)
		api.GET("/comments/:id/history", commentHandler.History)

		api.GET("/comments/:id/vote", voteHandler.GetVote)
		api.POST("/comments/:id/vote", voteHandler.CastVote)
		api.DELETE("/comments/:id/vote", voteHandler.RemoveVote)
	}
}
