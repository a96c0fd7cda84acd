package main

import (
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"quillside/internal/config"
	"quillside/internal/db"
	"quillside/internal/identity"
	"quillside/internal/logging"
	"quillside/internal/models"
	"quillside/internal/router"
	"quillside/internal/services"
	"quillside/internal/utils"
)

const cacheSize = 4096

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.Init(cfg.LogLevel)
	log := logging.For("main")
	if envErr != nil {
		log.Info().Msg("no .env file found, reading env vars from system")
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("backend setup failed")
	}

	voteCache, err := utils.NewCache(cacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("vote cache setup failed")
	}
	contentCache, err := utils.NewCache(cacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("content cache setup failed")
	}

	auth := identity.NewAuthService(backend)
	content := services.NewContentStore(backend, contentCache)

	gin.SetMode(cfg.GinMode)
	r := gin.Default()

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
	})
	r.Use(sessions.Sessions("quillside_session", store))

	router.RegisterRoutes(r, router.Deps{
		Backend:   backend,
		VoteCache: voteCache,
		Content:   content,
		Auth:      auth,
		Timeout:   cfg.BackendTimeout,
	})

	log.Info().Str("port", cfg.Port).Msg("quillside server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// buildBackend wires the comment backend: Postgres in production,
// in-process when DATABASE_URL=memory (local dev without a database).
func buildBackend(cfg *config.Config) (services.Backend, error) {
	if cfg.DatabaseURL == "memory" {
		backend := services.NewMemoryBackend()
		hash, err := utils.HashPassword(cfg.OwnerPassword)
		if err != nil {
			return nil, err
		}
		backend.SeedAuthor(models.Author{
			ID:           uuid.NewString(),
			Email:        cfg.OwnerEmail,
			PasswordHash: hash,
			DisplayName:  cfg.OwnerName,
			IsOwner:      true,
		})
		backend.SeedPost(models.Post{
			Slug:        "hello-world",
			Title:       "Hello, world",
			Body:        "A sample post for local development.",
			AuthorName:  cfg.OwnerName,
			PublishedAt: time.Now(),
		})
		return backend, nil
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.SeedOwner(gdb, cfg.OwnerEmail, cfg.OwnerPassword, cfg.OwnerName); err != nil {
		return nil, err
	}
	return services.NewGormBackend(gdb), nil
}
