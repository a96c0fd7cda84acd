package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"quillside/internal/logging"
	"quillside/internal/models"
	"quillside/internal/utils"
)

const postCacheTTL = 5 * time.Minute

// ContentStore is the read-only view over published posts. The comment
// core only consumes a post's ID to scope a thread; the rest serves the
// post pages.
type ContentStore struct {
	backend Backend
	cache   *utils.Cache
	log     zerolog.Logger
}

func NewContentStore(backend Backend, cache *utils.Cache) *ContentStore {
	return &ContentStore{
		backend: backend,
		cache:   cache,
		log:     logging.For("content"),
	}
}

func (s *ContentStore) PostBySlug(ctx context.Context, slug string) (models.Post, error) {
	key := "post:" + slug
	if cached, ok := s.cache.Get(key); ok {
		if post, ok := cached.(models.Post); ok {
			return post, nil
		}
	}

	post, err := s.backend.PostBySlug(ctx, slug)
	if err != nil {
		return models.Post{}, err
	}
	s.cache.Set(key, post, postCacheTTL)
	return post, nil
}

func (s *ContentStore) RelatedPosts(ctx context.Context, postID string, categoryID *string, excludeSlug string, limit int) ([]models.Post, error) {
	key := fmt.Sprintf("related:%s:%d", postID, limit)
	if cached, ok := s.cache.Get(key); ok {
		if posts, ok := cached.([]models.Post); ok {
			return posts, nil
		}
	}

	posts, err := s.backend.RelatedPosts(ctx, postID, categoryID, excludeSlug, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, posts, postCacheTTL)
	return posts, nil
}
