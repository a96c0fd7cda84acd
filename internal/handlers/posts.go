package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"quillside/internal/models"
	"quillside/internal/services"
	"quillside/internal/utils"
)

const relatedPostLimit = 3

type postJSON struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	BodyHTML     string    `json:"body_html,omitempty"`
	AuthorName   string    `json:"author_name"`
	Category     string    `json:"category,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	CommentCount int       `json:"comment_count"`
}

// PostHandler serves the published-post pages the comment threads hang
// off of.
type PostHandler struct {
	backend services.Backend
	content *services.ContentStore
}

func NewPostHandler(backend services.Backend, content *services.ContentStore) *PostHandler {
	return &PostHandler{backend: backend, content: content}
}

func (h *PostHandler) toJSON(p models.Post, withBody bool) postJSON {
	out := postJSON{
		ID:           p.ID,
		Slug:         p.Slug,
		Title:        p.Title,
		AuthorName:   p.AuthorName,
		PublishedAt:  p.PublishedAt,
		CommentCount: p.CommentCount,
	}
	if p.Category != nil {
		out.Category = p.Category.Name
	}
	if withBody {
		out.BodyHTML = string(utils.RenderMarkdown(p.Body))
	}
	return out
}

// GetPost returns one published post with rendered body, comment count
// and a short list of related posts.
func (h *PostHandler) GetPost(c *gin.Context) {
	post, err := h.content.PostBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		fail(c, err, nil)
		return
	}

	// Count straight from the backend; the cached post row would go stale
	// as comments arrive.
	flat, err := h.backend.CommentsByPost(c.Request.Context(), post.ID)
	if err == nil {
		post.CommentCount = len(flat)
	}

	related, err := h.content.RelatedPosts(c.Request.Context(), post.ID, post.CategoryID, post.Slug, relatedPostLimit)
	if err != nil {
		related = nil
	}
	relatedJSON := make([]postJSON, 0, len(related))
	for _, r := range related {
		relatedJSON = append(relatedJSON, h.toJSON(r, false))
	}

	ok(c, gin.H{
		"post":    h.toJSON(post, true),
		"related": relatedJSON,
	})
}
