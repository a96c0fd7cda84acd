package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quillside/internal/identity"
	"quillside/internal/models"
	"quillside/internal/router"
	"quillside/internal/services"
	"quillside/internal/utils"
)

type commentPayload struct {
	ID          string           `json:"id"`
	Content     string           `json:"content"`
	ContentHTML string           `json:"content_html"`
	DisplayName string           `json:"display_name"`
	IsAuthor    bool             `json:"is_author"`
	IsDeleted   bool             `json:"is_deleted"`
	Score       int              `json:"score"`
	MyVote      int              `json:"my_vote"`
	CanModify   bool             `json:"can_modify"`
	Replies     []commentPayload `json:"replies"`
}

type threadPayload struct {
	Comments  []commentPayload `json:"comments"`
	Total     int              `json:"total"`
	Sort      string           `json:"sort"`
	CreatedID string           `json:"created_id"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := services.NewMemoryBackend()
	hash, err := utils.HashPassword("hunter2")
	require.NoError(t, err)
	backend.SeedAuthor(models.Author{Email: "owner@example.com", PasswordHash: hash, DisplayName: "Quill", IsOwner: true})
	backend.SeedPost(models.Post{Slug: "first-post", Title: "First", Body: "Hello.", PublishedAt: time.Now()})

	voteCache, err := utils.NewCache(64)
	require.NoError(t, err)
	contentCache, err := utils.NewCache(64)
	require.NoError(t, err)

	r := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	// Same options as cmd/server/main.go; without them the store's default
	// Secure flag stops the cookie jar sending the session over plain HTTP.
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
	})
	r.Use(sessions.Sessions("quillside_session", store))
	router.RegisterRoutes(r, router.Deps{
		Backend:   backend,
		VoteCache: voteCache,
		Content:   services.NewContentStore(backend, contentCache),
		Auth:      identity.NewAuthService(backend),
		Timeout:   time.Second,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// newClient is a browser stand-in: the cookie jar carries the anonymous
// session token between requests.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body interface{}) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp.StatusCode, parsed
}

func getThread(t *testing.T, client *http.Client, base, slug string) threadPayload {
	t.Helper()
	status, resp := doJSON(t, client, http.MethodGet, base+"/api/posts/"+slug+"/comments", nil)
	require.Equal(t, http.StatusOK, status)
	var thread threadPayload
	require.NoError(t, json.Unmarshal(resp.Data, &thread))
	return thread
}

func TestCommentLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)

	thread := getThread(t, alice, srv.URL, "first-post")
	assert.Equal(t, 0, thread.Total)
	assert.Equal(t, "newest", thread.Sort)

	status, resp := doJSON(t, alice, http.MethodPost, srv.URL+"/api/posts/first-post/comments",
		gin.H{"content": "**hello** thread", "display_name": "Alice"})
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)

	var created threadPayload
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.Len(t, created.Comments, 1)
	first := created.Comments[0]
	assert.Equal(t, created.CreatedID, first.ID)
	assert.Equal(t, "Alice", first.DisplayName)
	assert.Contains(t, first.ContentHTML, "<strong>hello</strong>")
	assert.True(t, first.CanModify, "author session can modify its own comment")

	// A different browser may read but not modify.
	bob := newClient(t)
	thread = getThread(t, bob, srv.URL, "first-post")
	require.Len(t, thread.Comments, 1)
	assert.False(t, thread.Comments[0].CanModify)

	status, _ = doJSON(t, bob, http.MethodPut, srv.URL+"/api/comments/"+first.ID, gin.H{"content": "hijacked"})
	assert.Equal(t, http.StatusForbidden, status)

	// The owning session edits, then deletes.
	status, _ = doJSON(t, alice, http.MethodPut, srv.URL+"/api/comments/"+first.ID, gin.H{"content": "edited"})
	require.Equal(t, http.StatusOK, status)

	status, resp = doJSON(t, alice, http.MethodGet, srv.URL+"/api/comments/"+first.ID+"/history", nil)
	require.Equal(t, http.StatusOK, status)
	var history struct {
		Edits []models.CommentEdit `json:"edits"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	require.Len(t, history.Edits, 1)
	assert.Equal(t, "**hello** thread", history.Edits[0].PreviousContent)

	// Top-level and childless: the delete is hard.
	status, _ = doJSON(t, alice, http.MethodDelete, srv.URL+"/api/comments/"+first.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, getThread(t, alice, srv.URL, "first-post").Total)
}

func TestCreateCommentValidation(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)

	status, resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/posts/first-post/comments", gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)

	status, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/posts/no-such-post/comments", gin.H{"content": "hello"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestVoteOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)

	status, resp := doJSON(t, alice, http.MethodPost, srv.URL+"/api/posts/first-post/comments", gin.H{"content": "vote on me"})
	require.Equal(t, http.StatusOK, status)
	var created threadPayload
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	commentID := created.CreatedID

	voteURL := srv.URL + "/api/comments/" + commentID + "/vote"

	var vote struct {
		Aggregates services.Aggregates `json:"aggregates"`
		MyVote     int                 `json:"my_vote"`
	}

	status, resp = doJSON(t, alice, http.MethodPost, voteURL, gin.H{"vote_type": 1})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &vote))
	assert.Equal(t, services.Aggregates{Upvotes: 1, Score: 1}, vote.Aggregates)
	assert.Equal(t, 1, vote.MyVote)

	// Another browser is a separate identity.
	bob := newClient(t)
	status, resp = doJSON(t, bob, http.MethodPost, voteURL, gin.H{"vote_type": -1})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &vote))
	assert.Equal(t, services.Aggregates{Upvotes: 1, Downvotes: 1, Score: 0}, vote.Aggregates)

	// Same vote again toggles off.
	status, resp = doJSON(t, bob, http.MethodPost, voteURL, gin.H{"vote_type": -1})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &vote))
	assert.Equal(t, services.Aggregates{Upvotes: 1, Score: 1}, vote.Aggregates)
	assert.Equal(t, 0, vote.MyVote)

	status, resp = doJSON(t, alice, http.MethodGet, voteURL, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &vote))
	assert.Equal(t, 1, vote.MyVote)
}

func TestOwnerFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	owner := newClient(t)

	status, _ := doJSON(t, owner, http.MethodPost, srv.URL+"/api/auth/login",
		gin.H{"email": "owner@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, owner, http.MethodPost, srv.URL+"/api/auth/login",
		gin.H{"email": "owner@example.com", "password": "hunter2"})
	require.Equal(t, http.StatusOK, status)

	status, resp := doJSON(t, owner, http.MethodGet, srv.URL+"/api/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	var me struct {
		IsOwner bool   `json:"is_owner"`
		Email   string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.True(t, me.IsOwner)

	status, resp = doJSON(t, owner, http.MethodPost, srv.URL+"/api/posts/first-post/comments",
		gin.H{"content": "thanks for reading", "display_name": "ignored"})
	require.Equal(t, http.StatusOK, status)
	var created threadPayload
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.Len(t, created.Comments, 1)
	assert.True(t, created.Comments[0].IsAuthor)
	assert.Equal(t, "Author", created.Comments[0].DisplayName)

	status, _ = doJSON(t, owner, http.MethodPost, srv.URL+"/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)

	status, resp = doJSON(t, owner, http.MethodGet, srv.URL+"/api/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.False(t, me.IsOwner)
}

func TestGetPostOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)

	status, resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/posts/first-post", nil)
	require.Equal(t, http.StatusOK, status)
	var payload struct {
		Post struct {
			Slug         string `json:"slug"`
			BodyHTML     string `json:"body_html"`
			CommentCount int    `json:"comment_count"`
		} `json:"post"`
		Related []json.RawMessage `json:"related"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &payload))
	assert.Equal(t, "first-post", payload.Post.Slug)
	assert.NotEmpty(t, payload.Post.BodyHTML)
	assert.Empty(t, payload.Related)

	status, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/posts/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSortQueryOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)

	for i := 0; i < 3; i++ {
		status, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/posts/first-post/comments",
			gin.H{"content": fmt.Sprintf("comment %d", i)})
		require.Equal(t, http.StatusOK, status)
	}

	status, resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/posts/first-post/comments?sort=oldest", nil)
	require.Equal(t, http.StatusOK, status)
	var thread threadPayload
	require.NoError(t, json.Unmarshal(resp.Data, &thread))
	assert.Equal(t, "oldest", thread.Sort)
	require.Len(t, thread.Comments, 3)
	assert.Equal(t, "comment 0", thread.Comments[0].Content)

	status, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/posts/first-post/comments?sort=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
