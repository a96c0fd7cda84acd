package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quillside/internal/models"
)

func strPtr(s string) *string { return &s }

// flatThread builds a small fixed thread:
//
//	a (score 1)
//	├── a1
//	│   └── a1x
//	└── a2
//	b (score 5)
//	c (score 5)
func flatThread(base time.Time) []models.Comment {
	return []models.Comment{
		{ID: "a", Content: "a", CreatedAt: base, Score: 1},
		{ID: "a1", ParentID: strPtr("a"), Content: "a1", CreatedAt: base.Add(3 * time.Minute)},
		{ID: "a2", ParentID: strPtr("a"), Content: "a2", CreatedAt: base.Add(1 * time.Minute)},
		{ID: "a1x", ParentID: strPtr("a1"), Content: "a1x", CreatedAt: base.Add(4 * time.Minute)},
		{ID: "b", Content: "b", CreatedAt: base.Add(2 * time.Minute), Score: 5},
		{ID: "c", Content: "c", CreatedAt: base.Add(5 * time.Minute), Score: 5},
	}
}

func ids(tree []*CommentNode) []string {
	out := make([]string, 0, len(tree))
	for _, n := range tree {
		out = append(out, n.Comment.ID)
	}
	return out
}

func TestAssembleThreadKeepsEveryComment(t *testing.T) {
	flat := flatThread(time.Now())
	tree := AssembleThread(flat)

	assert.Equal(t, len(flat), CountComments(tree))
	require.Len(t, tree, 3)

	a := tree[0]
	require.Equal(t, "a", a.Comment.ID)
	assert.Equal(t, 3, a.TotalReplies())
	require.Len(t, a.Replies, 2)
}

func TestAssembleThreadDanglingParentBecomesRoot(t *testing.T) {
	flat := []models.Comment{
		{ID: "x", Content: "x"},
		{ID: "orphan", ParentID: strPtr("gone"), Content: "orphan"},
	}
	tree := AssembleThread(flat)

	assert.Len(t, tree, 2)
	assert.Equal(t, 2, CountComments(tree))
}

func TestAssembleThreadDoesNotMutateInput(t *testing.T) {
	flat := flatThread(time.Now())
	before := make([]models.Comment, len(flat))
	copy(before, flat)

	tree := AssembleThread(flat)
	SortThread(tree, SortPopular)

	assert.Equal(t, before, flat)
}

func TestSortThreadTopLevelModes(t *testing.T) {
	base := time.Now()

	tree := AssembleThread(flatThread(base))
	SortThread(tree, SortNewest)
	assert.Equal(t, []string{"c", "b", "a"}, ids(tree))

	tree = AssembleThread(flatThread(base))
	SortThread(tree, SortOldest)
	assert.Equal(t, []string{"a", "b", "c"}, ids(tree))

	// Popular: score desc, ties newest-first.
	tree = AssembleThread(flatThread(base))
	SortThread(tree, SortPopular)
	assert.Equal(t, []string{"c", "b", "a"}, ids(tree))
}

func TestSortThreadRepliesAlwaysChronological(t *testing.T) {
	base := time.Now()
	for _, mode := range []SortMode{SortNewest, SortOldest, SortPopular} {
		tree := AssembleThread(flatThread(base))
		SortThread(tree, mode)

		var a *CommentNode
		for _, n := range tree {
			if n.Comment.ID == "a" {
				a = n
			}
		}
		require.NotNil(t, a, "mode %s", mode)
		assert.Equal(t, []string{"a2", "a1"}, ids(a.Replies), "mode %s", mode)
	}
}

func TestParseSortMode(t *testing.T) {
	mode, ok := ParseSortMode("")
	assert.True(t, ok)
	assert.Equal(t, DefaultSortMode, mode)

	mode, ok = ParseSortMode("popular")
	assert.True(t, ok)
	assert.Equal(t, SortPopular, mode)

	_, ok = ParseSortMode("bogus")
	assert.False(t, ok)
}
