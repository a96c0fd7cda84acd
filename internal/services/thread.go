package services

import (
	"sort"

	"quillside/internal/models"
)

// SortMode orders the top-level comment list. Replies always read
// chronologically regardless of mode.
type SortMode string

const (
	SortNewest  SortMode = "newest"
	SortOldest  SortMode = "oldest"
	SortPopular SortMode = "popular"

	DefaultSortMode = SortNewest
)

func ParseSortMode(s string) (SortMode, bool) {
	switch SortMode(s) {
	case SortNewest, SortOldest, SortPopular:
		return SortMode(s), true
	case "":
		return DefaultSortMode, true
	}
	return DefaultSortMode, false
}

// CommentNode is a comment with its nested replies.
type CommentNode struct {
	Comment models.Comment
	Replies []*CommentNode
}

// TotalReplies counts all descendants at any depth.
func (n *CommentNode) TotalReplies() int {
	total := 0
	for _, r := range n.Replies {
		total += 1 + r.TotalReplies()
	}
	return total
}

// AssembleThread groups a flat comment batch into a reply forest. Pure:
// the input is never mutated. A comment whose ParentID points outside the
// batch is kept as a top-level comment; the assembler never drops a row.
func AssembleThread(flat []models.Comment) []*CommentNode {
	nodes := make(map[string]*CommentNode, len(flat))
	for i := range flat {
		nodes[flat[i].ID] = &CommentNode{Comment: flat[i]}
	}

	var roots []*CommentNode
	for i := range flat {
		node := nodes[flat[i].ID]
		if pid := flat[i].ParentID; pid != nil && *pid != flat[i].ID {
			if parent, ok := nodes[*pid]; ok {
				parent.Replies = append(parent.Replies, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

// SortThread orders the top-level list per mode and every reply list
// ascending by creation time.
func SortThread(tree []*CommentNode, mode SortMode) {
	switch mode {
	case SortOldest:
		sort.SliceStable(tree, func(i, j int) bool {
			return tree[i].Comment.CreatedAt.Before(tree[j].Comment.CreatedAt)
		})
	case SortPopular:
		// Score descending, ties broken by newest first.
		sort.SliceStable(tree, func(i, j int) bool {
			if tree[i].Comment.Score != tree[j].Comment.Score {
				return tree[i].Comment.Score > tree[j].Comment.Score
			}
			return tree[i].Comment.CreatedAt.After(tree[j].Comment.CreatedAt)
		})
	default: // SortNewest
		sort.SliceStable(tree, func(i, j int) bool {
			return tree[i].Comment.CreatedAt.After(tree[j].Comment.CreatedAt)
		})
	}

	for _, node := range tree {
		sortReplies(node)
	}
}

func sortReplies(node *CommentNode) {
	sort.SliceStable(node.Replies, func(i, j int) bool {
		return node.Replies[i].Comment.CreatedAt.Before(node.Replies[j].Comment.CreatedAt)
	})
	for _, r := range node.Replies {
		sortReplies(r)
	}
}

// CountComments counts every node in the forest, all nesting levels
// included. Equals the flat batch length when nothing was filtered.
func CountComments(tree []*CommentNode) int {
	total := 0
	for _, n := range tree {
		total += 1 + n.TotalReplies()
	}
	return total
}
