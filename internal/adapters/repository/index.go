package repository

import "math/rand/v2"

// scoreIndex is a treap ordered by engagement score desc, then item id asc.
// In-order traversal yields the trending list from best to worst.
type scoreIndex struct {
	root *node
}

type node struct {
	id    string
	score float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// before reports whether (aScore, aID) ranks ahead of (bScore, bID).
func before(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func (ix *scoreIndex) len() int { return nsize(ix.root) }

func (ix *scoreIndex) insert(id string, score float64) {
	ix.root = insertNode(ix.root, id, score, rand.Uint64())
}

func (ix *scoreIndex) remove(id string, score float64) {
	ix.root = deleteNode(ix.root, id, score)
}

// move re-keys an item whose score changed.
func (ix *scoreIndex) move(id string, from, to float64) {
	if from == to {
		return
	}
	ix.remove(id, from)
	ix.insert(id, to)
}

// top appends up to limit ids in rank order.
func (ix *scoreIndex) top(limit int) []string {
	out := make([]string, 0, min(limit, ix.len()))
	collectTop(ix.root, limit, &out)
	return out
}

func insertNode(n *node, id string, score float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if before(score, id, n.score, n.id) {
		n.left = insertNode(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insertNode(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case before(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

func collectTop(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	if len(*out) < limit {
		collectTop(n.right, limit, out)
	}
}
