package memory

import "math/rand/v2"

// board is a treap ordered by rating DESC, then entity id ASC, so that an
// in-order walk yields the leaderboard from best to worst. Subtree sizes make
// rank and offset lookups O(log n) expected.
type board struct {
	root *node
}

type node struct {
	id     string
	rating float64
	prio   uint64
	left   *node
	right  *node
	size   int
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

// before reports whether (aRating, aID) ranks ahead of (bRating, bID).
func before(aRating float64, aID string, bRating float64, bID string) bool {
	if aRating != bRating {
		return aRating > bRating
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

func insert(n *node, id string, rating float64) *node {
	if n == nil {
		return &node{id: id, rating: rating, prio: rand.Uint64(), size: 1}
	}
	if before(rating, id, n.rating, n.id) {
		n.left = insert(n.left, id, rating)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, rating)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, rating float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.id == id && n.rating == rating:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, rating)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, rating)
		}
	case before(rating, id, n.rating, n.id):
		n.left = remove(n.left, id, rating)
	default:
		n.right = remove(n.right, id, rating)
	}
	fix(n)
	return n
}

// move relocates id from its old rating to a new one. hadOld is false for a
// first insertion.
func (b *board) move(id string, old float64, hadOld bool, rating float64) {
	if hadOld {
		b.root = remove(b.root, id, old)
	}
	b.root = insert(b.root, id, rating)
}

// rank returns the 1-based position of (id, rating).
func (b *board) rank(id string, rating float64) int {
	ahead := 0
	n := b.root
	for n != nil {
		switch {
		case n.id == id && n.rating == rating:
			return ahead + nsize(n.left) + 1
		case before(rating, id, n.rating, n.id):
			n = n.left
		default:
			ahead += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// page appends up to limit ids starting at offset, in rank order.
func (b *board) page(offset, limit int) []string {
	out := make([]string, 0, limit)
	collect(b.root, &offset, limit, &out)
	return out
}

func collect(n *node, skip *int, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	if *skip >= nsize(n) {
		*skip -= nsize(n)
		return
	}
	collect(n.left, skip, limit, out)
	if len(*out) >= limit {
		return
	}
	if *skip > 0 {
		*skip--
	} else {
		*out = append(*out, n.id)
	}
	collect(n.right, skip, limit, out)
}

func (b *board) len() int { return nsize(b.root) }
