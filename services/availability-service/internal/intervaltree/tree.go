package intervaltree

import (
	"errors"
	"fmt"
)

// ErrInvalidInterval is returned when an interval ends before it starts.
var ErrInvalidInterval = errors.New("interval ends before it starts")

// Endpoint is any ordered numeric type usable as an interval bound.
type Endpoint interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Interval is a closed range [Start, End].
type Interval[T Endpoint] struct {
	Start T
	End   T
}

// Overlaps reports whether iv intersects [start, end]. Touching endpoints count.
func (iv Interval[T]) Overlaps(start, end T) bool {
	return iv.Start <= end && start <= iv.End
}

const null int32 = -1

type node[T Endpoint] struct {
	ivl Interval[T]
	// max is the largest End in the subtree rooted here.
	max         T
	left, right int32
	height      int32
}

// Tree is an AVL-balanced interval tree ordered by Start and augmented with the
// maximum End of every subtree. Nodes live in a single arena and reference each
// other by index. Equal starts keep insertion order.
//
// A Tree is safe for concurrent readers once no more inserts happen.
type Tree[T Endpoint] struct {
	nodes []node[T]
	root  int32
}

// New returns an empty tree with room for capacity intervals.
func New[T Endpoint](capacity int) *Tree[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Tree[T]{nodes: make([]node[T], 0, capacity), root: null}
}

// Build inserts every interval in order. It stops at the first malformed
// interval and reports its position.
func Build[T Endpoint](intervals []Interval[T]) (*Tree[T], error) {
	t := New[T](len(intervals))
	for i, iv := range intervals {
		if err := t.Insert(iv.Start, iv.End); err != nil {
			return nil, fmt.Errorf("interval %d: %w", i, err)
		}
	}
	return t, nil
}

// Len returns the number of stored intervals.
func (t *Tree[T]) Len() int {
	return len(t.nodes)
}

// Height returns the number of levels; an empty tree has height 0.
func (t *Tree[T]) Height() int {
	return int(t.height(t.root))
}

// Insert adds [start, end] to the tree.
func (t *Tree[T]) Insert(start, end T) error {
	if end < start {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidInterval, start, end)
	}
	t.nodes = append(t.nodes, node[T]{
		ivl:    Interval[T]{Start: start, End: end},
		max:    end,
		left:   null,
		right:  null,
		height: 1,
	})
	t.root = t.insert(t.root, int32(len(t.nodes)-1))
	return nil
}

func (t *Tree[T]) insert(at, n int32) int32 {
	if at == null {
		return n
	}
	if t.nodes[n].ivl.Start < t.nodes[at].ivl.Start {
		t.nodes[at].left = t.insert(t.nodes[at].left, n)
	} else {
		t.nodes[at].right = t.insert(t.nodes[at].right, n)
	}
	t.update(at)
	return t.rebalance(at)
}

// Search returns every stored interval overlapping [start, end], in ascending
// order of Start. Touching endpoints count as overlapping.
func (t *Tree[T]) Search(start, end T) []Interval[T] {
	var out []Interval[T]
	t.visit(t.root, start, end, func(iv Interval[T]) bool {
		out = append(out, iv)
		return true
	})
	return out
}

// Overlaps reports whether any stored interval overlaps [start, end].
func (t *Tree[T]) Overlaps(start, end T) bool {
	found := false
	t.visit(t.root, start, end, func(Interval[T]) bool {
		found = true
		return false
	})
	return found
}

// visit walks the overlapping nodes in order. It returns false once fn asks to stop.
func (t *Tree[T]) visit(at int32, start, end T, fn func(Interval[T]) bool) bool {
	if at == null {
		return true
	}
	n := &t.nodes[at]
	if n.max < start {
		return true
	}
	if n.left != null && t.nodes[n.left].max >= start {
		if !t.visit(n.left, start, end, fn) {
			return false
		}
	}
	if n.ivl.Overlaps(start, end) && !fn(n.ivl) {
		return false
	}
	// Everything to the right starts at or after n.
	if n.ivl.Start > end {
		return true
	}
	return t.visit(n.right, start, end, fn)
}

func (t *Tree[T]) height(at int32) int32 {
	if at == null {
		return 0
	}
	return t.nodes[at].height
}

func (t *Tree[T]) balance(at int32) int32 {
	if at == null {
		return 0
	}
	return t.height(t.nodes[at].left) - t.height(t.nodes[at].right)
}

// update recomputes height and max from the children.
func (t *Tree[T]) update(at int32) {
	n := &t.nodes[at]
	n.height = max(t.height(n.left), t.height(n.right)) + 1
	n.max = n.ivl.End
	if n.left != null && t.nodes[n.left].max > n.max {
		n.max = t.nodes[n.left].max
	}
	if n.right != null && t.nodes[n.right].max > n.max {
		n.max = t.nodes[n.right].max
	}
}

func (t *Tree[T]) rebalance(at int32) int32 {
	switch bf := t.balance(at); {
	case bf > 1:
		if t.balance(t.nodes[at].left) < 0 {
			t.nodes[at].left = t.rotateLeft(t.nodes[at].left)
		}
		return t.rotateRight(at)
	case bf < -1:
		if t.balance(t.nodes[at].right) > 0 {
			t.nodes[at].right = t.rotateRight(t.nodes[at].right)
		}
		return t.rotateLeft(at)
	}
	return at
}

func (t *Tree[T]) rotateRight(y int32) int32 {
	x := t.nodes[y].left
	t.nodes[y].left = t.nodes[x].right
	t.nodes[x].right = y
	t.update(y)
	t.update(x)
	return x
}

func (t *Tree[T]) rotateLeft(x int32) int32 {
	y := t.nodes[x].right
	t.nodes[x].right = t.nodes[y].left
	t.nodes[y].left = x
	t.update(x)
	t.update(y)
	return y
}
