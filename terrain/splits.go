package terrain

// Tree is the set of quadtree nodes currently split into four children,
// keyed by flat NodeIndex (this design: "conceptual complete 4-ary tree
// the CPU never materializes" — only the split bits are stored).
type Tree struct {
	maxDepth int
	split    map[int]bool
}

// NewTree returns an all-unsplit tree (a single root leaf) of the given
// maximum depth.
func NewTree(maxDepth int) *Tree {
	return &Tree{maxDepth: maxDepth, split: make(map[int]bool)}
}

func (t *Tree) isSplit(level, x, y int) bool { return t.split[NodeIndex(level, x, y)] }

func (t *Tree) setSplit(level, x, y int) { t.split[NodeIndex(level, x, y)] = true }

// leafLevel walks down from the root projecting (x, y) at level into each
// coarser level's local coordinate, returning the level of the leaf node
// that currently covers (level, x, y).
func (t *Tree) leafLevel(level, x, y int) int {
	for l := 0; l < level; l++ {
		shift := uint(level - l)
		lx, ly := x>>shift, y>>shift
		if !t.isSplit(l, lx, ly) {
			return l
		}
	}
	return level
}

// ErrorFunc reports a node's screen-space geometric error (this
// "screen_error" computed from the height-range pyramid and camera).
type ErrorFunc func(level, x, y int) float32

// MarkSplits runs the first MarkSplits compute pass:
// top-down, a node splits into four children when its screen-space error
// exceeds threshold and it has not yet reached maxDepth. The result is
// then balanced so that no two nodes sharing an edge differ by more than
// one depth level (this design "restricted quadtree" invariant, enforced
// here the way quadtree/octree neighbor-balancing is classically done:
// iterate forcing additional splits at coarse neighbors until no
// violation remains).
func MarkSplits(maxDepth int, errorAt ErrorFunc, threshold float32) *Tree {
	t := NewTree(maxDepth)
	var recurse func(level, x, y int)
	recurse = func(level, x, y int) {
		if level >= maxDepth {
			return
		}
		if errorAt(level, x, y) <= threshold {
			return
		}
		t.setSplit(level, x, y)
		for _, c := range children(x, y) {
			recurse(level+1, c[0], c[1])
		}
	}
	recurse(0, 0, 0)
	t.balance()
	return t
}

func children(x, y int) [4][2]int {
	return [4][2]int{{2 * x, 2 * y}, {2*x + 1, 2 * y}, {2 * x, 2*y + 1}, {2*x + 1, 2*y + 1}}
}

// balance forces additional splits until every pair of cardinally
// adjacent leaves differs by at most one depth level.
func (t *Tree) balance() {
	for {
		changed := false
		for level := t.maxDepth; level >= 1; level-- {
			side := SideLength(level)
			for y := 0; y < side; y++ {
				for x := 0; x < side; x++ {
					if t.leafLevel(level, x, y) != level {
						continue // not a leaf at this level
					}
					for _, n := range cardinalNeighbors(x, y, side) {
						neighborLeaf := t.leafLevel(level, n[0], n[1])
						if neighborLeaf < level-1 {
							shift := uint(level - neighborLeaf)
							t.forceSplitDownTo(neighborLeaf, level-1, n[0]>>shift, n[1]>>shift)
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			return
		}
	}
}

func cardinalNeighbors(x, y, side int) [][2]int {
	var out [][2]int
	if x > 0 {
		out = append(out, [2]int{x - 1, y})
	}
	if x < side-1 {
		out = append(out, [2]int{x + 1, y})
	}
	if y > 0 {
		out = append(out, [2]int{x, y - 1})
	}
	if y < side-1 {
		out = append(out, [2]int{x, y + 1})
	}
	return out
}

// forceSplitDownTo splits the leaf at (fromLevel, fromX, fromY) and its
// first-child descendants until the subtree reaches targetLevel, closing
// a depth gap of more than one level against a finer neighbor.
func (t *Tree) forceSplitDownTo(fromLevel, targetLevel, fromX, fromY int) {
	x, y := fromX, fromY
	for l := fromLevel; l < targetLevel; l++ {
		t.setSplit(l, x, y)
		x, y = x*2, y*2
	}
}

// IsSplit reports whether the node at (level, x, y) has been split into
// four children.
func (t *Tree) IsSplit(level, x, y int) bool { return t.isSplit(level, x, y) }

// MaxDepth returns the tree's configured maximum depth.
func (t *Tree) MaxDepth() int { return t.maxDepth }
