// Package merkle implements the transaction merkle tree construction and
// inclusion proofs: deterministic lexicographically-ordered
// sibling pairing, odd-level duplication, and an empty-tree root.
package merkle

import (
	"bytes"

	"github.com/xai-blockchain/xai-sub017/crypto"
)

// Position identifies which side of a parent node a sibling hash occupies.
type Position int

const (
	// Left means the sibling is the left child.
	Left Position = iota
	// Right means the sibling is the right child.
	Right
)

// ProofStep is one step of an inclusion proof: a sibling hash and its
// position relative to the hash being folded.
type ProofStep struct {
	Sibling  crypto.Hash
	Position Position
}

// Tree is a materialized merkle tree over an ordered set of leaf hashes,
// retained level-by-level so that Proof can be computed in O(log n).
type Tree struct {
	levels [][]crypto.Hash
}

// emptyRoot is the root of a tree with zero leaves: SHA-256(empty).
var emptyRoot = crypto.Sum256(nil)

// combine hashes the lexicographically-ordered pair (a,b) into a parent
// node: SHA-256(smaller || larger). This makes the parent independent of
// the order the two children were discovered in, while the *tree* as a
// whole remains ordered by leaf index (only sibling pairing is reordered).
func combine(a, b crypto.Hash) crypto.Hash {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return crypto.Sum256(append(append([]byte{}, a[:]...), b[:]...))
	}
	return crypto.Sum256(append(append([]byte{}, b[:]...), a[:]...))
}

// Build constructs a Tree from the given ordered leaf hashes (callers pass
// SHA-256(canonical(tx)) per leaf).
func Build(leaves []crypto.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{levels: [][]crypto.Hash{{emptyRoot}}}
	}

	level := make([]crypto.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]crypto.Hash{level}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]crypto.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, combine(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}
}

// Root returns the merkle root.
func (t *Tree) Root() crypto.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Root computes the merkle root of leaves directly, without retaining
// intermediate levels.
func Root(leaves []crypto.Hash) crypto.Hash {
	return Build(leaves).Root()
}

// Proof returns the ordered list of (sibling, position) pairs from the leaf
// at index up to but excluding the root.
func (t *Tree) Proof(index int) ([]ProofStep, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, errIndexOutOfRange
	}
	var steps []ProofStep
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		// Stored levels are unpadded. When the sibling index falls past
		// the end, Build paired this node with a duplicate of itself.
		siblingIdx := idx ^ 1
		var sibling crypto.Hash
		if siblingIdx < len(nodes) {
			sibling = nodes[siblingIdx]
		} else {
			sibling = nodes[idx]
		}
		pos := Left
		if idx%2 == 0 {
			pos = Right
		}
		steps = append(steps, ProofStep{Sibling: sibling, Position: pos})
		idx /= 2
	}
	return steps, nil
}

// Verify folds leaf through each proof step in order and reports whether
// the resulting hash equals root.
func Verify(leaf crypto.Hash, steps []ProofStep, root crypto.Hash) bool {
	current := leaf
	for _, step := range steps {
		if step.Position == Left {
			current = combine(step.Sibling, current)
		} else {
			current = combine(current, step.Sibling)
		}
	}
	return current == root
}

type merkleErr string

func (e merkleErr) Error() string { return string(e) }

const errIndexOutOfRange = merkleErr("merkle: leaf index out of range")
