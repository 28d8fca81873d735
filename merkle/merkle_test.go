package merkle

import (
	"testing"

	"github.com/xai-blockchain/xai-sub017/crypto"
)

func leafFor(s string) crypto.Hash {
	return crypto.Sum256([]byte(s))
}

func TestEmptyTreeRoot(t *testing.T) {
	root := Root(nil)
	if root != crypto.Sum256(nil) {
		t.Fatalf("expected empty tree root to be SHA-256(empty)")
	}
}

func TestProofVerifiesForEveryLeaf(t *testing.T) {
	leaves := []crypto.Hash{
		leafFor("tx0"), leafFor("tx1"), leafFor("tx2"), leafFor("tx3"), leafFor("tx4"),
	}
	tree := Build(leaves)
	root := tree.Root()

	for i, leaf := range leaves {
		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatalf("leaf %d: %v", i, err)
		}
		if !Verify(leaf, proof, root) {
			t.Fatalf("leaf %d: proof failed to verify", i)
		}
	}
}

func TestProofFailsForNonMember(t *testing.T) {
	leaves := []crypto.Hash{leafFor("tx0"), leafFor("tx1"), leafFor("tx2")}
	tree := Build(leaves)
	root := tree.Root()

	proof, _ := tree.Proof(0)
	if Verify(leafFor("not-in-set"), proof, root) {
		t.Fatal("expected verification to fail for a non-member leaf")
	}
}

func TestRootIndependentOfDuplicateLastOnOddCount(t *testing.T) {
	leaves := []crypto.Hash{leafFor("a"), leafFor("b"), leafFor("c")}
	root1 := Root(leaves)
	root2 := Root([]crypto.Hash{leafFor("a"), leafFor("b"), leafFor("c"), leafFor("c")})
	if root1 != root2 {
		t.Fatal("expected an odd leaf count to hash as if the last leaf were duplicated")
	}
}

func TestSingleLeafTree(t *testing.T) {
	leaves := []crypto.Hash{leafFor("only")}
	tree := Build(leaves)
	root := tree.Root()
	if root != leaves[0] {
		t.Fatalf("single-leaf tree root should equal the leaf itself")
	}
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(proof) != 0 {
		t.Fatalf("expected empty proof for single-leaf tree, got %d steps", len(proof))
	}
}
