package merkle

import (
	"errors"
	"testing"

	"github.com/ppopth/go-das/field"
)

func testLeaves(n int) []field.B128 {
	leaves := make([]field.B128, n)
	for i := range leaves {
		leaves[i] = field.New(uint64(i)*7, uint64(i)*13+1)
	}
	return leaves
}

func TestCommitRejectsBadSize(t *testing.T) {
	scheme := NewScheme()
	for _, n := range []int{0, 3, 6} {
		if _, err := scheme.Commit(testLeaves(n)); err == nil {
			t.Errorf("expected error for %d leaves", n)
		}
	}
}

func TestProveVerify(t *testing.T) {
	hashers := map[string]Hasher{"sha256": SHA256, "keccak256": Keccak256}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			scheme := NewScheme(WithHasher(h))
			tree, err := scheme.Commit(testLeaves(16))
			if err != nil {
				t.Fatalf("Commit failed: %v", err)
			}
			if tree.Depth() != 4 || tree.NumLeaves() != 16 {
				t.Fatalf("unexpected shape depth=%d leaves=%d", tree.Depth(), tree.NumLeaves())
			}

			for i := 0; i < 16; i++ {
				proof, err := tree.Prove(i)
				if err != nil {
					t.Fatalf("Prove(%d) failed: %v", i, err)
				}
				if len(proof.Siblings) != 4 {
					t.Errorf("expected 4 siblings, got %d", len(proof.Siblings))
				}
				if err := scheme.Verify(tree.Root(), proof); err != nil {
					t.Errorf("Verify(%d) failed: %v", i, err)
				}
			}
		})
	}
}

func TestHashersDiffer(t *testing.T) {
	leaves := testLeaves(4)
	a, err := NewScheme().Commit(leaves)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewScheme(WithHasher(Keccak256)).Commit(leaves)
	if err != nil {
		t.Fatal(err)
	}
	if a.Root() == b.Root() {
		t.Errorf("sha256 and keccak256 roots should differ")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	scheme := NewScheme()
	tree, err := scheme.Commit(testLeaves(8))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("value", func(t *testing.T) {
		proof, _ := tree.Prove(3)
		proof.Value = proof.Value.Add(field.One())
		if err := scheme.Verify(tree.Root(), proof); !errors.Is(err, ErrInvalidProof) {
			t.Errorf("expected ErrInvalidProof, got %v", err)
		}
	})

	t.Run("index", func(t *testing.T) {
		proof, _ := tree.Prove(3)
		proof.Index = 2
		if err := scheme.Verify(tree.Root(), proof); !errors.Is(err, ErrInvalidProof) {
			t.Errorf("expected ErrInvalidProof, got %v", err)
		}
	})

	t.Run("sibling", func(t *testing.T) {
		proof, _ := tree.Prove(5)
		proof.Siblings[1][0] ^= 0xff
		if err := scheme.Verify(tree.Root(), proof); !errors.Is(err, ErrInvalidProof) {
			t.Errorf("expected ErrInvalidProof, got %v", err)
		}
	})

	t.Run("out_of_range", func(t *testing.T) {
		proof, _ := tree.Prove(5)
		proof.Index = 8
		if err := scheme.Verify(tree.Root(), proof); !errors.Is(err, ErrInvalidProof) {
			t.Errorf("expected ErrInvalidProof, got %v", err)
		}
	})

	t.Run("nil", func(t *testing.T) {
		if err := scheme.Verify(tree.Root(), nil); !errors.Is(err, ErrInvalidProof) {
			t.Errorf("expected ErrInvalidProof, got %v", err)
		}
	})
}

func TestProveOutOfRange(t *testing.T) {
	tree, err := NewScheme().Commit(testLeaves(4))
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{-1, 4, 100} {
		if _, err := tree.Prove(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Prove(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
	}
}

func TestCosetProof(t *testing.T) {
	scheme := NewScheme()
	leaves := testLeaves(32)
	tree, err := scheme.Commit(leaves)
	if err != nil {
		t.Fatal(err)
	}

	for logSize := 0; logSize <= 5; logSize++ {
		for coset := 0; coset < 32>>logSize; coset++ {
			proof, err := tree.ProveCoset(coset, logSize)
			if err != nil {
				t.Fatalf("ProveCoset(%d, %d) failed: %v", coset, logSize, err)
			}
			for i, v := range proof.Values {
				if !v.Equal(leaves[coset<<logSize+i]) {
					t.Fatalf("coset %d value %d mismatch", coset, i)
				}
			}
			if err := scheme.VerifyCoset(tree.Root(), proof); err != nil {
				t.Fatalf("VerifyCoset(%d, %d) failed: %v", coset, logSize, err)
			}
		}
	}

	proof, err := tree.ProveCoset(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	proof.Values[3] = proof.Values[3].Add(field.One())
	if err := scheme.VerifyCoset(tree.Root(), proof); !errors.Is(err, ErrInvalidProof) {
		t.Errorf("expected ErrInvalidProof for tampered coset, got %v", err)
	}

	if _, err := tree.ProveCoset(8, 2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestLayers(t *testing.T) {
	scheme := NewScheme()
	tree, err := scheme.Commit(testLeaves(16))
	if err != nil {
		t.Fatal(err)
	}

	for depth := 0; depth <= tree.Depth(); depth++ {
		layer, err := tree.Layer(depth)
		if err != nil {
			t.Fatalf("Layer(%d) failed: %v", depth, err)
		}
		if err := scheme.VerifyLayer(tree.Root(), depth, layer); err != nil {
			t.Errorf("VerifyLayer(%d) failed: %v", depth, err)
		}
	}

	layer, err := tree.Layer(2)
	if err != nil {
		t.Fatal(err)
	}

	// A coset of four leaves sits at depth 2 and is checked directly
	// against its layer node
	for coset := 0; coset < 4; coset++ {
		proof, err := tree.ProveCoset(coset, 2)
		if err != nil {
			t.Fatal(err)
		}
		if err := scheme.VerifyCosetAtLayer(layer, 2, proof); err != nil {
			t.Errorf("VerifyCosetAtLayer(%d) failed: %v", coset, err)
		}
	}

	// Single leaves climb two levels before meeting the layer
	proof, err := tree.ProveCoset(13, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := scheme.VerifyCosetAtLayer(layer, 2, proof); err != nil {
		t.Errorf("VerifyCosetAtLayer for single leaf failed: %v", err)
	}

	layer[1][0] ^= 1
	if err := scheme.VerifyLayer(tree.Root(), 2, layer); !errors.Is(err, ErrInvalidProof) {
		t.Errorf("expected ErrInvalidProof for tampered layer, got %v", err)
	}

	if _, err := tree.Layer(5); err == nil {
		t.Errorf("expected error for layer below the leaves")
	}
}
