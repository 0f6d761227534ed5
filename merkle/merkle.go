// Package merkle commits to a vector of field elements with a binary
// Merkle tree. Leaves hash as H(0x00 || value) and inner nodes as
// H(0x01 || left || right).
package merkle

import (
	"errors"
	"fmt"
	"hash"

	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/sha3"

	"github.com/ppopth/go-das/field"
)

// DigestSize is the size of every node digest
const DigestSize = 32

// Digest is a tree node
type Digest = [DigestSize]byte

var (
	ErrInvalidProof    = errors.New("invalid merkle proof")
	ErrIndexOutOfRange = errors.New("leaf index out of range")
)

const (
	leafPrefix = 0x00
	nodePrefix = 0x01

	maxDepth = 62
)

// Hasher constructs the hash function used for leaves and nodes. It must
// produce 32-byte digests.
type Hasher func() hash.Hash

var (
	// SHA256 is the default hasher
	SHA256 Hasher = sha256.New
	// Keccak256 is the legacy Keccak used by Ethereum
	Keccak256 Hasher = sha3.NewLegacyKeccak256
)

// Scheme fixes the hash function shared by provers and verifiers
type Scheme struct {
	hasher Hasher
}

// Option configures a Scheme
type Option func(*Scheme)

// WithHasher replaces the default SHA-256 hasher
func WithHasher(h Hasher) Option {
	return func(s *Scheme) {
		s.hasher = h
	}
}

// NewScheme returns a scheme using SHA-256 unless overridden
func NewScheme(opts ...Option) *Scheme {
	s := &Scheme{hasher: SHA256}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashLeaf returns the digest of a leaf holding value
func (s *Scheme) HashLeaf(value field.B128) Digest {
	h := s.hasher()
	var buf [1 + field.BytesPerElement]byte
	buf[0] = leafPrefix
	value.PutBytes(buf[1:])
	h.Write(buf[:])
	return sum(h)
}

// HashNode returns the digest of an inner node
func (s *Scheme) HashNode(left, right Digest) Digest {
	h := s.hasher()
	h.Write([]byte{nodePrefix})
	h.Write(left[:])
	h.Write(right[:])
	return sum(h)
}

func sum(h hash.Hash) Digest {
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// hashLevel returns the parent level of nodes
func (s *Scheme) hashLevel(nodes []Digest) []Digest {
	parents := make([]Digest, len(nodes)/2)
	for i := range parents {
		parents[i] = s.HashNode(nodes[2*i], nodes[2*i+1])
	}
	return parents
}

// Tree is a committed vector. Level d holds 2^d nodes; level 0 is the root.
type Tree struct {
	scheme *Scheme
	leaves []field.B128
	levels [][]Digest
}

// Commit builds a tree over leaves, whose count must be a power of two
func (s *Scheme) Commit(leaves []field.B128) (*Tree, error) {
	n := len(leaves)
	if n == 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("merkle tree needs a power-of-two leaf count, got %d", n)
	}

	depth := 0
	for 1<<depth < n {
		depth++
	}

	levels := make([][]Digest, depth+1)
	levels[depth] = make([]Digest, n)
	for i, v := range leaves {
		levels[depth][i] = s.HashLeaf(v)
	}
	for d := depth; d > 0; d-- {
		levels[d-1] = s.hashLevel(levels[d])
	}

	return &Tree{
		scheme: s,
		leaves: append([]field.B128(nil), leaves...),
		levels: levels,
	}, nil
}

// Root returns the tree digest
func (t *Tree) Root() Digest {
	return t.levels[0][0]
}

// Depth returns the number of levels below the root
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// NumLeaves returns the committed vector length
func (t *Tree) NumLeaves() int {
	return len(t.leaves)
}

// Leaf returns the committed value at index
func (t *Tree) Leaf(index int) field.B128 {
	return t.leaves[index]
}

// Layer returns a copy of the nodes at depth
func (t *Tree) Layer(depth int) ([]Digest, error) {
	if depth < 0 || depth > t.Depth() {
		return nil, fmt.Errorf("layer depth %d out of range [0, %d]", depth, t.Depth())
	}
	return append([]Digest(nil), t.levels[depth]...), nil
}

// siblings collects the authentication path of node index at level from
// the bottom up
func (t *Tree) siblings(level, index int) []Digest {
	path := make([]Digest, 0, level)
	for d := level; d > 0; d-- {
		path = append(path, t.levels[d][index^1])
		index >>= 1
	}
	return path
}

// Proof opens one leaf
type Proof struct {
	Index    int
	Value    field.B128
	Siblings []Digest // bottom-up
}

// Prove opens the leaf at index
func (t *Tree) Prove(index int) (*Proof, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(t.leaves))
	}
	return &Proof{
		Index:    index,
		Value:    t.leaves[index],
		Siblings: t.siblings(t.Depth(), index),
	}, nil
}

// CosetProof opens the 2^logSize consecutive leaves of one aligned coset
type CosetProof struct {
	Coset    int
	Values   []field.B128
	Siblings []Digest // from the coset subtree root upwards
}

// ProveCoset opens leaves [coset<<logSize, (coset+1)<<logSize)
func (t *Tree) ProveCoset(coset, logSize int) (*CosetProof, error) {
	if logSize < 0 || logSize > t.Depth() {
		return nil, fmt.Errorf("coset log size %d out of range [0, %d]", logSize, t.Depth())
	}
	level := t.Depth() - logSize
	if coset < 0 || coset >= 1<<level {
		return nil, fmt.Errorf("%w: coset %d not in [0, %d)", ErrIndexOutOfRange, coset, 1<<level)
	}
	start := coset << logSize
	return &CosetProof{
		Coset:    coset,
		Values:   append([]field.B128(nil), t.leaves[start:start+1<<logSize]...),
		Siblings: t.siblings(level, coset),
	}, nil
}

// climb hashes node at index upwards through siblings
func (s *Scheme) climb(node Digest, index int, siblings []Digest) Digest {
	for _, sib := range siblings {
		if index&1 == 0 {
			node = s.HashNode(node, sib)
		} else {
			node = s.HashNode(sib, node)
		}
		index >>= 1
	}
	return node
}

// Verify checks a leaf opening against root
func (s *Scheme) Verify(root Digest, p *Proof) error {
	if p == nil {
		return fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	if len(p.Siblings) > maxDepth || p.Index < 0 || p.Index >= 1<<len(p.Siblings) {
		return fmt.Errorf("%w: index %d exceeds tree of depth %d", ErrInvalidProof, p.Index, len(p.Siblings))
	}
	if s.climb(s.HashLeaf(p.Value), p.Index, p.Siblings) != root {
		return fmt.Errorf("%w: root mismatch at index %d", ErrInvalidProof, p.Index)
	}
	return nil
}

// cosetRoot hashes the opened coset values into their subtree root
func (s *Scheme) cosetRoot(values []field.B128) (Digest, error) {
	n := len(values)
	if n == 0 || n&(n-1) != 0 {
		return Digest{}, fmt.Errorf("%w: coset of %d values", ErrInvalidProof, n)
	}
	nodes := make([]Digest, n)
	for i, v := range values {
		nodes[i] = s.HashLeaf(v)
	}
	for len(nodes) > 1 {
		nodes = s.hashLevel(nodes)
	}
	return nodes[0], nil
}

// VerifyCoset checks a coset opening against root
func (s *Scheme) VerifyCoset(root Digest, p *CosetProof) error {
	if p == nil {
		return fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	node, err := s.cosetRoot(p.Values)
	if err != nil {
		return err
	}
	if len(p.Siblings) > maxDepth || p.Coset < 0 || p.Coset >= 1<<len(p.Siblings) {
		return fmt.Errorf("%w: coset %d exceeds %d siblings", ErrInvalidProof, p.Coset, len(p.Siblings))
	}
	if s.climb(node, p.Coset, p.Siblings) != root {
		return fmt.Errorf("%w: root mismatch at coset %d", ErrInvalidProof, p.Coset)
	}
	return nil
}

// VerifyCosetAtLayer checks a coset opening against a verified tree layer
// at layerDepth. Siblings above the layer are ignored.
func (s *Scheme) VerifyCosetAtLayer(layer []Digest, layerDepth int, p *CosetProof) error {
	if p == nil {
		return fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	if layerDepth < 0 || layerDepth > maxDepth || len(layer) != 1<<layerDepth {
		return fmt.Errorf("%w: layer has %d nodes, depth %d", ErrInvalidProof, len(layer), layerDepth)
	}
	steps := len(p.Siblings) - layerDepth
	if steps < 0 {
		return fmt.Errorf("%w: coset subtree lies above layer depth %d", ErrInvalidProof, layerDepth)
	}
	node, err := s.cosetRoot(p.Values)
	if err != nil {
		return err
	}
	if len(p.Siblings) > maxDepth || p.Coset < 0 || p.Coset >= 1<<len(p.Siblings) {
		return fmt.Errorf("%w: coset %d exceeds %d siblings", ErrInvalidProof, p.Coset, len(p.Siblings))
	}
	if s.climb(node, p.Coset, p.Siblings[:steps]) != layer[p.Coset>>steps] {
		return fmt.Errorf("%w: layer mismatch at coset %d", ErrInvalidProof, p.Coset)
	}
	return nil
}

// VerifyLayer checks that layer hashes up to root
func (s *Scheme) VerifyLayer(root Digest, depth int, layer []Digest) error {
	if depth < 0 || depth > maxDepth || len(layer) != 1<<depth {
		return fmt.Errorf("%w: layer has %d nodes, depth %d", ErrInvalidProof, len(layer), depth)
	}
	nodes := layer
	for len(nodes) > 1 {
		nodes = s.hashLevel(nodes)
	}
	if nodes[0] != root {
		return fmt.Errorf("%w: layer at depth %d does not match root", ErrInvalidProof, depth)
	}
	return nil
}
