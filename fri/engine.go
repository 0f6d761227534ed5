// Package fri is a polynomial-commitment engine for multilinear payloads
// over GF(2^128). A payload is Reed-Solomon encoded with the additive NTT
// and committed with a Merkle tree. An evaluation proof folds the codeword
// once per evaluation-point coordinate, commits a round oracle every
// arity folds, sends the constant terminal codeword in clear, and opens
// every oracle at transcript-sampled query positions.
package fri

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/merkle"
	"github.com/ppopth/go-das/ntt"
	"github.com/ppopth/go-das/transcript"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("fri")

var (
	ErrParams   = errors.New("invalid code parameters")
	ErrProve    = errors.New("fri proving failed")
	ErrVerify   = errors.New("fri verification failed")
	ErrReleased = errors.New("committed handle released")
)

// Handle is the prover's capability over one commitment. It opens single
// codeword positions and stays usable across proofs until Release.
type Handle interface {
	Open(index int) (*merkle.Proof, error)
	Release()
}

// Committed holds the codeword and its tree. It must not be shared
// between concurrent sessions.
type Committed struct {
	mutex    sync.Mutex
	tree     *merkle.Tree
	codeword []field.B128
}

// Open returns the inclusion proof of one codeword position
func (c *Committed) Open(index int) (*merkle.Proof, error) {
	tree, _, err := c.state()
	if err != nil {
		return nil, err
	}
	return tree.Prove(index)
}

// Release drops the tree and codeword
func (c *Committed) Release() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.tree = nil
	c.codeword = nil
}

func (c *Committed) state() (*merkle.Tree, []field.B128, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.tree == nil {
		return nil, nil, ErrReleased
	}
	return c.tree, c.codeword, nil
}

// CommitOutput is the result of Commit
type CommitOutput struct {
	Digest    merkle.Digest
	Codeword  []field.B128
	Committed Handle
}

// ProveOutput is the result of Prove
type ProveOutput struct {
	TerminateCodeword []field.B128
	QueryProver       *QueryProver
}

// Engine commits, proves and verifies with a fixed Merkle scheme
type Engine struct {
	scheme *merkle.Scheme
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithMerkleScheme replaces the default SHA-256 Merkle scheme
func WithMerkleScheme(s *merkle.Scheme) EngineOption {
	return func(e *Engine) {
		e.scheme = s
	}
}

// NewEngine creates an engine
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{scheme: merkle.NewScheme()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scheme returns the Merkle scheme used for every oracle
func (e *Engine) Scheme() *merkle.Scheme {
	return e.scheme
}

// BuildParams validates the code parameters
func (e *Engine) BuildParams(ctx *ntt.DomainContext, logMsgLen, logBatchSize, logInvRate, numTestQueries, arity int) (*Params, error) {
	return NewParams(ctx, logMsgLen, logBatchSize, logInvRate, numTestQueries, arity)
}

// Encode Reed-Solomon encodes a message of exactly params.MsgLen() values
func Encode(params *Params, ctx *ntt.DomainContext, values []field.B128) ([]field.B128, error) {
	if len(values) != params.MsgLen() {
		return nil, fmt.Errorf("%w: message has %d values, expected %d", ErrParams, len(values), params.MsgLen())
	}
	if ctx.LogLen() < params.LogLen() {
		return nil, fmt.Errorf("%w: domain 2^%d smaller than code 2^%d", ErrParams, ctx.LogLen(), params.LogLen())
	}
	return ctx.EncodeRS(values, params.LogInvRate())
}

// Decode recovers the message from a full codeword
func Decode(params *Params, ctx *ntt.DomainContext, codeword []field.B128) ([]field.B128, error) {
	if len(codeword) != params.CodeLen() {
		return nil, fmt.Errorf("%w: codeword has %d values, expected %d", ErrParams, len(codeword), params.CodeLen())
	}
	if ctx.LogLen() < params.LogLen() {
		return nil, fmt.Errorf("%w: domain 2^%d smaller than code 2^%d", ErrParams, ctx.LogLen(), params.LogLen())
	}
	return ctx.DecodeRS(codeword, params.LogInvRate())
}

// Commit encodes values and builds the Merkle tree over the codeword
func (e *Engine) Commit(params *Params, ctx *ntt.DomainContext, values []field.B128) (*CommitOutput, error) {
	codeword, err := Encode(params, ctx, values)
	if err != nil {
		return nil, err
	}
	tree, err := e.scheme.Commit(codeword)
	if err != nil {
		return nil, err
	}

	log.Debugf("committed codeword of length %d", len(codeword))

	return &CommitOutput{
		Digest:    tree.Root(),
		Codeword:  codeword,
		Committed: &Committed{tree: tree, codeword: codeword},
	}, nil
}

// Prove writes the evaluation proof for claim at point into tr. The
// caller is expected to have written the codeword digest already.
func (e *Engine) Prove(params *Params, ctx *ntt.DomainContext, committed Handle, values, point []field.B128, claim field.B128, tr *transcript.Prover) (*ProveOutput, error) {
	c, ok := committed.(*Committed)
	if !ok {
		return nil, fmt.Errorf("%w: handle %T was not produced by this engine", ErrProve, committed)
	}
	tree, codeword, err := c.state()
	if err != nil {
		return nil, err
	}
	if len(values) != params.MsgLen() {
		return nil, fmt.Errorf("%w: message has %d values, expected %d", ErrProve, len(values), params.MsgLen())
	}
	if len(codeword) != params.CodeLen() {
		return nil, fmt.Errorf("%w: committed codeword has length %d, expected %d", ErrProve, len(codeword), params.CodeLen())
	}
	if len(point) != params.LogMsgLen() {
		return nil, fmt.Errorf("%w: point has %d coordinates, expected %d", ErrProve, len(point), params.LogMsgLen())
	}
	actual, err := field.EvaluateMLE(values, point)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProve, err)
	}
	if !actual.Equal(claim) {
		return nil, fmt.Errorf("%w: claim %s does not match the committed values", ErrProve, claim)
	}

	trees := []*merkle.Tree{tree}
	current := codeword
	level := 0
	arities := params.FoldArities()
	for s, a := range arities {
		for k := 0; k < a; k++ {
			current, err = ctx.Fold(current, level, point[level])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProve, err)
			}
			level++
		}
		if s == len(arities)-1 {
			break
		}
		round, err := e.scheme.Commit(current)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProve, err)
		}
		tr.WriteDigest(round.Root())
		trees = append(trees, round)
	}
	tr.WriteElements(current...)

	qp := &QueryProver{params: params, trees: trees}
	for q := 0; q < params.NumTestQueries(); q++ {
		index := tr.SampleIndex(params.CodeLen())
		proof, err := qp.ProveQuery(index)
		if err != nil {
			return nil, err
		}
		writeQueryProof(tr, proof)
	}

	log.Debugf("proved evaluation with %d round oracles and %d queries", len(trees)-1, params.NumTestQueries())

	return &ProveOutput{
		TerminateCodeword: current,
		QueryProver:       qp,
	}, nil
}

// Verify replays a proof written by Prove. The codeword digest must have
// been read from tr already. On success the returned Verifier can check
// further queries against the same commitments.
func (e *Engine) Verify(tr *transcript.Verifier, claim field.B128, point []field.B128, digest merkle.Digest, params *Params, ctx *ntt.DomainContext) (*Verifier, error) {
	if len(point) != params.LogMsgLen() {
		return nil, fmt.Errorf("%w: point has %d coordinates, expected %d", ErrVerify, len(point), params.LogMsgLen())
	}
	if ctx.LogLen() < params.LogLen() {
		return nil, fmt.Errorf("%w: domain 2^%d smaller than code 2^%d", ErrVerify, ctx.LogLen(), params.LogLen())
	}

	roots := []merkle.Digest{digest}
	for i := 0; i < params.NumRoundCommitments(); i++ {
		root, err := tr.ReadDigest()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVerify, err)
		}
		roots = append(roots, root)
	}

	terminal, err := tr.ReadElements(1 << (params.LogInvRate() + params.LogBatchSize()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerify, err)
	}
	for i, v := range terminal {
		if !v.Equal(claim) {
			return nil, fmt.Errorf("%w: terminal codeword entry %d is %s, claim is %s", ErrVerify, i, v, claim)
		}
	}

	v := &Verifier{
		scheme:   e.scheme,
		params:   params,
		ctx:      ctx,
		point:    append([]field.B128(nil), point...),
		roots:    roots,
		terminal: terminal,
	}

	for q := 0; q < params.NumTestQueries(); q++ {
		index := tr.SampleIndex(params.CodeLen())
		proof, err := readQueryProof(tr, params, index)
		if err != nil {
			return nil, fmt.Errorf("%w: query %d: %v", ErrVerify, q, err)
		}
		if err := v.VerifyQuery(index, terminal, nil, proof); err != nil {
			return nil, fmt.Errorf("query %d: %w", q, err)
		}
	}
	if err := tr.Finish(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerify, err)
	}
	return v, nil
}

// MerkleProve opens one codeword position through the handle
func (e *Engine) MerkleProve(committed Handle, index int) (*merkle.Proof, error) {
	return committed.Open(index)
}

// MerkleVerify checks that value sits at index under digest
func (e *Engine) MerkleVerify(proof *merkle.Proof, value field.B128, index int, digest merkle.Digest) error {
	if proof == nil {
		return fmt.Errorf("%w: missing proof", merkle.ErrInvalidProof)
	}
	if proof.Index != index {
		return fmt.Errorf("%w: proof is for index %d, expected %d", merkle.ErrInvalidProof, proof.Index, index)
	}
	if !proof.Value.Equal(value) {
		return fmt.Errorf("%w: proof carries value %s, expected %s", merkle.ErrInvalidProof, proof.Value, value)
	}
	return e.scheme.Verify(digest, proof)
}
