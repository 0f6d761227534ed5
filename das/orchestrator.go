// Package das commits to erasure-coded payloads and checks their
// availability by sampling. The Orchestrator drives encoding, commitment,
// evaluation proofs and their verification through an Engine; the Sampler
// opens and checks individual codeword positions.
package das

import (
	"fmt"

	"lukechampine.com/blake3"

	"github.com/ppopth/go-das/encoding"
	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/fri"
	"github.com/ppopth/go-das/internal/parallel"
	"github.com/ppopth/go-das/merkle"
	"github.com/ppopth/go-das/ntt"
	"github.com/ppopth/go-das/transcript"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("das")

// Engine is the polynomial-commitment backend
type Engine interface {
	BuildParams(ctx *ntt.DomainContext, logMsgLen, logBatchSize, logInvRate, numTestQueries, arity int) (*fri.Params, error)
	Commit(params *fri.Params, ctx *ntt.DomainContext, values []field.B128) (*fri.CommitOutput, error)
	Prove(params *fri.Params, ctx *ntt.DomainContext, committed fri.Handle, values, point []field.B128, claim field.B128, tr *transcript.Prover) (*fri.ProveOutput, error)
	Verify(tr *transcript.Verifier, claim field.B128, point []field.B128, digest merkle.Digest, params *fri.Params, ctx *ntt.DomainContext) (*fri.Verifier, error)
	MerkleProve(committed fri.Handle, index int) (*merkle.Proof, error)
	MerkleVerify(proof *merkle.Proof, value field.B128, index int, digest merkle.Digest) error
}

// CommittedHandle is the engine-owned state behind a commitment. It is
// owned by the caller for one session and must not be shared.
type CommittedHandle = fri.Handle

// QueryHandle opens codeword positions after a proof has been produced
type QueryHandle interface {
	ProveQuery(index int) (*fri.QueryProof, error)
	Layers() ([][]merkle.Digest, error)
	Params() *fri.Params
}

// Commitment binds a digest to the codeword it was computed from
type Commitment struct {
	Digest   merkle.Digest
	Handle   CommittedHandle
	Codeword []field.B128
}

// Release drops the engine state behind the commitment
func (c *Commitment) Release() {
	if c != nil && c.Handle != nil {
		c.Handle.Release()
	}
}

// ProveOutput is the result of Prove
type ProveOutput struct {
	TerminateCodeword []field.B128
	Query             QueryHandle
	Transcript        []byte
}

// ExtraQuery asks Verify to check one more query against published tree
// layers. It is used only when every field is set.
type ExtraQuery struct {
	Index             int
	TerminateCodeword []field.B128
	Layers            [][]merkle.Digest
	Proof             *fri.QueryProof
}

func (e *ExtraQuery) complete() bool {
	return e != nil && e.TerminateCodeword != nil && e.Layers != nil && e.Proof != nil
}

// Orchestrator runs the commitment protocol for one ProtocolConfig
type Orchestrator struct {
	cfg      ProtocolConfig
	engine   Engine
	strategy parallel.Strategy
}

// Option configures an Orchestrator
type Option func(*Orchestrator) error

// WithEngine replaces the default FRI engine
func WithEngine(e Engine) Option {
	return func(o *Orchestrator) error {
		if e == nil {
			return fmt.Errorf("%w: nil engine", ErrConfig)
		}
		o.engine = e
		return nil
	}
}

// WithStrategy sets the execution strategy used by the transform
func WithStrategy(s parallel.Strategy) Option {
	return func(o *Orchestrator) error {
		if s == nil {
			return fmt.Errorf("%w: nil strategy", ErrConfig)
		}
		o.strategy = s
		return nil
	}
}

// New validates cfg and creates an Orchestrator
func New(cfg ProtocolConfig, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:      cfg,
		engine:   fri.NewEngine(),
		strategy: parallel.Sequential(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Config returns the protocol configuration
func (o *Orchestrator) Config() ProtocolConfig {
	return o.cfg
}

// Engine returns the commitment backend
func (o *Orchestrator) Engine() Engine {
	return o.engine
}

// InitContext builds the code parameters and transform context for a
// message of 2^logLen values
func (o *Orchestrator) InitContext(logLen int) (*fri.Params, *ntt.DomainContext, error) {
	if logLen < 0 {
		return nil, nil, fmt.Errorf("%w: negative message log length %d", ErrConfig, logLen)
	}
	ctx, err := ntt.NewDomainContext(logLen+o.cfg.LogInvRate, ntt.WithShares(o.cfg.LogNumShares, o.strategy))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	params, err := o.engine.BuildParams(ctx, logLen, 0, o.cfg.LogInvRate, o.cfg.NumTestQueries, o.cfg.Arity)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	log.Debugf("initialized %s", params)
	return params, ctx, nil
}

// Encode Reed-Solomon encodes values
func (o *Orchestrator) Encode(values []field.B128, params *fri.Params, ctx *ntt.DomainContext) ([]field.B128, error) {
	codeword, err := fri.Encode(params, ctx, values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return codeword, nil
}

// Decode recovers the message from a full codeword
func (o *Orchestrator) Decode(codeword []field.B128, params *fri.Params, ctx *ntt.DomainContext) ([]field.B128, error) {
	values, err := fri.Decode(params, ctx, codeword)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return values, nil
}

// Commit encodes the payload and commits to the codeword
func (o *Orchestrator) Commit(payload *encoding.PackedPayload, params *fri.Params, ctx *ntt.DomainContext) (*Commitment, error) {
	out, err := o.engine.Commit(params, ctx, payload.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	log.Debugf("committed %d values to %x", len(payload.Values), out.Digest[:8])
	return &Commitment{
		Digest:   out.Digest,
		Handle:   out.Committed,
		Codeword: out.Codeword,
	}, nil
}

// Prove produces an evaluation proof of the payload at point. The point
// length is checked before the engine is invoked.
func (o *Orchestrator) Prove(payload *encoding.PackedPayload, params *fri.Params, ctx *ntt.DomainContext, commitment *Commitment, point []field.B128) (*ProveOutput, error) {
	if len(point) != o.cfg.NVars {
		return nil, fmt.Errorf("%w: evaluation point has %d coordinates, n_vars is %d", ErrDimensionMismatch, len(point), o.cfg.NVars)
	}
	if len(point) != params.LogMsgLen() {
		return nil, fmt.Errorf("%w: evaluation point has %d coordinates, message has %d variables", ErrDimensionMismatch, len(point), params.LogMsgLen())
	}
	if commitment == nil || commitment.Handle == nil {
		return nil, fmt.Errorf("%w: missing commitment handle", ErrProof)
	}

	claim, err := EvaluationClaim(payload.Values, point)
	if err != nil {
		return nil, err
	}

	tr := transcript.NewProver()
	tr.WriteDigest(commitment.Digest)

	out, err := o.engine.Prove(params, ctx, commitment.Handle, payload.Values, point, claim, tr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProof, err)
	}

	log.Debugf("proof transcript is %d bytes", tr.Len())

	return &ProveOutput{
		TerminateCodeword: out.TerminateCodeword,
		Query:             out.QueryProver,
		Transcript:        tr.Bytes(),
	}, nil
}

// Open proves one codeword position through a retained query handle
func (o *Orchestrator) Open(index int, query QueryHandle) (*fri.QueryProof, error) {
	if query == nil {
		return nil, fmt.Errorf("%w: missing query handle", ErrProof)
	}
	if codeLen := query.Params().CodeLen(); index < 0 || index >= codeLen {
		return nil, fmt.Errorf("%w: index %d not in [0, %d)", ErrOutOfRange, index, codeLen)
	}
	proof, err := query.ProveQuery(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProof, err)
	}
	return proof, nil
}

// Verify replays an evaluation proof. When extra is complete the published
// layers and the extra query opening are checked as well. Any failure
// rejects the whole proof.
func (o *Orchestrator) Verify(transcriptBytes []byte, claim field.B128, point []field.B128, params *fri.Params, extra *ExtraQuery) error {
	if len(point) != o.cfg.NVars || len(point) != params.LogMsgLen() {
		return fmt.Errorf("%w: evaluation point has %d coordinates", ErrDimensionMismatch, len(point))
	}

	ctx, err := ntt.NewDomainContext(params.LogLen(), ntt.WithShares(o.cfg.LogNumShares, o.strategy))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProof, err)
	}

	tr := transcript.NewVerifier(transcriptBytes)
	digest, err := tr.ReadDigest()
	if err != nil {
		return fmt.Errorf("%w: reading commitment: %v", ErrProof, err)
	}

	verifier, err := o.engine.Verify(tr, claim, point, digest, params, ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProof, err)
	}

	if !extra.complete() {
		return nil
	}
	if err := verifier.VerifyLayers(extra.Layers); err != nil {
		return fmt.Errorf("%w: %w", ErrProof, err)
	}
	if err := verifier.VerifyQuery(extra.Index, extra.TerminateCodeword, extra.Layers, extra.Proof); err != nil {
		return fmt.Errorf("%w: extra query at %d: %w", ErrProof, extra.Index, err)
	}
	log.Debugf("verified extra query at index %d", extra.Index)
	return nil
}

// EvaluationPointRandom derives a deterministic evaluation point of NVars
// coordinates from seed
func (o *Orchestrator) EvaluationPointRandom(seed [32]byte) ([]field.B128, error) {
	h := blake3.New(32, seed[:])
	h.Write([]byte("evaluation point"))
	xof := h.XOF()

	point := make([]field.B128, o.cfg.NVars)
	for i := range point {
		v, err := field.RandomFrom(xof)
		if err != nil {
			return nil, err
		}
		point[i] = v
	}
	return point, nil
}

// EvaluationClaim returns the multilinear extension of values at point
func EvaluationClaim(values, point []field.B128) (field.B128, error) {
	claim, err := field.EvaluateMLE(values, point)
	if err != nil {
		return field.Zero(), fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	return claim, nil
}

// ExtractCommitment reads the codeword digest at the head of a transcript
func ExtractCommitment(transcriptBytes []byte) (merkle.Digest, error) {
	digest, err := transcript.NewVerifier(transcriptBytes).ReadDigest()
	if err != nil {
		return merkle.Digest{}, fmt.Errorf("%w: %v", ErrProof, err)
	}
	return digest, nil
}
