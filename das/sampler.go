package das

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/fri"
	"github.com/ppopth/go-das/merkle"
)

// Sampler opens and checks individual codeword positions
type Sampler struct {
	engine Engine
	params *fri.Params
}

// NewSampler creates a sampler for codewords built with params
func NewSampler(o *Orchestrator, params *fri.Params) *Sampler {
	return &Sampler{engine: o.engine, params: params}
}

// SampleReport summarizes a sampling session
type SampleReport struct {
	Requested int
	Verified  int
	Indices   []int
}

// Available reports whether every requested sample verified
func (r *SampleReport) Available() bool {
	return r.Verified == r.Requested
}

// OpenAt returns the inclusion proof of codeword position index
func (s *Sampler) OpenAt(handle CommittedHandle, index int) (*merkle.Proof, error) {
	if codeLen := s.params.CodeLen(); index < 0 || index >= codeLen {
		return nil, fmt.Errorf("%w: index %d not in [0, %d)", ErrOutOfRange, index, codeLen)
	}
	proof, err := s.engine.MerkleProve(handle, index)
	if errors.Is(err, merkle.ErrIndexOutOfRange) {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	return proof, err
}

// VerifyOpening checks that values sit at index under digest. Leaves hold
// a single element, so values must have length one.
func (s *Sampler) VerifyOpening(proof *merkle.Proof, values []field.B128, index int, params *fri.Params, digest merkle.Digest) error {
	if codeLen := params.CodeLen(); index < 0 || index >= codeLen {
		return fmt.Errorf("%w: index %d not in [0, %d)", ErrOutOfRange, index, codeLen)
	}
	if len(values) != 1 {
		return fmt.Errorf("%w: expected one leaf value, got %d", ErrInclusion, len(values))
	}
	if proof == nil || len(proof.Siblings) != params.LogLen() {
		return fmt.Errorf("%w: proof depth does not match tree depth %d", ErrInclusion, params.LogLen())
	}
	if err := s.engine.MerkleVerify(proof, values[0], index, digest); err != nil {
		return fmt.Errorf("%w: %v", ErrInclusion, err)
	}
	return nil
}

// Run opens and verifies every index against the commitment's codeword.
// The first failure ends the session.
func (s *Sampler) Run(commitment *Commitment, indices []int) (*SampleReport, error) {
	report := &SampleReport{
		Requested: len(indices),
		Indices:   append([]int(nil), indices...),
	}
	for _, index := range indices {
		proof, err := s.OpenAt(commitment.Handle, index)
		if err != nil {
			return report, fmt.Errorf("sample at index %d: %w", index, err)
		}
		if index >= len(commitment.Codeword) {
			return report, fmt.Errorf("sample at index %d: %w: codeword has %d values", index, ErrOutOfRange, len(commitment.Codeword))
		}
		values := []field.B128{commitment.Codeword[index]}
		if err := s.VerifyOpening(proof, values, index, s.params, commitment.Digest); err != nil {
			log.Debugf("sample at index %d failed: %v", index, err)
			return report, fmt.Errorf("sample at index %d: %w", index, err)
		}
		report.Verified++
	}
	log.Debugf("verified %d samples", report.Verified)
	return report, nil
}

// SelectSamples draws n distinct indices uniformly from [0, codewordLen).
// n is clamped to codewordLen.
func SelectSamples(rng *rand.Rand, codewordLen, n int) []int {
	if n > codewordLen {
		n = codewordLen
	}
	if n <= 0 {
		return nil
	}

	// Partial Fisher-Yates over a sparse permutation
	swapped := make(map[int]int, n)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(codewordLen-i)
		out[i] = at(j)
		swapped[j] = at(i)
	}
	return out
}

// Confidence returns the probability that sampling detects a codeword
// missing enough shares to be unrecoverable. Such a codeword has at most
// messageLen-1 shares available, and every sample must land on one of them
// to escape.
func Confidence(samples, codewordLen, messageLen int) float64 {
	available := messageLen - 1
	if samples <= 0 || codewordLen <= 0 {
		return 0
	}
	if samples > available {
		return 1
	}
	escape := 1.0
	for i := 0; i < samples; i++ {
		escape *= float64(available-i) / float64(codewordLen-i)
	}
	return 1 - escape
}
