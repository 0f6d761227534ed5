package fri

import (
	"fmt"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/merkle"
	"github.com/ppopth/go-das/ntt"
)

// Verifier holds the commitments of a verified proof
type Verifier struct {
	scheme   *merkle.Scheme
	params   *Params
	ctx      *ntt.DomainContext
	point    []field.B128
	roots    []merkle.Digest // codeword digest followed by round commitments
	terminal []field.B128
}

// Params returns the code parameters
func (v *Verifier) Params() *Params {
	return v.params
}

// CodewordCommitment returns the digest of the original codeword
func (v *Verifier) CodewordCommitment() merkle.Digest {
	return v.roots[0]
}

// RoundCommitments returns the digests of the round oracles
func (v *Verifier) RoundCommitments() []merkle.Digest {
	return append([]merkle.Digest(nil), v.roots[1:]...)
}

// VerifyLayers checks one published layer per oracle against its
// commitment at the depths from Params.LayerDepths
func (v *Verifier) VerifyLayers(layers [][]merkle.Digest) error {
	if len(layers) != len(v.roots) {
		return fmt.Errorf("%w: got %d layers for %d oracles", ErrVerify, len(layers), len(v.roots))
	}
	depths := v.params.LayerDepths()
	for s, layer := range layers {
		if err := v.scheme.VerifyLayer(v.roots[s], depths[s], layer); err != nil {
			return fmt.Errorf("%w: oracle %d: %v", ErrVerify, s, err)
		}
	}
	return nil
}

// VerifyQuery checks that the opening of index folds consistently through
// every oracle into terminal. With layers set, openings are checked
// against those layers instead of the roots; the layers must have been
// checked with VerifyLayers.
func (v *Verifier) VerifyQuery(index int, terminal []field.B128, layers [][]merkle.Digest, proof *QueryProof) error {
	params := v.params
	if index < 0 || index >= params.CodeLen() {
		return fmt.Errorf("%w: query index %d not in [0, %d)", ErrVerify, index, params.CodeLen())
	}
	if proof == nil || len(proof.Openings) != len(params.foldArities) {
		return fmt.Errorf("%w: query proof must open %d oracles", ErrVerify, len(params.foldArities))
	}
	if len(terminal) != len(v.terminal) {
		return fmt.Errorf("%w: terminal codeword has %d values, expected %d", ErrVerify, len(terminal), len(v.terminal))
	}
	for i := range terminal {
		if !terminal[i].Equal(v.terminal[i]) {
			return fmt.Errorf("%w: terminal codeword differs from the proof at %d", ErrVerify, i)
		}
	}
	if layers != nil && len(layers) != len(v.roots) {
		return fmt.Errorf("%w: got %d layers for %d oracles", ErrVerify, len(layers), len(v.roots))
	}

	depths := params.LayerDepths()
	folded := 0
	var carried field.B128
	for s, a := range params.foldArities {
		opening := proof.Openings[s]
		pos := index >> folded
		coset := pos >> a
		if opening == nil || opening.Coset != coset || len(opening.Values) != 1<<a {
			return fmt.Errorf("%w: oracle %d opening does not cover position %d", ErrVerify, s, pos)
		}

		var err error
		if layers != nil {
			err = v.scheme.VerifyCosetAtLayer(layers[s], depths[s], opening)
		} else {
			err = v.scheme.VerifyCoset(v.roots[s], opening)
		}
		if err != nil {
			return fmt.Errorf("%w: oracle %d: %v", ErrVerify, s, err)
		}

		if s > 0 && !opening.Values[pos&(1<<a-1)].Equal(carried) {
			return fmt.Errorf("%w: oracle %d is inconsistent with the previous fold at position %d", ErrVerify, s, pos)
		}

		values := opening.Values
		for k := 0; k < a; k++ {
			level := folded + k
			base := coset << (a - k - 1)
			next := make([]field.B128, len(values)/2)
			for p := range next {
				next[p] = v.ctx.FoldPair(level, base+p, values[2*p], values[2*p+1], v.point[level])
			}
			values = next
		}
		carried = values[0]
		folded += a
	}

	if !terminal[index>>folded].Equal(carried) {
		return fmt.Errorf("%w: query %d does not fold into the terminal codeword", ErrVerify, index)
	}
	return nil
}
