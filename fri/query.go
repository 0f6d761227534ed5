package fri

import (
	"fmt"

	"github.com/ppopth/go-das/merkle"
	"github.com/ppopth/go-das/transcript"
)

// QueryProof opens one query position in every oracle. Openings[s] is the
// coset of oracle s that folds into the position's value in oracle s+1.
type QueryProof struct {
	Index    int
	Openings []*merkle.CosetProof
}

// QueryProver answers queries against the oracles of one proof
type QueryProver struct {
	params *Params
	trees  []*merkle.Tree
}

// ProveQuery opens codeword position index through every oracle
func (qp *QueryProver) ProveQuery(index int) (*QueryProof, error) {
	if index < 0 || index >= qp.params.CodeLen() {
		return nil, fmt.Errorf("%w: query index %d not in [0, %d)", ErrProve, index, qp.params.CodeLen())
	}

	proof := &QueryProof{Index: index}
	folded := 0
	for s, a := range qp.params.foldArities {
		coset := (index >> folded) >> a
		opening, err := qp.trees[s].ProveCoset(coset, a)
		if err != nil {
			return nil, fmt.Errorf("%w: oracle %d: %v", ErrProve, s, err)
		}
		proof.Openings = append(proof.Openings, opening)
		folded += a
	}
	return proof, nil
}

// Layers returns, for every oracle, its tree layer at the depth given by
// Params.LayerDepths
func (qp *QueryProver) Layers() ([][]merkle.Digest, error) {
	depths := qp.params.LayerDepths()
	layers := make([][]merkle.Digest, len(qp.trees))
	for s, tree := range qp.trees {
		layer, err := tree.Layer(depths[s])
		if err != nil {
			return nil, err
		}
		layers[s] = layer
	}
	return layers, nil
}

// Params returns the code parameters the oracles were built with
func (qp *QueryProver) Params() *Params {
	return qp.params
}

func writeQueryProof(tr *transcript.Prover, proof *QueryProof) {
	for _, opening := range proof.Openings {
		tr.WriteElements(opening.Values...)
		for _, sib := range opening.Siblings {
			tr.WriteDigest(sib)
		}
	}
}

func readQueryProof(tr *transcript.Verifier, params *Params, index int) (*QueryProof, error) {
	proof := &QueryProof{Index: index}
	folded := 0
	for s, a := range params.foldArities {
		values, err := tr.ReadElements(1 << a)
		if err != nil {
			return nil, err
		}
		depth := params.oracleLogLen(s) - a
		siblings := make([]merkle.Digest, depth)
		for i := range siblings {
			if siblings[i], err = tr.ReadDigest(); err != nil {
				return nil, err
			}
		}
		proof.Openings = append(proof.Openings, &merkle.CosetProof{
			Coset:    (index >> folded) >> a,
			Values:   values,
			Siblings: siblings,
		})
		folded += a
	}
	return proof, nil
}
