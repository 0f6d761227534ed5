package share

import (
	"fmt"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/merkle"
)

func encodeProof(proof *merkle.Proof) (value []byte, siblings [][]byte) {
	v := proof.Value.Bytes()
	siblings = make([][]byte, len(proof.Siblings))
	for i := range proof.Siblings {
		siblings[i] = append([]byte(nil), proof.Siblings[i][:]...)
	}
	return v[:], siblings
}

func decodeProof(index int, value []byte, siblings [][]byte) (*merkle.Proof, error) {
	if len(value) != field.BytesPerElement {
		return nil, fmt.Errorf("%w: value has %d bytes", ErrMalformedResponse, len(value))
	}
	proof := &merkle.Proof{
		Index:    index,
		Value:    field.FromLEBytes(value),
		Siblings: make([]merkle.Digest, len(siblings)),
	}
	for i, s := range siblings {
		if len(s) != merkle.DigestSize {
			return nil, fmt.Errorf("%w: sibling %d has %d bytes", ErrMalformedResponse, i, len(s))
		}
		copy(proof.Siblings[i][:], s)
	}
	return proof, nil
}
