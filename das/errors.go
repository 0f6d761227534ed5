package das

import "errors"

var (
	// ErrConfig reports invalid construction or initialization parameters
	ErrConfig = errors.New("invalid protocol configuration")
	// ErrDimensionMismatch reports an evaluation point of the wrong length
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrProof reports a failed proof, including a wrong evaluation claim
	ErrProof = errors.New("proof rejected")
	// ErrInclusion reports a Merkle path that does not reach the digest
	ErrInclusion = errors.New("inclusion proof mismatch")
	// ErrOutOfRange reports a sample index beyond the codeword
	ErrOutOfRange = errors.New("sample index out of range")
	// ErrNotAvailable reports a sampling session that found a missing or
	// invalid share
	ErrNotAvailable = errors.New("data not available")
)
