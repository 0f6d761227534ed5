// Package encoding packs raw payload bytes into a power-of-two table of
// GF(2^128) elements, the multilinear-extension layout consumed by the
// commitment engine.
package encoding

import (
	"errors"
	"math/bits"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/internal/parallel"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("encoding")

// ErrEmptyPayload is returned by Pack for zero-length input when
// WithRejectEmpty is set
var ErrEmptyPayload = errors.New("empty payload")

// PackedPayload is a payload laid out as 2^TotalNVars field elements
type PackedPayload struct {
	Values     []field.B128
	TotalNVars int
	ByteLen    int // length of the source payload in bytes
}

type config struct {
	strategy    parallel.Strategy
	rejectEmpty bool
}

// Option configures Pack
type Option func(*config)

// WithStrategy selects the execution strategy for chunk conversion
func WithStrategy(s parallel.Strategy) Option {
	return func(c *config) {
		c.strategy = s
	}
}

// WithRejectEmpty makes Pack fail with ErrEmptyPayload on empty input
func WithRejectEmpty() Option {
	return func(c *config) {
		c.rejectEmpty = true
	}
}

// ElementCount returns the number of elements needed to hold n bytes
func ElementCount(n int) int {
	return (n + field.BytesPerElement - 1) / field.BytesPerElement
}

// NumVars returns ceil(log2(count)), with 0 for count <= 1
func NumVars(count int) int {
	if count <= 1 {
		return 0
	}
	return bits.Len(uint(count - 1))
}

// Pack splits data into 16-byte little-endian chunks and zero-pads the
// resulting element table to a power-of-two length
func Pack(data []byte, opts ...Option) (*PackedPayload, error) {
	cfg := config{strategy: parallel.Sequential()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(data) == 0 && cfg.rejectEmpty {
		return nil, ErrEmptyPayload
	}

	count := ElementCount(len(data))
	nVars := NumVars(count)
	values := make([]field.B128, 1<<nVars)

	// Each chunk writes only its own slot
	err := cfg.strategy.Run(count, func(i int) error {
		values[i] = chunkToElement(data, i)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("packed %d bytes into %d elements (n_vars=%d)", len(data), len(values), nVars)

	return &PackedPayload{
		Values:     values,
		TotalNVars: nVars,
		ByteLen:    len(data),
	}, nil
}

// chunkToElement converts chunk i of data, zero-extending a short tail
func chunkToElement(data []byte, i int) field.B128 {
	start := i * field.BytesPerElement
	end := start + field.BytesPerElement
	if end > len(data) {
		end = len(data)
	}
	return field.FromLEBytes(data[start:end])
}

// Unpack returns the original payload bytes
func Unpack(p *PackedPayload) []byte {
	out := make([]byte, len(p.Values)*field.BytesPerElement)
	for i, v := range p.Values {
		v.PutBytes(out[i*field.BytesPerElement:])
	}
	if p.ByteLen < len(out) {
		out = out[:p.ByteLen]
	}
	return out
}

// Len returns the number of packed elements
func (p *PackedPayload) Len() int {
	return len(p.Values)
}
