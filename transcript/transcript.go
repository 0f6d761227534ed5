// Package transcript implements a Fiat-Shamir transcript. The prover
// appends messages to a byte buffer; challenges are squeezed from a BLAKE3
// XOF over every message written so far. The verifier replays the same
// buffer and derives identical challenges.
package transcript

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"lukechampine.com/blake3"

	"github.com/ppopth/go-das/field"
)

var (
	ErrTruncated    = errors.New("transcript truncated")
	ErrTrailingData = errors.New("transcript has unread data")
)

const domainTag = "go-das/transcript/v1"

// challenger absorbs messages and squeezes challenges
type challenger struct {
	h *blake3.Hasher
}

func newChallenger() *challenger {
	h := blake3.New(32, nil)
	h.Write([]byte(domainTag))
	return &challenger{h: h}
}

func (c *challenger) observe(b []byte) {
	c.h.Write(b)
}

// squeeze fills out from the XOF and absorbs it so later challenges differ
func (c *challenger) squeeze(out []byte) {
	if _, err := io.ReadFull(c.h.XOF(), out); err != nil {
		panic(fmt.Sprintf("blake3 xof: %v", err))
	}
	c.h.Write([]byte{0xff})
	c.h.Write(out)
}

func (c *challenger) sampleElement() field.B128 {
	var buf [field.BytesPerElement]byte
	c.squeeze(buf[:])
	return field.FromLEBytes(buf[:])
}

// sampleIndex draws uniformly from [0, n) by rejection
func (c *challenger) sampleIndex(n int) int {
	if n <= 1 {
		return 0
	}
	bound := uint64(n)
	limit := ^uint64(0) - (^uint64(0) % bound)
	var buf [8]byte
	for {
		c.squeeze(buf[:])
		v := binary.LittleEndian.Uint64(buf[:])
		if v < limit {
			return int(v % bound)
		}
	}
}

// Prover writes messages and samples challenges
type Prover struct {
	buf []byte
	ch  *challenger
}

// NewProver returns an empty prover transcript
func NewProver() *Prover {
	return &Prover{ch: newChallenger()}
}

// Write appends a raw message
func (p *Prover) Write(b []byte) {
	p.buf = append(p.buf, b...)
	p.ch.observe(b)
}

// WriteDigest appends a 32-byte digest
func (p *Prover) WriteDigest(d [32]byte) {
	p.Write(d[:])
}

// WriteElements appends field elements in little-endian form
func (p *Prover) WriteElements(values ...field.B128) {
	buf := make([]byte, len(values)*field.BytesPerElement)
	for i, v := range values {
		v.PutBytes(buf[i*field.BytesPerElement:])
	}
	p.Write(buf)
}

// WriteUint64 appends v little-endian
func (p *Prover) WriteUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	p.Write(buf[:])
}

// SampleElement squeezes a field challenge
func (p *Prover) SampleElement() field.B128 {
	return p.ch.sampleElement()
}

// SampleIndex squeezes a uniform index in [0, n)
func (p *Prover) SampleIndex(n int) int {
	return p.ch.sampleIndex(n)
}

// Len returns the number of bytes written
func (p *Prover) Len() int {
	return len(p.buf)
}

// Bytes returns a copy of the serialized transcript
func (p *Prover) Bytes() []byte {
	return append([]byte(nil), p.buf...)
}

// IntoVerifier returns a verifier replaying everything written so far
func (p *Prover) IntoVerifier() *Verifier {
	return NewVerifier(p.Bytes())
}

// Verifier reads messages and samples challenges
type Verifier struct {
	buf []byte
	pos int
	ch  *challenger
}

// NewVerifier replays a serialized transcript
func NewVerifier(b []byte) *Verifier {
	return &Verifier{buf: b, ch: newChallenger()}
}

// Read consumes the next n bytes
func (v *Verifier) Read(n int) ([]byte, error) {
	if n < 0 || len(v.buf)-v.pos < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, len(v.buf)-v.pos)
	}
	out := v.buf[v.pos : v.pos+n]
	v.pos += n
	v.ch.observe(out)
	return out, nil
}

// ReadDigest consumes a 32-byte digest
func (v *Verifier) ReadDigest() ([32]byte, error) {
	var d [32]byte
	b, err := v.Read(len(d))
	if err != nil {
		return d, err
	}
	copy(d[:], b)
	return d, nil
}

// ReadElements consumes n field elements
func (v *Verifier) ReadElements(n int) ([]field.B128, error) {
	if n < 0 || n > (len(v.buf)-v.pos)/field.BytesPerElement {
		return nil, fmt.Errorf("%w: need %d elements", ErrTruncated, n)
	}
	b, err := v.Read(n * field.BytesPerElement)
	if err != nil {
		return nil, err
	}
	out := make([]field.B128, n)
	for i := range out {
		out[i] = field.FromLEBytes(b[i*field.BytesPerElement : (i+1)*field.BytesPerElement])
	}
	return out, nil
}

// ReadUint64 consumes a little-endian uint64
func (v *Verifier) ReadUint64() (uint64, error) {
	b, err := v.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// SampleElement squeezes a field challenge
func (v *Verifier) SampleElement() field.B128 {
	return v.ch.sampleElement()
}

// SampleIndex squeezes a uniform index in [0, n)
func (v *Verifier) SampleIndex(n int) int {
	return v.ch.sampleIndex(n)
}

// Remaining returns the number of unread bytes
func (v *Verifier) Remaining() int {
	return len(v.buf) - v.pos
}

// Finish fails if any bytes were left unread
func (v *Verifier) Finish() error {
	if r := v.Remaining(); r != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, r)
	}
	return nil
}
