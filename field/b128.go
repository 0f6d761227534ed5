package field

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// BytesPerElement is the serialized size of a B128 element
const BytesPerElement = 16

// B128 is an element of GF(2^128) with modulus x^128 + x^7 + x^2 + x + 1.
// Bit i of the 128-bit value (lo holds bits 0..63, hi holds bits 64..127)
// is the coefficient of x^i.
type B128 struct {
	lo, hi uint64
}

// reductionPoly holds the low terms of the modulus: x^7 + x^2 + x + 1
const reductionPoly = 0x87

// Zero returns the additive identity
func Zero() B128 { return B128{} }

// One returns the multiplicative identity
func One() B128 { return B128{lo: 1} }

// FromUint64 embeds v as the polynomial whose coefficients are the bits of v
func FromUint64(v uint64) B128 { return B128{lo: v} }

// New builds an element from its high and low 64-bit words
func New(hi, lo uint64) B128 { return B128{lo: lo, hi: hi} }

// FromLEBytes interprets up to 16 bytes as a little-endian 128-bit value.
// Shorter input is zero-extended.
func FromLEBytes(b []byte) B128 {
	var buf [BytesPerElement]byte
	copy(buf[:], b)
	return B128{
		lo: binary.LittleEndian.Uint64(buf[:8]),
		hi: binary.LittleEndian.Uint64(buf[8:]),
	}
}

// Words returns the high and low 64-bit words
func (a B128) Words() (hi, lo uint64) { return a.hi, a.lo }

// Bytes returns the 16-byte little-endian encoding of a
func (a B128) Bytes() [BytesPerElement]byte {
	var out [BytesPerElement]byte
	binary.LittleEndian.PutUint64(out[:8], a.lo)
	binary.LittleEndian.PutUint64(out[8:], a.hi)
	return out
}

// PutBytes writes the little-endian encoding of a into dst, which must hold 16 bytes
func (a B128) PutBytes(dst []byte) {
	binary.LittleEndian.PutUint64(dst[:8], a.lo)
	binary.LittleEndian.PutUint64(dst[8:16], a.hi)
}

// BigInt returns the value of a as a non-negative integer
func (a B128) BigInt() *big.Int {
	v := new(big.Int).SetUint64(a.hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(a.lo))
}

// Add returns a + b (XOR)
func (a B128) Add(b B128) B128 {
	return B128{lo: a.lo ^ b.lo, hi: a.hi ^ b.hi}
}

// Sub returns a - b, which equals a + b in characteristic two
func (a B128) Sub(b B128) B128 {
	return a.Add(b)
}

// IsZero reports whether a is the zero element
func (a B128) IsZero() bool {
	return a.lo == 0 && a.hi == 0
}

// Equal reports whether a and b are the same element
func (a B128) Equal(b B128) bool {
	return a == b
}

// Mul returns a * b in the field
func (a B128) Mul(b B128) B128 {
	// Karatsuba over 64-bit halves
	z0hi, z0lo := clmul64(a.lo, b.lo)
	z2hi, z2lo := clmul64(a.hi, b.hi)
	z1hi, z1lo := clmul64(a.lo^a.hi, b.lo^b.hi)
	z1hi ^= z0hi ^ z2hi
	z1lo ^= z0lo ^ z2lo

	p0 := z0lo
	p1 := z0hi ^ z1lo
	p2 := z2lo ^ z1hi
	p3 := z2hi
	return reduce(p3, p2, p1, p0)
}

// Square returns a * a
func (a B128) Square() B128 {
	return a.Mul(a)
}

// Inv returns the multiplicative inverse of a computed as a^(2^128-2).
// The zero element maps to zero.
func (a B128) Inv() B128 {
	result := One()
	t := a
	for i := 1; i < 128; i++ {
		t = t.Square()
		result = result.Mul(t)
	}
	return result
}

// String returns the hexadecimal representation of a
func (a B128) String() string {
	if a.hi == 0 {
		return fmt.Sprintf("0x%x", a.lo)
	}
	return fmt.Sprintf("0x%x%016x", a.hi, a.lo)
}

// clmul64 returns the 128-bit carry-less product of a and b
func clmul64(a, b uint64) (hi, lo uint64) {
	for i := uint(0); i < 64; i++ {
		mask := -((b >> i) & 1)
		lo ^= (a << i) & mask
		hi ^= (a >> (64 - i)) & mask
	}
	return hi, lo
}

// reduce folds the 256-bit product (p3,p2,p1,p0) modulo the field polynomial
func reduce(p3, p2, p1, p0 uint64) B128 {
	// x^128 = x^7 + x^2 + x + 1, so H*x^128 = H*(x^7 + x^2 + x + 1)
	t0 := p2 ^ (p2 << 1) ^ (p2 << 2) ^ (p2 << 7)
	t1 := p3 ^ (p3 << 1) ^ (p3 << 2) ^ (p3 << 7) ^
		(p2 >> 63) ^ (p2 >> 62) ^ (p2 >> 57)
	t2 := (p3 >> 63) ^ (p3 >> 62) ^ (p3 >> 57)

	// t2 has at most 7 bits left above x^128
	t0 ^= t2 ^ (t2 << 1) ^ (t2 << 2) ^ (t2 << 7)

	return B128{lo: p0 ^ t0, hi: p1 ^ t1}
}
