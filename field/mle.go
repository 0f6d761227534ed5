package field

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// EqIndPartialEval returns the 2^len(point) evaluations of the equality
// indicator eq(point, j) over the hypercube. Bit i of j (little-endian)
// selects point[i] when set and 1+point[i] otherwise.
func EqIndPartialEval(point []B128) []B128 {
	out := make([]B128, 1<<len(point))
	out[0] = One()
	for i, r := range point {
		half := 1 << i
		for j := 0; j < half; j++ {
			hi := out[j].Mul(r)
			out[j+half] = hi
			out[j] = out[j].Add(hi)
		}
	}
	return out
}

// InnerProduct returns sum a[i]*b[i]. The slices must have equal length.
func InnerProduct(a, b []B128) (B128, error) {
	if len(a) != len(b) {
		return Zero(), fmt.Errorf("inner product length mismatch: %d != %d", len(a), len(b))
	}
	var acc B128
	for i := range a {
		acc = acc.Add(a[i].Mul(b[i]))
	}
	return acc, nil
}

// EvaluateMLE evaluates the multilinear extension of values at point.
// len(values) must equal 2^len(point).
func EvaluateMLE(values, point []B128) (B128, error) {
	if len(values) != 1<<len(point) {
		return Zero(), fmt.Errorf("mle has %d values, point expects %d", len(values), 1<<len(point))
	}
	return InnerProduct(values, EqIndPartialEval(point))
}

// RandomFrom reads a uniformly random element from r
func RandomFrom(r io.Reader) (B128, error) {
	var buf [BytesPerElement]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Zero(), err
	}
	return B128{
		lo: binary.LittleEndian.Uint64(buf[:8]),
		hi: binary.LittleEndian.Uint64(buf[8:]),
	}, nil
}

// Random returns a uniformly random element from crypto/rand
func Random() (B128, error) {
	return RandomFrom(rand.Reader)
}

// BatchInvert inverts every non-zero element of xs in place with a single
// field inversion. Zero entries stay zero.
func BatchInvert(xs []B128) {
	if len(xs) == 0 {
		return
	}
	prefix := make([]B128, len(xs))
	acc := One()
	for i, x := range xs {
		prefix[i] = acc
		if !x.IsZero() {
			acc = acc.Mul(x)
		}
	}
	inv := acc.Inv()
	for i := len(xs) - 1; i >= 0; i-- {
		if xs[i].IsZero() {
			continue
		}
		next := inv.Mul(xs[i])
		xs[i] = inv.Mul(prefix[i])
		inv = next
	}
}
