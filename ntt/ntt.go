// Package ntt implements the additive NTT over GF(2^128) in the novel
// polynomial basis, evaluating on the binary subspace spanned by x^0..x^(n-1).
//
// Position i of a transformed vector is the evaluation at the field element
// whose integer value is i.
package ntt

import (
	"fmt"
	"math/bits"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/internal/parallel"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ntt")

// MaxLogLen bounds the domain size so twiddle tables stay in memory
const MaxLogLen = 28

// DomainContext holds the subspace twiddle tables for a domain of size
// 2^logLen. It is immutable after construction.
type DomainContext struct {
	logLen int

	// twiddles[i][j] = Ŵ_i(j << (i+1)), the normalized subspace
	// polynomial of level i at the base of block j
	twiddles [][]field.B128

	logShares int
	strategy  parallel.Strategy
}

// Option configures a DomainContext
type Option func(*DomainContext)

// WithShares splits every butterfly layer into at most 2^logShares units run
// through s
func WithShares(logShares int, s parallel.Strategy) Option {
	return func(c *DomainContext) {
		c.logShares = logShares
		c.strategy = s
	}
}

// NewDomainContext pre-expands the twiddles for a domain of 2^logLen points
func NewDomainContext(logLen int, opts ...Option) (*DomainContext, error) {
	if logLen < 0 || logLen > MaxLogLen {
		return nil, fmt.Errorf("domain log length %d out of range [0, %d]", logLen, MaxLogLen)
	}

	c := &DomainContext{
		logLen:   logLen,
		strategy: parallel.Sequential(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logShares < 0 {
		c.logShares = 0
	}

	// w[i][b] = W_i(β_b), with W_0(y) = y and W_{i+1}(y) = W_i(y)(W_i(y) + W_i(β_i))
	w := make([][]field.B128, logLen)
	if logLen > 0 {
		w[0] = make([]field.B128, logLen)
		for b := range w[0] {
			w[0][b] = basis(b)
		}
	}
	for i := 1; i < logLen; i++ {
		prev := w[i-1]
		w[i] = make([]field.B128, logLen)
		for b := range w[i] {
			w[i][b] = prev[b].Mul(prev[b].Add(prev[i-1]))
		}
	}

	c.twiddles = make([][]field.B128, logLen)
	for i := 0; i < logLen; i++ {
		norm := w[i][i].Inv()
		table := make([]field.B128, 1<<(logLen-1-i))
		for b := i + 1; b < logLen; b++ {
			v := w[i][b].Mul(norm)
			step := 1 << (b - i - 1)
			for j := 0; j < step; j++ {
				table[j|step] = table[j].Add(v)
			}
		}
		c.twiddles[i] = table
	}

	log.Debugf("built domain context with log length %d", logLen)
	return c, nil
}

// basis returns β_b = x^b
func basis(b int) field.B128 {
	if b < 64 {
		return field.FromUint64(1 << b)
	}
	return field.New(1<<(b-64), 0)
}

// LogLen returns the log size of the domain
func (c *DomainContext) LogLen() int {
	return c.logLen
}

// Twiddle returns Ŵ_level evaluated at the base of block
func (c *DomainContext) Twiddle(level, block int) field.B128 {
	return c.twiddles[level][block]
}

// Point returns the domain element at position i
func Point(i int) field.B128 {
	return field.FromUint64(uint64(i))
}

func (c *DomainContext) logSize(n int) (int, error) {
	if n == 0 || n&(n-1) != 0 {
		return 0, fmt.Errorf("transform length %d is not a power of two", n)
	}
	l := bits.TrailingZeros(uint(n))
	if l > c.logLen {
		return 0, fmt.Errorf("transform length 2^%d exceeds domain 2^%d", l, c.logLen)
	}
	return l, nil
}

// layer runs fn on every butterfly (idx0, idx0 | 1<<level) of a vector of
// length n
func (c *DomainContext) layer(n, level int, fn func(idx0, idx1 int)) error {
	half := n / 2
	lowMask := (1 << level) - 1
	parts := half
	if c.logShares < bits.Len(uint(half)) {
		parts = 1 << c.logShares
	}
	return parallel.Chunks(c.strategy, half, parts, func(start, end int) error {
		for b := start; b < end; b++ {
			idx0 := (b>>level)<<(level+1) | (b & lowMask)
			fn(idx0, idx0|1<<level)
		}
		return nil
	})
}

// Forward evaluates the novel-basis coefficients in data, in place, on the
// first len(data) domain points
func (c *DomainContext) Forward(data []field.B128) error {
	l, err := c.logSize(len(data))
	if err != nil {
		return err
	}
	for i := l - 1; i >= 0; i-- {
		tw := c.twiddles[i]
		err := c.layer(len(data), i, func(idx0, idx1 int) {
			t := tw[idx0>>(i+1)]
			data[idx0] = data[idx0].Add(t.Mul(data[idx1]))
			data[idx1] = data[idx1].Add(data[idx0])
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Inverse undoes Forward in place
func (c *DomainContext) Inverse(data []field.B128) error {
	l, err := c.logSize(len(data))
	if err != nil {
		return err
	}
	for i := 0; i < l; i++ {
		tw := c.twiddles[i]
		err := c.layer(len(data), i, func(idx0, idx1 int) {
			t := tw[idx0>>(i+1)]
			data[idx1] = data[idx1].Add(data[idx0])
			data[idx0] = data[idx0].Add(t.Mul(data[idx1]))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// FoldPair folds the evaluations (u, v) of pair block at the given level
// with challenge r. The pair is first split into its even and odd halves
// (g0, g1) by the inverse butterfly and then combined as g0 + r(g0 + g1).
func (c *DomainContext) FoldPair(level, block int, u, v, r field.B128) field.B128 {
	t := c.twiddles[level][block]
	g1 := u.Add(v)
	g0 := u.Add(t.Mul(g1))
	return g0.Add(r.Mul(g0.Add(g1)))
}

// Fold halves a codeword that has already been folded level times
func (c *DomainContext) Fold(codeword []field.B128, level int, r field.B128) ([]field.B128, error) {
	if len(codeword) < 2 || len(codeword)&1 != 0 {
		return nil, fmt.Errorf("cannot fold codeword of length %d", len(codeword))
	}
	if level >= c.logLen || len(codeword)>>1 > len(c.twiddles[level]) {
		return nil, fmt.Errorf("fold level %d out of range for codeword of length %d", level, len(codeword))
	}
	out := make([]field.B128, len(codeword)/2)
	for p := range out {
		out[p] = c.FoldPair(level, p, codeword[2*p], codeword[2*p+1], r)
	}
	return out, nil
}
