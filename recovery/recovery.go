// Package recovery restores erased positions of a Reed-Solomon codeword by
// Lagrange interpolation. Position i of a codeword is the evaluation at
// the field element whose integer value is i.
package recovery

import (
	"errors"
	"fmt"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/internal/parallel"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("recovery")

var (
	ErrInsufficientShares = errors.New("insufficient shares to reconstruct")
	ErrOutOfRange         = errors.New("erased index out of range")
)

type config struct {
	strategy parallel.Strategy
}

// Option configures Reconstruct
type Option func(*config)

// WithStrategy selects how erased positions are fanned out
func WithStrategy(s parallel.Strategy) Option {
	return func(c *config) {
		c.strategy = s
	}
}

// point returns the domain element of codeword position i
func point(i int) field.B128 {
	return field.FromUint64(uint64(i))
}

// Reconstruct overwrites every erased position of codeword with the value
// of the unique polynomial of degree below messageLen through the first
// messageLen surviving positions. Duplicate erased indices are allowed.
// On ErrInsufficientShares the codeword is left untouched.
func Reconstruct(codeword []field.B128, erased []int, messageLen int, opts ...Option) error {
	cfg := config{strategy: parallel.Sequential()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if messageLen < 1 {
		return fmt.Errorf("message length must be positive, got %d", messageLen)
	}

	isErased := make([]bool, len(codeword))
	for _, e := range erased {
		if e < 0 || e >= len(codeword) {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, e, len(codeword))
		}
		isErased[e] = true
	}

	known := make([]int, 0, messageLen)
	var targets []int
	for i, gone := range isErased {
		switch {
		case gone:
			targets = append(targets, i)
		case len(known) < messageLen:
			known = append(known, i)
		}
	}
	if len(known) < messageLen {
		return fmt.Errorf("%w: %d surviving positions, need %d", ErrInsufficientShares, len(known), messageLen)
	}
	if len(targets) == 0 {
		return nil
	}

	weights, err := barycentricWeights(known, cfg.strategy)
	if err != nil {
		return err
	}

	ys := make([]field.B128, len(known))
	for j, i := range known {
		ys[j] = codeword[i]
	}

	values := make([]field.B128, len(targets))
	err = cfg.strategy.Run(len(targets), func(t int) error {
		values[t] = interpolateAt(point(targets[t]), known, ys, weights)
		return nil
	})
	if err != nil {
		return err
	}

	for t, e := range targets {
		codeword[e] = values[t]
	}

	log.Debugf("reconstructed %d erased positions from %d shares", len(targets), len(known))
	return nil
}

// barycentricWeights returns w_j = prod_{m != j} (x_j - x_m)^{-1}
func barycentricWeights(known []int, s parallel.Strategy) ([]field.B128, error) {
	weights := make([]field.B128, len(known))
	err := s.Run(len(known), func(j int) error {
		xj := point(known[j])
		prod := field.One()
		for m, km := range known {
			if m != j {
				prod = prod.Mul(xj.Sub(point(km)))
			}
		}
		weights[j] = prod
		return nil
	})
	if err != nil {
		return nil, err
	}
	field.BatchInvert(weights)
	return weights, nil
}

// interpolateAt evaluates sum_j y_j prod_{m != j} (x - x_m)(x_j - x_m)^{-1}
// for an x outside the known set, as L(x) sum_j y_j w_j / (x - x_j) with
// L(x) = prod_m (x - x_m)
func interpolateAt(x field.B128, known []int, ys, weights []field.B128) field.B128 {
	diffs := make([]field.B128, len(known))
	vanishing := field.One()
	for j, kj := range known {
		diffs[j] = x.Sub(point(kj))
		vanishing = vanishing.Mul(diffs[j])
	}
	field.BatchInvert(diffs)

	var acc field.B128
	for j := range known {
		acc = acc.Add(ys[j].Mul(weights[j]).Mul(diffs[j]))
	}
	return vanishing.Mul(acc)
}

// MaxErasures returns how many positions of a codeword of length
// codewordLen can be lost while staying recoverable
func MaxErasures(codewordLen, messageLen int) int {
	if codewordLen < messageLen {
		return 0
	}
	return codewordLen - messageLen
}
