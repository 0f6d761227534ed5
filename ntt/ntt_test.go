package ntt

import (
	"math/rand"
	"testing"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/internal/parallel"
)

func randomVector(rng *rand.Rand, n int) []field.B128 {
	out := make([]field.B128, n)
	for i := range out {
		out[i] = field.New(rng.Uint64(), rng.Uint64())
	}
	return out
}

// lagrangeAt evaluates the interpolant through (Point(x), ys[x]) for x in xs at e
func lagrangeAt(xs []int, ys []field.B128, e int) field.B128 {
	var acc field.B128
	for _, j := range xs {
		num, den := field.One(), field.One()
		for _, m := range xs {
			if m == j {
				continue
			}
			num = num.Mul(Point(e).Add(Point(m)))
			den = den.Mul(Point(j).Add(Point(m)))
		}
		acc = acc.Add(ys[j].Mul(num).Mul(den.Inv()))
	}
	return acc
}

func TestNewDomainContext(t *testing.T) {
	for _, logLen := range []int{0, 1, 5, 10} {
		ctx, err := NewDomainContext(logLen)
		if err != nil {
			t.Fatalf("NewDomainContext(%d) failed: %v", logLen, err)
		}
		if ctx.LogLen() != logLen {
			t.Errorf("expected log length %d, got %d", logLen, ctx.LogLen())
		}
	}

	for _, logLen := range []int{-1, MaxLogLen + 1} {
		if _, err := NewDomainContext(logLen); err == nil {
			t.Errorf("expected error for log length %d", logLen)
		}
	}
}

func TestTwiddleLevelZeroIsIdentity(t *testing.T) {
	// Ŵ_0(y) = y, so the level-0 twiddle of block j is the point 2j
	ctx, err := NewDomainContext(6)
	if err != nil {
		t.Fatal(err)
	}
	for j := 0; j < 32; j++ {
		if !ctx.Twiddle(0, j).Equal(Point(2 * j)) {
			t.Errorf("twiddle(0, %d) = %s, want %s", j, ctx.Twiddle(0, j), Point(2*j))
		}
	}
}

func TestForwardInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ctx, err := NewDomainContext(8)
	if err != nil {
		t.Fatal(err)
	}

	for _, logN := range []int{0, 1, 3, 8} {
		data := randomVector(rng, 1<<logN)
		orig := append([]field.B128(nil), data...)

		if err := ctx.Forward(data); err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		if err := ctx.Inverse(data); err != nil {
			t.Fatalf("Inverse failed: %v", err)
		}
		for i := range data {
			if !data[i].Equal(orig[i]) {
				t.Fatalf("log %d: element %d not restored", logN, i)
			}
		}
	}
}

func TestForwardIsLowDegreeEvaluation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ctx, err := NewDomainContext(5)
	if err != nil {
		t.Fatal(err)
	}

	// 8 coefficients padded to 32 give a degree < 8 polynomial, so any 8
	// positions determine all others
	data := make([]field.B128, 32)
	copy(data, randomVector(rng, 8))
	if err := ctx.Forward(data); err != nil {
		t.Fatal(err)
	}

	known := []int{3, 4, 9, 12, 17, 21, 26, 30}
	for _, e := range []int{0, 1, 2, 15, 31} {
		if got := lagrangeAt(known, data, e); !got.Equal(data[e]) {
			t.Errorf("position %d: interpolated %s, codeword %s", e, got, data[e])
		}
	}
}

func TestForwardStrategiesIdentical(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	seqCtx, err := NewDomainContext(10)
	if err != nil {
		t.Fatal(err)
	}
	parCtx, err := NewDomainContext(10, WithShares(3, parallel.Parallel(4)))
	if err != nil {
		t.Fatal(err)
	}

	a := randomVector(rng, 1024)
	b := append([]field.B128(nil), a...)
	if err := seqCtx.Forward(a); err != nil {
		t.Fatal(err)
	}
	if err := parCtx.Forward(b); err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("element %d differs between strategies", i)
		}
	}
}

func TestTransformRejectsBadLength(t *testing.T) {
	ctx, err := NewDomainContext(3)
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Forward(make([]field.B128, 3)); err == nil {
		t.Errorf("expected error for non power of two length")
	}
	if err := ctx.Forward(make([]field.B128, 16)); err == nil {
		t.Errorf("expected error for length beyond domain")
	}
	if err := ctx.Inverse(nil); err == nil {
		t.Errorf("expected error for empty input")
	}
}

func TestFoldComputesMultilinearEvaluation(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	const nVars, logInvRate = 4, 2

	ctx, err := NewDomainContext(nVars + logInvRate)
	if err != nil {
		t.Fatal(err)
	}

	values := randomVector(rng, 1<<nVars)
	codeword := make([]field.B128, 1<<(nVars+logInvRate))
	copy(codeword, values)
	if err := ctx.Forward(codeword); err != nil {
		t.Fatal(err)
	}

	point := randomVector(rng, nVars)
	for i, r := range point {
		codeword, err = ctx.Fold(codeword, i, r)
		if err != nil {
			t.Fatalf("Fold at level %d failed: %v", i, err)
		}
	}

	claim, err := field.EvaluateMLE(values, point)
	if err != nil {
		t.Fatal(err)
	}
	if len(codeword) != 1<<logInvRate {
		t.Fatalf("expected terminal length %d, got %d", 1<<logInvRate, len(codeword))
	}
	for i, v := range codeword {
		if !v.Equal(claim) {
			t.Errorf("terminal[%d] = %s, want %s", i, v, claim)
		}
	}
}

func TestFoldRejectsBadInput(t *testing.T) {
	ctx, err := NewDomainContext(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Fold(make([]field.B128, 1), 0, field.One()); err == nil {
		t.Errorf("expected error for odd codeword")
	}
	if _, err := ctx.Fold(make([]field.B128, 8), 3, field.One()); err == nil {
		t.Errorf("expected error for level beyond domain")
	}
	if _, err := ctx.Fold(make([]field.B128, 8), 1, field.One()); err == nil {
		t.Errorf("expected error for codeword larger than the level allows")
	}
}
