package field

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// BinaryField is a generic GF(2^n) over math/big. It is slow and serves as
// the reference arithmetic that B128 is checked against.
type BinaryField struct {
	n           int      // extension degree
	irreducible *big.Int // modulus including the x^n term
}

// NewBinaryField creates GF(2^n) with the given irreducible polynomial
func NewBinaryField(n int, irreducible *big.Int) *BinaryField {
	return &BinaryField{
		n:           n,
		irreducible: new(big.Int).Set(irreducible),
	}
}

// NewBinaryFieldGF2_128 creates GF(2^128) with the B128 modulus x^128 + x^7 + x^2 + x + 1
func NewBinaryFieldGF2_128() *BinaryField {
	irreducible := new(big.Int).Lsh(big.NewInt(1), 128)
	irreducible.Or(irreducible, big.NewInt(reductionPoly))
	return NewBinaryField(128, irreducible)
}

// binaryElement is an element of a BinaryField in polynomial representation
type binaryElement struct {
	value *big.Int
	field *BinaryField
}

func (f *BinaryField) element(v *big.Int) *binaryElement {
	return &binaryElement{value: v, field: f}
}

// Zero returns the additive identity
func (f *BinaryField) Zero() Element {
	return f.element(big.NewInt(0))
}

// One returns the multiplicative identity
func (f *BinaryField) One() Element {
	return f.element(big.NewInt(1))
}

// Random returns a uniformly random field element
func (f *BinaryField) Random() (Element, error) {
	max := new(big.Int).Lsh(big.NewInt(1), uint(f.n))
	val, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}
	return f.element(val), nil
}

// FromBigInt reduces v modulo the field polynomial
func (f *BinaryField) FromBigInt(v *big.Int) Element {
	return f.element(f.reduce(new(big.Int).Abs(v)))
}

// FromB128 converts a B128 into this field's representation
func (f *BinaryField) FromB128(a B128) Element {
	return f.FromBigInt(a.BigInt())
}

// BitsPerElement returns the extension degree
func (f *BinaryField) BitsPerElement() int {
	return f.n
}

// reduce performs polynomial reduction modulo the irreducible polynomial
func (f *BinaryField) reduce(val *big.Int) *big.Int {
	result := new(big.Int).Set(val)
	degree := f.irreducible.BitLen() - 1
	for result.BitLen() > degree {
		shift := result.BitLen() - 1 - degree
		result.Xor(result, new(big.Int).Lsh(f.irreducible, uint(shift)))
	}
	return result
}

func (e *binaryElement) other(b Element) *binaryElement {
	o, ok := b.(*binaryElement)
	if !ok || o.field != e.field {
		panic("incompatible field elements")
	}
	return o
}

// Add returns e + b (XOR)
func (e *binaryElement) Add(b Element) Element {
	return e.field.element(new(big.Int).Xor(e.value, e.other(b).value))
}

// Sub equals Add in characteristic two
func (e *binaryElement) Sub(b Element) Element {
	return e.Add(b)
}

// Mul returns e * b using shift-and-xor multiplication followed by reduction
func (e *binaryElement) Mul(b Element) Element {
	return e.field.element(e.field.reduce(polyMul(e.value, e.other(b).value)))
}

// Inv returns the inverse of e via the extended Euclidean algorithm over GF(2)[x]
func (e *binaryElement) Inv() Element {
	if e.IsZero() {
		panic("zero element is not invertible")
	}

	oldR := new(big.Int).Set(e.field.irreducible)
	r := new(big.Int).Set(e.value)
	oldS := big.NewInt(0)
	s := big.NewInt(1)

	for r.Sign() > 0 {
		q, rem := polyDivMod(oldR, r)
		oldR, r = r, rem
		oldS, s = s, new(big.Int).Xor(oldS, polyMul(q, s))
	}
	return e.field.element(e.field.reduce(oldS))
}

// IsZero reports whether e is zero
func (e *binaryElement) IsZero() bool {
	return e.value.Sign() == 0
}

// Equal reports whether e and b hold the same value
func (e *binaryElement) Equal(b Element) bool {
	o, ok := b.(*binaryElement)
	if !ok {
		return false
	}
	return e.value.Cmp(o.value) == 0
}

// BigInt returns a copy of the underlying value
func (e *binaryElement) BigInt() *big.Int {
	return new(big.Int).Set(e.value)
}

// String returns the hexadecimal representation of e
func (e *binaryElement) String() string {
	return fmt.Sprintf("0x%x", e.value)
}

// polyMul multiplies two polynomials over GF(2)
func polyMul(a, b *big.Int) *big.Int {
	result := big.NewInt(0)
	x := new(big.Int).Set(a)
	y := new(big.Int).Set(b)
	for y.Sign() > 0 {
		if y.Bit(0) == 1 {
			result.Xor(result, x)
		}
		x.Lsh(x, 1)
		y.Rsh(y, 1)
	}
	return result
}

// polyDivMod divides a by b over GF(2)
func polyDivMod(a, b *big.Int) (*big.Int, *big.Int) {
	if b.Sign() == 0 {
		panic("division by zero polynomial")
	}
	quotient := big.NewInt(0)
	remainder := new(big.Int).Set(a)
	bDegree := b.BitLen() - 1
	for remainder.BitLen() > bDegree {
		shift := remainder.BitLen() - 1 - bDegree
		quotient.SetBit(quotient, shift, 1)
		remainder.Xor(remainder, new(big.Int).Lsh(b, uint(shift)))
	}
	return quotient, remainder
}
