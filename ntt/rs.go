package ntt

import (
	"fmt"

	"github.com/ppopth/go-das/field"
)

// EncodeRS extends a power-of-two message by 2^logInvRate. The message is
// read as novel-basis coefficients, zero-padded, and evaluated on the
// first len(values)<<logInvRate domain points.
func (c *DomainContext) EncodeRS(values []field.B128, logInvRate int) ([]field.B128, error) {
	if logInvRate < 0 {
		return nil, fmt.Errorf("negative log inverse rate %d", logInvRate)
	}
	n := len(values)
	if n == 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("message length %d is not a power of two", n)
	}
	codeword := make([]field.B128, n<<logInvRate)
	copy(codeword, values)
	if err := c.Forward(codeword); err != nil {
		return nil, err
	}
	return codeword, nil
}

// DecodeRS interpolates a codeword back to its message. Coefficients above
// the message length are discarded.
func (c *DomainContext) DecodeRS(codeword []field.B128, logInvRate int) ([]field.B128, error) {
	if logInvRate < 0 {
		return nil, fmt.Errorf("negative log inverse rate %d", logInvRate)
	}
	n := len(codeword) >> logInvRate
	if n == 0 || n<<logInvRate != len(codeword) {
		return nil, fmt.Errorf("codeword length %d does not fit rate 2^-%d", len(codeword), logInvRate)
	}
	coeffs := append([]field.B128(nil), codeword...)
	if err := c.Inverse(coeffs); err != nil {
		return nil, err
	}
	return coeffs[:n:n], nil
}
