package das

import "fmt"

// ProtocolConfig fixes the code and proof parameters of a deployment
type ProtocolConfig struct {
	LogInvRate     int // Reed-Solomon expansion is 2^LogInvRate
	NumTestQueries int // queries per evaluation proof
	Arity          int // folds between round oracles
	NVars          int // evaluation point length
	LogNumShares   int // log of the work split used by the transform
}

// DefaultProtocolConfig returns a configuration for payloads of up to 16 KiB
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		LogInvRate:     1,
		NumTestQueries: 128,
		Arity:          4,
		NVars:          10,
		LogNumShares:   80,
	}
}

// Validate checks the configuration invariants
func (c ProtocolConfig) Validate() error {
	switch {
	case c.LogInvRate < 1:
		return fmt.Errorf("%w: log inverse rate must be at least 1, got %d", ErrConfig, c.LogInvRate)
	case c.Arity < 1:
		return fmt.Errorf("%w: arity must be at least 1, got %d", ErrConfig, c.Arity)
	case c.NVars < 1:
		return fmt.Errorf("%w: n_vars must be at least 1, got %d", ErrConfig, c.NVars)
	case c.NumTestQueries < 1:
		return fmt.Errorf("%w: need at least one test query, got %d", ErrConfig, c.NumTestQueries)
	case c.LogNumShares < 0:
		return fmt.Errorf("%w: negative log number of shares %d", ErrConfig, c.LogNumShares)
	}
	return nil
}

// CodewordLength returns the codeword length for a message of 2^NVars values
func (c ProtocolConfig) CodewordLength() int {
	return 1 << (c.NVars + c.LogInvRate)
}
