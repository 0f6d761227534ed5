package fri

import (
	"fmt"
	"math/bits"

	"github.com/ppopth/go-das/ntt"
)

// Params describes the Reed-Solomon code and folding schedule of one
// commitment. It is immutable.
type Params struct {
	logMsgLen      int
	logBatchSize   int
	logInvRate     int
	numTestQueries int
	arity          int

	// foldArities[s] is the number of folds applied to oracle s; the last
	// entry leads to the terminal codeword
	foldArities []int
}

// NewParams validates the code parameters against the domain in ctx
func NewParams(ctx *ntt.DomainContext, logMsgLen, logBatchSize, logInvRate, numTestQueries, arity int) (*Params, error) {
	switch {
	case ctx == nil:
		return nil, fmt.Errorf("%w: missing domain context", ErrParams)
	case logMsgLen < 0:
		return nil, fmt.Errorf("%w: negative log message length %d", ErrParams, logMsgLen)
	case logBatchSize != 0:
		return nil, fmt.Errorf("%w: batched cosets are not supported (log batch size %d)", ErrParams, logBatchSize)
	case logInvRate < 1:
		return nil, fmt.Errorf("%w: log inverse rate must be at least 1, got %d", ErrParams, logInvRate)
	case numTestQueries < 1:
		return nil, fmt.Errorf("%w: need at least one test query, got %d", ErrParams, numTestQueries)
	case arity < 1:
		return nil, fmt.Errorf("%w: folding arity must be at least 1, got %d", ErrParams, arity)
	}

	logLen := logMsgLen + logBatchSize + logInvRate
	if logLen > ctx.LogLen() {
		return nil, fmt.Errorf("%w: code of length 2^%d exceeds domain of 2^%d", ErrParams, logLen, ctx.LogLen())
	}
	if numTestQueries > 1<<logLen {
		return nil, fmt.Errorf("%w: %d test queries exceed code length %d", ErrParams, numTestQueries, 1<<logLen)
	}

	var arities []int
	rem := logMsgLen
	for rem > arity {
		arities = append(arities, arity)
		rem -= arity
	}
	arities = append(arities, rem)

	return &Params{
		logMsgLen:      logMsgLen,
		logBatchSize:   logBatchSize,
		logInvRate:     logInvRate,
		numTestQueries: numTestQueries,
		arity:          arity,
		foldArities:    arities,
	}, nil
}

func (p *Params) LogMsgLen() int      { return p.logMsgLen }
func (p *Params) LogBatchSize() int   { return p.logBatchSize }
func (p *Params) LogInvRate() int     { return p.logInvRate }
func (p *Params) NumTestQueries() int { return p.numTestQueries }
func (p *Params) Arity() int          { return p.arity }

// MsgLen returns the message length 2^LogMsgLen
func (p *Params) MsgLen() int { return 1 << p.logMsgLen }

// LogLen returns the log codeword length
func (p *Params) LogLen() int { return p.logMsgLen + p.logBatchSize + p.logInvRate }

// CodeLen returns the codeword length
func (p *Params) CodeLen() int { return 1 << p.LogLen() }

// FoldArities returns the folding schedule, one entry per oracle
func (p *Params) FoldArities() []int {
	return append([]int(nil), p.foldArities...)
}

// NumOracles returns the number of Merkle-committed oracles including the
// original codeword
func (p *Params) NumOracles() int {
	return len(p.foldArities)
}

// NumRoundCommitments returns the number of intermediate round oracles
func (p *Params) NumRoundCommitments() int {
	return len(p.foldArities) - 1
}

// oracleLogLen returns the log length of oracle s
func (p *Params) oracleLogLen(s int) int {
	l := p.LogLen()
	for _, a := range p.foldArities[:s] {
		l -= a
	}
	return l
}

// LayerDepths returns the tree depth at which each oracle publishes its
// layer. The depth covers enough nodes for every test query to land on a
// distinct node while staying above the opened cosets.
func (p *Params) LayerDepths() []int {
	optimal := bits.Len(uint(p.numTestQueries - 1))
	depths := make([]int, len(p.foldArities))
	for s, a := range p.foldArities {
		d := optimal
		if limit := p.oracleLogLen(s) - a; d > limit {
			d = limit
		}
		depths[s] = d
	}
	return depths
}

func (p *Params) String() string {
	return fmt.Sprintf("fri.Params{log_msg=%d, log_inv_rate=%d, queries=%d, arity=%d, folds=%v}",
		p.logMsgLen, p.logInvRate, p.numTestQueries, p.arity, p.foldArities)
}
