package share

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"math/rand"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ppopth/go-das/das"
	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/fri"
	"github.com/ppopth/go-das/merkle"
	"github.com/ppopth/go-das/ntt"
	"github.com/ppopth/go-das/pb"
)

// ClientOption configures a Client
type ClientOption func(*Client) error

// WithSeed makes index selection deterministic
func WithSeed(seed int64) ClientOption {
	return func(c *Client) error {
		c.rng = rand.New(rand.NewSource(seed))
		return nil
	}
}

// WithRequestTimeout bounds the wait for each sample response
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %s", d)
		}
		c.timeout = d
		return nil
	}
}

// Client samples remote peers for availability of committed codewords
type Client struct {
	server  *Server
	orch    *das.Orchestrator
	timeout time.Duration

	rngMutex sync.Mutex
	rng      *rand.Rand

	mutex    sync.Mutex // protects samplers
	samplers map[int]*samplerEntry
}

type samplerEntry struct {
	sampler *das.Sampler
	params  *fri.Params
}

// NewClient creates a client sending its requests through server
func NewClient(server *Server, orch *das.Orchestrator, opts ...ClientOption) (*Client, error) {
	c := &Client{
		server:   server,
		orch:     orch,
		timeout:  10 * time.Second,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		samplers: make(map[int]*samplerEntry),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// samplerFor returns a sampler for codewords of codewordLen shares under
// the orchestrator's rate
func (c *Client) samplerFor(codewordLen int) (*samplerEntry, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if e, ok := c.samplers[codewordLen]; ok {
		return e, nil
	}

	cfg := c.orch.Config()
	logInvRate := cfg.LogInvRate
	if codewordLen <= 0 || codewordLen&(codewordLen-1) != 0 {
		return nil, fmt.Errorf("%w: codeword length %d is not a power of two", das.ErrConfig, codewordLen)
	}
	logLen := bits.Len(uint(codewordLen)) - 1
	if logLen < logInvRate {
		return nil, fmt.Errorf("%w: codeword length %d is shorter than the rate allows", das.ErrConfig, codewordLen)
	}
	// Openings only need the code shape; the query count is clamped so
	// short codewords still yield valid parameters
	queries := min(cfg.NumTestQueries, codewordLen)
	ctx, err := ntt.NewDomainContext(logLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", das.ErrConfig, err)
	}
	params, err := c.orch.Engine().BuildParams(ctx, logLen-logInvRate, 0, logInvRate, queries, cfg.Arity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", das.ErrConfig, err)
	}
	e := &samplerEntry{sampler: das.NewSampler(c.orch, params), params: params}
	c.samplers[codewordLen] = e
	return e, nil
}

func (c *Client) selectSamples(codewordLen, n int) []int {
	c.rngMutex.Lock()
	defer c.rngMutex.Unlock()
	return das.SelectSamples(c.rng, codewordLen, n)
}

// SampleAvailability requests n random shares of the codeword committed to
// by digest from p and verifies each against digest. The first failure
// ends the session with das.ErrNotAvailable wrapping the cause.
func (c *Client) SampleAvailability(ctx context.Context, p peer.ID, digest merkle.Digest, codewordLen, n int) (*das.SampleReport, error) {
	entry, err := c.samplerFor(codewordLen)
	if err != nil {
		return nil, err
	}

	indices := c.selectSamples(codewordLen, n)
	report := &das.SampleReport{Requested: len(indices), Indices: indices}
	for _, index := range indices {
		if err := c.sample(ctx, p, digest, index, entry); err != nil {
			log.Infof("peer %s failed sample %d of %x: %v", p, index, digest[:8], err)
			return report, fmt.Errorf("%w: sample %d: %w", das.ErrNotAvailable, index, err)
		}
		report.Verified++
	}
	log.Debugf("peer %s served %d/%d samples of %x", p, report.Verified, report.Requested, digest[:8])
	return report, nil
}

func (c *Client) sample(ctx context.Context, p peer.ID, digest merkle.Digest, index int, entry *samplerEntry) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.server.request(ctx, p, &pb.SampleRequest{
		Digest: digest[:],
		Index:  uint64(index),
	})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	if resp.Index != uint64(index) {
		return fmt.Errorf("%w: answered index %d", ErrMalformedResponse, resp.Index)
	}
	proof, err := decodeProof(index, resp.Value, resp.Siblings)
	if err != nil {
		return err
	}
	return entry.sampler.VerifyOpening(proof, []field.B128{proof.Value}, index, entry.params, digest)
}
