// Package share serves codeword shares of committed payloads to sampling
// peers over QUIC and HTTP, and samples remote peers for availability.
package share

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ppopth/go-das/das"
	"github.com/ppopth/go-das/fri"
	"github.com/ppopth/go-das/merkle"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("share")

var (
	ErrUnknownCommitment = errors.New("unknown commitment")
	ErrNotConnected      = errors.New("peer not connected")
	ErrClosed            = errors.New("share server closed")
	ErrMalformedResponse = errors.New("malformed sample response")
)

// Entry is a commitment held by a Store
type Entry struct {
	Commitment *das.Commitment
	Params     *fri.Params

	sampler *das.Sampler
}

// Store holds commitments by digest and opens their shares
type Store struct {
	orch *das.Orchestrator

	mutex   sync.RWMutex
	entries map[merkle.Digest]*Entry
}

// NewStore creates an empty store whose openings go through orch's engine
func NewStore(orch *das.Orchestrator) *Store {
	return &Store{
		orch:    orch,
		entries: make(map[merkle.Digest]*Entry),
	}
}

// Put adds a commitment built with params. The store takes ownership of
// the commitment's handle.
func (s *Store) Put(commitment *das.Commitment, params *fri.Params) error {
	if commitment == nil || params == nil {
		return fmt.Errorf("%w: nil commitment or params", das.ErrConfig)
	}
	if len(commitment.Codeword) != params.CodeLen() {
		return fmt.Errorf("%w: codeword has %d values, params expect %d", das.ErrDimensionMismatch, len(commitment.Codeword), params.CodeLen())
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if old, ok := s.entries[commitment.Digest]; ok && old.Commitment != commitment {
		old.Commitment.Release()
	}
	s.entries[commitment.Digest] = &Entry{
		Commitment: commitment,
		Params:     params,
		sampler:    das.NewSampler(s.orch, params),
	}
	log.Debugf("stored commitment %x with %d shares", commitment.Digest[:8], params.CodeLen())
	return nil
}

// Get returns the entry stored under digest
func (s *Store) Get(digest merkle.Digest) (*Entry, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	e, ok := s.entries[digest]
	return e, ok
}

// Remove drops the commitment under digest and releases its handle
func (s *Store) Remove(digest merkle.Digest) {
	s.mutex.Lock()
	e, ok := s.entries[digest]
	delete(s.entries, digest)
	s.mutex.Unlock()
	if ok {
		e.Commitment.Release()
	}
}

// Digests returns every stored digest in ascending byte order
func (s *Store) Digests() []merkle.Digest {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]merkle.Digest, 0, len(s.entries))
	for d := range s.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i][:]) < string(out[j][:]) })
	return out
}

// Open returns the inclusion proof of the share at index under digest
func (s *Store) Open(digest merkle.Digest, index int) (*merkle.Proof, error) {
	e, ok := s.Get(digest)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownCommitment, digest[:])
	}
	return e.sampler.OpenAt(e.Commitment.Handle, index)
}
