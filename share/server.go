package share

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogo/protobuf/proto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ppopth/go-das/host"
	"github.com/ppopth/go-das/merkle"
	"github.com/ppopth/go-das/pb"
)

// Server answers sample requests from connected peers and routes sample
// responses to the requests a Client has in flight. A nil store serves
// nothing and answers every request with an error.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	host  *host.Host
	store *Store

	nextID  atomic.Uint64
	mutex   sync.Mutex // protects pending
	pending map[uint64]chan *pb.SampleResponse
}

// NewServer attaches a server to h. It takes over h's peer handlers.
func NewServer(h *host.Host, store *Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:     ctx,
		cancel:  cancel,
		host:    h,
		store:   store,
		pending: make(map[uint64]chan *pb.SampleResponse),
	}
	h.SetPeerHandlers(s.handleAddPeer, s.handleRemovePeer)
	return s
}

// Close stops the receive loops. The host stays open.
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Server) handleAddPeer(p peer.ID, conn host.Connection) {
	if s.ctx.Err() != nil {
		return
	}
	log.Debugf("serving peer %s", p)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			buf, err := conn.Receive(s.ctx)
			if err != nil {
				return
			}
			rpc := &pb.Rpc{}
			if err := proto.Unmarshal(buf, rpc); err != nil {
				log.Warnf("invalid packet received from %s: %v", p, err)
				continue
			}
			s.handleIncomingRPC(p, conn, rpc)
		}
	}()
}

func (s *Server) handleRemovePeer(p peer.ID) {
	log.Debugf("peer %s left", p)
}

func (s *Server) handleIncomingRPC(p peer.ID, conn host.Sender, rpc *pb.Rpc) {
	if len(rpc.Requests) > 0 {
		out := &pb.Rpc{Responses: make([]*pb.SampleResponse, 0, len(rpc.Requests))}
		for _, req := range rpc.Requests {
			out.Responses = append(out.Responses, s.answer(req))
		}
		if err := sendRPC(out, conn); err != nil {
			log.Warnf("failed to answer %s: %v", p, err)
		}
	}

	for _, resp := range rpc.Responses {
		s.mutex.Lock()
		ch, ok := s.pending[resp.Id]
		delete(s.pending, resp.Id)
		s.mutex.Unlock()
		if !ok {
			log.Debugf("dropping unsolicited response %d from %s", resp.Id, p)
			continue
		}
		ch <- resp
	}
}

func (s *Server) answer(req *pb.SampleRequest) *pb.SampleResponse {
	resp := &pb.SampleResponse{Id: req.Id, Index: req.Index}
	if s.store == nil {
		resp.Error = ErrUnknownCommitment.Error()
		return resp
	}
	if len(req.Digest) != merkle.DigestSize {
		resp.Error = fmt.Sprintf("digest has %d bytes", len(req.Digest))
		return resp
	}
	var digest merkle.Digest
	copy(digest[:], req.Digest)

	proof, err := s.store.Open(digest, int(req.Index))
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Value, resp.Siblings = encodeProof(proof)
	return resp
}

// request sends req to p and waits for the matching response
func (s *Server) request(ctx context.Context, p peer.ID, req *pb.SampleRequest) (*pb.SampleResponse, error) {
	conn, ok := s.host.Connection(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, p)
	}

	req.Id = s.nextID.Add(1)
	ch := make(chan *pb.SampleResponse, 1)
	s.mutex.Lock()
	s.pending[req.Id] = ch
	s.mutex.Unlock()
	defer func() {
		s.mutex.Lock()
		delete(s.pending, req.Id)
		s.mutex.Unlock()
	}()

	if err := sendRPC(&pb.Rpc{Requests: []*pb.SampleRequest{req}}, conn); err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrClosed
	}
}

// sendRPC marshals and sends an RPC message to a connection
func sendRPC(rpc *pb.Rpc, conn host.Sender) error {
	log.Debugf("sending RPC to %s: %v", conn.RemoteAddr(), rpc)
	buf, err := proto.Marshal(rpc)
	if err != nil {
		return fmt.Errorf("failed to marshal RPC: %w", err)
	}
	return conn.Send(buf)
}
