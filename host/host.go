// Package host runs a QUIC endpoint whose peers are identified by libp2p
// peer IDs derived from their ed25519 TLS certificates.
package host

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	quic "github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
)

var log = logging.Logger("host")

const (
	DefaultPort = 7001

	// alpn is negotiated on every connection
	alpn = "go-das/1"
)

// TransportMode defines how messages are carried over QUIC
type TransportMode int

const (
	// TransportStream uses length-prefixed QUIC streams for reliable, ordered delivery
	TransportStream TransportMode = iota
	// TransportDatagram uses QUIC datagrams for unreliable, unordered delivery
	TransportDatagram
)

func (m TransportMode) String() string {
	switch m {
	case TransportStream:
		return "stream"
	case TransportDatagram:
		return "datagram"
	default:
		return fmt.Sprintf("TransportMode(%d)", int(m))
	}
}

// AddPeerHandler is called when a peer connects
type AddPeerHandler func(peer.ID, Connection)

// RemovePeerHandler is called when a peer disconnects
type RemovePeerHandler func(peer.ID)

// HostOption configures a Host during construction
type HostOption func(*Host) error

// Host manages peer-to-peer QUIC connections
type Host struct {
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup

	mutex       sync.Mutex // protects connections and handlers
	connections map[peer.ID]Connection

	addHandler    AddPeerHandler
	removeHandler RemovePeerHandler

	shadowMode    bool
	transportMode TransportMode
	idleTimeout   time.Duration

	certificate *tls.Certificate
	endpoint    *net.UDPAddr
	peerID      peer.ID
	privateKey  crypto.PrivateKey

	udpConn   *net.UDPConn
	transport *quic.Transport
	listener  *quic.Listener

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

// NewHost creates a Host listening on the configured endpoint
func NewHost(opts ...HostOption) (*Host, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Host{
		ctx:    ctx,
		cancel: cancel,

		connections:   make(map[peer.ID]Connection),
		endpoint:      net.UDPAddrFromAddrPort(netip.AddrPortFrom(netip.IPv4Unspecified(), DefaultPort)),
		transportMode: TransportStream,
		idleTimeout:   30 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			cancel()
			return nil, err
		}
	}

	if h.privateKey == nil {
		_, sk, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			cancel()
			return nil, err
		}
		if err := WithIdentity(sk)(h); err != nil {
			cancel()
			return nil, err
		}
	}

	var err error
	if h.certificate, err = selfSignedCertificate(h.privateKey); err != nil {
		cancel()
		return nil, err
	}

	udpConn, err := net.ListenUDP("udp", h.endpoint)
	if err != nil {
		cancel()
		return nil, err
	}
	h.udpConn = udpConn
	var conn net.PacketConn = udpConn
	if h.shadowMode {
		conn = &shadowUDPConn{PacketConn: udpConn}
	}
	h.transport = &quic.Transport{Conn: conn}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*h.certificate},
		ClientAuth:   tls.RequireAnyClientCert,
		NextProtos:   []string{alpn},
	}
	h.listener, err = h.transport.Listen(tlsConfig, h.quicConfig())
	if err != nil {
		cancel()
		return nil, multierr.Combine(err, h.transport.Close(), udpConn.Close())
	}

	h.waitGroup.Add(1)
	go h.acceptLoop()

	return h, nil
}

func (h *Host) quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: h.transportMode == TransportDatagram,
		MaxIdleTimeout:  h.idleTimeout,
	}
}

// Connect dials a peer and returns its ID once the connection is registered
func (h *Host) Connect(ctx context.Context, addr net.Addr) (peer.ID, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*h.certificate},
		// Peers are authenticated by the peer ID derived from their
		// certificate, not by a CA chain
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
	}
	conn, err := h.transport.Dial(dialCtx, addr, tlsConfig, h.quicConfig())
	if err != nil {
		return "", err
	}

	peerID, err := h.handleConnection(conn)
	if err != nil {
		conn.CloseWithError(0, err.Error())
		return "", err
	}
	log.Infof("connected to %s at %s", peerID, addr)
	return peerID, nil
}

// LocalAddr returns the UDP address the host listens on
func (h *Host) LocalAddr() net.Addr {
	return h.transport.Conn.LocalAddr()
}

// ID returns the host's peer ID
func (h *Host) ID() peer.ID {
	return h.peerID
}

// Connection returns the live connection to p
func (h *Host) Connection(p peer.ID) (Connection, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	conn, ok := h.connections[p]
	return conn, ok
}

// Peers returns the connected peers in a stable order
func (h *Host) Peers() []peer.ID {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	peers := make([]peer.ID, 0, len(h.connections))
	for p := range h.connections {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// SetPeerHandlers registers connection callbacks. The add handler is
// invoked immediately for peers that are already connected. Handlers run
// with the host locked and must not call back into it.
func (h *Host) SetPeerHandlers(addHandler AddPeerHandler, removeHandler RemovePeerHandler) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.addHandler = addHandler
	h.removeHandler = removeHandler

	if h.addHandler != nil {
		for p, conn := range h.connections {
			h.addHandler(p, conn)
		}
	}
}

// Close shuts down every connection and the listener
func (h *Host) Close() error {
	h.cancel()

	h.mutex.Lock()
	var err error
	for _, conn := range h.connections {
		err = multierr.Append(err, conn.Close())
	}
	h.mutex.Unlock()

	err = multierr.Append(err, h.listener.Close())
	err = multierr.Append(err, h.transport.Close())
	err = multierr.Append(err, h.udpConn.Close())
	h.waitGroup.Wait()
	return err
}

// AddBytesSent increments the sent byte counter
func (h *Host) AddBytesSent(n uint64) { h.bytesSent.Add(n) }

// AddBytesReceived increments the received byte counter
func (h *Host) AddBytesReceived(n uint64) { h.bytesReceived.Add(n) }

// BytesSent returns the total bytes sent on all connections
func (h *Host) BytesSent() uint64 { return h.bytesSent.Load() }

// BytesReceived returns the total bytes received on all connections
func (h *Host) BytesReceived() uint64 { return h.bytesReceived.Load() }

func (h *Host) newConnection(conn quic.Connection) Connection {
	if h.transportMode == TransportDatagram {
		return &datagramConnection{conn: conn, counter: h}
	}
	return newStreamConnection(conn, h)
}

// handleConnection registers an incoming or outgoing connection
func (h *Host) handleConnection(conn quic.Connection) (peer.ID, error) {
	certs := conn.ConnectionState().TLS.PeerCertificates
	if len(certs) == 0 {
		return "", fmt.Errorf("peer presented no certificate")
	}
	peerID, err := peerIDFromCertificate(certs[0])
	if err != nil {
		return "", fmt.Errorf("failed parsing for a peer ID from the TLS certificate: %w", err)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.connections[peerID]; exists {
		return "", fmt.Errorf("already connected to peer %s", peerID)
	}

	wrapped := h.newConnection(conn)
	h.connections[peerID] = wrapped
	if h.addHandler != nil {
		h.addHandler(peerID, wrapped)
	}

	h.waitGroup.Add(1)
	go func() {
		defer h.waitGroup.Done()
		<-conn.Context().Done()

		h.mutex.Lock()
		defer h.mutex.Unlock()
		if h.connections[peerID] != wrapped {
			return
		}
		delete(h.connections, peerID)
		if h.removeHandler != nil {
			h.removeHandler(peerID)
		}
		log.Debugf("peer %s disconnected", peerID)
	}()
	return peerID, nil
}

func (h *Host) acceptLoop() {
	defer h.waitGroup.Done()

	log.Infof("listening on %s as %s", h.LocalAddr(), h.peerID)
	for {
		conn, err := h.listener.Accept(h.ctx)
		if err != nil {
			if h.ctx.Err() == nil {
				log.Warnf("listener accept error: %v", err)
			}
			return
		}

		peerID, err := h.handleConnection(conn)
		if err != nil {
			log.Warnf("failed to handle connection: %v", err)
			conn.CloseWithError(0, err.Error())
			continue
		}
		log.Infof("accepted connection from %s at %s", peerID, conn.RemoteAddr())
	}
}

// WithAddrPort sets the UDP endpoint to listen on
func WithAddrPort(ep netip.AddrPort) HostOption {
	return func(h *Host) error {
		h.endpoint = net.UDPAddrFromAddrPort(ep)
		return nil
	}
}

// WithTransportMode selects stream or datagram delivery
func WithTransportMode(mode TransportMode) HostOption {
	return func(h *Host) error {
		if mode != TransportStream && mode != TransportDatagram {
			return fmt.Errorf("unsupported transport mode: %d", mode)
		}
		h.transportMode = mode
		return nil
	}
}

// WithIdleTimeout sets how long an idle connection is kept open
func WithIdleTimeout(d time.Duration) HostOption {
	return func(h *Host) error {
		if d <= 0 {
			return fmt.Errorf("idle timeout must be positive, got %s", d)
		}
		h.idleTimeout = d
		return nil
	}
}

// WithShadowMode enables Shadow simulator compatibility mode
func WithShadowMode() HostOption {
	return func(h *Host) error {
		h.shadowMode = true
		return nil
	}
}

// shadowUDPConn hides SyscallConn so quic-go does not set the DF bit,
// which the Shadow simulator does not support
type shadowUDPConn struct {
	net.PacketConn
}

// WithIdentity sets the host's ed25519 identity key
func WithIdentity(privateKey crypto.PrivateKey) HostOption {
	return func(h *Host) error {
		peerID, err := peerIDFromPrivateKey(privateKey)
		if err != nil {
			return err
		}
		h.privateKey = privateKey
		h.peerID = peerID
		return nil
	}
}
