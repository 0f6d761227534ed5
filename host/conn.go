package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"
)

// MaxMessageSize bounds a single message on a stream connection
const MaxMessageSize = 16 << 20

var ErrMessageTooLarge = errors.New("message too large")

// Sender sends whole messages to a peer
type Sender interface {
	Send([]byte) error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Receiver receives whole messages from a peer
type Receiver interface {
	Receive(context.Context) ([]byte, error)

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Connection is a message-oriented link to one peer
type Connection interface {
	Sender
	Receiver

	Close() error
}

// ByteCounter tracks traffic on connections
type ByteCounter interface {
	AddBytesSent(n uint64)
	AddBytesReceived(n uint64)
}

// datagramConnection sends each message as one unreliable QUIC datagram
type datagramConnection struct {
	conn    quic.Connection
	counter ByteCounter
}

func (c *datagramConnection) Send(buf []byte) error {
	if err := c.conn.SendDatagram(buf); err != nil {
		return err
	}
	c.counter.AddBytesSent(uint64(len(buf)))
	return nil
}

func (c *datagramConnection) Receive(ctx context.Context) ([]byte, error) {
	buf, err := c.conn.ReceiveDatagram(ctx)
	if err != nil {
		return nil, err
	}
	c.counter.AddBytesReceived(uint64(len(buf)))
	return buf, nil
}

func (c *datagramConnection) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *datagramConnection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *datagramConnection) Close() error         { return c.conn.CloseWithError(0, "") }

// streamConnection frames messages with a 4-byte big-endian length on a
// pair of QUIC streams: one opened locally for sending and the first one
// accepted from the peer for receiving.
type streamConnection struct {
	conn    quic.Connection
	counter ByteCounter

	sendMutex  sync.Mutex
	sendStream quic.Stream

	recvMutex  sync.Mutex
	recvReady  chan struct{}
	recvStream quic.Stream
	recvErr    error
}

func newStreamConnection(conn quic.Connection, counter ByteCounter) *streamConnection {
	c := &streamConnection{
		conn:      conn,
		counter:   counter,
		recvReady: make(chan struct{}),
	}
	go c.acceptStream()
	return c
}

func (c *streamConnection) acceptStream() {
	stream, err := c.conn.AcceptStream(c.conn.Context())
	c.recvStream, c.recvErr = stream, err
	close(c.recvReady)
}

func (c *streamConnection) Send(buf []byte) error {
	if len(buf) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(buf))
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if c.sendStream == nil {
		stream, err := c.conn.OpenStreamSync(c.conn.Context())
		if err != nil {
			return err
		}
		c.sendStream = stream
	}

	frame := make([]byte, 4+len(buf))
	binary.BigEndian.PutUint32(frame, uint32(len(buf)))
	copy(frame[4:], buf)
	if _, err := c.sendStream.Write(frame); err != nil {
		return err
	}
	c.counter.AddBytesSent(uint64(len(frame)))
	return nil
}

func (c *streamConnection) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-c.recvReady:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.recvErr != nil {
		return nil, c.recvErr
	}

	// A frame is read whole so concurrent receivers never interleave
	c.recvMutex.Lock()
	defer c.recvMutex.Unlock()

	// Cancellation interrupts a blocked read through the stream deadline.
	// A frame cut short this way leaves the stream unusable.
	stop := context.AfterFunc(ctx, func() {
		c.recvStream.SetReadDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			c.recvStream.SetReadDeadline(time.Time{})
		}
	}()

	var header [4]byte
	if _, err := io.ReadFull(c.recvStream, header[:]); err != nil {
		return nil, c.readError(ctx, err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(c.recvStream, buf); err != nil {
		return nil, c.readError(ctx, err)
	}
	c.counter.AddBytesReceived(uint64(4 + len(buf)))
	return buf, nil
}

func (c *streamConnection) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *streamConnection) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *streamConnection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *streamConnection) Close() error         { return c.conn.CloseWithError(0, "") }
