package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// MaxMessageSize is the largest payload the u16 framing can carry.
const MaxMessageSize = 65535

// sendQueueDepth bounds the per-peer outbound queue. A peer that can't
// drain this many frames is effectively dead and gets closed rather
// than stall the rest of the node.
const sendQueueDepth = 512

// ErrSessionClosed reports a send on a session that is no longer active.
var ErrSessionClosed = errors.New("session closed")

// EventHandler defines a function that is called when events occur in
// the processing of network traffic.
type EventHandler func(v string, args ...any)

// Session owns one TCP socket: a reader that peels length-prefixed
// frames off the wire and a writer that drains the outbound queue in
// FIFO order with no interleaving. A session is active until either
// endpoint closes or an I/O error promotes it to closed.
type Session struct {
	conn      net.Conn
	endpoint  Endpoint
	sendCh    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	evHandler EventHandler
}

// NewSession wraps an established connection.
func NewSession(conn net.Conn, ev EventHandler) *Session {
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	endpoint := Endpoint{}
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		endpoint = Endpoint{Host: addr.IP.String(), Port: uint16(addr.Port)}
	}

	return &Session{
		conn:      conn,
		endpoint:  endpoint,
		sendCh:    make(chan []byte, sendQueueDepth),
		closed:    make(chan struct{}),
		evHandler: ev,
	}
}

// RemoteEndpoint returns the address of the other side of the socket.
func (s *Session) RemoteEndpoint() Endpoint {
	return s.endpoint
}

// Run starts the reader and writer loops. onFrame is invoked for every
// complete payload in arrival order on the reader goroutine; onClose is
// invoked exactly once when the session dies.
func (s *Session) Run(onFrame func(payload []byte), onClose func()) {
	var closeOnce sync.Once
	signalClose := func() {
		closeOnce.Do(func() {
			s.Close()
			if onClose != nil {
				onClose()
			}
		})
	}

	// Writer: single goroutine draining the queue keeps per-peer send
	// ordering strict FIFO.
	go func() {
		for {
			select {
			case <-s.closed:
				return
			case frame := <-s.sendCh:
				if _, err := s.conn.Write(frame); err != nil {
					s.evHandler("network: session %s: send: %s", s.endpoint, err)
					signalClose()
					return
				}
			}
		}
	}()

	// Reader: frames are processed one at a time in arrival order.
	go func() {
		var lenBuf [2]byte
		for {
			if _, err := io.ReadFull(s.conn, lenBuf[:]); err != nil {
				if !s.IsClosed() && !errors.Is(err, io.EOF) {
					s.evHandler("network: session %s: receive: %s", s.endpoint, err)
				}
				signalClose()
				return
			}

			length := binary.BigEndian.Uint16(lenBuf[:])
			payload := make([]byte, length)
			if _, err := io.ReadFull(s.conn, payload); err != nil {
				signalClose()
				return
			}

			onFrame(payload)

			if s.IsClosed() {
				signalClose()
				return
			}
		}
	}()
}

// Send frames the payload and queues it for ordered delivery.
func (s *Session) Send(payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("payload of %d bytes exceeds framing limit", len(payload))
	}
	if s.IsClosed() {
		return ErrSessionClosed
	}

	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[2:], payload)

	select {
	case <-s.closed:
		return ErrSessionClosed
	case s.sendCh <- frame:
		return nil
	default:
		// The peer isn't draining its socket. Closing beats blocking
		// every broadcaster behind one stuck connection.
		s.Close()
		return ErrSessionClosed
	}
}

// CloseWhenDrained closes the session once the queued frames have been
// handed to the socket, bounded so a dead writer can't hold the session
// open. Used for goodbye messages that should still reach the peer.
func (s *Session) CloseWhenDrained() {
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for len(s.sendCh) > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		s.Close()
	}()
}

// Close promotes the session to closed and shuts the socket down.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// IsClosed reports whether the session is no longer active.
func (s *Session) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
