// Package tcp provides a length-delimited TCP transport for streamrpc.
// Each frame is preceded by a 4-byte big-endian length.
package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/triwire/triwire/pkg/streamrpc"
)

const maxFrameSize = 64 << 20

func setNoDelay(conn net.Conn, noDelay bool) error {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		return tcpConn.SetNoDelay(noDelay)
	}
	return nil
}

// Connection implements streamrpc.Connection over a net.Conn.
type Connection struct {
	conn net.Conn
	mu   sync.Mutex
}

func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	return nil
}

func (c *Connection) Receive() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, mapReadError(err)
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxFrameSize {
		return nil, fmt.Errorf("tcp: frame size %d exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, mapReadError(err)
	}
	return data, nil
}

func mapReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return streamrpc.ErrConnectionClosed
	}
	return err
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

// ServerTransportConfig configures a listening TCP transport.
type ServerTransportConfig struct {
	Addr    string // host:port; port 0 binds an ephemeral port
	NoDelay bool   // disable Nagle's algorithm for better latency
}

// ServerTransport implements streamrpc.ServerTransport for TCP.
type ServerTransport struct {
	conf     ServerTransportConfig
	listener net.Listener
	connCh   chan streamrpc.Connection
	mu       sync.Mutex
	closed   bool
}

func NewServerTransport(conf ServerTransportConfig) *ServerTransport {
	return &ServerTransport{
		conf:   conf,
		connCh: make(chan streamrpc.Connection, 16),
	}
}

func (t *ServerTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener != nil {
		return errors.New("tcp: transport is already listening")
	}

	l, err := net.Listen("tcp", t.conf.Addr)
	if err != nil {
		return err
	}
	t.listener = l

	go t.acceptLoop()
	return nil
}

func (t *ServerTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			continue
		}

		if err := setNoDelay(conn, t.conf.NoDelay); err != nil {
			conn.Close()
			continue
		}

		t.mu.Lock()
		if !t.closed {
			select {
			case t.connCh <- &Connection{conn: conn}:
			default:
				conn.Close()
			}
		} else {
			conn.Close()
		}
		t.mu.Unlock()
	}
}

func (t *ServerTransport) Accept() (streamrpc.Connection, error) {
	conn, ok := <-t.connCh
	if !ok {
		return nil, streamrpc.ErrTransportClosed
	}
	return conn, nil
}

func (t *ServerTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *ServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.connCh)

	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}

// ClientTransportConfig configures an outbound TCP transport.
type ClientTransportConfig struct {
	Addr    string
	NoDelay bool
}

// ClientTransport implements streamrpc.ClientTransport for TCP.
type ClientTransport struct {
	conf ClientTransportConfig
}

func NewClientTransport(conf ClientTransportConfig) *ClientTransport {
	return &ClientTransport{conf: conf}
}

func (t *ClientTransport) Connect() (streamrpc.Connection, error) {
	conn, err := net.Dial("tcp", t.conf.Addr)
	if err != nil {
		return nil, err
	}

	if err := setNoDelay(conn, t.conf.NoDelay); err != nil {
		conn.Close()
		return nil, err
	}
	return &Connection{conn: conn}, nil
}
