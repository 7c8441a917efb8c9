// Package websocket provides a WebSocket transport for streamrpc. Frames
// map to binary WebSocket messages, so the protocol's framing is preserved
// by the WebSocket layer itself.
package websocket

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/triwire/triwire/pkg/streamrpc"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Connection implements streamrpc.Connection over a WebSocket.
type Connection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Connection) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
			errors.Is(err, net.ErrClosed) {
			return nil, streamrpc.ErrConnectionClosed
		}
		return nil, err
	}
	return data, nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Send a close frame with a short deadline before tearing down the
	// underlying connection.
	deadline := time.Now().Add(time.Second)
	writeErr := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	closeErr := c.conn.Close()

	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// ServerTransportConfig configures a listening WebSocket transport.
type ServerTransportConfig struct {
	Addr string // host:port; port 0 binds an ephemeral port
	Path string // upgrade endpoint, default "/"
}

// ServerTransport implements streamrpc.ServerTransport for WebSocket.
type ServerTransport struct {
	conf     ServerTransportConfig
	server   *http.Server
	listener net.Listener
	connCh   chan streamrpc.Connection
	mu       sync.Mutex
	closed   bool
}

func NewServerTransport(conf ServerTransportConfig) *ServerTransport {
	if conf.Path == "" {
		conf.Path = "/"
	}
	return &ServerTransport{
		conf:   conf,
		connCh: make(chan streamrpc.Connection, 16),
	}
}

func (t *ServerTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.server != nil {
		return errors.New("websocket: transport is already listening")
	}

	l, err := net.Listen("tcp", t.conf.Addr)
	if err != nil {
		return err
	}
	t.listener = l

	mux := http.NewServeMux()
	mux.HandleFunc(t.conf.Path, t.handleUpgrade)
	t.server = &http.Server{Handler: mux}

	go t.server.Serve(l)
	return nil
}

func (t *ServerTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return
	}
	select {
	case t.connCh <- &Connection{conn: conn}:
	default:
		conn.Close()
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

	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

// ClientTransportConfig configures an outbound WebSocket transport.
type ClientTransportConfig struct {
	Addr string
	Path string
}

// ClientTransport implements streamrpc.ClientTransport for WebSocket.
type ClientTransport struct {
	conf ClientTransportConfig
}

func NewClientTransport(conf ClientTransportConfig) *ClientTransport {
	if conf.Path == "" {
		conf.Path = "/"
	}
	return &ClientTransport{conf: conf}
}

func (t *ClientTransport) Connect() (streamrpc.Connection, error) {
	url := fmt.Sprintf("ws://%s%s", t.conf.Addr, t.conf.Path)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &Connection{conn: conn}, nil
}
