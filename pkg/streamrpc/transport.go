package streamrpc

import (
	"errors"
	"net"
)

var (
	// ErrConnectionClosed indicates the peer closed the connection
	// normally; workers exit silently on it.
	ErrConnectionClosed = errors.New("streamrpc: connection closed")
	// ErrTransportClosed indicates the listening transport was shut down.
	ErrTransportClosed = errors.New("streamrpc: transport closed")
)

// Connection is a bidirectional, frame-preserving channel. Implementations
// must keep frame boundaries intact and allow concurrent Send calls.
type Connection interface {
	// Send writes one frame to the remote peer.
	Send(data []byte) error

	// Receive blocks until one frame arrives from the remote peer.
	Receive() ([]byte, error)

	// Close closes the connection.
	Close() error
}

// ServerTransport accepts inbound connections for the server.
type ServerTransport interface {
	// Listen binds the transport. A bind failure here is fatal to the
	// adapter's startup.
	Listen() error

	// Accept blocks until a new connection is available. It returns
	// ErrTransportClosed after Close.
	Accept() (Connection, error)

	// Addr reports the bound address, or nil before Listen.
	Addr() net.Addr

	// Close stops listening and releases the transport.
	Close() error
}

// ClientTransport establishes outbound connections for the client.
type ClientTransport interface {
	Connect() (Connection, error)
}
