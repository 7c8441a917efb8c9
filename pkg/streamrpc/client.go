package streamrpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/triwire/triwire/pkg/log"
)

// ClientConfig configures a stream-RPC client.
type ClientConfig struct {
	Transport  ClientTransport
	Logger     log.Logger
	ErrHandler func(error)
}

// Client is the stream-RPC client stub. It connects lazily on the first
// call and correlates responses to in-flight requests by ID, so calls may
// be issued concurrently over the one connection.
type Client struct {
	conf      ClientConfig
	mu        sync.Mutex
	conn      Connection
	requests  map[uint64]chan *responseFrame
	requestID uint64
}

func seedRequestID() uint64 {
	return uint64(rand.Uint32())<<32 + uint64(rand.Uint32())
}

func NewClient(conf ClientConfig) *Client {
	return &Client{
		conf:      conf,
		requestID: seedRequestID(),
		requests:  make(map[uint64]chan *responseFrame),
	}
}

func (c *Client) logDebug(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Debug(msg)
	}
}

func (c *Client) logError(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Error(msg)
	}
}

// teardownLocked closes the connection and fails every pending call by
// closing its channel. Caller holds c.mu; close never blocks, so this is
// safe under the lock.
func (c *Client) teardownLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	for _, ch := range c.requests {
		close(ch)
	}
	c.requests = make(map[uint64]chan *responseFrame)
}

// handleError tears down the connection and fails every pending call.
// Normal connection closure is torn down quietly.
func (c *Client) handleError(err error) error {
	if !errors.Is(err, ErrConnectionClosed) {
		c.logError("encountered error: " + err.Error())
		if c.conf.ErrHandler != nil {
			c.conf.ErrHandler(err)
		}
	}

	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
	return err
}

// connectLocked dials on demand and starts the receive loop. Caller holds
// c.mu.
func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}

	c.logDebug("connecting to server")
	conn, err := c.conf.Transport.Connect()
	if err != nil {
		return err
	}
	c.conn = conn

	go func() {
		for {
			bs, err := conn.Receive()
			if err != nil {
				if errors.Is(err, ErrConnectionClosed) {
					c.logDebug("connection closed normally")
				}
				c.handleError(err)
				return
			}

			var resp responseFrame
			if err := cbor.Unmarshal(bs, &resp); err != nil {
				c.handleError(fmt.Errorf("streamrpc: malformed response frame: %w", err))
				return
			}

			c.mu.Lock()
			ch, ok := c.requests[resp.ID]
			delete(c.requests, resp.ID)
			c.mu.Unlock()

			if !ok {
				c.handleError(fmt.Errorf("streamrpc: unrecognized request id: %d", resp.ID))
				return
			}
			ch <- &resp
		}
	}()

	return nil
}

func (c *Client) send(method string, rawArgs []cbor.RawMessage) (uint64, chan *responseFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return 0, nil, err
	}

	c.requestID++
	id := c.requestID

	bs, err := cbor.Marshal(requestFrame{
		ID:     id,
		Method: method,
		Args:   rawArgs,
	})
	if err != nil {
		return 0, nil, err
	}

	ch := make(chan *responseFrame, 1)
	c.requests[id] = ch

	if err := c.conn.Send(bs); err != nil {
		// already holding c.mu, so tear down inline
		delete(c.requests, id)
		c.teardownLocked()
		c.logError("encountered error: " + err.Error())
		return 0, nil, err
	}
	return id, ch, nil
}

// Call invokes a remote method. Arguments are encoded positionally; the
// result frame is decoded into out unless out is nil. A server-side error
// frame is returned as a *RemoteError.
func (c *Client) Call(ctx context.Context, method string, out any, args ...any) error {
	rawArgs := make([]cbor.RawMessage, len(args))
	for i, arg := range args {
		bs, err := cbor.Marshal(arg)
		if err != nil {
			return fmt.Errorf("streamrpc: encode argument %d: %w", i, err)
		}
		rawArgs[i] = bs
	}

	id, ch, err := c.send(method, rawArgs)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.requests, id)
		c.mu.Unlock()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return ErrConnectionClosed
		}
		if resp.Kind == kindError {
			return &RemoteError{Message: resp.Error}
		}
		if out == nil {
			return nil
		}
		return cbor.Unmarshal(resp.Result, out)
	}
}

// Close shuts the client connection down. In-flight calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	return nil
}
