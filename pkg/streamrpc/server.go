// Package streamrpc exposes a contract over a persistent, length-delimited,
// bidirectional stream transport. One worker goroutine serves each accepted
// connection; requests carry a correlation ID so responses may complete out
// of order.
package streamrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/triwire/triwire/pkg/log"
	"github.com/triwire/triwire/pkg/server"
)

// ServerConfig configures the stream-RPC server.
type ServerConfig struct {
	Transport  ServerTransport
	Logger     log.Logger
	ErrHandler func(error)
}

// Server dispatches framed requests against the shared service handle.
type Server struct {
	conf   ServerConfig
	shared *server.Shared
}

func NewServer(conf ServerConfig, shared *server.Shared) *Server {
	return &Server{
		conf:   conf,
		shared: shared,
	}
}

// Adapter returns a protocol factory for the orchestrator. The transport's
// bind failure is fatal to this adapter's startup only.
func Adapter(conf ServerConfig) server.Factory {
	return func(shared *server.Shared) (server.Task, error) {
		if conf.Transport == nil {
			return nil, errors.New("streamrpc: no transport configured")
		}
		srv := NewServer(conf, shared)
		return srv.ListenAndServe, nil
	}
}

func (s *Server) handleError(err error) {
	s.logError("encountered error: " + err.Error())
	if s.conf.ErrHandler != nil {
		s.conf.ErrHandler(err)
	}
}

func (s *Server) logDebug(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Debug(msg)
	}
}

func (s *Server) logInfo(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Info(msg)
	}
}

func (s *Server) logError(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Error(msg)
	}
}

// ListenAndServe binds the transport and accepts connections until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.conf.Transport.Listen(); err != nil {
		return fmt.Errorf("streamrpc: listen: %w", err)
	}
	s.logInfo("stream-rpc server listening on " + s.conf.Transport.Addr().String())

	go func() {
		<-ctx.Done()
		s.conf.Transport.Close()
	}()

	for {
		conn, err := s.conf.Transport.Accept()
		if err != nil {
			if errors.Is(err, ErrTransportClosed) || ctx.Err() != nil {
				return nil
			}
			s.handleError(err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection reads frames until the peer disconnects or a frame fails
// to decode. A malformed envelope terminates this worker only; request-level
// failures (unknown method, bad arguments, business errors) are answered
// with error frames and leave the connection open.
func (s *Server) handleConnection(ctx context.Context, conn Connection) {
	defer conn.Close()

	connID := uuid.NewString()
	s.logDebug("connection " + connID + " accepted")

	for {
		bs, err := conn.Receive()
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				s.logDebug("connection " + connID + " closed by peer")
			} else if ctx.Err() == nil {
				s.handleError(err)
			}
			return
		}

		var req requestFrame
		if err := cbor.Unmarshal(bs, &req); err != nil {
			s.handleError(fmt.Errorf("streamrpc: connection %s: malformed frame: %w", connID, err))
			return
		}

		go s.handleRequest(ctx, conn, req)
	}
}

func (s *Server) handleRequest(ctx context.Context, conn Connection, req requestFrame) {
	m, ok := s.shared.Lookup(req.Method)
	if !ok {
		s.respondError(conn, req.ID, fmt.Errorf("unknown method %q", req.Method))
		return
	}

	if len(req.Args) != m.NumParams() {
		s.respondError(conn, req.ID, fmt.Errorf("method %q expects %d arguments, got %d",
			req.Method, m.NumParams(), len(req.Args)))
		return
	}

	args := make([]any, m.NumParams())
	for i := range args {
		p := m.NewParam(i)
		if err := cbor.Unmarshal(req.Args[i], p); err != nil {
			s.respondError(conn, req.ID, fmt.Errorf("method %q: argument %d: %w", req.Method, i, err))
			return
		}
		args[i] = p
	}

	result, err := s.shared.Invoke(ctx, m, args)
	if err != nil {
		s.respondError(conn, req.ID, err)
		return
	}

	payload, err := cbor.Marshal(result)
	if err != nil {
		// The call itself succeeded; only the encoding is reported.
		s.respondError(conn, req.ID, fmt.Errorf("failed to serialize response: %w", err))
		return
	}
	s.respond(conn, responseFrame{
		ID:     req.ID,
		Kind:   kindResult,
		Result: payload,
	})
}

func (s *Server) respondError(conn Connection, requestID uint64, err error) {
	s.respond(conn, responseFrame{
		ID:    requestID,
		Kind:  kindError,
		Error: err.Error(),
	})
}

func (s *Server) respond(conn Connection, resp responseFrame) {
	bs, err := cbor.Marshal(resp)
	if err != nil {
		s.handleError(err)
		return
	}
	if err := conn.Send(bs); err != nil && !errors.Is(err, ErrConnectionClosed) {
		s.handleError(err)
	}
}
