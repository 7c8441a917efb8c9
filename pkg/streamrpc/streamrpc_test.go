package streamrpc_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triwire/triwire/pkg/contract"
	"github.com/triwire/triwire/pkg/server"
	"github.com/triwire/triwire/pkg/streamrpc"
	"github.com/triwire/triwire/pkg/streamrpc/tcp"
	"github.com/triwire/triwire/pkg/streamrpc/websocket"
)

type counterService struct {
	count int
}

func (s *counterService) Greet(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("name cannot be empty")
	}
	return fmt.Sprintf("Hello, %s!", name), nil
}

func (s *counterService) Increment(ctx context.Context, delta int) (int, error) {
	s.count += delta
	return s.count, nil
}

func newShared(t *testing.T) *server.Shared {
	t.Helper()

	c := contract.New()
	require.NoError(t, c.Register(contract.Method{
		Name:   "greet",
		Params: []contract.Param{{Name: "name"}},
	}))
	require.NoError(t, c.Register(contract.Method{
		Name:   "increment",
		Params: []contract.Param{{Name: "delta"}},
	}))

	builder, err := server.NewBuilder(c, &counterService{})
	require.NoError(t, err)
	return builder.Shared()
}

// startServer runs a stream-rpc server on an ephemeral port and returns its
// address.
func startServer(t *testing.T, transport streamrpc.ServerTransport) string {
	t.Helper()

	srv := streamrpc.NewServer(streamrpc.ServerConfig{
		Transport: transport,
	}, newShared(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return transport.Addr() != nil
	}, time.Second, 10*time.Millisecond)

	return transport.Addr().String()
}

func TestCallOverTCP(t *testing.T) {
	addr := startServer(t, tcp.NewServerTransport(tcp.ServerTransportConfig{
		Addr:    "127.0.0.1:0",
		NoDelay: true,
	}))

	client := streamrpc.NewClient(streamrpc.ClientConfig{
		Transport: tcp.NewClientTransport(tcp.ClientTransportConfig{Addr: addr}),
	})
	defer client.Close()

	var greeting string
	require.NoError(t, client.Call(context.Background(), "greet", &greeting, "sammy"))
	assert.Equal(t, "Hello, sammy!", greeting)
}

func TestCallOverWebSocket(t *testing.T) {
	addr := startServer(t, websocket.NewServerTransport(websocket.ServerTransportConfig{
		Addr: "127.0.0.1:0",
	}))

	client := streamrpc.NewClient(streamrpc.ClientConfig{
		Transport: websocket.NewClientTransport(websocket.ClientTransportConfig{Addr: addr}),
	})
	defer client.Close()

	var greeting string
	require.NoError(t, client.Call(context.Background(), "greet", &greeting, "sammy"))
	assert.Equal(t, "Hello, sammy!", greeting)
}

func TestBusinessErrorFrame(t *testing.T) {
	addr := startServer(t, tcp.NewServerTransport(tcp.ServerTransportConfig{Addr: "127.0.0.1:0"}))

	client := streamrpc.NewClient(streamrpc.ClientConfig{
		Transport: tcp.NewClientTransport(tcp.ClientTransportConfig{Addr: addr}),
	})
	defer client.Close()

	err := client.Call(context.Background(), "greet", nil, "")
	require.Error(t, err)

	var remoteErr *streamrpc.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "name cannot be empty", remoteErr.Message)
}

func TestUnknownMethodFrame(t *testing.T) {
	addr := startServer(t, tcp.NewServerTransport(tcp.ServerTransportConfig{Addr: "127.0.0.1:0"}))

	client := streamrpc.NewClient(streamrpc.ClientConfig{
		Transport: tcp.NewClientTransport(tcp.ClientTransportConfig{Addr: addr}),
	})
	defer client.Close()

	err := client.Call(context.Background(), "nope", nil)
	require.Error(t, err)

	var remoteErr *streamrpc.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, `unknown method "nope"`)
}

func TestArgumentDecodeErrorFrame(t *testing.T) {
	addr := startServer(t, tcp.NewServerTransport(tcp.ServerTransportConfig{Addr: "127.0.0.1:0"}))

	client := streamrpc.NewClient(streamrpc.ClientConfig{
		Transport: tcp.NewClientTransport(tcp.ClientTransportConfig{Addr: addr}),
	})
	defer client.Close()

	// wrong argument type: increment expects an int
	err := client.Call(context.Background(), "increment", nil, "not a number")
	require.Error(t, err)

	var remoteErr *streamrpc.RemoteError
	require.ErrorAs(t, err, &remoteErr)

	// the connection survives request-level failures
	var greeting string
	require.NoError(t, client.Call(context.Background(), "greet", &greeting, "still here"))
	assert.Equal(t, "Hello, still here!", greeting)
}

func TestPipelinedCalls(t *testing.T) {
	addr := startServer(t, tcp.NewServerTransport(tcp.ServerTransportConfig{Addr: "127.0.0.1:0"}))

	client := streamrpc.NewClient(streamrpc.ClientConfig{
		Transport: tcp.NewClientTransport(tcp.ClientTransportConfig{Addr: addr}),
	})
	defer client.Close()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var result int
			assert.NoError(t, client.Call(context.Background(), "increment", &result, 1))
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, client.Call(context.Background(), "increment", &final, 0))
	assert.Equal(t, n, final)
}

func TestMalformedFrameTerminatesConnection(t *testing.T) {
	addr := startServer(t, tcp.NewServerTransport(tcp.ServerTransportConfig{Addr: "127.0.0.1:0"}))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// a length-prefixed frame whose payload is not a CBOR envelope
	garbage := []byte{0xff, 0xfe, 0xfd}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(garbage)))
	_, err = conn.Write(header)
	require.NoError(t, err)
	_, err = conn.Write(garbage)
	require.NoError(t, err)

	// the server closes the connection without responding
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	// other connections are unaffected
	client := streamrpc.NewClient(streamrpc.ClientConfig{
		Transport: tcp.NewClientTransport(tcp.ClientTransportConfig{Addr: addr}),
	})
	defer client.Close()

	var greeting string
	require.NoError(t, client.Call(context.Background(), "greet", &greeting, "sammy"))
	assert.Equal(t, "Hello, sammy!", greeting)
}

func TestContextCancellation(t *testing.T) {
	addr := startServer(t, tcp.NewServerTransport(tcp.ServerTransportConfig{Addr: "127.0.0.1:0"}))

	client := streamrpc.NewClient(streamrpc.ClientConfig{
		Transport: tcp.NewClientTransport(tcp.ClientTransportConfig{Addr: addr}),
	})
	defer client.Close()

	// prime the connection
	var greeting string
	require.NoError(t, client.Call(context.Background(), "greet", &greeting, "sammy"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.Call(ctx, "greet", &greeting, "sammy")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
