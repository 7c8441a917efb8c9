package streamrpc

import (
	"github.com/fxamacker/cbor/v2"
)

// One frame per request or response. Byte framing (length prefixes) belongs
// to the transport; this package only defines the CBOR envelope inside a
// frame. Responses correlate to requests by ID, so a server is free to
// complete them out of submission order.

const (
	kindResult uint8 = 0x01
	kindError  uint8 = 0x02
)

type requestFrame struct {
	ID     uint64            `cbor:"id"`
	Method string            `cbor:"method"`
	Args   []cbor.RawMessage `cbor:"args,omitempty"`
}

type responseFrame struct {
	ID     uint64          `cbor:"id"`
	Kind   uint8           `cbor:"kind"`
	Result cbor.RawMessage `cbor:"result,omitempty"`
	Error  string          `cbor:"error,omitempty"`
}

// RemoteError is a business or serialization error propagated from the
// server inside an error response frame.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
