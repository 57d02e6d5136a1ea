package chat

import "context"

// FrameType discriminates the frames crossing a transport.
type FrameType uint8

const (
	// FrameRequest carries a client request awaiting a correlated response.
	FrameRequest FrameType = iota + 1
	// FrameResponse answers the request with the same ID.
	FrameResponse
	// FrameMessage is a server-pushed envelope the client must ack.
	FrameMessage
	// FrameQueueEmpty signals the server's backlog has been delivered.
	FrameQueueEmpty
	// FrameAck confirms receipt of the server message with the same ID.
	FrameAck
)

// Frame is one unit crossing the transport in either direction. Exactly
// the fields for its type are set.
type Frame struct {
	Type FrameType
	// ID correlates requests with responses and acks with messages.
	ID uint64
	// Request is set for FrameRequest.
	Request *Request
	// Response is set for FrameResponse.
	Response *Response
	// Payload is the envelope bytes of a FrameMessage.
	Payload []byte
	// Timestamp is the server clock of a FrameMessage, milliseconds since
	// the epoch.
	Timestamp uint64
}

// Transport moves frames between the client and the remote. Implementations
// own the wire; the connection owns correlation, delivery order, and
// error mapping. Send and Receive must be safe for one concurrent sender
// and one concurrent receiver.
type Transport interface {
	// Send writes one frame to the remote.
	Send(ctx context.Context, f Frame) error
	// Receive blocks until the next frame arrives from the remote.
	Receive(ctx context.Context) (Frame, error)
	// Close tears down the wire. Blocked Send and Receive calls return
	// errors after Close.
	Close() error
}
