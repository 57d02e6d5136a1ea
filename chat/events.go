package chat

// EventType identifies server-initiated connection events.
type EventType uint8

const (
	// EventMessage delivers one server-pushed envelope.
	EventMessage EventType = iota + 1
	// EventQueueEmpty marks the end of the server's stored backlog.
	EventQueueEmpty
	// EventInterrupted reports the connection failed; no further events
	// follow and the events channel is closed.
	EventInterrupted
)

// Event is one server-initiated occurrence, delivered in arrival order on
// the connection's events channel.
type Event struct {
	Type EventType
	// Envelope holds the message bytes of an EventMessage.
	Envelope []byte
	// Timestamp is the server clock of an EventMessage, milliseconds since
	// the epoch.
	Timestamp uint64
	// Ack confirms receipt of an EventMessage. The server holds back the
	// rest of the backlog until it is sent.
	Ack *ServerMessageAck
	// Err is the failure behind an EventInterrupted.
	Err error
}
