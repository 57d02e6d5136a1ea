package chat

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrAlreadyAcked is returned when a server message is acked twice.
var ErrAlreadyAcked = errors.New("server message already acked")

// ServerMessageAck confirms receipt of one server-pushed message. It is
// single-use: the first Send wins and every later call fails with
// ErrAlreadyAcked, so a message can never be acknowledged twice.
type ServerMessageAck struct {
	conn *Connection
	id   uint64
	used atomic.Bool
}

// Send delivers the acknowledgement to the server.
func (a *ServerMessageAck) Send(ctx context.Context) error {
	if !a.used.CompareAndSwap(false, true) {
		return ErrAlreadyAcked
	}
	return a.conn.sendAck(ctx, a.id)
}
