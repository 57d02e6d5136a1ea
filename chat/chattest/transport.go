package chattest

import (
	"context"

	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/errors"
)

// pairTransport is the client half of an in-process frame pipe. The
// remote holds the other half.
type pairTransport struct {
	remote *Remote
}

func (t *pairTransport) Send(ctx context.Context, f chat.Frame) error {
	select {
	case t.remote.fromClient <- f:
		return nil
	case <-t.remote.clientClosed:
		return errors.New("chattest: transport closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *pairTransport) Receive(ctx context.Context) (chat.Frame, error) {
	select {
	case f, ok := <-t.remote.toClient:
		if !ok {
			return chat.Frame{}, errors.New("chattest: remote interrupted the connection")
		}
		return f, nil
	case <-t.remote.clientClosed:
		return chat.Frame{}, errors.New("chattest: transport closed")
	case <-ctx.Done():
		return chat.Frame{}, ctx.Err()
	}
}

func (t *pairTransport) Close() error {
	t.remote.closeClient.Do(func() { close(t.remote.clientClosed) })
	return nil
}
