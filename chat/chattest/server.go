package chattest

import (
	"context"

	"github.com/wippyai/chat-runtime/chat"
)

// Fake connections report a fixed local endpoint; only the shape
// matters to tests.
const (
	fakeLocalPort = 4433
	fakeIPVersion = "IPv4"
)

// Server hands out fake chat connections. Each Connect call produces a
// live *chat.Connection wired to an in-process Remote; the matching
// Remote surfaces through NextRemote in connection order.
type Server struct {
	accepted chan *Remote
}

// NewServer returns an empty fake server.
func NewServer() *Server {
	return &Server{accepted: make(chan *Remote, 16)}
}

// Connect establishes a fake connection against the server. The client
// half behaves exactly like a real connection: correlated requests,
// server events, acks, disconnects.
func (s *Server) Connect() (*chat.Connection, error) {
	conn, remote, err := NewFakeConnection()
	if err != nil {
		return nil, err
	}
	s.accepted <- remote
	return conn, nil
}

// DialTransport opens a bare transport against the server, for callers
// that build the connection themselves. Each dial is paired with a
// Remote, surfaced through NextRemote in dial order. A fake dial never
// blocks; the context is accepted to satisfy dialer interfaces.
func (s *Server) DialTransport(ctx context.Context) (chat.Transport, error) {
	tr, remote := NewPair()
	s.accepted <- remote
	return tr, nil
}

// NextRemote returns the remote end of the oldest connection not yet
// claimed by the test.
func (s *Server) NextRemote(ctx context.Context) (*Remote, error) {
	select {
	case r := <-s.accepted:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewPair returns the client half of an in-process pipe and the Remote
// driving its far end, without wrapping the client half in a
// connection.
func NewPair() (chat.Transport, *Remote) {
	remote := newRemote()
	return &pairTransport{remote: remote}, remote
}

// NewFakeConnection builds a connection and its remote end directly,
// for tests that do not need a server accepting multiple connections.
func NewFakeConnection() (*chat.Connection, *Remote, error) {
	tr, remote := NewPair()
	conn, err := chat.New(chat.Config{
		Transport: tr,
		LocalPort: fakeLocalPort,
		IPVersion: fakeIPVersion,
	})
	if err != nil {
		return nil, nil, err
	}
	return conn, remote, nil
}
