package quic

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/chat-runtime/errors"
)

// DefaultTarget is the proxy endpoint used when the config names none.
const DefaultTarget = "grpcproxy.gluonhq.net:7443"

const defaultEventBuffer = 16

// Dialer establishes paths to the proxy. The embedder injects the
// production dialer; tests use an in-process fake.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// Conn is one established path to the proxy.
type Conn interface {
	// Exchange sends one datagram and blocks for its reply.
	Exchange(ctx context.Context, payload []byte) ([]byte, error)
	// OpenStream opens a bidirectional stream rooted at baseURL.
	OpenStream(ctx context.Context, baseURL string, headers map[string]string) (StreamConn, error)
	// Close tears down the path.
	Close() error
}

// StreamConn is the wire side of one controlled stream.
type StreamConn interface {
	// Write sends one message on the stream.
	Write(ctx context.Context, payload []byte) error
	// Read blocks until the remote pushes the next message.
	Read(ctx context.Context) ([]byte, error)
	// Close closes the stream. A blocked Read returns after Close.
	Close() error
}

// Config configures a Client.
type Config struct {
	// Target is the proxy endpoint as host:port. Empty means
	// DefaultTarget.
	Target string
	// Dialer opens the path to the target. Required.
	Dialer Dialer
	// EventBuffer sizes each stream's event channel. Zero means a
	// small default.
	EventBuffer int
}

// Client talks to the proxy over a lazily dialed path. It supports two
// shapes of traffic: single datagram round trips through SendMessage,
// and one long-lived controlled stream the remote can push messages on.
type Client struct {
	target string
	dialer Dialer
	buffer int

	mu     sync.Mutex
	conn   Conn
	stream *Stream
	closed bool
}

// New creates a Client from the config. Nothing is dialed until the
// first operation needs the path.
func New(cfg Config) (*Client, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("quic: dialer is required")
	}
	target := cfg.Target
	if target == "" {
		target = DefaultTarget
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Client{target: target, dialer: cfg.Dialer, buffer: buffer}, nil
}

// Target returns the proxy endpoint this client dials.
func (c *Client) Target() string { return c.target }

func (c *Client) ensureConn(ctx context.Context) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("quic: client is closed")
	}
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := c.dialer.Dial(ctx, c.target)
	if err != nil {
		return nil, err
	}
	Logger().Debug("dialed proxy", zap.String("target", c.target))
	c.conn = conn
	return conn, nil
}

// SendMessage performs one datagram round trip and returns the reply.
func (c *Client) SendMessage(ctx context.Context, data []byte) ([]byte, error) {
	const op = errors.OpQuicSend
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, errors.Classify(op, err)
	}
	reply, err := conn.Exchange(ctx, data)
	if err != nil {
		return nil, errors.Classify(op, err)
	}
	return reply, nil
}

// OpenControlledStream opens a long-lived stream rooted at baseURL and
// returns it. The stream's events channel carries the remote's pushes.
// The client remembers the most recently opened stream as the target of
// WriteMessageOnStream.
func (c *Client) OpenControlledStream(ctx context.Context, baseURL string, headers map[string]string) (*Stream, error) {
	const op = errors.OpQuicStream
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, errors.Classify(op, err)
	}
	sc, err := conn.OpenStream(ctx, baseURL, headers)
	if err != nil {
		return nil, errors.Classify(op, err)
	}
	s := newStream(sc, c.buffer)

	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()
	return s, nil
}

// WriteMessageOnStream writes payload on the current controlled stream.
func (c *Client) WriteMessageOnStream(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return errors.New("quic: no controlled stream is open")
	}
	return s.Write(ctx, payload)
}

// Close closes the current stream, if any, and the dialed path. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stream, conn := c.stream, c.conn
	c.stream, c.conn = nil, nil
	c.mu.Unlock()

	var first error
	if stream != nil {
		if err := stream.Close(); err != nil {
			first = err
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
