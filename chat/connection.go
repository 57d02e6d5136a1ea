package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/chat-runtime/errors"
)

// ErrDisconnected is returned for requests issued on, or caught in-flight
// by, a closed connection.
var ErrDisconnected = errors.New("connection closed")

// ConnectionInfo describes an established connection.
type ConnectionInfo struct {
	ID        uuid.UUID
	LocalPort int
	IPVersion string
}

// Config configures a connection.
type Config struct {
	// Transport carries the connection's frames. Required.
	Transport Transport
	// LocalPort and IPVersion describe the wire for diagnostics.
	LocalPort int
	IPVersion string
	// EventBuffer is the capacity of the events channel. Defaults to 16.
	// A full buffer applies backpressure to the transport reader.
	EventBuffer int
}

// Connection multiplexes correlated request/response exchanges and
// server-initiated events over one transport.
type Connection struct {
	transport Transport
	info      ConnectionInfo

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan sendResult
	closed  bool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

type sendResult struct {
	resp *Response
	err  error
}

// New opens a connection over the given transport and starts its reader.
func New(cfg Config) (*Connection, error) {
	if cfg.Transport == nil {
		return nil, errors.New("chat: transport is required")
	}

	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = 16
	}

	c := &Connection{
		transport: cfg.Transport,
		info: ConnectionInfo{
			ID:        uuid.New(),
			LocalPort: cfg.LocalPort,
			IPVersion: cfg.IPVersion,
		},
		pending: make(map[uint64]chan sendResult),
		events:  make(chan Event, buf),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	Logger().Debug("connection opened", zap.String("connection", c.info.ID.String()))
	return c, nil
}

// Info describes the connection.
func (c *Connection) Info() ConnectionInfo { return c.info }

// Events returns the connection's event queue. Events arrive in server
// order; consume them from a single goroutine. The channel closes after
// an EventInterrupted or a Disconnect.
func (c *Connection) Events() <-chan Event { return c.events }

// SendRequest performs one correlated exchange. A positive timeout bounds
// the whole exchange; expiry surfaces as a Timeout taxonomy error.
// Canceling ctx abandons local delivery only: a frame already written
// stays on the wire, the connection stays up, and a late response for the
// abandoned exchange is dropped.
func (c *Connection) SendRequest(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan sendResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	Logger().Debug("request sent",
		zap.Uint64("id", id),
		zap.String("method", req.Method),
		zap.String("path", req.Path))

	if err := c.transport.Send(ctx, Frame{Type: FrameRequest, ID: id, Request: req}); err != nil {
		c.forget(id)
		return nil, errors.Classify(errors.OpChatSend, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, errors.Classify(errors.OpChatSend, res.err)
		}
		return res.resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, errors.Classify(errors.OpChatSend, ctx.Err())
	}
}

// Disconnect closes the connection. In-flight exchanges fail with
// ErrDisconnected and the events channel closes. Safe to call repeatedly.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.transport.Close(); err != nil {
			Logger().Warn("transport close", zap.Error(err))
		}
		Logger().Debug("connection closed", zap.String("connection", c.info.ID.String()))
	})
	return nil
}

// Close implements io.Closer so a registry-owned connection tears down on
// handle destruction.
func (c *Connection) Close() error {
	return c.Disconnect(context.Background())
}

func (c *Connection) sendAck(ctx context.Context, id uint64) error {
	return c.transport.Send(ctx, Frame{Type: FrameAck, ID: id})
}

func (c *Connection) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop owns the receive side: it correlates responses to pending
// exchanges and queues server events. It exits when the transport fails
// or closes.
func (c *Connection) readLoop() {
	for {
		f, err := c.transport.Receive(context.Background())
		if err != nil {
			c.interrupt(err)
			return
		}

		switch f.Type {
		case FrameResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if !ok {
				// Abandoned or unknown exchange.
				Logger().Debug("response dropped", zap.Uint64("id", f.ID))
				continue
			}
			ch <- sendResult{resp: f.Response}

		case FrameMessage:
			c.deliver(Event{
				Type:      EventMessage,
				Envelope:  f.Payload,
				Timestamp: f.Timestamp,
				Ack:       &ServerMessageAck{conn: c, id: f.ID},
			})

		case FrameQueueEmpty:
			c.deliver(Event{Type: EventQueueEmpty})

		default:
			Logger().Warn("unexpected frame", zap.Uint8("type", uint8(f.Type)))
		}
	}
}

func (c *Connection) deliver(e Event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

// interrupt fails every pending exchange and finishes the event stream.
// A failure during deliberate teardown is reported as ErrDisconnected
// rather than an interruption.
func (c *Connection) interrupt(err error) {
	deliberate := false
	select {
	case <-c.done:
		deliberate = true
	default:
	}

	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]chan sendResult)
	c.mu.Unlock()

	failure := err
	if deliberate {
		failure = ErrDisconnected
	}
	for _, ch := range pending {
		ch <- sendResult{err: failure}
	}

	if !deliberate {
		Logger().Warn("connection interrupted", zap.Error(err))
		c.deliver(Event{Type: EventInterrupted, Err: err})
	}
	close(c.events)
}
