package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/chat-runtime/async"
	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/errors"
	"github.com/wippyai/chat-runtime/handle"
)

// TransportDialer opens the wire for each new chat connection. The
// production dialer lives with the embedder; tests use chattest.Server.
type TransportDialer interface {
	DialTransport(ctx context.Context) (chat.Transport, error)
}

// Config configures a host.
type Config struct {
	// Transports opens the wire for ConnectChat. Required.
	Transports TransportDialer
	// Workers sizes the operation pool. Zero picks a machine-derived
	// size.
	Workers int
}

// Host is the embedding surface of the runtime. Callers address every
// live object through an opaque uint64 handle and exchange only
// integers, strings and byte slices, so the surface can cross a
// foreign-function boundary unchanged. Results of asynchronous
// operations come back as small JSON documents.
//
// A guard pins an object only across the synchronous part of each call.
// Work already in flight when a handle is destroyed observes the
// teardown as an error instead; it is never torn out from under the
// operation.
//
// Methods are safe for concurrent use.
type Host struct {
	registry   *handle.Registry
	runtime    *async.Runtime
	transports TransportDialer
}

// NewHost assembles a host with its own registry and worker pool.
func NewHost(cfg Config) (*Host, error) {
	if cfg.Transports == nil {
		return nil, errors.New("bridge: transport dialer is required")
	}

	h := &Host{
		registry:   handle.NewRegistry(),
		runtime:    async.New(async.Config{Workers: cfg.Workers}),
		transports: cfg.Transports,
	}
	Logger().Debug("host started")
	return h, nil
}

// Close drains the worker pool, then destroys every live handle; open
// connections disconnect. It returns the first teardown error.
func (h *Host) Close() error {
	err := h.runtime.Close()
	if rerr := h.registry.Close(); err == nil {
		err = rerr
	}
	return err
}

// Handles reports the number of live handles, for leak checks.
func (h *Host) Handles() int {
	return h.registry.Len()
}

// ConnectChat dials a transport, opens a chat connection over it, and
// returns the connection handle.
func (h *Host) ConnectChat(ctx context.Context) (uint64, error) {
	tr, err := h.transports.DialTransport(ctx)
	if err != nil {
		return 0, errors.Classify(errors.OpChatConnect, err)
	}

	conn, err := chat.New(chat.Config{Transport: tr})
	if err != nil {
		tr.Close()
		return 0, errors.Classify(errors.OpChatConnect, err)
	}

	hd, err := h.registry.Register(conn)
	if err != nil {
		conn.Close()
		return 0, err
	}

	Logger().Debug("chat connected",
		zap.Uint64("handle", uint64(hd)),
		zap.String("connection", conn.Info().ID.String()))
	return uint64(hd), nil
}

// DestroyConnection invalidates the connection handle and disconnects
// the underlying connection. Exchanges still in flight fail with the
// disconnect error; their futures remain awaitable.
func (h *Host) DestroyConnection(conn uint64) error {
	if err := checkHandle[*chat.Connection](h, conn); err != nil {
		return err
	}
	return h.registry.Destroy(handle.Handle(conn))
}

// ConnectionInfo describes the connection as a JSON document with id,
// localPort and ipVersion fields.
func (h *Host) ConnectionInfo(conn uint64) ([]byte, error) {
	c, g, err := handle.Resolve[*chat.Connection](h.registry, handle.Handle(conn))
	if err != nil {
		return nil, err
	}
	info := c.Info()
	g.Release()

	return marshalInfo(info)
}

// ChatSend issues one request on the connection and returns a future
// for the exchange; consume it with AwaitResponse. Headers are
// newline-separated "name: value" lines. A positive timeoutMillis
// bounds the whole exchange.
func (h *Host) ChatSend(ctx context.Context, conn uint64, method, path string, headers string, body []byte, timeoutMillis int64) (uint64, error) {
	c, g, err := handle.Resolve[*chat.Connection](h.registry, handle.Handle(conn))
	if err != nil {
		return 0, err
	}

	req := chat.NewRequest(method, path)
	req.Body = body
	if err := setHeaderLines(req.Headers, headers); err != nil {
		g.Release()
		return 0, err
	}
	g.Release()

	timeout := time.Duration(timeoutMillis) * time.Millisecond
	return h.spawn(ctx, errors.OpChatSend, func(ctx context.Context) (any, error) {
		return c.SendRequest(ctx, req, timeout)
	})
}

// AwaitResponse blocks for a ChatSend future and consumes it. The
// response comes back as a JSON document with status, message, headers
// and body fields; failures surface as taxonomy errors. If ctx expires
// while the exchange is still pending, the future stays live.
func (h *Host) AwaitResponse(ctx context.Context, future uint64) ([]byte, error) {
	value, err := h.await(ctx, future)
	if err != nil {
		return nil, err
	}
	resp, ok := value.(*chat.Response)
	if !ok {
		return nil, errors.New("bridge: future does not carry a response")
	}
	return marshalResponse(resp)
}

// CancelOperation requests cancellation of a pending future. The handle
// stays live; awaiting it reports the canceled outcome.
func (h *Host) CancelOperation(future uint64) error {
	o, g, err := handle.Resolve[*async.Operation](h.registry, handle.Handle(future))
	if err != nil {
		return err
	}
	g.Release()

	o.Cancel()
	return nil
}

// DestroyOperation abandons a future without consuming its result. A
// pending operation is canceled first.
func (h *Host) DestroyOperation(future uint64) error {
	o, g, err := handle.Resolve[*async.Operation](h.registry, handle.Handle(future))
	if err != nil {
		return err
	}
	g.Release()

	o.Cancel()
	return h.registry.Destroy(handle.Handle(future))
}

// NextEvent blocks for the connection's next server event and returns
// it as a JSON document: {"type":"message"} events carry envelope,
// timestamp and an ack handle for AckServerMessage; "queueEmpty" and
// "interrupted" mark the backlog end and connection failure. Events
// arrive in server order; consume them from one goroutine per
// connection. A closed connection reports chat.ErrDisconnected.
func (h *Host) NextEvent(ctx context.Context, conn uint64) ([]byte, error) {
	c, g, err := handle.Resolve[*chat.Connection](h.registry, handle.Handle(conn))
	if err != nil {
		return nil, err
	}
	events := c.Events()
	g.Release()

	select {
	case ev, ok := <-events:
		if !ok {
			return nil, chat.ErrDisconnected
		}
		return h.encodeEvent(ev)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AckServerMessage sends the ack behind a message event's ack handle.
// Acks are single-use: the handle is consumed whether or not the ack
// reached the wire.
func (h *Host) AckServerMessage(ctx context.Context, ack uint64) error {
	a, g, err := handle.Resolve[*chat.ServerMessageAck](h.registry, handle.Handle(ack))
	if err != nil {
		return err
	}
	g.Release()

	sendErr := a.Send(ctx)
	if derr := h.registry.Destroy(handle.Handle(ack)); sendErr == nil {
		sendErr = derr
	}
	return sendErr
}

// spawn schedules fn on the pool and registers the operation as a
// future handle.
func (h *Host) spawn(ctx context.Context, op errors.Op, fn async.Func) (uint64, error) {
	o := h.runtime.Spawn(ctx, string(op), fn)
	future, err := h.registry.Register(o)
	if err != nil {
		o.Cancel()
		return 0, err
	}
	return uint64(future), nil
}

// await consumes a future: it blocks for the operation's outcome, then
// destroys the handle. If ctx expires while the operation is still
// pending, the handle stays live and await can be tried again.
func (h *Host) await(ctx context.Context, future uint64) (any, error) {
	o, g, err := handle.Resolve[*async.Operation](h.registry, handle.Handle(future))
	if err != nil {
		return nil, err
	}
	g.Release()

	if _, err := o.Await(ctx); err != nil && o.State() == async.StatePending {
		return nil, err
	}

	// Terminal. Re-read the outcome in case the bounded wait above lost
	// the race to completion; done is closed, so this cannot block.
	// Losing the destroy race to a concurrent awaiter is fine, both see
	// the same outcome.
	value, err := o.Await(context.Background())
	h.registry.Destroy(handle.Handle(future))
	return value, err
}

// encodeEvent renders one server event, minting an ack handle for
// message events.
func (h *Host) encodeEvent(ev chat.Event) ([]byte, error) {
	out := eventJSON{Timestamp: ev.Timestamp}

	switch ev.Type {
	case chat.EventMessage:
		out.Type = "message"
		out.Envelope = ev.Envelope
		if ev.Ack != nil {
			hd, err := h.registry.Register(ev.Ack)
			if err != nil {
				return nil, err
			}
			out.Ack = uint64(hd)
		}
	case chat.EventQueueEmpty:
		out.Type = "queueEmpty"
	case chat.EventInterrupted:
		out.Type = "interrupted"
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}
	default:
		return nil, errors.New("bridge: unknown event type")
	}

	return marshalEvent(out)
}

// checkHandle verifies a handle resolves to the expected type without
// retaining it.
func checkHandle[T any](h *Host, hd uint64) error {
	_, g, err := handle.Resolve[T](h.registry, handle.Handle(hd))
	if err != nil {
		return err
	}
	g.Release()
	return nil
}
