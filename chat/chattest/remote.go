package chattest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/errors"
)

// ErrClientClosed is returned by remote reads after the client side tore
// the connection down.
var ErrClientClosed = errors.New("chattest: client closed the connection")

// frameBuffer sizes both directions of the pipe. Large enough that a
// test never blocks pushing scripted traffic.
const frameBuffer = 64

type queuedRequest struct {
	req *chat.Request
	id  uint64
}

// Remote is the far end of a fake connection. Tests drive it directly:
// pull the client's requests with NextIncomingRequest, answer them with
// SendResponse, and push server traffic with SendMessage and
// SendQueueEmpty.
//
// Requests surface strictly in the order the client sent them, and each
// request id accepts exactly one response.
type Remote struct {
	toClient   chan chat.Frame
	fromClient chan chat.Frame

	clientClosed chan struct{}
	closeClient  sync.Once

	mu          sync.Mutex
	requests    []queuedRequest
	acks        []uint64
	open        map[uint64]bool
	answered    map[uint64]bool
	nextMessage uint64
	interrupted bool
}

func newRemote() *Remote {
	return &Remote{
		toClient:     make(chan chat.Frame, frameBuffer),
		fromClient:   make(chan chat.Frame, frameBuffer),
		clientClosed: make(chan struct{}),
		open:         make(map[uint64]bool),
		answered:     make(map[uint64]bool),
	}
}

// intake files one client frame under the right queue.
func (r *Remote) intake(f chat.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch f.Type {
	case chat.FrameRequest:
		r.open[f.ID] = true
		r.requests = append(r.requests, queuedRequest{req: f.Request, id: f.ID})
	case chat.FrameAck:
		r.acks = append(r.acks, f.ID)
	}
}

// readFrame pulls the next client frame. Buffered frames win over the
// close signal so nothing the client sent before disconnecting is lost.
func (r *Remote) readFrame(ctx context.Context) error {
	select {
	case f := <-r.fromClient:
		r.intake(f)
		return nil
	default:
	}
	select {
	case f := <-r.fromClient:
		r.intake(f)
		return nil
	case <-r.clientClosed:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextIncomingRequest blocks until the client's next request arrives and
// returns it with the id to answer it under. Acks arriving in the
// meantime are held for NextAck.
func (r *Remote) NextIncomingRequest(ctx context.Context) (*chat.Request, uint64, error) {
	for {
		r.mu.Lock()
		if len(r.requests) > 0 {
			q := r.requests[0]
			r.requests = r.requests[1:]
			r.mu.Unlock()
			return q.req, q.id, nil
		}
		r.mu.Unlock()
		if err := r.readFrame(ctx); err != nil {
			return nil, 0, err
		}
	}
}

// NextAck blocks until the client acknowledges a server message and
// returns the acked message id. Requests arriving in the meantime are
// held for NextIncomingRequest.
func (r *Remote) NextAck(ctx context.Context) (uint64, error) {
	for {
		r.mu.Lock()
		if len(r.acks) > 0 {
			id := r.acks[0]
			r.acks = r.acks[1:]
			r.mu.Unlock()
			return id, nil
		}
		r.mu.Unlock()
		if err := r.readFrame(ctx); err != nil {
			return 0, err
		}
	}
}

// SendResponse answers the request with the given id. Headers are
// "name: value" lines. Each request takes exactly one response; a second
// response for the same id fails, as does an id no request carried.
func (r *Remote) SendResponse(id uint64, status int, message string, headers []string, body []byte) error {
	hdrs := make(chat.Headers, len(headers))
	for _, line := range headers {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("chattest: malformed header line %q", line)
		}
		hdrs.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	r.mu.Lock()
	if r.answered[id] {
		r.mu.Unlock()
		return fmt.Errorf("chattest: request %d already answered", id)
	}
	if !r.open[id] {
		r.mu.Unlock()
		return fmt.Errorf("chattest: no request with id %d", id)
	}
	delete(r.open, id)
	r.answered[id] = true
	r.mu.Unlock()

	return r.push(chat.Frame{
		Type: chat.FrameResponse,
		ID:   id,
		Response: &chat.Response{
			Status:  status,
			Message: message,
			Headers: hdrs,
			Body:    body,
		},
	})
}

// SendMessage pushes one server envelope to the client and returns the
// message id the client will ack under.
func (r *Remote) SendMessage(payload []byte, timestamp uint64) (uint64, error) {
	r.mu.Lock()
	r.nextMessage++
	id := r.nextMessage
	r.mu.Unlock()

	err := r.push(chat.Frame{
		Type:      chat.FrameMessage,
		ID:        id,
		Payload:   payload,
		Timestamp: timestamp,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SendQueueEmpty tells the client the stored backlog has been fully
// delivered.
func (r *Remote) SendQueueEmpty() error {
	return r.push(chat.Frame{Type: chat.FrameQueueEmpty})
}

// Interrupt fails the connection from the remote side, as a dropped
// wire would. The client observes an interruption event.
func (r *Remote) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.interrupted {
		return
	}
	r.interrupted = true
	close(r.toClient)
}

func (r *Remote) push(f chat.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.interrupted {
		return errors.New("chattest: remote already interrupted")
	}
	select {
	case r.toClient <- f:
		return nil
	case <-r.clientClosed:
		return ErrClientClosed
	}
}
