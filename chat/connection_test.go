package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/chat-runtime/errors"
)

// pipeTransport is a channel-backed transport for exercising the
// connection from the remote's point of view.
type pipeTransport struct {
	in     chan Frame // frames the connection will Receive
	out    chan Frame // frames the connection Sent
	closed chan struct{}
	once   sync.Once
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		in:     make(chan Frame, 64),
		out:    make(chan Frame, 64),
		closed: make(chan struct{}),
	}
}

func (t *pipeTransport) Send(ctx context.Context, f Frame) error {
	select {
	case t.out <- f:
		return nil
	case <-t.closed:
		return errors.New("pipe closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *pipeTransport) Receive(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-t.in:
		if !ok {
			return Frame{}, errors.New("remote went away")
		}
		return f, nil
	case <-t.closed:
		return Frame{}, errors.New("pipe closed")
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (t *pipeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// nextSent waits for the next frame the connection wrote.
func (t *pipeTransport) nextSent(tb testing.TB) Frame {
	tb.Helper()
	select {
	case f := <-t.out:
		return f
	case <-time.After(2 * time.Second):
		tb.Fatal("no frame sent")
		return Frame{}
	}
}

func newTestConnection(t *testing.T) (*Connection, *pipeTransport) {
	t.Helper()
	tr := newPipeTransport()
	conn, err := New(Config{Transport: tr, LocalPort: 4433, IPVersion: "IPv4"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, tr
}

func TestConnection_RoundTrip(t *testing.T) {
	conn, tr := newTestConnection(t)

	type result struct {
		resp *Response
		err  error
	}
	got := make(chan result, 1)
	go func() {
		req := NewRequest("GET", "/v1/verification/session/abc")
		resp, err := conn.SendRequest(context.Background(), req, 5*time.Second)
		got <- result{resp, err}
	}()

	f := tr.nextSent(t)
	if f.Type != FrameRequest {
		t.Fatalf("frame type = %v, want request", f.Type)
	}
	if f.Request.Method != "GET" || f.Request.Path != "/v1/verification/session/abc" {
		t.Fatalf("request = %s %s", f.Request.Method, f.Request.Path)
	}

	headers := make(Headers)
	headers.Set("Content-Type", "application/json")
	tr.in <- Frame{
		Type:     FrameResponse,
		ID:       f.ID,
		Response: &Response{Status: 200, Message: "OK", Headers: headers, Body: []byte(`{}`)},
	}

	r := <-got
	if r.err != nil {
		t.Fatalf("SendRequest failed: %v", r.err)
	}
	if r.resp.Status != 200 || r.resp.Headers.Get("content-type") != "application/json" {
		t.Fatalf("response = %+v", r.resp)
	}
}

func TestConnection_OutOfOrderResponses(t *testing.T) {
	conn, tr := newTestConnection(t)

	first := make(chan *Response, 1)
	second := make(chan *Response, 1)
	go func() {
		resp, _ := conn.SendRequest(context.Background(), NewRequest("GET", "/first"), 5*time.Second)
		first <- resp
	}()
	f1 := tr.nextSent(t)
	go func() {
		resp, _ := conn.SendRequest(context.Background(), NewRequest("GET", "/second"), 5*time.Second)
		second <- resp
	}()
	f2 := tr.nextSent(t)

	// Answer in reverse order; correlation must still route each response
	// to its own caller.
	tr.in <- Frame{Type: FrameResponse, ID: f2.ID, Response: &Response{Status: 201}}
	tr.in <- Frame{Type: FrameResponse, ID: f1.ID, Response: &Response{Status: 200}}

	if r := <-second; r == nil || r.Status != 201 {
		t.Fatalf("second response = %+v, want 201", r)
	}
	if r := <-first; r == nil || r.Status != 200 {
		t.Fatalf("first response = %+v, want 200", r)
	}
}

func TestConnection_Timeout(t *testing.T) {
	conn, _ := newTestConnection(t)

	start := time.Now()
	_, err := conn.SendRequest(context.Background(), NewRequest("GET", "/slow"), 20*time.Millisecond)
	if !errors.IsKind(err, errors.KindTimeout) {
		t.Fatalf("SendRequest error = %v, want timeout kind", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout took far too long")
	}
}

func TestConnection_CancelAbandonsDeliveryOnly(t *testing.T) {
	conn, tr := newTestConnection(t)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := conn.SendRequest(ctx, NewRequest("GET", "/abandoned"), 0)
		errs <- err
	}()
	f := tr.nextSent(t)

	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("SendRequest error = %v, want context.Canceled", err)
	}

	// A late response for the abandoned exchange is dropped, and the
	// connection keeps serving new exchanges.
	tr.in <- Frame{Type: FrameResponse, ID: f.ID, Response: &Response{Status: 200}}

	got := make(chan *Response, 1)
	go func() {
		resp, err := conn.SendRequest(context.Background(), NewRequest("GET", "/next"), 5*time.Second)
		if err != nil {
			t.Errorf("follow-up exchange failed: %v", err)
		}
		got <- resp
	}()
	f2 := tr.nextSent(t)
	tr.in <- Frame{Type: FrameResponse, ID: f2.ID, Response: &Response{Status: 204}}
	if r := <-got; r == nil || r.Status != 204 {
		t.Fatalf("follow-up response = %+v, want 204", r)
	}
}

func TestConnection_Events(t *testing.T) {
	conn, tr := newTestConnection(t)

	tr.in <- Frame{Type: FrameMessage, ID: 7, Payload: []byte("envelope-1"), Timestamp: 1000}
	tr.in <- Frame{Type: FrameQueueEmpty}

	ev := <-conn.Events()
	if ev.Type != EventMessage {
		t.Fatalf("event type = %v, want message", ev.Type)
	}
	if string(ev.Envelope) != "envelope-1" || ev.Timestamp != 1000 {
		t.Fatalf("event = %+v", ev)
	}

	// First ack goes out; the second is rejected.
	if err := ev.Ack.Send(context.Background()); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	ack := tr.nextSent(t)
	if ack.Type != FrameAck || ack.ID != 7 {
		t.Fatalf("ack frame = %+v", ack)
	}
	if err := ev.Ack.Send(context.Background()); !errors.Is(err, ErrAlreadyAcked) {
		t.Fatalf("second Ack = %v, want ErrAlreadyAcked", err)
	}

	if ev := <-conn.Events(); ev.Type != EventQueueEmpty {
		t.Fatalf("event type = %v, want queue empty", ev.Type)
	}
}

func TestConnection_Interrupted(t *testing.T) {
	conn, tr := newTestConnection(t)

	errs := make(chan error, 1)
	go func() {
		_, err := conn.SendRequest(context.Background(), NewRequest("GET", "/pending"), 5*time.Second)
		errs <- err
	}()
	tr.nextSent(t)

	// Remote failure: pending exchanges fail and the event stream ends
	// with an interruption notice.
	close(tr.in)

	if err := <-errs; err == nil {
		t.Fatal("pending exchange should fail on interruption")
	}

	ev, ok := <-conn.Events()
	if !ok || ev.Type != EventInterrupted {
		t.Fatalf("event = %+v ok=%t, want interrupted", ev, ok)
	}
	if ev.Err == nil {
		t.Fatal("interruption should carry its error")
	}
	if _, ok := <-conn.Events(); ok {
		t.Fatal("events channel should close after interruption")
	}
}

func TestConnection_Disconnect(t *testing.T) {
	conn, tr := newTestConnection(t)

	errs := make(chan error, 1)
	go func() {
		_, err := conn.SendRequest(context.Background(), NewRequest("GET", "/pending"), 5*time.Second)
		errs <- err
	}()
	tr.nextSent(t)

	if err := conn.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	if err := <-errs; !errors.Is(err, ErrDisconnected) {
		t.Fatalf("pending exchange error = %v, want ErrDisconnected", err)
	}

	// Deliberate teardown closes the event stream without an interruption
	// notice.
	if ev, ok := <-conn.Events(); ok {
		t.Fatalf("unexpected event after disconnect: %+v", ev)
	}

	if _, err := conn.SendRequest(context.Background(), NewRequest("GET", "/late"), 0); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("send after disconnect = %v, want ErrDisconnected", err)
	}
}

func TestConnection_InfoIsStable(t *testing.T) {
	conn, _ := newTestConnection(t)

	info := conn.Info()
	if info.LocalPort != 4433 || info.IPVersion != "IPv4" {
		t.Fatalf("info = %+v", info)
	}
	if info.ID != conn.Info().ID {
		t.Fatal("connection id should be stable")
	}
	if info.ID == uuid.Nil {
		t.Fatal("connection id should be populated")
	}
}
