package quic

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/chat-runtime/errors"
)

// StreamEvent is one occurrence on a controlled stream, delivered in
// arrival order on the stream's events channel.
type StreamEvent struct {
	// Data is one message pushed by the remote.
	Data []byte
	// Err reports the stream failed. No further events follow and the
	// events channel is closed.
	Err error
}

// Stream is one controlled stream. The remote's pushes arrive on the
// events channel; writes go out through Write. Closing the stream ends
// the events channel without an error event.
type Stream struct {
	conn      StreamConn
	events    chan StreamEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newStream(conn StreamConn, buffer int) *Stream {
	s := &Stream{
		conn:   conn,
		events: make(chan StreamEvent, buffer),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Events returns the channel of remote pushes. The channel closes when
// the stream ends; the final event carries Err if the stream failed
// rather than being closed locally.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Write sends one message on the stream.
func (s *Stream) Write(ctx context.Context, payload []byte) error {
	select {
	case <-s.done:
		return errors.New("quic: stream is closed")
	default:
	}
	if err := s.conn.Write(ctx, payload); err != nil {
		return errors.Classify(errors.OpQuicStream, err)
	}
	return nil
}

// Close closes the stream. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) readLoop() {
	defer close(s.events)
	for {
		data, err := s.conn.Read(context.Background())
		if err != nil {
			select {
			case <-s.done:
				// Local close; end quietly.
			default:
				Logger().Warn("controlled stream failed", zap.Error(err))
				s.deliver(StreamEvent{Err: errors.Classify(errors.OpQuicStream, err)})
			}
			return
		}
		s.deliver(StreamEvent{Data: data})
	}
}

func (s *Stream) deliver(ev StreamEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
