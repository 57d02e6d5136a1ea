// Package chat provides the connection substrate the session protocols
// ride on: HTTP-shaped requests and responses multiplexed over a single
// transport, with correlated delivery, server-initiated events, and
// single-use message acknowledgements.
//
// # Requests and responses
//
// Exchanges are HTTP-shaped but transport-agnostic: a method, a path with
// query, case-insensitive headers, and a byte body. The connection assigns
// each request a correlation ID and matches the remote's responses back to
// the waiting caller, so exchanges complete correctly even when responses
// arrive out of order:
//
//	resp, err := conn.SendRequest(ctx, chat.NewRequest("GET", "/v1/verification/session/abc"), 10*time.Second)
//
// Canceling an exchange abandons local delivery only. The connection and
// the other exchanges multiplexed on it are untouched, and a late
// response for the abandoned ID is dropped.
//
// # Server events
//
// The remote pushes envelopes, backlog-drained markers, and interruption
// notices. They arrive in order on a single channel:
//
//	for ev := range conn.Events() {
//		switch ev.Type {
//		case chat.EventMessage:
//			handle(ev.Envelope)
//			ev.Ack.Send(ctx)
//		case chat.EventQueueEmpty:
//			// backlog fully delivered
//		case chat.EventInterrupted:
//			// connection failed: ev.Err
//		}
//	}
//
// Each message carries a single-use ack; the server withholds the rest of
// the backlog until the ack for the previous message arrives.
//
// # Collaborator seams
//
// The Transport interface owns the wire; production code plugs in a real
// TLS transport while tests use the in-process pair from chat/chattest.
// Unary RPCs (device list, versioned profiles) go through the RPCDriver
// seam with pre-serialized bodies; the runtime treats them as opaque.
package chat
