// Package bridge is the runtime's embedding surface.
//
// A Host owns a handle registry and a background worker pool. Callers
// address connections, registration flows, futures and acks through
// opaque uint64 handles and exchange only integers, strings and byte
// slices, so the whole surface can cross a foreign-function boundary
// (gomobile and friends) unchanged. Results of asynchronous operations
// come back as small JSON documents.
//
// # Futures
//
// Methods that perform network work return a future handle immediately.
// The matching Await method blocks for the outcome and consumes the
// handle; the context bounds the wait only, so on expiry the future
// stays live and can be awaited again, canceled with CancelOperation,
// or dropped with DestroyOperation.
//
//	conn, _ := host.ConnectChat(ctx)
//	future, _ := host.ChatSend(ctx, conn, "GET", "/v1/devices", "", nil, 0)
//	doc, err := host.AwaitResponse(ctx, future)
//
// # Registration flows
//
// A registration flow binds a verification session to a connection.
// CreateRegistrationSession returns a future; AwaitRegistration turns
// it into a flow handle. Each flow operation refreshes the session view
// held behind the handle, and RegistrationState reads it back at any
// point.
//
//	f, _ := host.CreateRegistrationSession(ctx, conn, "+18005550123", "", "", "", "")
//	flow, _ := host.AwaitRegistration(ctx, f)
//	f, _ = host.RegistrationRequestCode(ctx, flow, "sms", "my-client", "en-US")
//	doc, _ := host.AwaitSession(ctx, f)
//
// # Handle misuse
//
// A handle that is unknown, already destroyed, or of the wrong type for
// the method fails immediately with handle.ErrInvalidHandle. That class
// of failure marks a programming error in the embedder and is kept
// distinct from protocol errors, which arrive as structured taxonomy
// errors from the errors package.
package bridge
