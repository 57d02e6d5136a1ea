// Package chatruntime provides a Go client runtime for the chat service:
// authenticated connections, phone number verification, account
// registration, and an embedding bridge for hosts that cannot hold Go
// references.
//
// # Architecture Overview
//
// The runtime is organized into several packages with distinct
// responsibilities:
//
//	chat-runtime/        Root package, documentation only
//	├── chat/            Connections and correlated request/response exchanges
//	│   └── chattest/    In-memory fake server for tests and demos
//	├── registration/    Phone number verification and account registration
//	├── quic/            Datagram and stream client for the media edge
//	├── handle/          Opaque handle registry with single-owner destruction
//	├── async/           Operation pool with awaitable, cancelable futures
//	├── bridge/          Embedding surface: every object an integer handle
//	├── errors/          The failure taxonomy every operation reports in
//	├── config/          File and environment configuration
//	└── cmd/run/         Demo binary, scripted and interactive
//
// # Quick Start
//
// Connect and verify a number:
//
//	conn, err := chat.New(chat.Config{Transport: tr})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	svc, err := registration.NewService(registration.Config{Exchanger: conn})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sess, err := svc.CreateSession(ctx, registration.CreateSessionRequest{
//	    Number: "+18005550123",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sess, err = svc.RequestVerificationCode(ctx, sess,
//	    registration.TransportSMS, "my-client", nil)
//
// # Embedding
//
// Hosts in other languages drive the runtime through the bridge, which
// speaks only integers, strings, bytes, and JSON documents:
//
//	host, err := bridge.NewHost(bridge.Config{Transports: dialer})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer host.Close()
//
//	conn, err := host.ConnectChat(ctx)
//	future, err := host.ChatSend(ctx, conn, "GET", "/v1/time", "", nil, 5000)
//	doc, err := host.AwaitResponse(ctx, future)
//
// # Failure Taxonomy
//
// Every operation that can fail reports an *errors.Error carrying the
// operation name and one of a closed set of kinds. Callers branch on the
// kind, never on message text. Context cancellation is the one exception
// and surfaces untouched.
//
// # Thread Safety
//
// Connection, Service, Runtime, Registry, and Host are safe for
// concurrent use. A Session is an immutable snapshot; each successful
// call returns a new one and the caller chooses which to keep.
package chatruntime
