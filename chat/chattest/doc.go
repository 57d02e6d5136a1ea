// Package chattest fakes the remote end of a chat connection for tests.
//
// A fake connection is a real *chat.Connection wired over an in-process
// pipe to a Remote the test scripts by hand. Nothing touches the
// network, and nothing is mocked on the client side: correlation,
// events, acks, and disconnect behavior are the production paths.
//
// # Scripting an exchange
//
// The test plays the server. Pull the client's next request, inspect
// it, and answer it by id:
//
//	conn, remote, err := chattest.NewFakeConnection()
//	if err != nil {
//		t.Fatal(err)
//	}
//	go func() {
//		resp, err := conn.SendRequest(ctx, chat.NewRequest("GET", "/v1/profile"), time.Second)
//		...
//	}()
//
//	req, id, err := remote.NextIncomingRequest(ctx)
//	// assert on req, then:
//	err = remote.SendResponse(id, 200, "OK",
//		[]string{"content-type: application/json"}, body)
//
// Requests arrive strictly in the order the client sent them, and each
// id accepts exactly one response.
//
// # Server traffic
//
// SendMessage and SendQueueEmpty push events to the client; NextAck
// observes the client's acknowledgements. Interrupt kills the
// connection the way a dropped wire would.
package chattest
