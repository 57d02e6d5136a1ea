// Package registration drives phone number verification and account
// registration over an established chat connection.
//
// The flow is session-centric. CreateSession opens a verification
// session for a number; the server may then demand challenges (a
// captcha, a push challenge) before it will deliver a code. Challenge
// answers go back through UpdateSession. Once the session is allowed to
// request a code, RequestVerificationCode has the server deliver one
// over SMS or a voice call, and SubmitVerificationCode proves the
// number. RegisterAccount completes the story for a verified session.
//
// # Session state
//
// Every successful exchange returns the server's complete view of the
// session; nothing is merged client-side. Callers always hold the
// latest *Session and pass it to the next operation:
//
//	svc, err := registration.NewService(registration.Config{Exchanger: conn})
//	if err != nil {
//		return err
//	}
//	sess, err := svc.CreateSession(ctx, registration.CreateSessionRequest{
//		Number: "+18005550123",
//	})
//	if err != nil {
//		return err
//	}
//	sess, err = svc.RequestVerificationCode(ctx, sess, registration.TransportSMS,
//		"my-client", []string{"en-US"})
//
// # Failures
//
// Protocol failures surface as taxonomy errors from the errors package,
// attributed to the failing operation: a throttle carries its backoff,
// a failed code delivery carries the reason and its permanence, an
// unknown session is session-not-found, and so on. Context cancellation
// surfaces untouched. Mistakes in the call itself, a nil session or an
// empty number, are plain errors.
package registration
