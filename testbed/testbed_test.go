package testbed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/chat/chattest"
	"github.com/wippyai/chat-runtime/errors"
	"github.com/wippyai/chat-runtime/registration"
)

const backendCode = "339922"

// recordedRequest is one request the backend answered.
type recordedRequest struct {
	method string
	path   string
	header chat.Headers
	body   []byte
}

// verificationBackend scripts the server side of a verification flow. It
// answers requests the way the real service would and records everything
// it sees for later assertions.
type verificationBackend struct {
	remote *chattest.Remote
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	requests []recordedRequest
	codeSent bool
	verified bool
}

func startBackend(t *testing.T, remote *chattest.Remote) *verificationBackend {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b := &verificationBackend{
		remote: remote,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.serve(ctx)
	t.Cleanup(b.stop)
	return b
}

func (b *verificationBackend) stop() {
	b.cancel()
	<-b.done
}

func (b *verificationBackend) serve(ctx context.Context) {
	defer close(b.done)
	for {
		req, id, err := b.remote.NextIncomingRequest(ctx)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, recordedRequest{
			method: req.Method,
			path:   req.Path,
			header: req.Headers.Clone(),
			body:   req.Body,
		})
		status, body := b.answer(req)
		b.mu.Unlock()

		headers := []string{"content-type: application/json"}
		if status == 429 {
			headers = append(headers, "retry-after: 31")
		}
		b.remote.SendResponse(id, status, statusMessage(status), headers, body)
	}
}

// answer picks the response for one request. Callers hold b.mu.
func (b *verificationBackend) answer(req *chat.Request) (int, []byte) {
	switch {
	case req.Method == "POST" && req.Path == "/v1/verification/session":
		return 200, b.sessionDoc()
	case req.Method == "GET" && strings.HasPrefix(req.Path, "/v1/verification/session/"):
		return 200, b.sessionDoc()
	case req.Method == "PATCH" && strings.HasPrefix(req.Path, "/v1/verification/session/"):
		return 200, b.sessionDoc()
	case req.Method == "POST" && strings.HasSuffix(req.Path, "/code"):
		b.codeSent = true
		return 200, b.sessionDoc()
	case req.Method == "PUT" && strings.HasSuffix(req.Path, "/code"):
		var body struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(req.Body, &body); err == nil && body.Code == backendCode {
			b.verified = true
			return 200, b.sessionDoc()
		}
		return 200, b.sessionDoc()
	case req.Method == "POST" && req.Path == "/v1/registration":
		return 200, []byte(`{
			"uuid": "3c4b8b27-7cea-4bdc-9e75-0a2e6e4ed625",
			"number": "+18005550123",
			"pni": "9a7b8c4d-1a2b-4c3d-8e9f-0a1b2c3d4e5f",
			"usernameHash": "dGVzdGJlZA=="
		}`)
	}
	return 404, nil
}

func (b *verificationBackend) sessionDoc() []byte {
	doc := fmt.Sprintf(`{
		"id": "backend-session",
		"allowedToRequestCode": %t,
		"verified": %t,
		"requestedInformation": []
	}`, !b.codeSent, b.verified)
	return []byte(doc)
}

// trace returns the method+path sequence the backend has served so far.
func (b *verificationBackend) trace() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.requests))
	for i, r := range b.requests {
		out[i] = r.method + " " + r.path
	}
	return out
}

func (b *verificationBackend) request(i int) recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[i]
}

func statusMessage(status int) string {
	switch status {
	case 200:
		return "OK"
	case 404:
		return "Not Found"
	case 429:
		return "Too Many Requests"
	}
	return "Error"
}

func newService(t *testing.T) (*registration.Service, *verificationBackend) {
	t.Helper()
	conn, remote, err := chattest.NewFakeConnection()
	if err != nil {
		t.Fatalf("fake connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	svc, err := registration.NewService(registration.Config{Exchanger: conn})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, startBackend(t, remote)
}

func TestVerification_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, backend := newService(t)

	sess, err := svc.CreateSession(ctx, registration.CreateSessionRequest{
		Number:        "+18005550123",
		PushToken:     "testbed-push-token",
		PushTokenType: registration.PushTokenFCM,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.ID != "backend-session" {
		t.Errorf("session id = %q, want %q", sess.ID, "backend-session")
	}
	if !sess.AllowedToRequestCode {
		t.Error("new session should allow requesting a code")
	}

	sess, err = svc.RequestVerificationCode(ctx, sess,
		registration.TransportVoice, "chat-runtime testbed", []string{"fr-CA"})
	if err != nil {
		t.Fatalf("request code: %v", err)
	}
	if sess.Verified {
		t.Error("session verified before any code was submitted")
	}

	sess, err = svc.SubmitVerificationCode(ctx, sess, backendCode)
	if err != nil {
		t.Fatalf("submit code: %v", err)
	}
	if !sess.Verified {
		t.Error("session not verified after the correct code")
	}
	if sess.Number != "+18005550123" {
		t.Errorf("session number = %q, want %q", sess.Number, "+18005550123")
	}

	want := []string{
		"POST /v1/verification/session",
		"POST /v1/verification/session/backend-session/code",
		"PUT /v1/verification/session/backend-session/code",
	}
	got := backend.trace()
	if len(got) != len(want) {
		t.Fatalf("backend served %d requests, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestVerification_WireShapes(t *testing.T) {
	ctx := context.Background()
	svc, backend := newService(t)

	sess, err := svc.CreateSession(ctx, registration.CreateSessionRequest{
		Number:        "+18005550123",
		PushToken:     "testbed-push-token",
		PushTokenType: registration.PushTokenFCM,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.RequestVerificationCode(ctx, sess,
		registration.TransportVoice, "chat-runtime testbed", []string{"fr-CA"}); err != nil {
		t.Fatalf("request code: %v", err)
	}

	create := backend.request(0)
	wantCreate := `{"number":"+18005550123","pushToken":"testbed-push-token","pushTokenType":"fcm"}`
	if string(create.body) != wantCreate {
		t.Errorf("create body = %s, want %s", create.body, wantCreate)
	}
	if ct := create.header.Get("content-type"); ct != "application/json" {
		t.Errorf("create content-type = %q, want application/json", ct)
	}

	code := backend.request(1)
	wantCode := `{"transport":"voice","client":"chat-runtime testbed"}`
	if string(code.body) != wantCode {
		t.Errorf("request-code body = %s, want %s", code.body, wantCode)
	}
	if al := code.header.Get("accept-language"); al != "fr-CA" {
		t.Errorf("accept-language = %q, want fr-CA", al)
	}
}

func TestVerification_ResumeAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc, backend := newService(t)

	sess, err := svc.ResumeSession(ctx, "backend-session", "+18005550123")
	if err != nil {
		t.Fatalf("resume session: %v", err)
	}
	if sess.Number != "+18005550123" {
		t.Errorf("resumed number = %q, want %q", sess.Number, "+18005550123")
	}

	sess, err = svc.UpdateSession(ctx, sess, registration.UpdateSessionRequest{
		Captcha: "solved-captcha",
	})
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if sess.ID != "backend-session" {
		t.Errorf("updated session id = %q, want %q", sess.ID, "backend-session")
	}

	resume := backend.request(0)
	if resume.method != "GET" || len(resume.body) != 0 {
		t.Errorf("resume was %s with %d body bytes, want bare GET", resume.method, len(resume.body))
	}
	update := backend.request(1)
	wantUpdate := `{"captcha":"solved-captcha"}`
	if string(update.body) != wantUpdate {
		t.Errorf("update body = %s, want %s", update.body, wantUpdate)
	}
}

func TestVerification_AccountRegistration(t *testing.T) {
	ctx := context.Background()
	svc, backend := newService(t)

	sess, err := svc.CreateSession(ctx, registration.CreateSessionRequest{Number: "+18005550123"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess, err = svc.RequestVerificationCode(ctx, sess,
		registration.TransportSMS, "chat-runtime testbed", nil); err != nil {
		t.Fatalf("request code: %v", err)
	}
	if sess, err = svc.SubmitVerificationCode(ctx, sess, backendCode); err != nil {
		t.Fatalf("submit code: %v", err)
	}
	if !sess.Verified {
		t.Fatal("session not verified")
	}

	account, err := svc.RegisterAccount(ctx, registration.RegisterAccountRequest{
		Number:          sess.Number,
		AccountPassword: []byte("testbed password"),
		SessionID:       sess.ID,
		Attributes: registration.AccountAttributes{
			RecoveryPassword: []byte("recovery"),
			RegistrationID:   512,
			Capabilities:     []string{"testbed"},
		},
		SkipDeviceTransfer: true,
	})
	if err != nil {
		t.Fatalf("register account: %v", err)
	}
	if account.Number != "+18005550123" {
		t.Errorf("account number = %q, want %q", account.Number, "+18005550123")
	}
	if account.ACI.String() != "3c4b8b27-7cea-4bdc-9e75-0a2e6e4ed625" {
		t.Errorf("account aci = %s", account.ACI)
	}

	reg := backend.request(3)
	if reg.method != "POST" || reg.path != "/v1/registration" {
		t.Fatalf("registration was %s %s", reg.method, reg.path)
	}
	if auth := reg.header.Get("authorization"); !strings.HasPrefix(auth, "Basic ") {
		t.Errorf("authorization = %q, want basic auth", auth)
	}
	var body struct {
		SessionID          string `json:"sessionId"`
		SkipDeviceTransfer bool   `json:"skipDeviceTransfer"`
	}
	if err := json.Unmarshal(reg.body, &body); err != nil {
		t.Fatalf("registration body did not parse: %v", err)
	}
	if body.SessionID != "backend-session" {
		t.Errorf("body sessionId = %q, want %q", body.SessionID, "backend-session")
	}
	if !body.SkipDeviceTransfer {
		t.Error("body skipDeviceTransfer = false, want true")
	}
}

func TestVerification_ServerBackoff(t *testing.T) {
	ctx := context.Background()
	conn, remote, err := chattest.NewFakeConnection()
	if err != nil {
		t.Fatalf("fake connection: %v", err)
	}
	defer conn.Close()

	svc, err := registration.NewService(registration.Config{Exchanger: conn})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	go func() {
		_, id, err := remote.NextIncomingRequest(context.Background())
		if err != nil {
			return
		}
		remote.SendResponse(id, 429, "Too Many Requests",
			[]string{"retry-after: 31"}, nil)
	}()

	_, err = svc.CreateSession(ctx, registration.CreateSessionRequest{Number: "+18005550123"})
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("create session error = %v, want taxonomy error", err)
	}
	if e.Kind != errors.KindRetryAfter {
		t.Errorf("kind = %v, want %v", e.Kind, errors.KindRetryAfter)
	}
	if e.RetryAfter != 31*time.Second {
		t.Errorf("retry after = %v, want 31s", e.RetryAfter)
	}
	if e.Op != errors.OpCreateSession {
		t.Errorf("op = %v, want %v", e.Op, errors.OpCreateSession)
	}
}

func TestVerification_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()

	const numClients = 5

	var wg sync.WaitGroup
	errs := make(chan error, numClients)

	for c := 0; c < numClients; c++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()

			conn, remote, err := chattest.NewFakeConnection()
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()

			backendCtx, cancel := context.WithCancel(context.Background())
			defer cancel()
			b := &verificationBackend{
				remote: remote,
				cancel: cancel,
				done:   make(chan struct{}),
			}
			go b.serve(backendCtx)

			svc, err := registration.NewService(registration.Config{Exchanger: conn})
			if err != nil {
				errs <- err
				return
			}

			number := fmt.Sprintf("+1800555%04d", client)
			sess, err := svc.CreateSession(ctx, registration.CreateSessionRequest{Number: number})
			if err != nil {
				errs <- err
				return
			}
			if sess, err = svc.RequestVerificationCode(ctx, sess,
				registration.TransportSMS, "chat-runtime testbed", nil); err != nil {
				errs <- err
				return
			}
			if sess, err = svc.SubmitVerificationCode(ctx, sess, backendCode); err != nil {
				errs <- err
				return
			}
			if !sess.Verified {
				errs <- fmt.Errorf("client %d: session not verified", client)
				return
			}
			if sess.Number != number {
				errs <- fmt.Errorf("client %d: number = %q, want %q", client, sess.Number, number)
			}
		}(c)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent flow: %v", err)
		}
	}
}

// Benchmarks

func BenchmarkVerification_FullFlow(b *testing.B) {
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		conn, remote, err := chattest.NewFakeConnection()
		if err != nil {
			b.Fatal(err)
		}

		backendCtx, cancel := context.WithCancel(context.Background())
		backend := &verificationBackend{
			remote: remote,
			cancel: cancel,
			done:   make(chan struct{}),
		}
		go backend.serve(backendCtx)

		svc, err := registration.NewService(registration.Config{Exchanger: conn})
		if err != nil {
			b.Fatal(err)
		}

		sess, err := svc.CreateSession(ctx, registration.CreateSessionRequest{Number: "+18005550123"})
		if err != nil {
			b.Fatal(err)
		}
		if sess, err = svc.RequestVerificationCode(ctx, sess,
			registration.TransportSMS, "bench", nil); err != nil {
			b.Fatal(err)
		}
		if sess, err = svc.SubmitVerificationCode(ctx, sess, backendCode); err != nil {
			b.Fatal(err)
		}
		if !sess.Verified {
			b.Fatal("session not verified")
		}

		cancel()
		conn.Close()
		<-backend.done
	}
}
