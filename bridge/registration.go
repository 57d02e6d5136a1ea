package bridge

import (
	"context"
	"sync"

	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/errors"
	"github.com/wippyai/chat-runtime/handle"
	"github.com/wippyai/chat-runtime/registration"
)

// registrationFlow is the object behind a registration handle: the
// service bound to one connection plus the latest session view. The
// view is replaced wholesale after every successful operation.
type registrationFlow struct {
	svc *registration.Service

	mu   sync.Mutex
	sess *registration.Session
}

func (f *registrationFlow) snapshot() *registration.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

func (f *registrationFlow) replace(s *registration.Session) *registration.Session {
	f.mu.Lock()
	f.sess = s
	f.mu.Unlock()
	return s
}

// CreateRegistrationSession opens a verification session for number on
// the given connection and returns a future; turn it into a
// registration handle with AwaitRegistration. pushToken (with its
// type, "apn" or "fcm"), mcc and mnc may be empty.
func (h *Host) CreateRegistrationSession(ctx context.Context, conn uint64, number, pushToken, pushTokenType, mcc, mnc string) (uint64, error) {
	svc, err := h.serviceFor(conn)
	if err != nil {
		return 0, err
	}

	req := registration.CreateSessionRequest{
		Number:        number,
		PushToken:     pushToken,
		PushTokenType: registration.PushTokenType(pushTokenType),
		MCC:           mcc,
		MNC:           mnc,
	}
	return h.spawn(ctx, errors.OpCreateSession, func(ctx context.Context) (any, error) {
		sess, err := svc.CreateSession(ctx, req)
		if err != nil {
			return nil, err
		}
		return &registrationFlow{svc: svc, sess: sess}, nil
	})
}

// ResumeRegistrationSession picks an existing verification session back
// up by id; number is the phone number the session was created for.
// Turn the returned future into a registration handle with
// AwaitRegistration.
func (h *Host) ResumeRegistrationSession(ctx context.Context, conn uint64, sessionID, number string) (uint64, error) {
	svc, err := h.serviceFor(conn)
	if err != nil {
		return 0, err
	}

	return h.spawn(ctx, errors.OpResumeSession, func(ctx context.Context) (any, error) {
		sess, err := svc.ResumeSession(ctx, sessionID, number)
		if err != nil {
			return nil, err
		}
		return &registrationFlow{svc: svc, sess: sess}, nil
	})
}

// AwaitRegistration blocks for a create or resume future, consumes it,
// and registers the resulting flow, returning the registration handle.
// Inspect the session with RegistrationState.
func (h *Host) AwaitRegistration(ctx context.Context, future uint64) (uint64, error) {
	value, err := h.await(ctx, future)
	if err != nil {
		return 0, err
	}
	flow, ok := value.(*registrationFlow)
	if !ok {
		return 0, errors.New("bridge: future does not carry a registration")
	}

	hd, err := h.registry.Register(flow)
	if err != nil {
		return 0, err
	}
	return uint64(hd), nil
}

// RegistrationState returns the flow's current session view as a JSON
// document with id, number, allowedToRequestCode, verified, wait and
// requestedInformation fields.
func (h *Host) RegistrationState(flow uint64) ([]byte, error) {
	f, g, err := handle.Resolve[*registrationFlow](h.registry, handle.Handle(flow))
	if err != nil {
		return nil, err
	}
	sess := f.snapshot()
	g.Release()

	return marshalSession(sess)
}

// RegistrationUpdateSession submits challenge answers: any of captcha,
// pushToken (with its type) and pushChallenge may be set. Await the
// future with AwaitSession.
func (h *Host) RegistrationUpdateSession(ctx context.Context, flow uint64, captcha, pushToken, pushTokenType, pushChallenge string) (uint64, error) {
	req := registration.UpdateSessionRequest{
		Captcha:       captcha,
		PushToken:     pushToken,
		PushTokenType: registration.PushTokenType(pushTokenType),
		PushChallenge: pushChallenge,
	}
	return h.sessionOp(ctx, flow, errors.OpUpdateSession, func(ctx context.Context, f *registrationFlow) (*registration.Session, error) {
		return f.svc.UpdateSession(ctx, f.snapshot(), req)
	})
}

// RegistrationRequestCode asks the server to deliver a verification
// code. transport is "sms" or "voice"; languages is a comma-separated
// list of BCP-47 tags for the accept-language header, or empty. Await
// the future with AwaitSession.
func (h *Host) RegistrationRequestCode(ctx context.Context, flow uint64, transport, client, languages string) (uint64, error) {
	langs := splitList(languages)
	return h.sessionOp(ctx, flow, errors.OpRequestCode, func(ctx context.Context, f *registrationFlow) (*registration.Session, error) {
		return f.svc.RequestVerificationCode(ctx, f.snapshot(), registration.CodeTransport(transport), client, langs)
	})
}

// RegistrationSubmitCode submits the code the user received. Await the
// future with AwaitSession; on success the session comes back verified.
func (h *Host) RegistrationSubmitCode(ctx context.Context, flow uint64, code string) (uint64, error) {
	return h.sessionOp(ctx, flow, errors.OpSubmitCode, func(ctx context.Context, f *registrationFlow) (*registration.Session, error) {
		return f.svc.SubmitVerificationCode(ctx, f.snapshot(), code)
	})
}

// AwaitSession blocks for a session-returning future and consumes it,
// returning the refreshed session as a JSON document. The flow's own
// view is already updated by the time the future completes.
func (h *Host) AwaitSession(ctx context.Context, future uint64) ([]byte, error) {
	value, err := h.await(ctx, future)
	if err != nil {
		return nil, err
	}
	sess, ok := value.(*registration.Session)
	if !ok {
		return nil, errors.New("bridge: future does not carry a session")
	}
	return marshalSession(sess)
}

// RegisterAccount finishes registration on a verified session. The
// request document carries the account password, attributes, key
// material and an optional push token; the number and session id come
// from the flow. Await the future with AwaitAccount.
func (h *Host) RegisterAccount(ctx context.Context, flow uint64, request []byte) (uint64, error) {
	f, g, err := handle.Resolve[*registrationFlow](h.registry, handle.Handle(flow))
	if err != nil {
		return 0, err
	}
	g.Release()

	req, err := parseAccountRequest(request)
	if err != nil {
		return 0, err
	}

	return h.spawn(ctx, errors.OpRegisterAccount, func(ctx context.Context) (any, error) {
		sess := f.snapshot()
		req.Number = sess.Number
		req.SessionID = sess.ID
		return f.svc.RegisterAccount(ctx, *req)
	})
}

// AwaitAccount blocks for a RegisterAccount future and consumes it,
// returning the registered account as a JSON document with uuid, pni,
// number and usernameHash fields.
func (h *Host) AwaitAccount(ctx context.Context, future uint64) ([]byte, error) {
	value, err := h.await(ctx, future)
	if err != nil {
		return nil, err
	}
	acct, ok := value.(*registration.RegisteredAccount)
	if !ok {
		return nil, errors.New("bridge: future does not carry an account")
	}
	return marshalAccount(acct)
}

// DestroyRegistration invalidates a registration handle. The underlying
// connection is unaffected.
func (h *Host) DestroyRegistration(flow uint64) error {
	if err := checkHandle[*registrationFlow](h, flow); err != nil {
		return err
	}
	return h.registry.Destroy(handle.Handle(flow))
}

// serviceFor builds a registration service over the connection behind
// the handle.
func (h *Host) serviceFor(conn uint64) (*registration.Service, error) {
	c, g, err := handle.Resolve[*chat.Connection](h.registry, handle.Handle(conn))
	if err != nil {
		return nil, err
	}
	g.Release()

	return registration.NewService(registration.Config{Exchanger: c})
}

// sessionOp spawns one session-refreshing operation on the flow.
func (h *Host) sessionOp(ctx context.Context, flow uint64, op errors.Op, do func(ctx context.Context, f *registrationFlow) (*registration.Session, error)) (uint64, error) {
	f, g, err := handle.Resolve[*registrationFlow](h.registry, handle.Handle(flow))
	if err != nil {
		return 0, err
	}
	g.Release()

	return h.spawn(ctx, op, func(ctx context.Context) (any, error) {
		sess, err := do(ctx, f)
		if err != nil {
			return nil, err
		}
		return f.replace(sess), nil
	})
}
