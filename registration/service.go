package registration

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/errors"
)

const (
	sessionPathPrefix = "/v1/verification/session"
	registrationPath  = "/v1/registration"
	contentTypeJSON   = "application/json"
)

// DefaultTimeout bounds one exchange when the config does not say
// otherwise.
const DefaultTimeout = 30 * time.Second

// Exchanger performs one correlated request/response exchange. A live
// *chat.Connection satisfies it.
type Exchanger interface {
	SendRequest(ctx context.Context, req *chat.Request, timeout time.Duration) (*chat.Response, error)
}

// Config configures a Service.
type Config struct {
	// Exchanger carries the requests. Required.
	Exchanger Exchanger
	// Timeout bounds each exchange. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Service drives phone number verification and account registration
// over an established connection. Methods return the server's latest
// session state on success and a taxonomy error on failure; the only
// exceptions are context cancellation, which surfaces untouched, and
// caller mistakes, which surface as plain errors.
type Service struct {
	exchange Exchanger
	timeout  time.Duration
}

// NewService creates a Service from the config.
func NewService(cfg Config) (*Service, error) {
	if cfg.Exchanger == nil {
		return nil, errors.New("registration: exchanger is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{exchange: cfg.Exchanger, timeout: timeout}, nil
}

// CreateSession opens a new verification session for a phone number.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	const op = errors.OpCreateSession
	if req.Number == "" {
		return nil, errors.New("registration: number is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	r := chat.NewRequest("POST", sessionPathPrefix)
	r.Headers.Set("content-type", contentTypeJSON)
	r.Body = body

	resp, err := s.exchange.SendRequest(ctx, r, s.timeout)
	if err != nil {
		return nil, errors.WithOp(op, err)
	}
	sess, err := interpretSession(op, resp, req.Number)
	if err != nil {
		return nil, err
	}
	Logger().Debug("created verification session", zap.String("session_id", sess.ID))
	return sess, nil
}

// ResumeSession fetches the current state of an existing session. The
// number does not cross the wire; it is kept on the returned session
// for the account registration that follows verification.
func (s *Service) ResumeSession(ctx context.Context, sessionID, number string) (*Session, error) {
	const op = errors.OpResumeSession
	if !validSessionID(sessionID) {
		return nil, errors.SessionIDInvalid(op)
	}

	r := chat.NewRequest("GET", sessionPath(sessionID))
	resp, err := s.exchange.SendRequest(ctx, r, s.timeout)
	if err != nil {
		return nil, errors.WithOp(op, err)
	}
	return interpretSession(op, resp, number)
}

// UpdateSession submits challenge answers or push information for the
// session and returns its refreshed state.
func (s *Service) UpdateSession(ctx context.Context, sess *Session, req UpdateSessionRequest) (*Session, error) {
	const op = errors.OpUpdateSession
	if sess == nil {
		return nil, errors.New("registration: session is required")
	}
	if !validSessionID(sess.ID) {
		return nil, errors.SessionIDInvalid(op)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	r := chat.NewRequest("PATCH", sessionPath(sess.ID))
	r.Headers.Set("content-type", contentTypeJSON)
	r.Body = body

	resp, err := s.exchange.SendRequest(ctx, r, s.timeout)
	if err != nil {
		return nil, errors.WithOp(op, err)
	}
	return interpretSession(op, resp, sess.Number)
}

// RequestVerificationCode asks the server to deliver a verification
// code over the given transport. The client string names the calling
// software; languages order the caller's preferred locales for the
// code message.
func (s *Service) RequestVerificationCode(ctx context.Context, sess *Session, transport CodeTransport, client string, languages []string) (*Session, error) {
	const op = errors.OpRequestCode
	if sess == nil {
		return nil, errors.New("registration: session is required")
	}
	if !validSessionID(sess.ID) {
		return nil, errors.SessionIDInvalid(op)
	}

	accept, err := acceptLanguage(languages)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(requestCodeBody{Transport: transport, Client: client})
	if err != nil {
		return nil, err
	}
	r := chat.NewRequest("POST", codePath(sess.ID))
	r.Headers.Set("content-type", contentTypeJSON)
	if accept != "" {
		r.Headers.Set("accept-language", accept)
	}
	r.Body = body

	resp, err := s.exchange.SendRequest(ctx, r, s.timeout)
	if err != nil {
		return nil, errors.WithOp(op, err)
	}
	next, err := interpretSession(op, resp, sess.Number)
	if err != nil {
		return nil, err
	}
	Logger().Debug("requested verification code",
		zap.String("session_id", sess.ID),
		zap.String("transport", string(transport)))
	return next, nil
}

// SubmitVerificationCode submits the code the user received and returns
// the refreshed session state; check Verified on the result.
func (s *Service) SubmitVerificationCode(ctx context.Context, sess *Session, code string) (*Session, error) {
	const op = errors.OpSubmitCode
	if sess == nil {
		return nil, errors.New("registration: session is required")
	}
	if !validSessionID(sess.ID) {
		return nil, errors.SessionIDInvalid(op)
	}
	if code == "" {
		return nil, errors.New("registration: code is required")
	}

	body, err := json.Marshal(submitCodeBody{Code: code})
	if err != nil {
		return nil, err
	}
	r := chat.NewRequest("PUT", codePath(sess.ID))
	r.Headers.Set("content-type", contentTypeJSON)
	r.Body = body

	resp, err := s.exchange.SendRequest(ctx, r, s.timeout)
	if err != nil {
		return nil, errors.WithOp(op, err)
	}
	return interpretSession(op, resp, sess.Number)
}

// RegisterAccount finishes registration for a verified number. The
// request authenticates with the number and the account password; the
// server answers with the account's service identifiers.
func (s *Service) RegisterAccount(ctx context.Context, req RegisterAccountRequest) (*RegisteredAccount, error) {
	const op = errors.OpRegisterAccount
	if req.Number == "" {
		return nil, errors.New("registration: number is required")
	}
	if len(req.AccountPassword) == 0 {
		return nil, errors.New("registration: account password is required")
	}
	if req.APNToken != "" && req.GCMToken != "" {
		return nil, errors.New("registration: at most one push token may be set")
	}
	if req.SessionID != "" && !validSessionID(req.SessionID) {
		return nil, errors.SessionIDInvalid(op)
	}

	body := registerAccountBody{
		SessionID: req.SessionID,
		AccountAttributes: accountAttributesBody{
			FetchesMessages:                req.APNToken == "" && req.GCMToken == "",
			RecoveryPassword:               req.Attributes.RecoveryPassword,
			RegistrationID:                 req.Attributes.RegistrationID,
			PNIRegistrationID:              req.Attributes.PNIRegistrationID,
			Name:                           req.Attributes.Name,
			RegistrationLock:               req.Attributes.RegistrationLock,
			UnidentifiedAccessKey:          req.Attributes.UnidentifiedAccessKey,
			UnrestrictedUnidentifiedAccess: req.Attributes.UnrestrictedUnidentifiedAccess,
			Capabilities:                   capabilityMap(req.Attributes.Capabilities),
			DiscoverableByPhoneNumber:      req.Attributes.DiscoverableByPhoneNumber,
		},
		SkipDeviceTransfer:    req.SkipDeviceTransfer,
		ACIIdentityKey:        req.ACIIdentityKey,
		PNIIdentityKey:        req.PNIIdentityKey,
		ACISignedPreKey:       req.ACISignedPreKey,
		PNISignedPreKey:       req.PNISignedPreKey,
		ACIPQLastResortPreKey: req.ACIPQLastResortPreKey,
		PNIPQLastResortPreKey: req.PNIPQLastResortPreKey,
	}
	if req.SessionID == "" {
		// Without a verified session the recovery password validates the
		// request at the top level.
		body.RecoveryPassword = req.Attributes.RecoveryPassword
	}
	switch {
	case req.APNToken != "":
		body.PushToken = &pushTokenBody{APNRegistrationID: req.APNToken}
	case req.GCMToken != "":
		body.PushToken = &pushTokenBody{GCMRegistrationID: req.GCMToken}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	r := chat.NewRequest("POST", registrationPath)
	r.Headers.Set("content-type", contentTypeJSON)
	r.Headers.Set("authorization", basicAuth(req.Number, req.AccountPassword))
	r.Body = payload

	resp, err := s.exchange.SendRequest(ctx, r, s.timeout)
	if err != nil {
		return nil, errors.WithOp(op, err)
	}
	account, err := decode[RegisteredAccount](op, resp)
	if err != nil {
		return nil, err
	}
	Logger().Debug("registered account", zap.String("number", account.Number))
	return account, nil
}

// basicAuth builds the authorization header the registration endpoint
// expects: the number as username, the base64 of the account password
// as password.
func basicAuth(number string, password []byte) string {
	creds := number + ":" + base64.RawStdEncoding.EncodeToString(password)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

// acceptLanguage canonicalizes the caller's locale preferences into an
// accept-language value. Every entry must be a well-formed BCP 47 tag.
func acceptLanguage(languages []string) (string, error) {
	if len(languages) == 0 {
		return "", nil
	}
	tags := make([]string, 0, len(languages))
	for _, l := range languages {
		tag, err := language.Parse(l)
		if err != nil {
			return "", fmt.Errorf("registration: invalid language %q: %w", l, err)
		}
		tags = append(tags, tag.String())
	}
	return strings.Join(tags, ", "), nil
}

func sessionPath(id string) string { return sessionPathPrefix + "/" + id }
func codePath(id string) string    { return sessionPath(id) + "/code" }
