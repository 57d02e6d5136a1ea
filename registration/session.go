package registration

import (
	"fmt"
	"time"

	"github.com/wippyai/chat-runtime/errors"
)

// Challenge is a proof the server may demand before it delivers a
// verification code.
type Challenge string

const (
	// ChallengePush asks the client to echo a token delivered over its
	// push transport.
	ChallengePush Challenge = "pushChallenge"
	// ChallengeCaptcha asks the client to solve a captcha.
	ChallengeCaptcha Challenge = "captcha"
)

// Session is the client's view of one verification session. Every
// successful exchange returns the server's full session state; the
// previous view is replaced, never merged.
type Session struct {
	// ID addresses the session on the server.
	ID string
	// Number is the phone number under verification. It never crosses
	// the wire after session creation; it rides along client-side for
	// the account registration that follows.
	Number string

	// AllowedToRequestCode reports whether the server will accept a
	// verification code request right now.
	AllowedToRequestCode bool
	// Verified reports whether a correct code has been submitted.
	Verified bool

	// NextSMS, NextCall, and NextVerificationAttempt are the waits the
	// server imposes before the matching action may be tried again. Nil
	// means the action is not currently available.
	NextSMS                 *time.Duration
	NextCall                *time.Duration
	NextVerificationAttempt *time.Duration

	// RequestedInformation lists the challenges the server wants solved
	// before it will deliver a code, in the order the server sent them.
	RequestedInformation []Challenge
}

// sessionPayload is the wire shape of a session response.
type sessionPayload struct {
	ID                      string   `json:"id"`
	AllowedToRequestCode    bool     `json:"allowedToRequestCode"`
	Verified                bool     `json:"verified"`
	NextSMS                 *int64   `json:"nextSms"`
	NextCall                *int64   `json:"nextCall"`
	NextVerificationAttempt *int64   `json:"nextVerificationAttempt"`
	RequestedInformation    []string `json:"requestedInformation"`
}

// toSession re-derives the client session state. A requested-information
// value outside the known challenge set fails the whole conversion: a
// challenge the client cannot name is a challenge it cannot solve.
func (p *sessionPayload) toSession(op errors.Op, number string) (*Session, error) {
	var challenges []Challenge
	for _, raw := range p.RequestedInformation {
		switch c := Challenge(raw); c {
		case ChallengePush, ChallengeCaptcha:
			challenges = append(challenges, c)
		default:
			return nil, errors.Unknown(op, fmt.Sprintf("unrecognized requested information %q", raw))
		}
	}
	return &Session{
		ID:                      p.ID,
		Number:                  number,
		AllowedToRequestCode:    p.AllowedToRequestCode,
		Verified:                p.Verified,
		NextSMS:                 seconds(p.NextSMS),
		NextCall:                seconds(p.NextCall),
		NextVerificationAttempt: seconds(p.NextVerificationAttempt),
		RequestedInformation:    challenges,
	}, nil
}

func seconds(v *int64) *time.Duration {
	if v == nil {
		return nil
	}
	d := time.Duration(*v) * time.Second
	return &d
}

// validSessionID reports whether id is non-empty and safe to embed as a
// URL path segment.
func validSessionID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch c := id[i]; {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}
