package errors

import (
	"fmt"
	"strings"
	"time"
)

// Op names the runtime operation during which a failure surfaced
type Op string

const (
	OpCreateSession   Op = "create-session"
	OpResumeSession   Op = "resume-session"
	OpUpdateSession   Op = "update-session"
	OpRequestCode     Op = "request-code"
	OpSubmitCode      Op = "submit-code"
	OpRegisterAccount Op = "register-account"
	OpChatConnect     Op = "chat-connect"
	OpChatSend        Op = "chat-send"
	OpChatDisconnect  Op = "chat-disconnect"
	OpQuicSend        Op = "quic-send"
	OpQuicStream      Op = "quic-stream"
)

// Kind is the closed classification every native failure maps into.
// Exactly one kind is active per error; payload fields are set only for
// the kinds that define them.
type Kind string

const (
	KindSessionIDInvalid Kind = "session_id_invalid"
	KindSessionNotFound  Kind = "session_not_found"
	KindNotReady         Kind = "not_ready_for_verification"
	KindSendFailed       Kind = "send_failed"
	KindRetryAfter       Kind = "retry_after"
	KindTimeout          Kind = "timeout"
	KindRejected         Kind = "rejected"
	KindUnknown          Kind = "unknown"
)

// Error is the structured error type surfaced to embedding callers
type Error struct {
	Op      Op
	Kind    Kind
	Message string
	Cause   error

	// RetryAfter is set only for KindRetryAfter.
	RetryAfter time.Duration
	// Reason and Permanent are set only for KindSendFailed. Permanent
	// distinguishes "never retry" from "try a different channel".
	Reason    string
	Permanent bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Op))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	switch e.Kind {
	case KindRetryAfter:
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	case KindSendFailed:
		if e.Reason != "" {
			fmt.Fprintf(&b, " (reason %q, permanent=%t)", e.Reason, e.Permanent)
		}
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Matching is by Kind;
// when the target also names an Op, both must agree.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" && e.Op != t.Op {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is a taxonomy error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return As(err, &e) && e.Kind == kind
}

// Convenience constructors, one per taxonomy kind

// SessionIDInvalid reports a structurally invalid session identifier
func SessionIDInvalid(op Op) *Error {
	return &Error{Op: op, Kind: KindSessionIDInvalid, Message: "session id is not valid"}
}

// SessionNotFound reports a session the server no longer knows
func SessionNotFound(op Op) *Error {
	return &Error{Op: op, Kind: KindSessionNotFound, Message: "session not found"}
}

// NotReady reports a session that has not satisfied the requested
// information and may not ask for a verification code yet
func NotReady(op Op) *Error {
	return &Error{Op: op, Kind: KindNotReady, Message: "session not ready for verification"}
}

// SendFailed reports a verification code that could not be delivered.
// permanent is true when retrying on the same channel can never succeed.
func SendFailed(op Op, reason string, permanent bool) *Error {
	return &Error{
		Op:        op,
		Kind:      KindSendFailed,
		Message:   "failed to send verification code",
		Reason:    reason,
		Permanent: permanent,
	}
}

// RetryAfter reports a server throttle carrying the backoff duration
func RetryAfter(op Op, d time.Duration) *Error {
	return &Error{Op: op, Kind: KindRetryAfter, Message: "server requested backoff", RetryAfter: d}
}

// Timeout reports an exchange that exceeded its deadline
func Timeout(op Op) *Error {
	return &Error{Op: op, Kind: KindTimeout, Message: "request timed out"}
}

// Rejected reports a request the server refused outright
func Rejected(op Op) *Error {
	return &Error{Op: op, Kind: KindRejected, Message: "request rejected"}
}

// Unknown reports an unclassifiable failure, preserving its message
func Unknown(op Op, message string) *Error {
	return &Error{Op: op, Kind: KindUnknown, Message: message}
}

// Wrap wraps an existing error with a kind and context message
func Wrap(op Op, kind Kind, cause error, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Cause: cause}
}
