package errors

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"
)

// Wire code strings produced by the native failure surface. RetryAfter
// codes are not listed: they embed the backoff literally, as in
// "RetryAfter42Seconds".
const (
	CodeInvalidSessionID        = "InvalidSessionId"
	CodeSessionNotFound         = "SessionNotFound"
	CodeNotReadyForVerification = "NotReadyForVerification"
	CodeSendFailed              = "SendFailed"
	CodeNotDeliverable          = "CodeNotDeliverable"
	CodeRejected                = "Rejected"
	CodeTimeout                 = "Timeout"
	CodeUnknown                 = "Unknown"
)

// FromCode converts a raw native error code into a taxonomy error.
// Conversion is total: a code matching no known tag becomes Unknown with
// the code preserved as the message. Codes whose payload travels out of
// band (CodeNotDeliverable) get their payload attached by the caller via
// FromNotDeliverable instead.
func FromCode(op Op, code string) *Error {
	switch code {
	case CodeInvalidSessionID:
		return SessionIDInvalid(op)
	case CodeSessionNotFound:
		return SessionNotFound(op)
	case CodeNotReadyForVerification:
		return NotReady(op)
	case CodeSendFailed:
		return SendFailed(op, "", false)
	case CodeNotDeliverable:
		return SendFailed(op, "", false)
	case CodeRejected:
		return Rejected(op)
	case CodeTimeout:
		return Timeout(op)
	}
	if d, ok := retrySeconds(code); ok {
		return RetryAfter(op, d)
	}
	return Unknown(op, code)
}

// FromNotDeliverable builds the send-failed error for a code-not-deliverable
// failure whose reason and permanence arrived in the response payload
func FromNotDeliverable(op Op, reason string, permanent bool) *Error {
	return SendFailed(op, reason, permanent)
}

// retrySeconds parses the "RetryAfter<N>Seconds" code pattern, where N is
// a non-negative decimal integer
func retrySeconds(code string) (time.Duration, bool) {
	rest, ok := strings.CutPrefix(code, "RetryAfter")
	if !ok {
		return 0, false
	}
	num, ok := strings.CutSuffix(rest, "Seconds")
	if !ok || num == "" {
		return 0, false
	}
	for i := 0; i < len(num); i++ {
		if num[i] < '0' || num[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// Classify maps an arbitrary failure from a blocking exchange onto the
// taxonomy. Taxonomy errors pass through unchanged. Context cancellation
// also passes through untouched so callers can tell a local cancel from a
// native failure; a missed deadline becomes Timeout. Everything else is
// Unknown with the original as cause.
func Classify(op Op, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout(op)
	}
	return Wrap(op, KindUnknown, err, err.Error())
}

// WithOp re-attributes a failure to the operation the caller is
// performing. Taxonomy errors keep their kind and payload; everything
// else goes through Classify under op.
func WithOp(op Op, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		reop := *e
		reop.Op = op
		return &reop
	}
	return Classify(op, err)
}

// Standard library re-exports, so consumers of this package do not need a
// second aliased errors import.

// As is the standard library's errors.As
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is is the standard library's errors.Is
func Is(err, target error) bool { return stderrors.Is(err, target) }

// New is the standard library's errors.New
func New(text string) error { return stderrors.New(text) }
