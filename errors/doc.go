// Package errors provides the structured error taxonomy for the chat-runtime library.
//
// Errors are categorized by Op (which runtime operation failed) and Kind (the
// failure classification). The Kind set is closed: every native failure crossing
// the bridge boundary maps into exactly one kind, and payload fields (backoff
// duration, delivery reason and permanence) are populated only for the kinds
// that define them.
//
// Use the convenience constructors, one per kind:
//
//	err := errors.RetryAfter(errors.OpCreateSession, 42*time.Second)
//	err := errors.SendFailed(errors.OpRequestCode, "no reason", true)
//
// Or convert a raw native code string; conversion is total and never fails:
//
//	err := errors.FromCode(errors.OpCreateSession, "RetryAfter42Seconds")
//
// All errors implement the standard error interface and support errors.Is/As.
// Matching with Is compares kinds, so callers branch on classification rather
// than message text.
package errors
