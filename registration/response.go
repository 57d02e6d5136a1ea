package registration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/errors"
)

// notDeliverableBody is the payload a code-delivery failure may carry.
type notDeliverableBody struct {
	Reason           string `json:"reason"`
	PermanentFailure bool   `json:"permanentFailure"`
}

// decode interprets a response as a JSON payload of type T. Non-2xx
// statuses map onto the failure taxonomy; a 2xx response must carry
// application/json and a body matching T.
func decode[T any](op errors.Op, resp *chat.Response) (*T, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, statusError(op, resp)
	}
	if ct := resp.Headers.Get("content-type"); ct != contentTypeJSON {
		return nil, errors.Unknown(op, fmt.Sprintf("unexpected content-type %q", ct))
	}
	if len(resp.Body) == 0 {
		return nil, errors.Unknown(op, "response had no body")
	}
	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, errors.Wrap(op, errors.KindUnknown, err, "response body did not parse")
	}
	return &out, nil
}

// statusError maps a non-2xx response status onto the failure taxonomy.
func statusError(op errors.Op, resp *chat.Response) error {
	switch resp.Status {
	case 400:
		return errors.SessionIDInvalid(op)
	case 403, 422:
		return errors.Rejected(op)
	case 404:
		return errors.SessionNotFound(op)
	case 409:
		return errors.NotReady(op)
	case 429:
		if d, ok := retryAfterHeader(resp.Headers); ok {
			return errors.RetryAfter(op, d)
		}
		return errors.Unknown(op, "throttled without a retry-after header")
	case 440:
		reason, permanent := notDeliverable(resp)
		return errors.FromNotDeliverable(op, reason, permanent)
	}
	return errors.Unknown(op, fmt.Sprintf("unexpected response status %d", resp.Status))
}

// retryAfterHeader reads the server's backoff, given in whole seconds.
func retryAfterHeader(h chat.Headers) (time.Duration, bool) {
	raw := h.Get("retry-after")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// notDeliverable extracts the delivery-failure payload when the
// response carries one. Absent or non-JSON bodies yield the zero
// payload; the failure itself still surfaces.
func notDeliverable(resp *chat.Response) (reason string, permanent bool) {
	if resp.Headers.Get("content-type") != contentTypeJSON {
		return "", false
	}
	var body notDeliverableBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", false
	}
	return body.Reason, body.PermanentFailure
}

// interpretSession decodes a session response and re-derives the client
// session state.
func interpretSession(op errors.Op, resp *chat.Response, number string) (*Session, error) {
	payload, err := decode[sessionPayload](op, resp)
	if err != nil {
		return nil, err
	}
	return payload.toSession(op, number)
}
