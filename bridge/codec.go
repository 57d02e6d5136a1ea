package bridge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/registration"
)

// JSON documents crossing the embedding boundary. Byte fields ride as
// base64; waits as whole seconds, the same unit the server speaks.

type responseJSON struct {
	Status  int      `json:"status"`
	Message string   `json:"message,omitempty"`
	Headers []string `json:"headers,omitempty"`
	Body    []byte   `json:"body,omitempty"`
}

type infoJSON struct {
	ID        string `json:"id"`
	LocalPort int    `json:"localPort"`
	IPVersion string `json:"ipVersion"`
}

type eventJSON struct {
	Type      string `json:"type"`
	Envelope  []byte `json:"envelope,omitempty"`
	Timestamp uint64 `json:"timestamp,omitempty"`
	Ack       uint64 `json:"ack,omitempty"`
	Error     string `json:"error,omitempty"`
}

type sessionJSON struct {
	ID                   string   `json:"id"`
	Number               string   `json:"number,omitempty"`
	AllowedToRequestCode bool     `json:"allowedToRequestCode"`
	Verified             bool     `json:"verified"`
	NextSMS              *int64   `json:"nextSms,omitempty"`
	NextCall             *int64   `json:"nextCall,omitempty"`
	NextVerification     *int64   `json:"nextVerificationAttempt,omitempty"`
	RequestedInformation []string `json:"requestedInformation,omitempty"`
}

type accountJSON struct {
	ACI          string `json:"uuid"`
	Number       string `json:"number"`
	PNI          string `json:"pni"`
	UsernameHash []byte `json:"usernameHash,omitempty"`
}

// accountRequestJSON is the inbound document for RegisterAccount. The
// number and session id are taken from the flow, never the document.
type accountRequestJSON struct {
	AccountPassword    []byte `json:"accountPassword"`
	SkipDeviceTransfer bool   `json:"skipDeviceTransfer"`
	APNToken           string `json:"apnToken,omitempty"`
	GCMToken           string `json:"gcmToken,omitempty"`

	RecoveryPassword               []byte   `json:"recoveryPassword,omitempty"`
	RegistrationID                 uint16   `json:"registrationId"`
	PNIRegistrationID              uint16   `json:"pniRegistrationId"`
	Name                           []byte   `json:"name,omitempty"`
	RegistrationLock               string   `json:"registrationLock,omitempty"`
	UnidentifiedAccessKey          []byte   `json:"unidentifiedAccessKey,omitempty"`
	UnrestrictedUnidentifiedAccess bool     `json:"unrestrictedUnidentifiedAccess,omitempty"`
	Capabilities                   []string `json:"capabilities,omitempty"`
	DiscoverableByPhoneNumber      bool     `json:"discoverableByPhoneNumber,omitempty"`

	ACIIdentityKey        []byte                    `json:"aciIdentityKey,omitempty"`
	PNIIdentityKey        []byte                    `json:"pniIdentityKey,omitempty"`
	ACISignedPreKey       registration.SignedPreKey `json:"aciSignedPreKey"`
	PNISignedPreKey       registration.SignedPreKey `json:"pniSignedPreKey"`
	ACIPQLastResortPreKey registration.SignedPreKey `json:"aciPqLastResortPreKey"`
	PNIPQLastResortPreKey registration.SignedPreKey `json:"pniPqLastResortPreKey"`
}

func marshalResponse(resp *chat.Response) ([]byte, error) {
	return json.Marshal(responseJSON{
		Status:  resp.Status,
		Message: resp.Message,
		Headers: headerLines(resp.Headers),
		Body:    resp.Body,
	})
}

func marshalInfo(info chat.ConnectionInfo) ([]byte, error) {
	return json.Marshal(infoJSON{
		ID:        info.ID.String(),
		LocalPort: info.LocalPort,
		IPVersion: info.IPVersion,
	})
}

func marshalEvent(ev eventJSON) ([]byte, error) {
	return json.Marshal(ev)
}

func marshalSession(sess *registration.Session) ([]byte, error) {
	out := sessionJSON{
		ID:                   sess.ID,
		Number:               sess.Number,
		AllowedToRequestCode: sess.AllowedToRequestCode,
		Verified:             sess.Verified,
		NextSMS:              wholeSeconds(sess.NextSMS),
		NextCall:             wholeSeconds(sess.NextCall),
		NextVerification:     wholeSeconds(sess.NextVerificationAttempt),
	}
	for _, c := range sess.RequestedInformation {
		out.RequestedInformation = append(out.RequestedInformation, string(c))
	}
	return json.Marshal(out)
}

func marshalAccount(acct *registration.RegisteredAccount) ([]byte, error) {
	return json.Marshal(accountJSON{
		ACI:          acct.ACI.String(),
		Number:       acct.Number,
		PNI:          acct.PNI.String(),
		UsernameHash: acct.UsernameHash,
	})
}

func parseAccountRequest(doc []byte) (*registration.RegisterAccountRequest, error) {
	var in accountRequestJSON
	if err := json.Unmarshal(doc, &in); err != nil {
		return nil, fmt.Errorf("bridge: parse account request: %w", err)
	}

	return &registration.RegisterAccountRequest{
		AccountPassword:    in.AccountPassword,
		SkipDeviceTransfer: in.SkipDeviceTransfer,
		APNToken:           in.APNToken,
		GCMToken:           in.GCMToken,
		Attributes: registration.AccountAttributes{
			RecoveryPassword:               in.RecoveryPassword,
			RegistrationID:                 in.RegistrationID,
			PNIRegistrationID:              in.PNIRegistrationID,
			Name:                           in.Name,
			RegistrationLock:               in.RegistrationLock,
			UnidentifiedAccessKey:          in.UnidentifiedAccessKey,
			UnrestrictedUnidentifiedAccess: in.UnrestrictedUnidentifiedAccess,
			Capabilities:                   in.Capabilities,
			DiscoverableByPhoneNumber:      in.DiscoverableByPhoneNumber,
		},
		ACIIdentityKey:        in.ACIIdentityKey,
		PNIIdentityKey:        in.PNIIdentityKey,
		ACISignedPreKey:       in.ACISignedPreKey,
		PNISignedPreKey:       in.PNISignedPreKey,
		ACIPQLastResortPreKey: in.ACIPQLastResortPreKey,
		PNIPQLastResortPreKey: in.PNIPQLastResortPreKey,
	}, nil
}

// wholeSeconds renders an optional wait in whole seconds.
func wholeSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(*d / time.Second)
	return &s
}

// headerLines renders headers as "name: value" lines, sorted by name.
func headerLines(h chat.Headers) []string {
	if len(h) == 0 {
		return nil
	}
	lines := make([]string, 0, len(h))
	for name, value := range h {
		lines = append(lines, name+": "+value)
	}
	sort.Strings(lines)
	return lines
}

// setHeaderLines parses newline-separated "name: value" lines into h.
// Blank lines are skipped.
func setHeaderLines(h chat.Headers, lines string) error {
	for _, line := range strings.Split(lines, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("bridge: malformed header line %q", line)
		}
		h.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return nil
}

// splitList splits a comma-separated list, trimming whitespace and
// dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
