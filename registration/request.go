package registration

import "github.com/google/uuid"

// PushTokenType names the push transport a token belongs to.
type PushTokenType string

const (
	PushTokenAPN PushTokenType = "apn"
	PushTokenFCM PushTokenType = "fcm"
)

// CodeTransport selects how a verification code is delivered.
type CodeTransport string

const (
	TransportSMS   CodeTransport = "sms"
	TransportVoice CodeTransport = "voice"
)

// CreateSessionRequest opens verification for one phone number. Only
// Number is required; zero-value fields stay off the wire.
type CreateSessionRequest struct {
	Number        string        `json:"number"`
	PushToken     string        `json:"pushToken,omitempty"`
	PushTokenType PushTokenType `json:"pushTokenType,omitempty"`
	MCC           string        `json:"mcc,omitempty"`
	MNC           string        `json:"mnc,omitempty"`
}

// UpdateSessionRequest submits challenge answers and push information
// for an existing session. Zero-value fields stay off the wire.
type UpdateSessionRequest struct {
	Captcha       string        `json:"captcha,omitempty"`
	PushToken     string        `json:"pushToken,omitempty"`
	PushTokenType PushTokenType `json:"pushTokenType,omitempty"`
	PushChallenge string        `json:"pushChallenge,omitempty"`
}

type requestCodeBody struct {
	Transport CodeTransport `json:"transport"`
	Client    string        `json:"client"`
}

type submitCodeBody struct {
	Code string `json:"code"`
}

// SignedPreKey is the public half of a signed pre-key, serialized by
// the caller. The key material is opaque here; it rides the wire as
// base64.
type SignedPreKey struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey []byte `json:"publicKey"`
	Signature []byte `json:"signature"`
}

// AccountAttributes describes the account being registered.
type AccountAttributes struct {
	// RecoveryPassword lets a later registration for the same number
	// skip verification.
	RecoveryPassword []byte
	// RegistrationID and PNIRegistrationID are the client-generated ids
	// for the account's two identities.
	RegistrationID    uint16
	PNIRegistrationID uint16
	// Name is the encrypted device name, if any.
	Name []byte
	// RegistrationLock is the account's registration lock proof, if set.
	RegistrationLock string
	// UnidentifiedAccessKey is derived from the profile key.
	UnidentifiedAccessKey []byte
	// UnrestrictedUnidentifiedAccess allows sealed sender messages from
	// arbitrary senders.
	UnrestrictedUnidentifiedAccess bool
	// Capabilities lists the capability names this client supports.
	Capabilities []string
	// DiscoverableByPhoneNumber opts the account into discovery.
	DiscoverableByPhoneNumber bool
}

// RegisterAccountRequest finishes registration after verification.
//
// SessionID must name a verified session; when empty, the recovery
// password in Attributes validates the request instead. At most one of
// APNToken and GCMToken may be set; with neither, the account is
// registered as one that fetches messages on its own.
type RegisterAccountRequest struct {
	Number          string
	AccountPassword []byte

	SessionID string

	Attributes         AccountAttributes
	SkipDeviceTransfer bool

	APNToken string
	GCMToken string

	// Public identity keys and pre-keys for the account's two
	// identities, serialized by the caller.
	ACIIdentityKey        []byte
	PNIIdentityKey        []byte
	ACISignedPreKey       SignedPreKey
	PNISignedPreKey       SignedPreKey
	ACIPQLastResortPreKey SignedPreKey
	PNIPQLastResortPreKey SignedPreKey
}

// RegisteredAccount is the server's record of a completed registration.
type RegisteredAccount struct {
	// ACI is the account's primary service identifier.
	ACI uuid.UUID `json:"uuid"`
	// Number echoes the registered phone number.
	Number string `json:"number"`
	// PNI is the identifier bound to the phone number.
	PNI uuid.UUID `json:"pni"`
	// UsernameHash is set when the account kept a username.
	UsernameHash []byte `json:"usernameHash"`
}

type accountAttributesBody struct {
	FetchesMessages                bool            `json:"fetchesMessages"`
	RecoveryPassword               []byte          `json:"recoveryPassword"`
	RegistrationID                 uint16          `json:"registrationId"`
	PNIRegistrationID              uint16          `json:"pniRegistrationId"`
	Name                           []byte          `json:"name,omitempty"`
	RegistrationLock               string          `json:"registrationLock,omitempty"`
	UnidentifiedAccessKey          []byte          `json:"unidentifiedAccessKey,omitempty"`
	UnrestrictedUnidentifiedAccess bool            `json:"unrestrictedUnidentifiedAccess"`
	Capabilities                   map[string]bool `json:"capabilities"`
	DiscoverableByPhoneNumber      bool            `json:"discoverableByPhoneNumber"`
}

type pushTokenBody struct {
	APNRegistrationID string `json:"apnRegistrationId,omitempty"`
	GCMRegistrationID string `json:"gcmRegistrationId,omitempty"`
}

type registerAccountBody struct {
	SessionID             string                `json:"sessionId,omitempty"`
	RecoveryPassword      []byte                `json:"recoveryPassword,omitempty"`
	AccountAttributes     accountAttributesBody `json:"accountAttributes"`
	SkipDeviceTransfer    bool                  `json:"skipDeviceTransfer"`
	ACIIdentityKey        []byte                `json:"aciIdentityKey"`
	PNIIdentityKey        []byte                `json:"pniIdentityKey"`
	ACISignedPreKey       SignedPreKey          `json:"aciSignedPreKey"`
	PNISignedPreKey       SignedPreKey          `json:"pniSignedPreKey"`
	ACIPQLastResortPreKey SignedPreKey          `json:"aciPqLastResortPreKey"`
	PNIPQLastResortPreKey SignedPreKey          `json:"pniPqLastResortPreKey"`
	PushToken             *pushTokenBody        `json:"pushToken,omitempty"`
}

// capabilityMap renders the capability list the way the server expects:
// an object mapping each supported capability name to true.
func capabilityMap(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
