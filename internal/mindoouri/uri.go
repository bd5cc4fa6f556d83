// Package mindoouri implements the mdb:// scheme (§6): out-of-band exchange
// of join-request/join-response payloads with no network operation implied.
//
// Grounded on internal/sync/invite.go's vaultd:// scheme
// (base64url(JSON payload), ToQR/ToQRString, prefix-strip-then-decode
// parsing) generalized from a single PeerInvite shape to the two payload
// types §6 names (join-request, join-response), and carrying the same
// "v" version field invite.go encodes inline in its JSON struct, pulled out
// here into an explicit envelope since MindooURI must accept either payload
// shape behind one prefix.
package mindoouri

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Scheme is the URI prefix for every MindooURI.
const Scheme = "mdb://"

// Type enumerates the payload kinds §6 names.
type Type string

const (
	TypeJoinRequest  Type = "join-request"
	TypeJoinResponse Type = "join-response"
)

// Envelope is the decoded form of an mdb:// URI: a type tag plus the raw
// payload bytes (still JSON, not yet unmarshaled into a concrete struct —
// callers know which one they asked for).
type Envelope struct {
	Type    Type
	Payload json.RawMessage
}

// versioned decodes just the "v" field of a payload so Encode and Parse can
// reject one missing it per §6 ("Payload must contain integer v >= 1").
type versioned struct {
	V int `json:"v"`
}

// Encode renders payload (which must carry an integer "v" field with
// v >= 1) as an mdb://<type>/<base64url(JSON)> URI.
func Encode(typ Type, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("mindoouri: marshal payload: %w", err)
	}

	var v versioned
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("mindoouri: payload not an object: %w", err)
	}
	if v.V < 1 {
		return "", fmt.Errorf("mindoouri: payload missing integer v >= 1")
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	return fmt.Sprintf("%s%s/%s", Scheme, typ, encoded), nil
}

// Parse decodes an mdb://<type>/<base64url(JSON)> URI into an Envelope,
// validating the "v" field along the way.
func Parse(uri string) (*Envelope, error) {
	if !strings.HasPrefix(uri, Scheme) {
		return nil, fmt.Errorf("mindoouri: missing %q scheme", Scheme)
	}
	rest := strings.TrimPrefix(uri, Scheme)

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return nil, fmt.Errorf("mindoouri: missing type/payload separator")
	}
	typ := Type(rest[:slash])
	switch typ {
	case TypeJoinRequest, TypeJoinResponse:
	default:
		return nil, fmt.Errorf("mindoouri: unknown payload type %q", typ)
	}

	data, err := base64.RawURLEncoding.DecodeString(rest[slash+1:])
	if err != nil {
		return nil, fmt.Errorf("mindoouri: invalid base64url payload: %w", err)
	}

	var v versioned
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("mindoouri: payload not valid JSON: %w", err)
	}
	if v.V < 1 {
		return nil, fmt.Errorf("mindoouri: payload missing integer v >= 1")
	}

	return &Envelope{Type: typ, Payload: json.RawMessage(data)}, nil
}

// Unmarshal decodes the envelope's payload into dst (typically a
// *tenant.JoinRequest or *tenant.JoinResponse).
func (e *Envelope) Unmarshal(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

// ToQR renders uri as a QR code PNG, the same call shape as
// invite.go's ToQR (qrcode.Encode(uri, qrcode.Low, 256)).
func ToQR(uri string) ([]byte, error) {
	return qrcode.Encode(uri, qrcode.Low, 256)
}

// ToQRString renders uri as an ASCII-art QR code for terminal display.
func ToQRString(uri string) (string, error) {
	qr, err := qrcode.New(uri, qrcode.Low)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}
