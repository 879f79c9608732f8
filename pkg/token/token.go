package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

const prefix = "CT1"

// ErrBlankKeyID is returned by Encode when the signer has no active key.
// This is a programming error, not a validation error: callers must wire
// a signer with at least one key before issuing tokens.
var ErrBlankKeyID = errors.New("token: signer has a blank active key id")

// Version is an optional entity version carried in a token. Zero is never
// a legal version, so Present(0) is invalid and treated as Absent by
// encoders; parseAndVerify never fabricates Present(0).
type Version struct {
	present bool
	value   uint64
}

// AbsentVersion is the zero value of Version: no entity version present.
var AbsentVersion = Version{}

// PresentVersion builds a Version carrying v. v must be > 0; callers that
// pass 0 get AbsentVersion back, matching the "version 0 is never legal"
// invariant.
func PresentVersion(v uint64) Version {
	if v == 0 {
		return AbsentVersion
	}
	return Version{present: true, value: v}
}

func (v Version) Present() bool { return v.present }
func (v Version) Value() uint64 { return v.value }

// Token is the decoded payload of a causality token.
type Token struct {
	Tenant    string
	IssuedAt  int64 // epoch millis
	Watermark int64 // epoch millis
	Version   Version
}

// wireToken is the compact on-the-wire JSON shape: short field names keep
// the encoded token small.
type wireToken struct {
	T   string `json:"t"`
	IAT int64  `json:"iat"`
	WM  int64  `json:"wm"`
	Ver uint64 `json:"ver,omitempty"`
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

// Encode builds a compact CT1 token string signed by signer. The only
// failure mode is a blank active key id on the signer.
func Encode(t Token, signer Signer) (string, error) {
	kid := signer.ActiveKeyID()
	if kid == "" {
		return "", ErrBlankKeyID
	}

	w := wireToken{T: t.Tenant, IAT: t.IssuedAt, WM: t.Watermark}
	if t.Version.Present() {
		w.Ver = t.Version.Value()
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return "", err
	}

	signedMaterial := prefix + "." + kid + "." + b64(payload)
	sig, err := signer.Sign(kid, []byte(signedMaterial))
	if err != nil {
		return "", err
	}

	return signedMaterial + "." + b64(sig), nil
}

// ParseAndVerify decodes and verifies a compact token. It returns ok=false
// (never an error) for every malformed or unverifiable input: wrong
// prefix, wrong segment count, blank segments, base64 errors, signature
// mismatch, or payload deserialization errors. This lets call sites treat
// any parse failure identically to "no token" per the engine-level
// TOKEN_INVALID taxonomy.
func ParseAndVerify(compact string, signer Signer) (Token, bool) {
	parts := strings.Split(compact, ".")
	if len(parts) != 4 {
		return Token{}, false
	}
	gotPrefix, kid, payloadB64, sigB64 := parts[0], parts[1], parts[2], parts[3]
	if gotPrefix != prefix || kid == "" || payloadB64 == "" || sigB64 == "" {
		return Token{}, false
	}

	sig, err := unb64(sigB64)
	if err != nil {
		return Token{}, false
	}

	signedMaterial := gotPrefix + "." + kid + "." + payloadB64
	if !signer.Verify(kid, []byte(signedMaterial), sig) {
		return Token{}, false
	}

	payload, err := unb64(payloadB64)
	if err != nil {
		return Token{}, false
	}

	var w wireToken
	if err := json.Unmarshal(payload, &w); err != nil {
		return Token{}, false
	}

	return Token{
		Tenant:    w.T,
		IssuedAt:  w.IAT,
		Watermark: w.WM,
		Version:   PresentVersion(w.Ver),
	}, true
}
