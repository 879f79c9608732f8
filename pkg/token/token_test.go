package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseAndVerify_RoundTrips(t *testing.T) {
	signer := NewHMACSigner("k1", []byte("secret"))
	tok := Token{
		Tenant:    "acme",
		IssuedAt:  1000,
		Watermark: 2000,
		Version:   PresentVersion(7),
	}

	compact, err := Encode(tok, signer)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(compact, "CT1."))

	got, ok := ParseAndVerify(compact, signer)
	require.True(t, ok)
	assert.Equal(t, tok, got)
}

func TestEncode_AbsentVersionRoundTrips(t *testing.T) {
	signer := NewHMACSigner("k1", []byte("secret"))
	tok := Token{Tenant: "acme", IssuedAt: 1000, Watermark: 2000, Version: AbsentVersion}

	compact, err := Encode(tok, signer)
	require.NoError(t, err)

	got, ok := ParseAndVerify(compact, signer)
	require.True(t, ok)
	assert.False(t, got.Version.Present())
}

func TestEncode_BlankActiveKeyFails(t *testing.T) {
	signer := &HMACSigner{}
	_, err := Encode(Token{Tenant: "acme"}, signer)
	assert.ErrorIs(t, err, ErrBlankKeyID)
}

func TestParseAndVerify_RejectsMalformedInput(t *testing.T) {
	signer := NewHMACSigner("k1", []byte("secret"))
	cases := []string{
		"",
		"not-a-token",
		"CT1.k1.payload", // only 3 segments
		"CT1.k1.payload.sig.extra",
		"CT2.k1.cGF5bG9hZA.c2ln", // wrong prefix
		"CT1..cGF5bG9hZA.c2ln",   // blank key id
		"CT1.k1..c2ln",           // blank payload
		"CT1.k1.cGF5bG9hZA.",     // blank signature
		"CT1.k1.!!!notbase64.c2ln",
	}
	for _, c := range cases {
		_, ok := ParseAndVerify(c, signer)
		assert.False(t, ok, "expected %q to be rejected", c)
	}
}

func TestParseAndVerify_RejectsTamperedSignature(t *testing.T) {
	signer := NewHMACSigner("k1", []byte("secret"))
	compact, err := Encode(Token{Tenant: "acme", IssuedAt: 1, Watermark: 1}, signer)
	require.NoError(t, err)

	parts := strings.Split(compact, ".")
	parts[3] = "tampered-signature-bytes"
	tampered := strings.Join(parts, ".")

	_, ok := ParseAndVerify(tampered, signer)
	assert.False(t, ok)
}

func TestParseAndVerify_RejectsUnknownSigningKey(t *testing.T) {
	issuer := NewHMACSigner("k1", []byte("secret"))
	compact, err := Encode(Token{Tenant: "acme", IssuedAt: 1, Watermark: 1}, issuer)
	require.NoError(t, err)

	verifier := NewHMACSigner("k2", []byte("different-secret"))
	_, ok := ParseAndVerify(compact, verifier)
	assert.False(t, ok)
}

func TestHMACSigner_RotateAndVerifyPreviousKey(t *testing.T) {
	signer := NewHMACSigner("k1", []byte("secret-1"))
	signer.AddKey("k2", []byte("secret-2"))

	compactK1, err := Encode(Token{Tenant: "acme", IssuedAt: 1, Watermark: 1}, signer)
	require.NoError(t, err)

	require.True(t, signer.Rotate("k2"))
	assert.Equal(t, "k2", signer.ActiveKeyID())

	// Tokens signed under the now-inactive key still verify.
	_, ok := ParseAndVerify(compactK1, signer)
	assert.True(t, ok)

	// New tokens sign under the newly active key.
	compactK2, err := Encode(Token{Tenant: "acme", IssuedAt: 2, Watermark: 2}, signer)
	require.NoError(t, err)
	assert.True(t, strings.Contains(compactK2, ".k2."))
}

func TestHMACSigner_RotateUnknownKeyFails(t *testing.T) {
	signer := NewHMACSigner("k1", []byte("secret"))
	assert.False(t, signer.Rotate("unknown"))
	assert.Equal(t, "k1", signer.ActiveKeyID())
}

func TestPresentVersion_ZeroIsAbsent(t *testing.T) {
	assert.False(t, PresentVersion(0).Present())
	assert.Equal(t, AbsentVersion, PresentVersion(0))
}
