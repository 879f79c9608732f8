// Package token implements the compact tenant-scoped causality token
// codec (CT1) and the signer abstraction it is built on.
package token

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Signer produces and verifies MACs over arbitrary byte strings under a
// named key id. Implementations must be safe for concurrent use and must
// verify in constant time.
type Signer interface {
	// ActiveKeyID returns the key id new tokens should be signed with.
	// Encoding fails if this is blank.
	ActiveKeyID() string
	Sign(kid string, data []byte) ([]byte, error)
	Verify(kid string, data []byte, sig []byte) bool
}

// HMACSigner signs with HMAC-SHA256 over a fixed set of named keys. The
// MAC itself is computed by golang-jwt's SigningMethodHS256, which already
// compares MACs in constant time on Verify.
type HMACSigner struct {
	mu        sync.RWMutex
	keys      map[string][]byte
	activeKid string
}

// NewHMACSigner builds a signer with a single active key.
func NewHMACSigner(kid string, key []byte) *HMACSigner {
	return &HMACSigner{
		keys:      map[string][]byte{kid: key},
		activeKid: kid,
	}
}

// AddKey registers an additional verification key without changing which
// key new tokens are signed with. Used for key rotation: roll out the new
// key as a verification-only key first, then call Rotate.
func (s *HMACSigner) AddKey(kid string, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[kid] = key
}

// Rotate makes kid the active signing key. kid must already be known via
// NewHMACSigner or AddKey.
func (s *HMACSigner) Rotate(kid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[kid]; !ok {
		return false
	}
	s.activeKid = kid
	return true
}

func (s *HMACSigner) ActiveKeyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeKid
}

func (s *HMACSigner) Sign(kid string, data []byte) ([]byte, error) {
	key := s.keyFor(kid)
	if key == nil {
		return nil, errUnknownKey(kid)
	}
	return jwt.SigningMethodHS256.Sign(string(data), key)
}

// Verify reports whether sig is a valid HMAC-SHA256 MAC of data under kid.
// jwt.SigningMethodHS256.Verify compares MACs with hmac.Equal internally,
// so this runs in constant time regardless of where data first diverges.
func (s *HMACSigner) Verify(kid string, data []byte, sig []byte) bool {
	key := s.keyFor(kid)
	if key == nil {
		return false
	}
	return jwt.SigningMethodHS256.Verify(string(data), sig, key) == nil
}

func (s *HMACSigner) keyFor(kid string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[kid]
}

type errUnknownKey string

func (e errUnknownKey) Error() string { return "token: unknown key id " + string(e) }
