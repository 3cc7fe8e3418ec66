package publisher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptySecret is returned when a signer is constructed from an empty
// secret. Callers recover by keeping the previous, still-valid signer.
var ErrEmptySecret = errors.New("signing secret is empty")

// Signer computes an HMAC-SHA256 over a serialized event body. Signing is
// deterministic and pure for a given key; swapping the signer affects only
// subsequent signatures.
type Signer struct {
	key []byte
}

// NewSigner creates a signer from an opaque byte secret.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{key: key}, nil
}

// Sign returns the raw MAC of body.
func (s *Signer) Sign(body []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHex returns the lowercase hex MAC of body, the form carried in the
// X-HMAC-Signature header.
func (s *Signer) SignHex(body []byte) string {
	return hex.EncodeToString(s.Sign(body))
}

// Verify reports whether sig is a valid hex signature for body, using a
// constant-time comparison.
func (s *Signer) Verify(body []byte, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(want, s.Sign(body))
}
