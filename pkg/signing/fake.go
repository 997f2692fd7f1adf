package signing

import "bytes"

// Fake is a deterministic Signer/Verifier test double: it signs by
// appending the signer's own id to msg, and verifies by checking that
// sig is exactly msg followed by the claimed validator's id. It provides
// the construction-time boundary point real ed25519 signing plugs into
// without any test needing actual key material.
type Fake struct {
	ValidatorID string
}

func (f Fake) Sign(msg []byte) ([]byte, error) {
	return append(append([]byte(nil), msg...), []byte(f.ValidatorID)...), nil
}

func (f Fake) Verify(validatorID string, msg []byte, sig []byte) bool {
	want := append(append([]byte(nil), msg...), []byte(validatorID)...)
	return bytes.Equal(want, sig)
}
