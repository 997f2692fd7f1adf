// Package signing models the validator-signing boundary as a pair of
// small interfaces. Real key custody and ed25519 signing live outside
// this module's scope; callers inject an implementation at
// construction time, matching spec's "Signer/keying ... queried as
// services."
package signing

// Signer produces a signature over msg under the caller's own identity.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// Verifier checks that sig is a valid signature over msg by validatorID.
type Verifier interface {
	Verify(validatorID string, msg []byte, sig []byte) bool
}
