// Package sigverify checks a single Ed25519 signature against a trusted
// key, enforcing the key's validity window at the time of verification.
package sigverify

import (
	"crypto/ed25519"
	"time"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
	"github.com/hyperpolymath/verified-container-spec/pkg/truststore"
)

const (
	publicKeyLength = ed25519.PublicKeySize // 32
	signatureLength = ed25519.SignatureSize // 64
)

// Verify checks signature over payload under key, as of now.
//
// The payload is treated as opaque: whatever bytes the DSSE envelope
// carries are exactly what gets hashed and verified. If a producer used
// PAE framing upstream, that framing is already baked into payload by
// the time it reaches this function.
func Verify(payload, signature []byte, key truststore.TrustedKey, now time.Time) error {
	if key.Algorithm != "ed25519" {
		return ctperrors.New(ctperrors.KindUnsupportedAlgorithm, "algorithm: "+key.Algorithm)
	}
	if len(key.KeyBytes) != publicKeyLength {
		return ctperrors.New(ctperrors.KindInvalidSignature, "trusted key is not 32 bytes")
	}
	if len(signature) != signatureLength {
		return ctperrors.New(ctperrors.KindInvalidSignature, "signature is not 64 bytes")
	}
	if key.ValidFrom != nil && now.Before(*key.ValidFrom) {
		return ctperrors.New(ctperrors.KindKeyNotYetValid, "key "+key.KeyID+" not valid until "+key.ValidFrom.Format(time.RFC3339))
	}
	if key.ValidUntil != nil && now.After(*key.ValidUntil) {
		return ctperrors.New(ctperrors.KindExpiredKey, "key "+key.KeyID+" expired "+key.ValidUntil.Format(time.RFC3339))
	}

	if !ed25519.Verify(ed25519.PublicKey(key.KeyBytes), payload, signature) {
		return ctperrors.New(ctperrors.KindInvalidSignature, "ed25519 verification failed for key "+key.KeyID)
	}
	return nil
}
