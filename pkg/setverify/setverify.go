// Package setverify validates a Signed Entry Timestamp (SET): the
// transparency log's own attestation that it accepted an entry at a
// stated time.
package setverify

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"time"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
	"github.com/hyperpolymath/verified-container-spec/pkg/truststore"
)

const (
	minSETLength  = 74
	signatureSize = ed25519.SignatureSize // 64
	maxFutureSkew = 7 * 24 * time.Hour
)

// Verify base64-decodes the SET blob, extracts the log's claimed
// timestamp and trailing Ed25519 signature, and checks both the skew
// bound and the signature against logKey.
func Verify(setB64 string, logKey truststore.TrustedKey, now time.Time) error {
	raw, err := base64.StdEncoding.DecodeString(setB64)
	if err != nil {
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "signed_entry_timestamp is not valid base64", err)
	}
	if len(raw) < minSETLength {
		return ctperrors.New(ctperrors.KindMalformedBundle, "signed_entry_timestamp is shorter than 74 bytes")
	}

	signedBytes := raw[:len(raw)-signatureSize]
	signature := raw[len(raw)-signatureSize:]

	timestampMs := binary.BigEndian.Uint64(raw[2:10])
	timestamp := time.UnixMilli(int64(timestampMs))
	if timestamp.After(now.Add(maxFutureSkew)) {
		return ctperrors.New(ctperrors.KindSetInvalid, "signed_entry_timestamp is more than one week in the future")
	}

	if logKey.Algorithm != "ed25519" {
		return ctperrors.New(ctperrors.KindUnsupportedAlgorithm, "log key algorithm: "+logKey.Algorithm)
	}
	if len(logKey.KeyBytes) != ed25519.PublicKeySize {
		return ctperrors.New(ctperrors.KindSetInvalid, "log key is not 32 bytes")
	}
	if !ed25519.Verify(ed25519.PublicKey(logKey.KeyBytes), signedBytes, signature) {
		return ctperrors.New(ctperrors.KindSetInvalid, "signed_entry_timestamp signature does not verify")
	}
	return nil
}
