// Package attestation defines the attestation-bundle wire format and
// parses it from JSON, rejecting malformed input before it ever reaches
// the verification pipeline.
package attestation

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
)

// expectedMediaType is the only accepted value of Bundle.MediaType.
const expectedMediaType = "application/vnd.verified-container.bundle+json"

// Bundle is the root object of an attestation bundle file.
type Bundle struct {
	MediaType    string        `json:"mediaType"`
	Version      string        `json:"version"`
	Attestations []Attestation `json:"attestations"`
	LogEntries   []LogEntry    `json:"logEntries"`

	// ParsedVersion is Version parsed as semver, when it happens to be
	// one. The wire contract only requires "a version string" (no
	// semver mandate), so a non-semver Version is not an error — it
	// just leaves this nil.
	ParsedVersion *semver.Version `json:"-"`
}

// Attestation is one signed statement about the image subject.
type Attestation struct {
	Subjects      []Subject `json:"subject"`
	PredicateType string    `json:"predicateType"`
	Envelope      Envelope  `json:"envelope"`
}

// Subject carries the digest an Attestation claims to describe.
type Subject struct {
	Digest Digest `json:"digest"`
}

// Digest holds the hex-encoded sha256 of a subject.
type Digest struct {
	SHA256 string `json:"sha256"`
}

// Envelope is a DSSE envelope: an opaque payload plus its signatures.
type Envelope struct {
	PayloadType string      `json:"payloadType"`
	Payload     []byte      `json:"payload"`
	Signatures  []Signature `json:"signatures"`
}

// Signature is one (keyid, signature_bytes) pair over Envelope.Payload.
type Signature struct {
	KeyID string `json:"keyid"`
	Sig   []byte `json:"sig"`
}

// LogEntry is one transparency-log record referenced by the bundle.
type LogEntry struct {
	LogID                string          `json:"logId"`
	SignedEntryTimestamp string          `json:"signedEntryTimestamp"`
	InclusionProof       *InclusionProof `json:"inclusionProof,omitempty"`
}

// InclusionProof is the wire form of an RFC 6962 audit path.
type InclusionProof struct {
	LogIndex uint64   `json:"logIndex"`
	TreeSize uint64   `json:"treeSize"`
	RootHash string   `json:"rootHash"`
	Hashes   []string `json:"hashes"`
}

// Parse reads and decodes the attestation bundle JSON at path.
func Parse(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ctperrors.Wrap(ctperrors.KindMissingAttestation, "reading attestation bundle", err)
	}

	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, ctperrors.Wrap(ctperrors.KindMalformedBundle, "parsing attestation bundle JSON", err)
	}
	if b.MediaType != expectedMediaType {
		return nil, ctperrors.New(ctperrors.KindMalformedBundle, "unexpected mediaType: "+b.MediaType)
	}
	if v, err := semver.NewVersion(b.Version); err == nil {
		b.ParsedVersion = v
	} else {
		slog.Default().Warn("bundle version is not semver, proceeding without it",
			"version", b.Version, "error", err)
	}
	return &b, nil
}
