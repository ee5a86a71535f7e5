// Package merkle validates RFC 6962 §2.1.1 Merkle audit paths: the proof
// that a leaf at a given index is included in a tree whose root hash is
// independently known (here, the root claimed inside the attestation
// bundle's LogEntry).
package merkle

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
)

// nodeHashPrefix is the RFC 6962 domain-separation byte for internal
// nodes (0x01). Leaves are prefixed 0x00 by the producer before this
// package ever sees them; LeafHash below is already that digest.
const nodeHashPrefix = 0x01

// Proof is an RFC 6962 audit path from a leaf to a claimed root.
type Proof struct {
	// LeafHash is hex-encoded SHA-256(0x00 || leaf_data), computed by the
	// producer. The verifier never sees leaf_data itself.
	LeafHash string
	// Path is the ordered sequence of hex-encoded sibling hashes, from the
	// leaf's sibling upward to the root.
	Path []string
	// LogIndex is the leaf's 0-based position in the tree.
	LogIndex uint64
	// TreeSize is the total number of leaves at the time the proof was issued.
	TreeSize uint64
	// RootHash is the hex-encoded claimed root.
	RootHash string
}

// Verify reconstructs the root from Proof.LeafHash and Proof.Path and
// compares it, byte-for-byte, to Proof.RootHash.
func Verify(p Proof) error {
	if p.LogIndex >= p.TreeSize {
		return ctperrors.New(ctperrors.KindLogProofInvalid, "log_index out of range for tree_size")
	}
	if len(p.Path) == 0 && p.TreeSize > 1 {
		return ctperrors.New(ctperrors.KindLogProofInvalid, "audit path is empty")
	}

	current, err := decodeHash(p.LeafHash)
	if err != nil {
		return err
	}
	expectedRoot, err := decodeHash(p.RootHash)
	if err != nil {
		return err
	}

	index := p.LogIndex
	for _, siblingHex := range p.Path {
		sibling, err := decodeHash(siblingHex)
		if err != nil {
			return err
		}

		if index%2 == 0 {
			// index is even: the recorded sibling is the right child.
			current = hashNode(current, sibling)
		} else {
			// index is odd: the recorded sibling is the left child.
			current = hashNode(sibling, current)
		}
		index /= 2
	}

	if !equalHashes(current, expectedRoot) {
		return ctperrors.New(ctperrors.KindLogProofInvalid, "reconstructed root does not match claimed root_hash")
	}
	return nil
}

func hashNode(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{nodeHashPrefix})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

func decodeHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ctperrors.Wrap(ctperrors.KindMalformedBundle, "hash is not valid hex: "+s, err)
	}
	return b, nil
}

func equalHashes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
