// Package truststore loads and serves the set of trusted signer keys and
// threshold groups that VerificationPipeline checks attestations against.
// The store itself never does any signature math; it is a lookup table.
package truststore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
)

// TrustedKey is one signer key accepted by the store, along with the
// validity window it may be used in.
type TrustedKey struct {
	KeyID      string     `json:"keyid"`
	Algorithm  string     `json:"algorithm"`
	KeyBytes   []byte     `json:"key_bytes"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	TrustLevel string     `json:"trust_level,omitempty"`
}

// ThresholdGroup names a k-of-n policy over a set of member key IDs.
// 1 <= K <= N, and the member set's cardinality must not exceed N.
type ThresholdGroup struct {
	Name    string   `json:"name"`
	K       int      `json:"k"`
	N       int      `json:"n"`
	Members []string `json:"member_keyids"`
}

// HasMember reports whether keyid belongs to the group.
func (g ThresholdGroup) HasMember(keyid string) bool {
	for _, m := range g.Members {
		if m == keyid {
			return true
		}
	}
	return false
}

// wireFormat is the on-disk JSON shape at TRUST_STORE_PATH.
type wireFormat struct {
	Keys            []TrustedKey     `json:"keys"`
	ThresholdGroups []ThresholdGroup `json:"threshold_groups"`
}

// TrustStore is the concurrency-safe, read-mostly set of trusted keys and
// threshold groups for one verification run. A TrustStore is immutable
// after Load returns; the sync.Once only guards the lazily-memoized
// fingerprint.
type TrustStore struct {
	keys   map[string]TrustedKey
	groups map[string]ThresholdGroup

	fpOnce sync.Once
	fp     string
}

// Load reads and parses the trust store at path. A missing file is not an
// error: it yields an empty store, matching the "fail closed on
// verification, not on bootstrap" posture described for this component —
// an empty store simply means every signature lookup will report
// KindUnknownKey.
func Load(path string) (*TrustStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &TrustStore{keys: map[string]TrustedKey{}, groups: map[string]ThresholdGroup{}}, nil
		}
		return nil, ctperrors.Wrap(ctperrors.KindMalformedTrustStore, "reading trust store", err)
	}

	var wire wireFormat
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, ctperrors.Wrap(ctperrors.KindMalformedTrustStore, "parsing trust store JSON", err)
	}

	ts := &TrustStore{
		keys:   make(map[string]TrustedKey, len(wire.Keys)),
		groups: make(map[string]ThresholdGroup, len(wire.ThresholdGroups)),
	}
	for _, k := range wire.Keys {
		if k.KeyID == "" {
			return nil, ctperrors.New(ctperrors.KindMalformedTrustStore, "key entry missing keyid")
		}
		ts.keys[k.KeyID] = k
	}
	for _, g := range wire.ThresholdGroups {
		if g.Name == "" {
			return nil, ctperrors.New(ctperrors.KindMalformedTrustStore, "threshold group missing name")
		}
		if g.K <= 0 || g.K > g.N {
			return nil, ctperrors.New(ctperrors.KindMalformedTrustStore, "threshold group k out of range for n: "+g.Name)
		}
		if len(g.Members) > g.N {
			return nil, ctperrors.New(ctperrors.KindMalformedTrustStore, "threshold group has more members than n: "+g.Name)
		}
		seen := make(map[string]struct{}, len(g.Members))
		for _, m := range g.Members {
			if _, dup := seen[m]; dup {
				return nil, ctperrors.New(ctperrors.KindMalformedTrustStore, "threshold group has duplicate member: "+g.Name)
			}
			seen[m] = struct{}{}
		}
		ts.groups[g.Name] = g
	}
	return ts, nil
}

// GetKey looks up a trusted key by keyid.
func (ts *TrustStore) GetKey(keyid string) (TrustedKey, bool) {
	k, ok := ts.keys[keyid]
	return k, ok
}

// GetThresholdGroup looks up a threshold group by name.
func (ts *TrustStore) GetThresholdGroup(name string) (ThresholdGroup, bool) {
	g, ok := ts.groups[name]
	return g, ok
}

// Fingerprint returns a deterministic, 8-hex-char digest of the store's
// keys, used by VerificationCache to invalidate cached decisions when a
// trusted key is added, removed, or changed. It is computed over
// JCS-canonicalized (keyid, key_bytes) pairs for every key, sorted by
// keyid — key_bytes is included deliberately, not just keyid, so that
// rotating a key to a new value under the same keyid changes the
// fingerprint instead of silently reusing a stale cached ALLOW decision.
// Threshold groups are not part of the input: changing a group alone
// leaves the fingerprint unchanged.
func (ts *TrustStore) Fingerprint() string {
	ts.fpOnce.Do(func() {
		ts.fp = ts.computeFingerprint()
	})
	return ts.fp
}

type fingerprintEntry struct {
	KeyID    string `json:"keyid"`
	KeyBytes string `json:"key_bytes"`
}

func (ts *TrustStore) computeFingerprint() string {
	ids := make([]string, 0, len(ts.keys))
	for id := range ts.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]fingerprintEntry, 0, len(ids))
	for _, id := range ids {
		k := ts.keys[id]
		entries = append(entries, fingerprintEntry{
			KeyID:    k.KeyID,
			KeyBytes: hex.EncodeToString(k.KeyBytes),
		})
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		// entries is a plain struct slice of strings; Marshal cannot fail.
		panic("truststore: unreachable marshal failure: " + err.Error())
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		// Transform only fails on malformed JSON input, which raw is not.
		panic("truststore: unreachable jcs.Transform failure: " + err.Error())
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:8]
}
