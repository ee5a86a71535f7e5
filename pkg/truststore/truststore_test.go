package truststore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
)

func writeStore(t *testing.T, dir string, wire wireFormat) string {
	t.Helper()
	raw, err := json.Marshal(wire)
	require.NoError(t, err)
	path := filepath.Join(dir, "trust-store.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	ts, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)

	_, ok := ts.GetKey("anything")
	require.False(t, ok)
}

func TestLoadValidStore(t *testing.T) {
	dir := t.TempDir()
	path := writeStore(t, dir, wireFormat{
		Keys: []TrustedKey{
			{KeyID: "key-a", Algorithm: "ed25519", KeyBytes: []byte{1, 2, 3}},
			{KeyID: "key-b", Algorithm: "ed25519", KeyBytes: []byte{4, 5, 6}},
		},
		ThresholdGroups: []ThresholdGroup{
			{Name: "release-signers", K: 2, N: 2, Members: []string{"key-a", "key-b"}},
		},
	})

	ts, err := Load(path)
	require.NoError(t, err)

	k, ok := ts.GetKey("key-a")
	require.True(t, ok)
	require.Equal(t, "ed25519", k.Algorithm)

	g, ok := ts.GetThresholdGroup("release-signers")
	require.True(t, ok)
	require.Equal(t, 2, g.K)
	require.Equal(t, 2, g.N)
	require.True(t, g.HasMember("key-a"))
	require.False(t, g.HasMember("key-z"))
}

func TestLoadRejectsGroupWithImpossibleThreshold(t *testing.T) {
	dir := t.TempDir()
	path := writeStore(t, dir, wireFormat{
		Keys: []TrustedKey{{KeyID: "key-a", Algorithm: "ed25519", KeyBytes: []byte{1}}},
		ThresholdGroups: []ThresholdGroup{
			{Name: "release-signers", K: 3, N: 1, Members: []string{"key-a"}},
		},
	})

	_, err := Load(path)
	require.Error(t, err)
	kind, ok := ctperrors.Of(err)
	require.True(t, ok)
	require.Equal(t, ctperrors.KindMalformedTrustStore, kind)
}

func TestLoadRejectsGroupWithMoreMembersThanN(t *testing.T) {
	dir := t.TempDir()
	path := writeStore(t, dir, wireFormat{
		Keys: []TrustedKey{{KeyID: "key-a", Algorithm: "ed25519", KeyBytes: []byte{1}}},
		ThresholdGroups: []ThresholdGroup{
			{Name: "release-signers", K: 1, N: 1, Members: []string{"key-a", "key-b"}},
		},
	})

	_, err := Load(path)
	require.Error(t, err)
	kind, ok := ctperrors.Of(err)
	require.True(t, ok)
	require.Equal(t, ctperrors.KindMalformedTrustStore, kind)
}

func TestLoadRejectsGroupWithDuplicateMember(t *testing.T) {
	dir := t.TempDir()
	path := writeStore(t, dir, wireFormat{
		Keys: []TrustedKey{{KeyID: "key-a", Algorithm: "ed25519", KeyBytes: []byte{1}}},
		ThresholdGroups: []ThresholdGroup{
			{Name: "release-signers", K: 1, N: 2, Members: []string{"key-a", "key-a"}},
		},
	})

	_, err := Load(path)
	require.Error(t, err)
	kind, ok := ctperrors.Of(err)
	require.True(t, ok)
	require.Equal(t, ctperrors.KindMalformedTrustStore, kind)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust-store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	kind, ok := ctperrors.Of(err)
	require.True(t, ok)
	require.Equal(t, ctperrors.KindMalformedTrustStore, kind)
}

func TestFingerprintChangesWithKeyBytesRotation(t *testing.T) {
	dir := t.TempDir()
	pathOld := writeStore(t, dir, wireFormat{
		Keys: []TrustedKey{{KeyID: "key-a", Algorithm: "ed25519", KeyBytes: []byte{1, 2, 3}}},
	})
	tsOld, err := Load(pathOld)
	require.NoError(t, err)

	dir2 := t.TempDir()
	pathNew := writeStore(t, dir2, wireFormat{
		Keys: []TrustedKey{{KeyID: "key-a", Algorithm: "ed25519", KeyBytes: []byte{9, 9, 9}}},
	})
	tsNew, err := Load(pathNew)
	require.NoError(t, err)

	require.NotEqual(t, tsOld.Fingerprint(), tsNew.Fingerprint(),
		"rotating key_bytes under the same keyid must change the fingerprint")
	require.Len(t, tsOld.Fingerprint(), 8)
}

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	dir := t.TempDir()
	path1 := writeStore(t, dir, wireFormat{
		Keys: []TrustedKey{
			{KeyID: "key-a", KeyBytes: []byte{1}},
			{KeyID: "key-b", KeyBytes: []byte{2}},
		},
	})
	ts1, err := Load(path1)
	require.NoError(t, err)

	dir2 := t.TempDir()
	path2 := writeStore(t, dir2, wireFormat{
		Keys: []TrustedKey{
			{KeyID: "key-b", KeyBytes: []byte{2}},
			{KeyID: "key-a", KeyBytes: []byte{1}},
		},
	})
	ts2, err := Load(path2)
	require.NoError(t, err)

	require.Equal(t, ts1.Fingerprint(), ts2.Fingerprint())
}
