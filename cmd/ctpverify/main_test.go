package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunRejectsMalformedModeFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"ctpverify", "-mode=bogus"}, &stdout, &stderr)
	require.Equal(t, exitMalformedBundle, code)
	require.Contains(t, stderr.String(), "unknown verification mode")
}

func TestRunRejectsMissingBundleFile(t *testing.T) {
	dir := t.TempDir()
	trustStore := filepath.Join(dir, "trust-store.json")
	require.NoError(t, os.WriteFile(trustStore, []byte(`{"keys":[],"threshold_groups":[]}`), 0o600))
	t.Setenv("TRUST_STORE_PATH", trustStore)
	t.Setenv("CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("AUDIT_LOG_PATH", filepath.Join(dir, "audit.log"))

	var stdout, stderr bytes.Buffer
	code := Run([]string{
		"ctpverify",
		"-name=nginx-1.26",
		"-image-digest=sha256:" + repeatHex("aa"),
		"-bundle-path=" + filepath.Join(dir, "does-not-exist.json"),
	}, &stdout, &stderr)

	require.Equal(t, exitMalformedBundle, code)
	require.Contains(t, stdout.String(), "MISSING_ATTESTATION")

	raw, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"outcome":"REJECT"`)

	var rec map[string]interface{}
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 1)
	require.NoError(t, json.Unmarshal(lines[0], &rec))
}

func TestRunRejectsNonStrictModeWithoutOperatorToken(t *testing.T) {
	dir := t.TempDir()
	trustStore := filepath.Join(dir, "trust-store.json")
	require.NoError(t, os.WriteFile(trustStore, []byte(`{"keys":[],"threshold_groups":[]}`), 0o600))
	t.Setenv("TRUST_STORE_PATH", trustStore)
	t.Setenv("CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("AUDIT_LOG_PATH", filepath.Join(dir, "audit.log"))
	t.Setenv("OPERATOR_JWT_SECRET", "super-secret")

	var stdout, stderr bytes.Buffer
	code := Run([]string{
		"ctpverify",
		"-mode=permissive",
		"-name=nginx-1.26",
		"-image-digest=sha256:" + repeatHex("aa"),
		"-bundle-path=" + filepath.Join(dir, "does-not-exist.json"),
	}, &stdout, &stderr)

	require.Equal(t, exitRejected, code)
	require.Contains(t, stderr.String(), "operator authorization failed")
}

func TestRunAllowsStrictModeWithoutOperatorToken(t *testing.T) {
	dir := t.TempDir()
	trustStore := filepath.Join(dir, "trust-store.json")
	require.NoError(t, os.WriteFile(trustStore, []byte(`{"keys":[],"threshold_groups":[]}`), 0o600))
	t.Setenv("TRUST_STORE_PATH", trustStore)
	t.Setenv("CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("AUDIT_LOG_PATH", filepath.Join(dir, "audit.log"))
	t.Setenv("OPERATOR_JWT_SECRET", "super-secret")

	var stdout, stderr bytes.Buffer
	code := Run([]string{
		"ctpverify",
		"-name=nginx-1.26",
		"-image-digest=sha256:" + repeatHex("aa"),
		"-bundle-path=" + filepath.Join(dir, "does-not-exist.json"),
	}, &stdout, &stderr)

	require.Equal(t, exitMalformedBundle, code, "strict mode never requires an operator token")
}

func repeatHex(b string) string {
	out := ""
	for len(out) < 64 {
		out += b
	}
	return out[:64]
}
