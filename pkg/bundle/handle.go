// Package bundle defines the contract the verification engine consumes
// from the (external, out-of-scope) bundle-unpacking layer. The
// unpacking layer owns tarball extraction and manifest parsing; it
// hands the engine a Handle pointing at an already-extracted attestation
// bundle file.
package bundle

import (
	"fmt"
	"regexp"
)

var digestPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// Handle is the immutable, per-verification view of a container bundle.
// Its lifecycle (temp directory creation/cleanup) is owned by the
// surrounding shim, not by this package.
type Handle struct {
	// Name is a human-readable identifier, e.g. "nginx".
	Name string
	// Version is the image/bundle version, e.g. "1.26".
	Version string
	// ImageDigest is the claimed image digest, "sha256:" + 64 hex chars.
	ImageDigest string
	// AttestationBundlePath is a readable path to the attestation bundle JSON.
	AttestationBundlePath string
}

// Validate checks the structural well-formedness of the handle fields
// that the pipeline relies on before it ever touches the filesystem.
func (h Handle) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("bundle: name is required")
	}
	if !digestPattern.MatchString(h.ImageDigest) {
		return fmt.Errorf("bundle: image_digest %q is not sha256:<64 hex>", h.ImageDigest)
	}
	if h.AttestationBundlePath == "" {
		return fmt.Errorf("bundle: attestation_bundle_path is required")
	}
	return nil
}
