// Command ctpverify is the thin CLI wiring layer around the
// verification engine: it loads configuration and the trust store,
// builds a Pipeline, and translates its decision into a process exit
// code for the surrounding container shim.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hyperpolymath/verified-container-spec/pkg/audit"
	"github.com/hyperpolymath/verified-container-spec/pkg/bundle"
	"github.com/hyperpolymath/verified-container-spec/pkg/config"
	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
	"github.com/hyperpolymath/verified-container-spec/pkg/operatorauth"
	"github.com/hyperpolymath/verified-container-spec/pkg/pipeline"
	"github.com/hyperpolymath/verified-container-spec/pkg/truststore"
	"github.com/hyperpolymath/verified-container-spec/pkg/verifycache"
)

// Exit codes per the decision-surface contract: 0 success, 1 rejected,
// 2 malformed bundle, 3 transient/log error.
const (
	exitSuccess          = 0
	exitRejected         = 1
	exitMalformedBundle  = 2
	exitTransientFailure = 3
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint: flag parsing and wiring, no direct
// os.Exit calls below this point.
func Run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ctpverify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		name    = fs.String("name", "", "human-readable bundle name")
		version = fs.String("version", "", "bundle version")
		digest  = fs.String("image-digest", "", "claimed image digest, sha256:<hex>")
		bpath   = fs.String("bundle-path", "", "path to the attestation bundle JSON")
		modeStr = fs.String("mode", "strict", "verification mode: strict, permissive, audit")
		token   = fs.String("operator-token", "", "operator JWT, required for non-strict modes when OPERATOR_JWT_SECRET is set")
	)
	if err := fs.Parse(args[1:]); err != nil {
		return exitMalformedBundle
	}

	mode, err := parseMode(*modeStr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitMalformedBundle
	}

	cfg := config.Load()

	if mode != pipeline.Strict && cfg.OperatorJWTSecret != "" {
		if _, err := operatorauth.NewValidator(cfg.OperatorJWTSecret).Validate(*token); err != nil {
			fmt.Fprintln(stderr, "operator authorization failed:", err)
			return exitRejected
		}
	}

	handle := bundle.Handle{
		Name:                  *name,
		Version:               *version,
		ImageDigest:           *digest,
		AttestationBundlePath: *bpath,
	}

	trust, err := truststore.Load(cfg.TrustStorePath)
	if err != nil {
		fmt.Fprintln(stderr, "loading trust store:", err)
		return exitTransientFailure
	}

	recorder, err := audit.NewFileRecorder(cfg.AuditLogPath)
	if err != nil {
		fmt.Fprintln(stderr, "opening audit log:", err)
		return exitTransientFailure
	}

	p := pipeline.New(trust, verifycache.New(cfg.CacheDir), recorder, pipeline.WithLogger(slog.New(slog.NewTextHandler(stderr, nil))))

	decision, err := p.Verify(context.Background(), handle, mode)
	if err != nil {
		fmt.Fprintln(stderr, "verification aborted:", err)
		return exitTransientFailure
	}

	if decision.Allowed {
		fmt.Fprintln(stdout, "ALLOW")
		return exitSuccess
	}

	fmt.Fprintf(stdout, "REJECT %s: %s\n", decision.Kind, decision.Message)
	if decision.Kind == ctperrors.KindMalformedBundle || decision.Kind == ctperrors.KindMissingAttestation {
		return exitMalformedBundle
	}
	return exitRejected
}

func parseMode(s string) (pipeline.Mode, error) {
	switch s {
	case "strict", "":
		return pipeline.Strict, nil
	case "permissive":
		return pipeline.Permissive, nil
	case "audit":
		return pipeline.Audit, nil
	default:
		return 0, fmt.Errorf("unknown verification mode: %s", s)
	}
}
