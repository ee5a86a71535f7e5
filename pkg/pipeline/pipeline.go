// Package pipeline orchestrates the fixed verification sequence: cache
// lookup, parse, subject match, signatures, log inclusion, threshold.
// It is the single entry point the surrounding shim calls.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyperpolymath/verified-container-spec/pkg/attestation"
	"github.com/hyperpolymath/verified-container-spec/pkg/audit"
	"github.com/hyperpolymath/verified-container-spec/pkg/bundle"
	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
	"github.com/hyperpolymath/verified-container-spec/pkg/merkle"
	"github.com/hyperpolymath/verified-container-spec/pkg/setverify"
	"github.com/hyperpolymath/verified-container-spec/pkg/sigverify"
	"github.com/hyperpolymath/verified-container-spec/pkg/truststore"
	"github.com/hyperpolymath/verified-container-spec/pkg/verifycache"
)

// Mode controls how a failed verification is reported upward. It never
// changes which checks run or what they find — only what the caller
// sees. Ordering mirrors the reference shim's enum (Strict, Permissive,
// Audit), kept stable because it is observable in serialized state.
type Mode int

const (
	Strict Mode = iota
	Permissive
	Audit
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "Strict"
	case Permissive:
		return "Permissive"
	case Audit:
		return "Audit"
	default:
		return "Unknown"
	}
}

const releaseSignersGroup = "release-signers"

// Decision is the outcome of one verification attempt.
type Decision struct {
	Allowed bool
	Kind    ctperrors.Kind // zero value when Allowed
	Message string
}

// Pipeline wires together the components a verification attempt needs.
type Pipeline struct {
	Trust    *truststore.TrustStore
	Cache    *verifycache.Cache
	Recorder audit.Recorder
	Now      func() time.Time

	tracer trace.Tracer
	meter  metric.Meter
	logger *slog.Logger

	decisionsTotal metric.Int64Counter
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New constructs a Pipeline. Trust, Cache, and Recorder are required.
func New(trust *truststore.TrustStore, cache *verifycache.Cache, recorder audit.Recorder, opts ...Option) *Pipeline {
	p := &Pipeline{
		Trust:    trust,
		Cache:    cache,
		Recorder: recorder,
		Now:      time.Now,
		tracer:   otel.Tracer("verified-container/pipeline"),
		meter:    otel.Meter("verified-container/pipeline"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	counter, err := p.meter.Int64Counter("verification_decisions_total",
		metric.WithDescription("count of verification decisions by outcome"))
	if err == nil {
		p.decisionsTotal = counter
	}
	return p
}

// Verify runs the fixed six-step pipeline against handle under mode.
func (p *Pipeline) Verify(ctx context.Context, handle bundle.Handle, mode Mode) (Decision, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Verify",
		trace.WithAttributes(
			attribute.String("bundle.name", handle.Name),
			attribute.String("bundle.image_digest", handle.ImageDigest),
			attribute.String("verification.mode", mode.String()),
		))
	defer span.End()

	if err := ctx.Err(); err != nil {
		_ = p.Recorder.Record(handle.Name, handle.ImageDigest, audit.OutcomeAborted, "")
		return Decision{}, err
	}

	if err := handle.Validate(); err != nil {
		return p.finish(ctx, handle, mode, Decision{Allowed: false, Kind: ctperrors.KindMalformedBundle, Message: err.Error()}, false)
	}

	fingerprint := p.Trust.Fingerprint()

	// Step 1: cache lookup.
	hit, err := p.Cache.Hit(handle.ImageDigest, fingerprint)
	if err != nil {
		p.logger.WarnContext(ctx, "cache lookup failed, proceeding without cache", "error", err)
	}
	if hit {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return Decision{Allowed: true}, nil
	}

	if !p.Cache.AllowMiss(handle.ImageDigest) {
		return Decision{}, fmt.Errorf("verification rate limit exceeded for %s", handle.ImageDigest)
	}

	decision := p.evaluate(ctx, handle, mode)
	return p.finish(ctx, handle, mode, decision, decision.Allowed)
}

// evaluate runs checks 2-6 of the contract. It never touches the cache
// or audit log — finish does that, uniformly, for every exit path.
func (p *Pipeline) evaluate(ctx context.Context, handle bundle.Handle, mode Mode) Decision {
	now := p.Now()

	// Step 2: parse.
	b, err := attestation.Parse(handle.AttestationBundlePath)
	if err != nil {
		return decisionFromError(err)
	}

	// Step 3: subject match. All subjects are checked; not short-circuited.
	mismatch := false
	for _, att := range b.Attestations {
		for _, subj := range att.Subjects {
			if "sha256:"+subj.Digest.SHA256 != handle.ImageDigest {
				mismatch = true
			}
		}
	}
	if mismatch {
		return Decision{Allowed: false, Kind: ctperrors.KindSubjectMismatch, Message: "subject digest does not match claimed image digest"}
	}

	// Step 4: signatures. Every signature of every attestation is checked;
	// no early-accept.
	distinctSigners := map[string]struct{}{}
	for _, att := range b.Attestations {
		if len(att.Envelope.Signatures) == 0 {
			return Decision{Allowed: false, Kind: ctperrors.KindMalformedBundle, Message: "attestation has no DSSE envelope signatures"}
		}
		for _, sig := range att.Envelope.Signatures {
			key, ok := p.Trust.GetKey(sig.KeyID)
			if !ok {
				return Decision{Allowed: false, Kind: ctperrors.KindUnknownKey, Message: "unknown keyid: " + sig.KeyID}
			}
			if err := sigverify.Verify(att.Envelope.Payload, sig.Sig, key, now); err != nil {
				return decisionFromError(err)
			}
			distinctSigners[sig.KeyID] = struct{}{}
		}
	}

	// Step 5: log inclusion.
	distinctLogIDs := map[string]struct{}{}
	for _, entry := range b.LogEntries {
		distinctLogIDs[entry.LogID] = struct{}{}
	}
	if len(distinctLogIDs) < 2 {
		return Decision{Allowed: false, Kind: ctperrors.KindInsufficientLogCoverage, Message: fmt.Sprintf("only %d distinct log_id(s)", len(distinctLogIDs))}
	}
	for _, entry := range b.LogEntries {
		logKey, ok := p.Trust.GetKey(entry.LogID)
		if !ok {
			return Decision{Allowed: false, Kind: ctperrors.KindUnknownKey, Message: "unknown log_id: " + entry.LogID}
		}
		if err := setverify.Verify(entry.SignedEntryTimestamp, logKey, now); err != nil {
			return decisionFromError(err)
		}
		if entry.InclusionProof != nil {
			proof := merkle.Proof{
				LeafHash: firstHash(entry.InclusionProof.Hashes),
				Path:     restHashes(entry.InclusionProof.Hashes),
				LogIndex: entry.InclusionProof.LogIndex,
				TreeSize: entry.InclusionProof.TreeSize,
				RootHash: entry.InclusionProof.RootHash,
			}
			if err := merkle.Verify(proof); err != nil {
				return decisionFromError(err)
			}
		}
		// A missing proof is a warning under the reference design, not a failure.
	}

	// Step 6: threshold.
	group, ok := p.Trust.GetThresholdGroup(releaseSignersGroup)
	if !ok {
		return Decision{Allowed: false, Kind: ctperrors.KindThresholdNotMet, Message: "no release-signers threshold group configured"}
	}
	covering := 0
	for keyid := range distinctSigners {
		if group.HasMember(keyid) {
			covering++
		}
	}
	if covering < group.K {
		return Decision{Allowed: false, Kind: ctperrors.KindThresholdNotMet, Message: fmt.Sprintf("%d of %d", covering, group.N)}
	}

	return Decision{Allowed: true}
}

// finish applies the reported-outcome policy for mode, writes the cache
// entry on a true pass, and writes exactly one audit record.
func (p *Pipeline) finish(ctx context.Context, handle bundle.Handle, mode Mode, decision Decision, underlyingPass bool) (Decision, error) {
	span := trace.SpanFromContext(ctx)

	outcome := audit.OutcomeAllow
	reported := decision

	if !underlyingPass {
		fatal := ctperrors.Fatal(decision.Kind)
		switch {
		case fatal:
			outcome = audit.OutcomeReject
		case mode == Strict:
			outcome = audit.OutcomeReject
		case mode == Permissive:
			outcome = audit.OutcomePermitOverride
			reported = Decision{Allowed: true}
		case mode == Audit:
			outcome = audit.OutcomeAudit
			reported = Decision{Allowed: true}
		}
	} else {
		if err := p.Cache.Put(handle.ImageDigest, p.Trust.Fingerprint()); err != nil {
			p.logger.WarnContext(ctx, "failed to write cache entry", "error", err)
		}
	}

	if err := p.Recorder.Record(handle.Name, handle.ImageDigest, outcome, string(decision.Kind)); err != nil {
		p.logger.ErrorContext(ctx, "failed to write audit record", "error", err)
	}

	if p.decisionsTotal != nil {
		p.decisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	}

	if !underlyingPass {
		span.SetStatus(codes.Error, string(decision.Kind))
	}

	p.logger.InfoContext(ctx, "verification decision",
		"bundle", handle.Name,
		"image_digest", handle.ImageDigest,
		"mode", mode.String(),
		"outcome", outcome,
		"underlying_pass", underlyingPass,
	)

	return reported, nil
}

func decisionFromError(err error) Decision {
	kind, ok := ctperrors.Of(err)
	if !ok {
		kind = ctperrors.KindMalformedBundle
	}
	return Decision{Allowed: false, Kind: kind, Message: err.Error()}
}

func firstHash(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	return hashes[0]
}

func restHashes(hashes []string) []string {
	if len(hashes) <= 1 {
		return nil
	}
	return hashes[1:]
}
