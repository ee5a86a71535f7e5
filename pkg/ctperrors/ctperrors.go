// Package ctperrors defines the typed error kinds produced by the
// verification engine. Every detecting component returns a *Error
// carrying a Kind; VerificationPipeline maps outcomes by Kind, never by
// substring-matching a message.
package ctperrors

import "fmt"

// Kind enumerates the protocol-level reasons a verification can fail.
// Each value maps 1-to-1 to a reason code at the process boundary.
type Kind string

const (
	KindMissingAttestation     Kind = "MISSING_ATTESTATION"
	KindMalformedBundle        Kind = "MALFORMED_BUNDLE"
	KindSubjectMismatch        Kind = "SUBJECT_MISMATCH"
	KindUnknownKey             Kind = "UNKNOWN_KEY"
	KindExpiredKey             Kind = "EXPIRED_KEY"
	KindKeyNotYetValid         Kind = "KEY_NOT_YET_VALID"
	KindInvalidSignature       Kind = "INVALID_SIGNATURE"
	KindUnsupportedAlgorithm   Kind = "UNSUPPORTED_ALGORITHM"
	KindInsufficientLogCoverage Kind = "INSUFFICIENT_LOG_COVERAGE"
	KindSetInvalid             Kind = "SET_INVALID"
	KindLogProofInvalid        Kind = "LOG_PROOF_INVALID"
	KindThresholdNotMet        Kind = "THRESHOLD_NOT_MET"
	KindMalformedTrustStore    Kind = "MALFORMED_TRUST_STORE"
)

// Error is the typed error carried end-to-end from a detecting component
// up through VerificationPipeline. Kind is the stable identity for
// callers; Message is human-readable context; Err, when present, is the
// underlying cause (e.g. a json.Unmarshal error).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so callers
// can write errors.Is(err, ctperrors.New(ctperrors.KindThresholdNotMet, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind, wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Of returns the Kind carried by err if err is (or wraps) a *Error,
// and whether one was found.
func Of(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}

// Fatal reports whether a Kind is treated as fatal regardless of
// VerificationMode — a structurally invalid bundle indicates tampering
// or wire corruption, not a trust decision (spec design recommendation).
func Fatal(k Kind) bool {
	return k == KindMalformedBundle || k == KindMissingAttestation
}
