// Package audit appends one immutable record per verification attempt
// to a persistent log.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
)

// Outcome is the recorded result of one verification attempt.
type Outcome string

const (
	OutcomeAllow          Outcome = "ALLOW"
	OutcomeReject         Outcome = "REJECT"
	OutcomeAudit          Outcome = "AUDIT"
	OutcomePermitOverride Outcome = "PERMIT_OVERRIDE"
	OutcomeAborted        Outcome = "ABORTED"
)

// Record is one line of the audit log.
type Record struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	BundleName  string  `json:"bundle_name"`
	ImageDigest string  `json:"image_digest"`
	Outcome     Outcome `json:"outcome"`
	ErrorKind   string  `json:"error_kind,omitempty"`
}

// Recorder appends Records to a log file.
type Recorder interface {
	Record(bundleName, imageDigest string, outcome Outcome, errorKind string) error
}

// fileRecorder implements Recorder against a plain file, one JSON object
// per line. Each call opens, appends, and closes the file rather than
// holding a long-lived handle, so that concurrent shims sharing the same
// path never interleave partial lines — the OS guarantees a single
// write(2) of a line-sized buffer is atomic on the same file.
type fileRecorder struct {
	mu   sync.Mutex
	path string
}

// NewFileRecorder returns a Recorder appending to path. The containing
// directory is created if absent, mirroring the reference shim's
// create-dir-then-append-open discipline.
func NewFileRecorder(path string) (Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ctperrors.Wrap(ctperrors.KindMalformedBundle, "creating audit log directory", err)
	}
	return &fileRecorder{path: path}, nil
}

func (r *fileRecorder) Record(bundleName, imageDigest string, outcome Outcome, errorKind string) error {
	rec := Record{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		BundleName:  bundleName,
		ImageDigest: imageDigest,
		Outcome:     outcome,
		ErrorKind:   errorKind,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "marshaling audit record", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "opening audit log", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "appending audit record", err)
	}
	return nil
}
